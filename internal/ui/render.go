package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/stemsi/exstem-client/internal/model"
)

// View renders the exam screen.
func (m Model) View() string {
	switch m.phase {
	case phaseResult:
		return m.renderResult()
	case phaseFailed:
		return m.renderFailed()
	}

	header := m.renderHeader()
	question := m.renderQuestion()
	palette := m.renderPalette()
	help := m.renderHelp()

	body := lipgloss.JoinVertical(lipgloss.Left, header, question, palette, help)

	switch m.phase {
	case phaseConfirming:
		overlay := overlayStyle.Render(
			fmt.Sprintf("Submit exam?\n\n%d of %d questions answered.\n\n[y] submit   [n] keep working",
				m.sess.AnsweredCount(), len(m.sess.Questions())))
		return lipgloss.JoinVertical(lipgloss.Left, body, overlay)
	case phaseSubmitting:
		return lipgloss.JoinVertical(lipgloss.Left, body, m.spin.View()+" submitting…")
	}

	return body
}

func (m Model) renderHeader() string {
	exam := m.sess.Exam()
	title := "Exam"
	if exam != nil {
		title = exam.Title
	}

	left := titleStyle.Render(title)
	if !m.timed {
		return left
	}

	style := timerStyle
	if m.remaining <= 60 {
		style = timerLowStyle
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, left, "  ", style.Render("⏱ "+formatCountdown(m.remaining)))
}

func (m Model) renderQuestion() string {
	q := m.sess.CurrentQuestion()
	if q == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question %d / %d\n\n", m.sess.CurrentIndex()+1, len(m.sess.Questions()))
	b.WriteString(q.QuestionText)
	b.WriteString("\n\n")

	ans, answered := m.sess.Answer(q.ID)

	switch q.QuestionType {
	case model.QuestionTypeMultipleChoice, model.QuestionTypeMultipleSelect:
		m.renderOptions(&b, q.Options, ans, q.QuestionType.IsMultiSelect())

	case model.QuestionTypeTrueFalse:
		m.renderOptions(&b, trueFalseOptions(q), ans, false)

	case model.QuestionTypeOrdering:
		b.WriteString("Press numbers to build the order, [u] to undo:\n")
		for i, item := range q.OrderingItems {
			marker := " "
			if ans.Contains(item) {
				marker = "•"
			}
			fmt.Fprintf(&b, " %s [%s] %s\n", marker, optionLabel(i), item)
		}
		if answered && ans.Kind == model.AnswerKindMulti {
			b.WriteString("\nCurrent order: " + selectedOptionStyle.Render(strings.Join(ans.Multi, " → ")))
		}

	case model.QuestionTypeMatching:
		b.WriteString("Match each item ([j] next item, number picks a match):\n")
		for i, pair := range q.MatchingPairs {
			cursor := "  "
			if i == m.matchCursor {
				cursor = "> "
			}
			matched := ""
			if ans.Kind == model.AnswerKindMapping {
				if right, ok := ans.Mapping[pair.Left]; ok {
					matched = " = " + selectedOptionStyle.Render(right)
				}
			}
			fmt.Fprintf(&b, "%s%s%s\n", cursor, pair.Left, matched)
		}
		b.WriteString("\nChoices:\n")
		for i, pair := range q.MatchingPairs {
			fmt.Fprintf(&b, " [%s] %s\n", optionLabel(i), pair.Right)
		}

	case model.QuestionTypeHotspot:
		fmt.Fprintf(&b, "Image: %s\nPick the region:\n", q.HotspotImage)
		for i, r := range q.HotspotRegions {
			line := fmt.Sprintf(" [%s] %s", optionLabel(i), r.Label)
			if answered && ans.Kind == model.AnswerKindPoint &&
				ans.Point.X >= r.X && ans.Point.X <= r.X+r.W &&
				ans.Point.Y >= r.Y && ans.Point.Y <= r.Y+r.H {
				line = selectedOptionStyle.Render(line + "  ✓")
			}
			b.WriteString(line + "\n")
		}

	default: // free-text types
		if m.editing {
			if q.QuestionType == model.QuestionTypeLongAnswer || q.QuestionType == model.QuestionTypeCode {
				b.WriteString(m.area.View())
				b.WriteString("\n" + helpStyle.Render("[esc] save answer"))
			} else {
				b.WriteString(m.input.View())
				b.WriteString("\n" + helpStyle.Render("[enter] save answer"))
			}
		} else {
			if answered && ans.Kind == model.AnswerKindText {
				b.WriteString("Your answer:\n" + selectedOptionStyle.Render(ans.Text))
			} else {
				b.WriteString(helpStyle.Render("(unanswered)"))
			}
			b.WriteString("\n" + helpStyle.Render("[e] edit answer"))
		}
		if q.QuestionType == model.QuestionTypeCode && q.CodeLanguage != "" {
			b.WriteString("\n" + helpStyle.Render("language: "+q.CodeLanguage))
		}
	}

	return questionStyle.Render(b.String())
}

func (m Model) renderOptions(b *strings.Builder, options []string, ans model.Answer, multi bool) {
	for i, option := range options {
		selected := false
		if multi {
			selected = ans.Contains(option)
		} else {
			selected = ans.Kind == model.AnswerKindSingle && ans.Single == option
		}

		line := fmt.Sprintf(" [%s] %s", optionLabel(i), option)
		if selected {
			b.WriteString(selectedOptionStyle.Render(line+"  ✓") + "\n")
		} else {
			b.WriteString(optionStyle.Render(line) + "\n")
		}
	}
}

// renderPalette draws one cell per question: answered, current, or open.
func (m Model) renderPalette() string {
	questions := m.sess.Questions()
	current := m.sess.CurrentIndex()

	var cells []string
	for i, q := range questions {
		_, answered := m.sess.Answer(q.ID)
		label := fmt.Sprintf(" %d ", i+1)
		switch {
		case i == current:
			cells = append(cells, paletteCurrentStyle.Render(label))
		case answered:
			cells = append(cells, paletteAnsweredStyle.Render(label))
		default:
			cells = append(cells, paletteStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cells...)
}

func (m Model) renderHelp() string {
	return helpStyle.Render("←/→ navigate · numbers answer · [s] submit · [q] leave exam")
}

func (m Model) renderResult() string {
	if m.outcome == nil {
		return resultStyle.Render("Submitted.")
	}
	msg := fmt.Sprintf("Exam submitted!\n\nScore: %.1f", m.outcome.Score)
	if m.outcome.NeedsManualGrading {
		msg += "\n\nSome answers need manual grading;\nthis score is provisional."
	}
	return resultStyle.Render(msg + "\n\nPress any key to exit.")
}

func (m Model) renderFailed() string {
	msg := "Submission failed."
	if m.submitErr != nil {
		msg = "Submission failed:\n" + m.submitErr.Error()
	}
	return errorStyle.Render(msg) + "\n" + helpStyle.Render("[r] retry · [q] leave exam")
}
