package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/session"
)

// phase is the screen-level state of the exam player.
type phase int

const (
	phaseAnswering phase = iota
	phaseConfirming
	phaseSubmitting
	phaseResult
	phaseFailed
)

// sessionEventMsg wraps a session event for Bubble Tea.
type sessionEventMsg struct {
	event session.Event
}

// sessionClosedMsg signals the session event stream has ended.
type sessionClosedMsg struct{}

// Model is the exam-taking screen. It hosts a loaded session: all exam
// semantics live in the session; the model only translates key presses
// into session operations and session events into screen updates.
type Model struct {
	sess *session.Session
	log  zerolog.Logger

	phase     phase
	remaining int
	timed     bool

	editing bool
	input   textinput.Model
	area    textarea.Model
	spin    spinner.Model

	// matchCursor is the left-side item being matched on a matching question.
	matchCursor int

	outcome   *model.SubmissionOutcome
	submitErr error

	width  int
	height int
}

// NewModel builds the exam screen for an already-loaded session.
func NewModel(sess *session.Session, log zerolog.Logger) Model {
	input := textinput.New()
	input.CharLimit = 500

	area := textarea.New()
	area.CharLimit = 20000

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	remaining, timed := sess.TimeLeft()

	return Model{
		sess:      sess,
		log:       log.With().Str("component", "exam_ui").Logger(),
		phase:     phaseAnswering,
		remaining: remaining,
		timed:     timed,
		input:     input,
		area:      area,
		spin:      sp,
	}
}

// Init starts listening for session events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSession(m.sess), m.spin.Tick)
}

// Update routes messages to the session and tracks screen state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.area.SetWidth(min(typed.Width-8, 100))
		return m, nil

	case tea.BlurMsg:
		// The terminal analog of app backgrounding: the proctor wants to
		// know when the student leaves the exam window.
		m.sess.LogProctorEvent(model.ProctorEventAppBackground, "terminal lost focus")
		return m, nil

	case tea.FocusMsg:
		m.sess.LogProctorEvent(model.ProctorEventAppForeground, "terminal regained focus")
		return m, nil

	case sessionEventMsg:
		m = m.applySessionEvent(typed.event)
		return m, waitForSession(m.sess)

	case sessionClosedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		if m.phase == phaseSubmitting {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(typed)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(typed)
	}

	return m, nil
}

// applySessionEvent folds a session event into the screen state.
func (m Model) applySessionEvent(e session.Event) Model {
	switch e.Kind {
	case session.EventTick:
		m.remaining = e.Remaining
	case session.EventSubmitted:
		m.phase = phaseResult
		m.outcome = e.Outcome
		m.editing = false
	case session.EventSubmitFailed:
		m.phase = phaseFailed
		m.submitErr = e.Err
		m.editing = false
	}
	return m
}

func (m Model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.phase {
	case phaseConfirming:
		return m.handleConfirmKey(key)
	case phaseSubmitting:
		return m, nil // submission in flight, keys wait
	case phaseResult:
		return m.quit()
	case phaseFailed:
		return m.handleFailedKey(key)
	}

	if m.editing {
		return m.handleEditingKey(key)
	}
	return m.handleAnsweringKey(key)
}

func (m Model) handleConfirmKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "y", "Y", "enter":
		m.phase = phaseSubmitting
		return m, tea.Batch(m.spin.Tick, submitCmd(m.sess))
	case "n", "N", "esc":
		m.phase = phaseAnswering
		return m, nil
	}
	return m, nil
}

func (m Model) handleFailedKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "r":
		m.phase = phaseSubmitting
		return m, tea.Batch(m.spin.Tick, submitCmd(m.sess))
	case "q", "esc", "ctrl+c":
		return m.quit()
	}
	return m, nil
}

// handleEditingKey routes keys into the free-text editor and commits the
// answer on exit.
func (m Model) handleEditingKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	q := m.sess.CurrentQuestion()
	if q == nil {
		m.editing = false
		return m, nil
	}

	longForm := q.QuestionType == model.QuestionTypeLongAnswer || q.QuestionType == model.QuestionTypeCode

	switch key.String() {
	case "esc":
		m = m.commitText(q)
		m.editing = false
		return m, nil
	case "enter":
		if !longForm {
			m = m.commitText(q)
			m.editing = false
			return m, nil
		}
	}

	var cmd tea.Cmd
	if longForm {
		m.area, cmd = m.area.Update(key)
	} else {
		m.input, cmd = m.input.Update(key)
	}
	return m, cmd
}

func (m Model) commitText(q *model.Question) Model {
	longForm := q.QuestionType == model.QuestionTypeLongAnswer || q.QuestionType == model.QuestionTypeCode

	var value string
	if longForm {
		value = m.area.Value()
	} else {
		value = m.input.Value()
	}
	if value != "" {
		m.sess.SetAnswer(q.ID, model.TextAnswer(value))
	}
	return m
}

func (m Model) handleAnsweringKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	q := m.sess.CurrentQuestion()
	if q == nil {
		return m.quit()
	}

	switch key.String() {
	case "q", "ctrl+c":
		return m.quit()
	case "left", "h":
		m.sess.SetCurrentIndex(m.sess.CurrentIndex() - 1)
		m.matchCursor = 0
		return m, nil
	case "right", "l", "tab":
		m.sess.SetCurrentIndex(m.sess.CurrentIndex() + 1)
		m.matchCursor = 0
		return m, nil
	case "s":
		m.phase = phaseConfirming
		return m, nil
	case "e", "enter":
		if isTextQuestion(q.QuestionType) {
			return m.startEditing(q)
		}
	case "j", "down":
		if q.QuestionType == model.QuestionTypeMatching && len(q.MatchingPairs) > 0 {
			m.matchCursor = (m.matchCursor + 1) % len(q.MatchingPairs)
			return m, nil
		}
	case "u", "backspace":
		if q.QuestionType == model.QuestionTypeOrdering {
			m.dropLastOrdered(q)
			return m, nil
		}
	}

	if idx := keyToOptionIndex(key.String(), selectableCount(q)); idx >= 0 {
		m.applySelection(q, idx)
		return m, nil
	}

	return m, nil
}

func (m Model) startEditing(q *model.Question) (tea.Model, tea.Cmd) {
	existing := ""
	if ans, ok := m.sess.Answer(q.ID); ok && ans.Kind == model.AnswerKindText {
		existing = ans.Text
	}

	m.editing = true
	if q.QuestionType == model.QuestionTypeLongAnswer || q.QuestionType == model.QuestionTypeCode {
		if existing == "" && q.CodeStarter != "" {
			existing = q.CodeStarter
		}
		m.area.SetValue(existing)
		m.area.Focus()
		return m, textarea.Blink
	}
	m.input.SetValue(existing)
	m.input.Focus()
	return m, textinput.Blink
}

// applySelection records a numbered selection according to question type.
func (m Model) applySelection(q *model.Question, idx int) {
	switch q.QuestionType {
	case model.QuestionTypeMultipleChoice:
		m.sess.ToggleOption(q.ID, q.Options[idx], false)

	case model.QuestionTypeTrueFalse:
		options := trueFalseOptions(q)
		m.sess.ToggleOption(q.ID, options[idx], false)

	case model.QuestionTypeMultipleSelect:
		m.sess.ToggleOption(q.ID, q.Options[idx], true)

	case model.QuestionTypeOrdering:
		item := q.OrderingItems[idx]
		ans, _ := m.sess.Answer(q.ID)
		if ans.Contains(item) {
			return // already placed
		}
		m.sess.SetAnswer(q.ID, model.MultiAnswer(append(ans.Multi, item)))

	case model.QuestionTypeMatching:
		if m.matchCursor >= len(q.MatchingPairs) {
			return
		}
		left := q.MatchingPairs[m.matchCursor].Left
		right := q.MatchingPairs[idx].Right
		ans, ok := m.sess.Answer(q.ID)
		mapping := map[string]string{}
		if ok && ans.Kind == model.AnswerKindMapping {
			for k, v := range ans.Mapping {
				mapping[k] = v
			}
		}
		mapping[left] = right
		m.sess.SetAnswer(q.ID, model.MappingAnswer(mapping))
		m.matchCursor = (m.matchCursor + 1) % len(q.MatchingPairs)

	case model.QuestionTypeHotspot:
		r := q.HotspotRegions[idx]
		m.sess.SetAnswer(q.ID, model.PointAnswer(r.X+r.W/2, r.Y+r.H/2))
	}
}

func (m Model) dropLastOrdered(q *model.Question) {
	ans, ok := m.sess.Answer(q.ID)
	if !ok || ans.Kind != model.AnswerKindMulti || len(ans.Multi) == 0 {
		return
	}
	m.sess.SetAnswer(q.ID, model.MultiAnswer(ans.Multi[:len(ans.Multi)-1]))
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.sess.Close()
	return m, tea.Quit
}

// waitForSession blocks until the session emits an event.
func waitForSession(sess *session.Session) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sess.Events()
		if !ok {
			return sessionClosedMsg{}
		}
		return sessionEventMsg{event: event}
	}
}

// submitCmd runs a confirmed manual submission. The outcome arrives on the
// session event stream, so the command itself carries no message.
func submitCmd(sess *session.Session) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_, _ = sess.Submit(ctx, false)
		return nil
	}
}

// isTextQuestion reports whether the type is answered with free text.
func isTextQuestion(t model.QuestionType) bool {
	switch t {
	case model.QuestionTypeShortAnswer, model.QuestionTypeLongAnswer,
		model.QuestionTypeFillBlank, model.QuestionTypeCalculation,
		model.QuestionTypeCode:
		return true
	}
	return false
}

// selectableCount returns how many numbered choices the question offers.
func selectableCount(q *model.Question) int {
	switch q.QuestionType {
	case model.QuestionTypeMultipleChoice, model.QuestionTypeMultipleSelect:
		return len(q.Options)
	case model.QuestionTypeTrueFalse:
		return len(trueFalseOptions(q))
	case model.QuestionTypeOrdering:
		return len(q.OrderingItems)
	case model.QuestionTypeMatching:
		return len(q.MatchingPairs)
	case model.QuestionTypeHotspot:
		return len(q.HotspotRegions)
	}
	return 0
}

// trueFalseOptions returns the question's options, defaulting to the
// canonical pair when the payload omits them.
func trueFalseOptions(q *model.Question) []string {
	if len(q.Options) == 2 {
		return q.Options
	}
	return []string{"true", "false"}
}
