package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates the question formats the exam player can render.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeMultipleSelect QuestionType = "multiple_select"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
	QuestionTypeLongAnswer     QuestionType = "long_answer"
	QuestionTypeOrdering       QuestionType = "ordering"
	QuestionTypeMatching       QuestionType = "matching"
	QuestionTypeFillBlank      QuestionType = "fill_blank"
	QuestionTypeCalculation    QuestionType = "calculation"
	QuestionTypeHotspot        QuestionType = "hotspot"
	QuestionTypeCode           QuestionType = "code"
)

// IsMultiSelect reports whether answers to this type are sets of options.
func (t QuestionType) IsMultiSelect() bool {
	return t == QuestionTypeMultipleSelect
}

// NeedsManualGrading reports whether this type requires human review.
func (t QuestionType) NeedsManualGrading() bool {
	return t == QuestionTypeLongAnswer || t == QuestionTypeCode
}

// MatchingPair is one left/right pair of a matching question.
// The right side arrives shuffled; the student maps left → right.
type MatchingPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// HotspotRegion is a named clickable region of a hotspot image.
// Coordinates are normalized to [0,1] relative to the image.
type HotspotRegion struct {
	Label string  `json:"label"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
}

// Question is a single exam question as delivered to the student.
// Correct answers are never present in this payload.
type Question struct {
	ID           uuid.UUID    `json:"id" validate:"required"`
	QuestionText string       `json:"question_text" validate:"required"`
	QuestionType QuestionType `json:"question_type" validate:"required,oneof=multiple_choice multiple_select true_false short_answer long_answer ordering matching fill_blank calculation hotspot code"`
	OrderNum     int          `json:"order_num"`

	// Type-specific payloads. Only the fields matching QuestionType are set.
	Options        []string        `json:"options,omitempty"`
	OrderingItems  []string        `json:"ordering_items,omitempty"`
	MatchingPairs  []MatchingPair  `json:"matching_pairs,omitempty"`
	BlankCount     int             `json:"blank_count,omitempty"`
	HotspotImage   string          `json:"hotspot_image,omitempty"`
	HotspotRegions []HotspotRegion `json:"hotspot_regions,omitempty"`
	CodeStarter    string          `json:"code_starter,omitempty"`
	CodeLanguage   string          `json:"code_language,omitempty"`
}
