package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the server-side states an exam can be in.
type ExamStatus string

const (
	ExamStatusPublished  ExamStatus = "PUBLISHED"
	ExamStatusInProgress ExamStatus = "IN_PROGRESS"
	ExamStatusCompleted  ExamStatus = "COMPLETED"
)

// ExamMetadata describes an exam as presented to a student.
// DurationMinutes of 0 means the exam is untimed.
type ExamMetadata struct {
	ID              uuid.UUID  `json:"id" validate:"required"`
	Title           string     `json:"title" validate:"required"`
	DurationMinutes int        `json:"duration_minutes" validate:"min=0,max=480"`
	QuestionCount   int        `json:"question_count"`
	ScheduledStart  *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd    *time.Time `json:"scheduled_end,omitempty"`
	Status          ExamStatus `json:"status"`
}

// LobbyExam is an exam entry in the student lobby listing.
type LobbyExam struct {
	ExamMetadata
	LobbyStatus string   `json:"lobby_status"`
	FinalScore  *float64 `json:"final_score,omitempty"`
}

// ExamState is the resumable state of an in-progress attempt: the answers
// autosaved server-side keyed by question ID, and the remaining time
// computed from the authoritative session start.
type ExamState struct {
	AutosavedAnswers map[string]Answer `json:"autosaved_answers"`
	RemainingSeconds int               `json:"remaining_seconds"`
}

// SubmissionOutcome is the result of submitting an attempt.
// NeedsManualGrading is set when the exam contains free-text or code
// questions, so Score is provisional until human review.
type SubmissionOutcome struct {
	Score              float64 `json:"score"`
	NeedsManualGrading bool    `json:"needs_manual_grading"`
}

// ProctorEventType tags a proctoring telemetry event.
type ProctorEventType string

const (
	ProctorEventAppBackground ProctorEventType = "app_background"
	ProctorEventAppForeground ProctorEventType = "app_foreground"
	ProctorEventWindowResize  ProctorEventType = "window_resize"
)

// ProctorEvent is a best-effort academic-integrity signal.
type ProctorEvent struct {
	EventType ProctorEventType `json:"event_type"`
	Message   string           `json:"message"`
	ClientID  uuid.UUID        `json:"client_id"`
	Timestamp time.Time        `json:"timestamp"`
}
