package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/model"
)

// Load-time failures. Load errors are fatal to the session: the caller
// exits instead of retrying.
var (
	ErrUnauthenticated = errors.New("no auth token available")
	ErrLoadFailed      = errors.New("exam load failed")
	ErrEmptyExam       = errors.New("exam has no questions")
)

// SubmissionState guards the submit lifecycle against double submission.
type SubmissionState string

const (
	SubmissionIdle       SubmissionState = "IDLE"
	SubmissionSubmitting SubmissionState = "SUBMITTING"
	SubmissionSubmitted  SubmissionState = "SUBMITTED"
	SubmissionFailed     SubmissionState = "FAILED"
)

// proctorThrottleWindow drops repeat reports of the event type that was
// reported last, so state flapping cannot storm the backend.
const proctorThrottleWindow = 15 * time.Second

// ExamAPI is the session's view of the backend.
type ExamAPI interface {
	GetExam(ctx context.Context, examID uuid.UUID, token string) (*model.ExamMetadata, error)
	GetQuestions(ctx context.Context, examID uuid.UUID, token string) ([]model.Question, error)
	GetExamState(ctx context.Context, examID uuid.UUID, token string) (*model.ExamState, error)
	SubmitExam(ctx context.Context, examID uuid.UUID, answers map[uuid.UUID]model.Answer, token string) (*model.SubmissionOutcome, error)
	ReportProctorEvent(ctx context.Context, examID uuid.UUID, event model.ProctorEvent, token string) error
}

// SessionStore exposes the persisted credential. Read-only here: the
// session never writes the store.
type SessionStore interface {
	Token() (string, bool)
}

// Autosaver is an optional best-effort sink offered every answer mutation.
type Autosaver interface {
	Save(questionID uuid.UUID, answer model.Answer)
}

// EventKind tags session events delivered to the hosting screen.
type EventKind string

const (
	// EventTick carries the remaining seconds after a countdown decrement.
	EventTick EventKind = "tick"
	// EventSubmitted carries the grading outcome; the session is terminal.
	EventSubmitted EventKind = "submitted"
	// EventSubmitFailed carries a recoverable submit error.
	EventSubmitFailed EventKind = "submit_failed"
)

// Event is a session state change the hosting screen reacts to.
type Event struct {
	Kind      EventKind
	Remaining int
	Auto      bool
	Outcome   *model.SubmissionOutcome
	Err       error
}

// Options tunes session construction. The zero value uses the wall clock,
// no autosaver, and a 5-second proctor report timeout.
type Options struct {
	Clock          Clock
	Autosaver      Autosaver
	ProctorTimeout time.Duration
}

type proctorMark struct {
	eventType model.ProctorEventType
	at        time.Time
}

// Session owns all mutable state for one exam attempt: the question list,
// the answer map, the navigation cursor, the countdown, and the throttled
// proctor reporter. Collaborators are injected; the session makes no
// global lookups.
//
// All mutation happens under one mutex, so the countdown goroutine and the
// hosting screen observe a single serialized timeline.
type Session struct {
	examID    uuid.UUID
	api       ExamAPI
	store     SessionStore
	clock     Clock
	autosaver Autosaver
	log       zerolog.Logger

	// clientID identifies this client run in proctor events, so reports
	// from a second device stand out server-side.
	clientID       uuid.UUID
	proctorTimeout time.Duration

	mu           sync.Mutex
	token        string
	exam         *model.ExamMetadata
	questions    []model.Question
	answers      map[uuid.UUID]model.Answer
	currentIndex int
	timed        bool
	timeLeft     int
	state        SubmissionState
	lastProctor  proctorMark
	closed       bool

	events    chan Event
	stop      chan struct{}
	stopOnce  sync.Once
	proctorWG sync.WaitGroup
}

// New creates a session for one exam attempt. Call Load before anything else.
func New(examID uuid.UUID, api ExamAPI, store SessionStore, log zerolog.Logger, opts Options) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	timeout := opts.ProctorTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Session{
		examID:         examID,
		api:            api,
		store:          store,
		clock:          clock,
		autosaver:      opts.Autosaver,
		log:            log.With().Str("component", "exam_session").Str("exam_id", examID.String()).Logger(),
		clientID:       uuid.New(),
		proctorTimeout: timeout,
		answers:        make(map[uuid.UUID]model.Answer),
		state:          SubmissionIdle,
		events:         make(chan Event, 64),
		stop:           make(chan struct{}),
	}
}

// Load fetches the exam and its questions and opens the attempt. Without a
// usable token it fails ErrUnauthenticated before any network call. An
// empty paper is ErrEmptyExam; both are fatal and the caller must exit.
//
// When the backend has resumable state for this attempt (autosaved answers,
// authoritative remaining time), it is restored best-effort.
func (s *Session) Load(ctx context.Context) error {
	token, ok := s.store.Token()
	if !ok {
		return ErrUnauthenticated
	}

	exam, err := s.api.GetExam(ctx, s.examID, token)
	if err != nil {
		return fmt.Errorf("%w: get exam: %v", ErrLoadFailed, err)
	}

	questions, err := s.api.GetQuestions(ctx, s.examID, token)
	if err != nil {
		return fmt.Errorf("%w: get questions: %v", ErrLoadFailed, err)
	}
	if len(questions) == 0 {
		return ErrEmptyExam
	}

	// OrderNum defines navigation and palette order.
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].OrderNum < questions[j].OrderNum
	})

	s.mu.Lock()
	s.token = token
	s.exam = exam
	s.questions = questions
	s.answers = make(map[uuid.UUID]model.Answer, len(questions))
	s.currentIndex = 0
	if exam.DurationMinutes > 0 {
		s.timed = true
		s.timeLeft = exam.DurationMinutes * 60
	}
	s.mu.Unlock()

	// Resume is a convenience, never a blocker: a failed state fetch just
	// means a fresh attempt view.
	if state, err := s.api.GetExamState(ctx, s.examID, token); err == nil && state != nil {
		s.restore(state)
	} else if err != nil {
		s.log.Debug().Err(err).Msg("No resumable state")
	}

	s.startCountdown()

	s.log.Info().
		Int("questions", len(questions)).
		Int("duration_minutes", exam.DurationMinutes).
		Msg("Exam session loaded")
	return nil
}

// restore applies server-side autosaved answers and remaining time.
func (s *Session) restore(state *model.ExamState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for qid, ans := range state.AutosavedAnswers {
		id, err := uuid.Parse(qid)
		if err != nil {
			s.log.Warn().Str("question_id", qid).Msg("Dropping autosaved answer with invalid ID")
			continue
		}
		s.answers[id] = ans
	}

	// The server computes remaining time from the authoritative session
	// start, which beats a fresh duration-derived countdown.
	if s.timed && state.RemainingSeconds > 0 {
		s.timeLeft = state.RemainingSeconds
	}

	if len(state.AutosavedAnswers) > 0 {
		s.log.Info().Int("answers", len(state.AutosavedAnswers)).Msg("Restored autosaved answers")
	}
}

// startCountdown begins the one-second countdown for timed exams. The
// ticker goroutine is the only autonomous actor in the session and stops
// deterministically via the stop channel.
func (s *Session) startCountdown() {
	s.mu.Lock()
	if !s.timed || s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	ticker := s.clock.NewTicker(time.Second)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C():
				if s.tick() {
					s.autoSubmit()
					return
				}
			}
		}
	}()
}

// tick performs one countdown decrement. It reports true exactly once: on
// the transition to zero. Late ticks after expiry or after a terminal
// submission are ignored.
func (s *Session) tick() (expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.timeLeft <= 0 {
		return false
	}
	if s.state == SubmissionSubmitted || s.state == SubmissionSubmitting {
		return false
	}

	s.timeLeft--
	s.emitLocked(Event{Kind: EventTick, Remaining: s.timeLeft})
	return s.timeLeft == 0
}

// autoSubmit fires the expiry submission, bypassing user confirmation.
func (s *Session) autoSubmit() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.Submit(ctx, true); err != nil {
		// Surfaced to the host via EventSubmitFailed; nothing to do here.
		s.log.Warn().Err(err).Msg("Auto-submit failed")
	}
}

// SetAnswer unconditionally overwrites the answer for a question. Value
// shape is not validated here; grading happens server-side.
func (s *Session) SetAnswer(questionID uuid.UUID, answer model.Answer) {
	s.mu.Lock()
	if s.closed || s.state == SubmissionSubmitted || s.state == SubmissionSubmitting {
		s.mu.Unlock()
		return
	}
	s.answers[questionID] = answer
	saver := s.autosaver
	s.mu.Unlock()

	if saver != nil {
		saver.Save(questionID, answer)
	}
}

// ToggleOption records an option selection. Single-select replaces any
// prior selection; multi-select toggles membership in the option set,
// treating a missing or non-set answer as the empty set.
func (s *Session) ToggleOption(questionID uuid.UUID, option string, isMultiSelect bool) {
	s.mu.Lock()
	if s.closed || s.state == SubmissionSubmitted || s.state == SubmissionSubmitting {
		s.mu.Unlock()
		return
	}

	var next model.Answer
	if !isMultiSelect {
		next = model.SingleAnswer(option)
	} else {
		var current []string
		if existing, ok := s.answers[questionID]; ok && existing.Kind == model.AnswerKindMulti {
			current = existing.Multi
		}
		set := make([]string, 0, len(current)+1)
		removed := false
		for _, o := range current {
			if o == option {
				removed = true
				continue
			}
			set = append(set, o)
		}
		if !removed {
			set = append(set, option)
		}
		next = model.MultiAnswer(set)
	}

	s.answers[questionID] = next
	saver := s.autosaver
	s.mu.Unlock()

	if saver != nil {
		saver.Save(questionID, next)
	}
}

// SetCurrentIndex moves the navigation cursor, clamped to the question
// range. Out-of-range requests never panic.
func (s *Session) SetCurrentIndex(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.questions) == 0 {
		s.currentIndex = 0
		return
	}
	if i < 0 {
		i = 0
	}
	if i >= len(s.questions) {
		i = len(s.questions) - 1
	}
	s.currentIndex = i
}

// Submit sends the full answer map for grading. Re-entry while a submit is
// in flight or after success is a no-op, which makes a double-tap and the
// manual/auto race harmless. A failed attempt leaves the session retryable.
//
// For auto=false the caller must have confirmed with the user already;
// the session performs no confirmation of its own.
func (s *Session) Submit(ctx context.Context, auto bool) (*model.SubmissionOutcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("session closed")
	}
	if s.state == SubmissionSubmitting || s.state == SubmissionSubmitted {
		s.mu.Unlock()
		return nil, nil
	}
	s.state = SubmissionSubmitting
	token := s.token
	answers := make(map[uuid.UUID]model.Answer, len(s.answers))
	for qid, ans := range s.answers {
		answers[qid] = ans
	}
	s.mu.Unlock()

	outcome, err := s.api.SubmitExam(ctx, s.examID, answers, token)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = SubmissionFailed
		s.log.Error().Err(err).Bool("auto", auto).Msg("Submission failed")
		s.emitLocked(Event{Kind: EventSubmitFailed, Auto: auto, Err: err})
		return nil, fmt.Errorf("submit exam: %w", err)
	}

	s.state = SubmissionSubmitted
	s.stopTimer()
	s.log.Info().
		Bool("auto", auto).
		Float64("score", outcome.Score).
		Bool("needs_manual_grading", outcome.NeedsManualGrading).
		Msg("Exam submitted")
	s.emitLocked(Event{Kind: EventSubmitted, Auto: auto, Outcome: outcome})
	return outcome, nil
}

// LogProctorEvent reports a proctoring signal, fire-and-forget. A repeat
// of the most recently reported event type within the throttle window is
// dropped without a network request. Delivery failures are logged locally
// and never surfaced.
func (s *Session) LogProctorEvent(eventType model.ProctorEventType, message string) {
	s.mu.Lock()
	if s.closed || s.token == "" {
		s.mu.Unlock()
		return
	}

	now := s.clock.Now()
	if s.lastProctor.eventType == eventType && now.Sub(s.lastProctor.at) < proctorThrottleWindow {
		s.mu.Unlock()
		s.log.Debug().Str("event_type", string(eventType)).Msg("Proctor event throttled")
		return
	}
	s.lastProctor = proctorMark{eventType: eventType, at: now}
	token := s.token
	event := model.ProctorEvent{
		EventType: eventType,
		Message:   message,
		ClientID:  s.clientID,
		Timestamp: now,
	}
	s.mu.Unlock()

	s.proctorWG.Add(1)
	go func() {
		defer s.proctorWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.proctorTimeout)
		defer cancel()
		if err := s.api.ReportProctorEvent(ctx, s.examID, event, token); err != nil {
			s.log.Debug().Err(err).Str("event_type", string(eventType)).Msg("Proctor report failed")
		}
	}()
}

// Close tears the session down: the countdown stops, pending emits are
// dropped, and the events channel closes. Safe to call more than once and
// on every exit path, including early navigation-away.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopTimer()
	close(s.events)
}

func (s *Session) stopTimer() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// emitLocked delivers an event without blocking the session; the channel
// is buffered and a saturated host loses ticks, not correctness.
func (s *Session) emitLocked(e Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- e:
	default:
		s.log.Warn().Str("kind", string(e.Kind)).Msg("Dropping session event, host not consuming")
	}
}

// Events is the stream the hosting screen consumes. Closed by Close.
func (s *Session) Events() <-chan Event { return s.events }

// Exam returns the loaded metadata, nil before Load.
func (s *Session) Exam() *model.ExamMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exam
}

// Questions returns the fixed, ordered question list.
func (s *Session) Questions() []model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questions
}

// CurrentIndex returns the navigation cursor.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentIndex
}

// CurrentQuestion returns the question under the cursor, nil before Load.
func (s *Session) CurrentQuestion() *model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.questions) == 0 {
		return nil
	}
	return &s.questions[s.currentIndex]
}

// Answer returns the recorded answer for a question, if any.
func (s *Session) Answer(questionID uuid.UUID) (model.Answer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ans, ok := s.answers[questionID]
	return ans, ok
}

// AnsweredCount returns how many questions have a recorded answer.
func (s *Session) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers)
}

// TimeLeft returns the remaining seconds and whether the exam is timed.
func (s *Session) TimeLeft() (seconds int, timed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeLeft, s.timed
}

// State returns the submission state.
func (s *Session) State() SubmissionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
