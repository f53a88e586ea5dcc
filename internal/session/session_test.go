package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/model"
)

// --- Fakes ---

type fakeTicker struct {
	ch chan time.Time
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               {}

// fakeClock drives the countdown and the throttle window by hand.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticker = &fakeTicker{ch: make(chan time.Time, 8)}
	return c.ticker
}

// Tick delivers one timer tick to the session's countdown.
func (c *fakeClock) Tick() {
	c.mu.Lock()
	t := c.ticker
	now := c.now
	c.mu.Unlock()
	t.ch <- now
}

type fakeStore struct {
	token string
}

func (s *fakeStore) Token() (string, bool) { return s.token, s.token != "" }

type fakeAPI struct {
	mu sync.Mutex

	exam      *model.ExamMetadata
	questions []model.Question
	state     *model.ExamState
	outcome   model.SubmissionOutcome

	examErr      error
	questionsErr error
	stateErr     error
	submitErr    error
	proctorErr   error

	submitBlock chan struct{} // when set, SubmitExam waits on it

	getExamCalls int
	submitCalls  int
	proctorCalls []model.ProctorEvent
	lastAnswers  map[uuid.UUID]model.Answer
}

func (f *fakeAPI) GetExam(_ context.Context, _ uuid.UUID, _ string) (*model.ExamMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getExamCalls++
	if f.examErr != nil {
		return nil, f.examErr
	}
	return f.exam, nil
}

func (f *fakeAPI) GetQuestions(_ context.Context, _ uuid.UUID, _ string) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.questionsErr != nil {
		return nil, f.questionsErr
	}
	return f.questions, nil
}

func (f *fakeAPI) GetExamState(_ context.Context, _ uuid.UUID, _ string) (*model.ExamState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	if f.state == nil {
		return &model.ExamState{}, nil
	}
	return f.state, nil
}

func (f *fakeAPI) SubmitExam(_ context.Context, _ uuid.UUID, answers map[uuid.UUID]model.Answer, _ string) (*model.SubmissionOutcome, error) {
	f.mu.Lock()
	block := f.submitBlock
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.lastAnswers = answers
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	out := f.outcome
	return &out, nil
}

func (f *fakeAPI) ReportProctorEvent(_ context.Context, _ uuid.UUID, event model.ProctorEvent, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proctorCalls = append(f.proctorCalls, event)
	return f.proctorErr
}

func (f *fakeAPI) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

func (f *fakeAPI) proctorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.proctorCalls)
}

// --- Helpers ---

func testQuestions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:           uuid.New(),
			QuestionText: "question",
			QuestionType: model.QuestionTypeMultipleChoice,
			Options:      []string{"A", "B", "C", "D"},
			OrderNum:     i,
		}
	}
	return qs
}

func newTestAPI(durationMinutes, questionCount int) *fakeAPI {
	return &fakeAPI{
		exam: &model.ExamMetadata{
			ID:              uuid.New(),
			Title:           "Midterm",
			DurationMinutes: durationMinutes,
		},
		questions: testQuestions(questionCount),
		outcome:   model.SubmissionOutcome{Score: 80},
	}
}

func newTestSession(t *testing.T, api *fakeAPI, clock Clock) *Session {
	t.Helper()
	s := New(uuid.New(), api, &fakeStore{token: "tok"}, zerolog.Nop(), Options{Clock: clock})
	t.Cleanup(s.Close)
	return s
}

func loadTestSession(t *testing.T, api *fakeAPI, clock Clock) *Session {
	t.Helper()
	s := newTestSession(t, api, clock)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

// waitForEvent drains the session stream until an event of the given kind
// arrives.
func waitForEvent(t *testing.T, s *Session, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				t.Fatalf("events closed while waiting for %s", kind)
			}
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

// --- Load ---

func TestLoadWithoutTokenMakesNoRequest(t *testing.T) {
	api := newTestAPI(10, 3)
	s := New(uuid.New(), api, &fakeStore{}, zerolog.Nop(), Options{Clock: newFakeClock()})
	defer s.Close()

	err := s.Load(context.Background())
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if api.getExamCalls != 0 {
		t.Fatalf("expected no network call, got %d", api.getExamCalls)
	}
}

func TestLoadNetworkFailure(t *testing.T) {
	api := newTestAPI(10, 3)
	api.examErr = errors.New("connection refused")
	s := newTestSession(t, api, newFakeClock())

	if err := s.Load(context.Background()); !errors.Is(err, ErrLoadFailed) {
		t.Fatalf("expected ErrLoadFailed, got %v", err)
	}
}

func TestLoadEmptyExamIsFatal(t *testing.T) {
	api := newTestAPI(10, 0)
	s := newTestSession(t, api, newFakeClock())

	if err := s.Load(context.Background()); !errors.Is(err, ErrEmptyExam) {
		t.Fatalf("expected ErrEmptyExam, got %v", err)
	}
}

func TestLoadInitializesCountdownFromDuration(t *testing.T) {
	api := newTestAPI(2, 3)
	s := loadTestSession(t, api, newFakeClock())

	left, timed := s.TimeLeft()
	if !timed || left != 120 {
		t.Fatalf("expected 120s timed countdown, got %d (timed=%v)", left, timed)
	}
	if s.CurrentIndex() != 0 {
		t.Fatalf("expected cursor at 0, got %d", s.CurrentIndex())
	}
}

func TestLoadUntimedExam(t *testing.T) {
	api := newTestAPI(0, 3)
	s := loadTestSession(t, api, newFakeClock())

	if _, timed := s.TimeLeft(); timed {
		t.Fatalf("expected untimed exam")
	}
}

func TestLoadRestoresAutosavedState(t *testing.T) {
	api := newTestAPI(10, 3)
	qid := api.questions[1].ID
	api.state = &model.ExamState{
		AutosavedAnswers: map[string]model.Answer{qid.String(): model.SingleAnswer("B")},
		RemainingSeconds: 42,
	}
	s := loadTestSession(t, api, newFakeClock())

	ans, ok := s.Answer(qid)
	if !ok || ans.Single != "B" {
		t.Fatalf("expected restored answer B, got %+v (ok=%v)", ans, ok)
	}
	if left, _ := s.TimeLeft(); left != 42 {
		t.Fatalf("expected authoritative remaining time 42, got %d", left)
	}
}

func TestLoadIgnoresStateFetchFailure(t *testing.T) {
	api := newTestAPI(10, 3)
	api.stateErr = errors.New("state unavailable")
	s := loadTestSession(t, api, newFakeClock())

	if left, _ := s.TimeLeft(); left != 600 {
		t.Fatalf("expected duration-derived countdown 600, got %d", left)
	}
}

// --- Answer capture ---

func TestToggleOptionMultiSelectRoundTrip(t *testing.T) {
	api := newTestAPI(10, 3)
	s := loadTestSession(t, api, newFakeClock())
	qid := api.questions[0].ID

	s.ToggleOption(qid, "A", true)
	if ans, _ := s.Answer(qid); !ans.Contains("A") {
		t.Fatalf("expected A selected, got %+v", ans)
	}

	s.ToggleOption(qid, "A", true)
	if ans, _ := s.Answer(qid); ans.Contains("A") {
		t.Fatalf("expected A deselected after toggle round trip, got %+v", ans)
	}
}

func TestToggleOptionSingleSelectOverwrites(t *testing.T) {
	api := newTestAPI(10, 3)
	s := loadTestSession(t, api, newFakeClock())
	qid := api.questions[0].ID

	s.ToggleOption(qid, "A", false)
	s.ToggleOption(qid, "B", false)

	ans, ok := s.Answer(qid)
	if !ok || ans.Kind != model.AnswerKindSingle || ans.Single != "B" {
		t.Fatalf("expected single answer B, got %+v", ans)
	}
}

func TestToggleOptionMultiTreatsNonSetAsEmpty(t *testing.T) {
	api := newTestAPI(10, 3)
	s := loadTestSession(t, api, newFakeClock())
	qid := api.questions[0].ID

	s.ToggleOption(qid, "A", false) // single selection first
	s.ToggleOption(qid, "B", true)  // then a multi toggle

	ans, _ := s.Answer(qid)
	if ans.Kind != model.AnswerKindMulti || len(ans.Multi) != 1 || ans.Multi[0] != "B" {
		t.Fatalf("expected multi answer [B], got %+v", ans)
	}
}

func TestSetAnswerOverwrites(t *testing.T) {
	api := newTestAPI(10, 3)
	s := loadTestSession(t, api, newFakeClock())
	qid := api.questions[2].ID

	s.SetAnswer(qid, model.TextAnswer("first"))
	s.SetAnswer(qid, model.TextAnswer("second"))

	ans, _ := s.Answer(qid)
	if ans.Text != "second" {
		t.Fatalf("expected overwrite to second, got %+v", ans)
	}
	if s.AnsweredCount() != 1 {
		t.Fatalf("expected one answered question, got %d", s.AnsweredCount())
	}
}

func TestSetCurrentIndexClamps(t *testing.T) {
	api := newTestAPI(10, 5)
	s := loadTestSession(t, api, newFakeClock())

	s.SetCurrentIndex(-1)
	if got := s.CurrentIndex(); got != 0 {
		t.Fatalf("expected clamp to 0, got %d", got)
	}

	s.SetCurrentIndex(5)
	if got := s.CurrentIndex(); got != 4 {
		t.Fatalf("expected clamp to 4, got %d", got)
	}

	s.SetCurrentIndex(3)
	if got := s.CurrentIndex(); got != 3 {
		t.Fatalf("expected in-range move to 3, got %d", got)
	}
}

// --- Submission ---

func TestSubmitIdempotentAfterSuccess(t *testing.T) {
	api := newTestAPI(10, 3)
	s := loadTestSession(t, api, newFakeClock())

	out, err := s.Submit(context.Background(), false)
	if err != nil || out == nil {
		t.Fatalf("first submit: %v", err)
	}
	out, err = s.Submit(context.Background(), false)
	if err != nil || out != nil {
		t.Fatalf("expected no-op re-submit, got out=%v err=%v", out, err)
	}
	if api.submitCount() != 1 {
		t.Fatalf("expected exactly one submission, got %d", api.submitCount())
	}
	if s.State() != SubmissionSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", s.State())
	}
}

func TestSubmitIdempotentWhileInFlight(t *testing.T) {
	api := newTestAPI(10, 3)
	release := make(chan struct{})
	api.submitBlock = release
	s := loadTestSession(t, api, newFakeClock())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.Submit(context.Background(), false)
	}()

	// Wait until the first submit holds the SUBMITTING guard.
	deadline := time.Now().Add(2 * time.Second)
	for s.State() != SubmissionSubmitting {
		if time.Now().After(deadline) {
			t.Fatalf("first submit never reached SUBMITTING")
		}
		time.Sleep(time.Millisecond)
	}

	// Second tap while the first is in flight must not send a request.
	out, err := s.Submit(context.Background(), true)
	if out != nil || err != nil {
		t.Fatalf("expected in-flight no-op, got out=%v err=%v", out, err)
	}

	close(release)
	wg.Wait()

	if api.submitCount() != 1 {
		t.Fatalf("expected exactly one submission, got %d", api.submitCount())
	}
}

func TestSubmitFailureIsRetryable(t *testing.T) {
	api := newTestAPI(10, 3)
	api.submitErr = errors.New("server exploded")
	s := loadTestSession(t, api, newFakeClock())

	if _, err := s.Submit(context.Background(), false); err == nil {
		t.Fatalf("expected submit error")
	}
	if s.State() != SubmissionFailed {
		t.Fatalf("expected FAILED, got %s", s.State())
	}

	api.mu.Lock()
	api.submitErr = nil
	api.mu.Unlock()

	out, err := s.Submit(context.Background(), false)
	if err != nil || out == nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if api.submitCount() != 2 {
		t.Fatalf("expected two submission attempts, got %d", api.submitCount())
	}
}

func TestSubmitSendsAllAnswers(t *testing.T) {
	api := newTestAPI(10, 3)
	s := loadTestSession(t, api, newFakeClock())

	s.ToggleOption(api.questions[0].ID, "A", false)
	s.SetAnswer(api.questions[1].ID, model.TextAnswer("essay"))

	if _, err := s.Submit(context.Background(), false); err != nil {
		t.Fatalf("submit: %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.lastAnswers) != 2 {
		t.Fatalf("expected 2 answers in payload, got %d", len(api.lastAnswers))
	}
}

func TestMutationIgnoredAfterSubmit(t *testing.T) {
	api := newTestAPI(10, 3)
	s := loadTestSession(t, api, newFakeClock())
	qid := api.questions[0].ID

	if _, err := s.Submit(context.Background(), false); err != nil {
		t.Fatalf("submit: %v", err)
	}

	s.SetAnswer(qid, model.TextAnswer("too late"))
	s.ToggleOption(qid, "A", false)

	if _, ok := s.Answer(qid); ok {
		t.Fatalf("expected mutation after submit to be ignored")
	}
}

// --- Countdown / auto-submit ---

func TestTimerExpiryAutoSubmitsExactlyOnce(t *testing.T) {
	api := newTestAPI(1, 3)
	api.state = &model.ExamState{RemainingSeconds: 1}
	clock := newFakeClock()
	s := loadTestSession(t, api, clock)

	if left, _ := s.TimeLeft(); left != 1 {
		t.Fatalf("expected 1s left, got %d", left)
	}

	clock.Tick()
	e := waitForEvent(t, s, EventSubmitted)
	if !e.Auto {
		t.Fatalf("expected auto submission")
	}

	// A second tick after expiry must not trigger anything: the countdown
	// goroutine has stopped and the guard holds regardless.
	clock.Tick()
	if api.submitCount() != 1 {
		t.Fatalf("expected exactly one auto-submit, got %d", api.submitCount())
	}
	if s.State() != SubmissionSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", s.State())
	}
}

func TestTimerTicksEmitRemaining(t *testing.T) {
	api := newTestAPI(1, 3)
	api.state = &model.ExamState{RemainingSeconds: 3}
	clock := newFakeClock()
	s := loadTestSession(t, api, clock)

	clock.Tick()
	e := waitForEvent(t, s, EventTick)
	if e.Remaining != 2 {
		t.Fatalf("expected 2s remaining after first tick, got %d", e.Remaining)
	}

	if left, _ := s.TimeLeft(); left != 2 {
		t.Fatalf("expected 2s left, got %d", left)
	}
}

func TestAutoSubmitFailureIsRecoverable(t *testing.T) {
	api := newTestAPI(1, 3)
	api.state = &model.ExamState{RemainingSeconds: 1}
	api.submitErr = errors.New("network down")
	clock := newFakeClock()
	s := loadTestSession(t, api, clock)

	clock.Tick()
	e := waitForEvent(t, s, EventSubmitFailed)
	if !e.Auto || e.Err == nil {
		t.Fatalf("expected auto submit failure event, got %+v", e)
	}
	if s.State() != SubmissionFailed {
		t.Fatalf("expected FAILED (retryable), got %s", s.State())
	}

	// Manual retry still works after the auto attempt failed.
	api.mu.Lock()
	api.submitErr = nil
	api.mu.Unlock()
	if _, err := s.Submit(context.Background(), false); err != nil {
		t.Fatalf("manual retry: %v", err)
	}
}

func TestCloseStopsCountdown(t *testing.T) {
	api := newTestAPI(10, 3)
	clock := newFakeClock()
	s := loadTestSession(t, api, clock)

	before, _ := s.TimeLeft()
	s.Close()

	// Ticks after teardown must not touch the disposed session.
	clock.Tick()
	time.Sleep(10 * time.Millisecond)

	after, _ := s.TimeLeft()
	if after != before {
		t.Fatalf("countdown advanced after close: %d -> %d", before, after)
	}

	if _, ok := <-s.Events(); ok {
		t.Fatalf("expected events channel closed")
	}
}

// --- Proctoring ---

func TestProctorEventThrottledWithinWindow(t *testing.T) {
	api := newTestAPI(10, 3)
	clock := newFakeClock()
	s := loadTestSession(t, api, clock)

	s.LogProctorEvent(model.ProctorEventAppBackground, "m1")
	s.proctorWG.Wait()
	if api.proctorCount() != 1 {
		t.Fatalf("expected first event delivered, got %d", api.proctorCount())
	}

	clock.Advance(14 * time.Second)
	s.LogProctorEvent(model.ProctorEventAppBackground, "m2")
	s.proctorWG.Wait()
	if api.proctorCount() != 1 {
		t.Fatalf("expected repeat within window dropped, got %d", api.proctorCount())
	}

	clock.Advance(2 * time.Second) // 16s since last report
	s.LogProctorEvent(model.ProctorEventAppBackground, "m3")
	s.proctorWG.Wait()
	if api.proctorCount() != 2 {
		t.Fatalf("expected event after window delivered, got %d", api.proctorCount())
	}
}

func TestProctorEventDifferentTypeNotThrottled(t *testing.T) {
	api := newTestAPI(10, 3)
	s := loadTestSession(t, api, newFakeClock())

	s.LogProctorEvent(model.ProctorEventAppBackground, "away")
	s.LogProctorEvent(model.ProctorEventAppForeground, "back")
	s.proctorWG.Wait()

	if api.proctorCount() != 2 {
		t.Fatalf("expected both event types delivered, got %d", api.proctorCount())
	}
}

func TestProctorFailureSwallowed(t *testing.T) {
	api := newTestAPI(10, 3)
	api.proctorErr = errors.New("telemetry sink down")
	s := loadTestSession(t, api, newFakeClock())

	s.LogProctorEvent(model.ProctorEventAppBackground, "m1")
	s.proctorWG.Wait()

	// No event reaches the host and the session stays usable.
	select {
	case e := <-s.Events():
		t.Fatalf("unexpected event surfaced: %+v", e)
	default:
	}
	if s.State() != SubmissionIdle {
		t.Fatalf("expected session unaffected, got %s", s.State())
	}
}

func TestProctorEventBeforeLoadDropped(t *testing.T) {
	api := newTestAPI(10, 3)
	s := newTestSession(t, api, newFakeClock())

	s.LogProctorEvent(model.ProctorEventAppBackground, "early")
	s.proctorWG.Wait()

	if api.proctorCount() != 0 {
		t.Fatalf("expected no report before load, got %d", api.proctorCount())
	}
}
