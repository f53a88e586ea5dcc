package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/validator"
)

// envelope is the backend's standard response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *errorBody      `json:"error,omitempty"`
}

type errorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Client is the HTTP client for the student-facing exam API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a Client for the given base URL (without /api/v1).
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "api_client").Logger(),
	}
}

// Login authenticates a student and returns the issued token and profile.
func (c *Client) Login(ctx context.Context, nisn, password string) (*model.StudentLoginResult, error) {
	req := model.StudentLoginRequest{NISN: nisn, Password: password}

	var result model.StudentLoginResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/student/login", "", req, &result); err != nil {
		return nil, err
	}
	if fields := validator.Check(&result); fields != nil {
		return nil, fmt.Errorf("login: malformed response: %v", fields)
	}
	return &result, nil
}

// GetLobby returns the exams currently available to the student.
func (c *Client) GetLobby(ctx context.Context, token string) ([]model.LobbyExam, error) {
	var data struct {
		Exams []model.LobbyExam `json:"exams"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/student/lobby", token, nil, &data); err != nil {
		return nil, err
	}
	return data.Exams, nil
}

// JoinExam validates the entry token and opens a session (idempotent).
func (c *Client) JoinExam(ctx context.Context, examID uuid.UUID, entryToken, token string) error {
	path := fmt.Sprintf("/api/v1/student/exams/%s/join", examID)
	body := map[string]string{"entry_token": entryToken}
	return c.do(ctx, http.MethodPost, path, token, body, nil)
}

// GetExam fetches exam metadata.
func (c *Client) GetExam(ctx context.Context, examID uuid.UUID, token string) (*model.ExamMetadata, error) {
	var data struct {
		Exam model.ExamMetadata `json:"exam"`
	}
	path := fmt.Sprintf("/api/v1/student/exams/%s", examID)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &data); err != nil {
		return nil, err
	}
	if fields := validator.Check(&data.Exam); fields != nil {
		c.log.Error().Interface("fields", fields).Msg("Malformed exam metadata")
		return nil, fmt.Errorf("get exam: malformed response")
	}
	return &data.Exam, nil
}

// GetQuestions fetches the exam paper. The returned slice may be empty;
// the caller decides whether that is fatal.
func (c *Client) GetQuestions(ctx context.Context, examID uuid.UUID, token string) ([]model.Question, error) {
	var data struct {
		Questions []model.Question `json:"questions"`
	}
	path := fmt.Sprintf("/api/v1/student/exams/%s/paper", examID)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &data); err != nil {
		return nil, err
	}
	for i := range data.Questions {
		if fields := validator.Check(&data.Questions[i]); fields != nil {
			c.log.Error().Int("index", i).Interface("fields", fields).Msg("Malformed question")
			return nil, fmt.Errorf("get questions: malformed question at index %d", i)
		}
	}
	return data.Questions, nil
}

// GetExamState fetches autosaved answers and authoritative remaining time,
// used to resume an attempt after a reload or reconnect.
func (c *Client) GetExamState(ctx context.Context, examID uuid.UUID, token string) (*model.ExamState, error) {
	var state model.ExamState
	path := fmt.Sprintf("/api/v1/student/exams/%s/state", examID)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SubmitExam sends the full answer map for grading.
func (c *Client) SubmitExam(ctx context.Context, examID uuid.UUID, answers map[uuid.UUID]model.Answer, token string) (*model.SubmissionOutcome, error) {
	body := struct {
		Answers map[uuid.UUID]model.Answer `json:"answers"`
	}{Answers: answers}

	var outcome model.SubmissionOutcome
	path := fmt.Sprintf("/api/v1/student/exams/%s/submit", examID)
	if err := c.do(ctx, http.MethodPost, path, token, body, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// ReportProctorEvent delivers a single proctoring event. Callers treat
// failures as best-effort and never retry.
func (c *Client) ReportProctorEvent(ctx context.Context, examID uuid.UUID, event model.ProctorEvent, token string) error {
	path := fmt.Sprintf("/api/v1/student/exams/%s/proctor-events", examID)
	return c.do(ctx, http.MethodPost, path, token, event, nil)
}

// do performs one JSON request/response round trip. A non-nil out receives
// the envelope's data field. Envelope errors become *APIError.
func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope (status %d): %w", resp.StatusCode, err)
	}

	if env.Error != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       env.Error.Code,
			Message:    env.Error.Message,
			Fields:     env.Error.Fields,
		}
	}
	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Code: ErrCodeInternal}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
