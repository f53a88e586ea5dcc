package api

import (
	"errors"
	"fmt"
)

// ErrCode is the typed error code carried in the backend's error envelope.
type ErrCode string

const (
	ErrCodeTokenRequired   ErrCode = "TOKEN_REQUIRED"
	ErrCodeTokenInvalid    ErrCode = "TOKEN_INVALID"
	ErrCodeTokenExpired    ErrCode = "TOKEN_EXPIRED"
	ErrCodeForbidden       ErrCode = "FORBIDDEN"
	ErrCodeValidation      ErrCode = "VALIDATION_ERROR"
	ErrCodeNotFound        ErrCode = "NOT_FOUND"
	ErrCodeExamUnavailable ErrCode = "EXAM_NOT_AVAILABLE"
	ErrCodeInvalidEntry    ErrCode = "INVALID_ENTRY_TOKEN"
	ErrCodeNoQuestions     ErrCode = "NO_QUESTIONS"
	ErrCodeInternal        ErrCode = "INTERNAL_ERROR"
)

// Sentinel errors for the conditions callers branch on.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// APIError is a structured error decoded from the backend envelope.
type APIError struct {
	StatusCode int
	Code       ErrCode
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("api error %s (status %d)", e.Code, e.StatusCode)
}

// Unwrap maps well-known codes onto sentinel errors so callers can use
// errors.Is without inspecting codes.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case ErrCodeTokenRequired, ErrCodeTokenInvalid, ErrCodeTokenExpired:
		return ErrUnauthorized
	case ErrCodeNotFound:
		return ErrNotFound
	}
	switch e.StatusCode {
	case 401:
		return ErrUnauthorized
	case 404:
		return ErrNotFound
	}
	return nil
}
