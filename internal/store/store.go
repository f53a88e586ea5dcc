package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stemsi/exstem-client/internal/model"
)

// SessionStore exposes the persisted credential to the exam session.
// The session only ever reads; writing happens at login.
type SessionStore interface {
	// Token returns the stored auth token, or false when no usable
	// token is available.
	Token() (string, bool)
}

// credentialFile is the on-disk shape written by the login command.
type credentialFile struct {
	Token   string        `json:"token"`
	Student model.Student `json:"student"`
	SavedAt time.Time     `json:"saved_at"`
}

// FileStore is a SessionStore backed by a JSON credential file.
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore creates a FileStore reading from the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Token reads the stored token. A token whose JWT exp claim has passed is
// treated as absent, so the caller fails fast instead of sending a request
// the backend will reject.
func (s *FileStore) Token() (string, bool) {
	cred, err := s.read()
	if err != nil || cred.Token == "" {
		return "", false
	}
	if expired(cred.Token, s.now()) {
		return "", false
	}
	return cred.Token, true
}

// Student returns the profile saved at login, if any.
func (s *FileStore) Student() (model.Student, bool) {
	cred, err := s.read()
	if err != nil || cred.Token == "" {
		return model.Student{}, false
	}
	return cred.Student, true
}

// Save persists a fresh credential, creating parent directories as needed.
// The file is user-only: it holds a bearer token.
func (s *FileStore) Save(token string, student model.Student) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}

	raw, err := json.MarshalIndent(credentialFile{
		Token:   token,
		Student: student,
		SavedAt: s.now(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	if err := os.WriteFile(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return nil
}

// Clear removes the stored credential.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}

func (s *FileStore) read() (credentialFile, error) {
	var cred credentialFile
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return cred, err
	}
	if err := json.Unmarshal(raw, &cred); err != nil {
		return cred, fmt.Errorf("decode credential: %w", err)
	}
	return cred, nil
}

// expired inspects the token's exp claim without verifying the signature.
// Verification belongs to the backend; the client only wants to avoid
// presenting a token it knows is dead. Tokens without an exp claim, or
// that fail to parse, are left for the backend to judge.
func expired(token string, now time.Time) bool {
	parser := jwt.NewParser()
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(now)
}
