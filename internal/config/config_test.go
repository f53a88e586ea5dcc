package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no client.yaml, no .env
	t.Setenv("EXSTEM_API_URL", "")
	t.Setenv("EXSTEM_WS_URL", "")
	t.Setenv("LOG_LEVEL", "")

	cfg := Load()
	if cfg.BaseURL != defaultBaseURL {
		t.Fatalf("expected default base URL, got %q", cfg.BaseURL)
	}
	if cfg.WSBaseURL != "ws://localhost:8080" {
		t.Fatalf("expected derived ws URL, got %q", cfg.WSBaseURL)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected info level, got %q", cfg.LogLevel)
	}
}

func TestEnvOverridesEverything(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := []byte("api_url: https://file.example.com\n")
	if err := os.WriteFile(filepath.Join(dir, "client.yaml"), yaml, 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	t.Setenv("EXSTEM_API_URL", "https://env.example.com/")
	t.Setenv("EXSTEM_WS_URL", "")

	cfg := Load()
	if cfg.BaseURL != "https://env.example.com" {
		t.Fatalf("expected env base URL (trailing slash trimmed), got %q", cfg.BaseURL)
	}
	if cfg.WSBaseURL != "wss://env.example.com" {
		t.Fatalf("expected wss derivation, got %q", cfg.WSBaseURL)
	}
}

func TestYAMLFallbackWhenEnvUnset(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := []byte("api_url: http://file.example.com\nlog_level: debug\n")
	if err := os.WriteFile(filepath.Join(dir, "client.yaml"), yaml, 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	t.Setenv("EXSTEM_API_URL", "")
	t.Setenv("EXSTEM_WS_URL", "")
	t.Setenv("LOG_LEVEL", "")

	cfg := Load()
	if cfg.BaseURL != "http://file.example.com" {
		t.Fatalf("expected yaml base URL, got %q", cfg.BaseURL)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected yaml log level, got %q", cfg.LogLevel)
	}
}

func TestMalformedYAMLIgnored(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if err := os.WriteFile(filepath.Join(dir, "client.yaml"), []byte("{{nope"), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("EXSTEM_API_URL", "")

	cfg := Load()
	if cfg.BaseURL != defaultBaseURL {
		t.Fatalf("expected fallback past malformed yaml, got %q", cfg.BaseURL)
	}
}
