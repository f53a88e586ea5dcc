package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultBaseURL = "http://localhost:8080"

// Config holds all client configuration.
type Config struct {
	// BaseURL is the HTTP root of the backend, without the /api/v1 prefix.
	BaseURL string
	// WSBaseURL is the WebSocket root, derived from BaseURL unless overridden.
	WSBaseURL   string
	LogLevel    string
	LogFormat   string
	LogFile     string
	TokenPath   string
	HTTPTimeout time.Duration
}

// fileConfig is the subset of settings readable from client.yaml.
type fileConfig struct {
	APIURL   string `yaml:"api_url"`
	WSURL    string `yaml:"ws_url"`
	LogLevel string `yaml:"log_level"`
}

// Load reads configuration from environment variables with sensible defaults.
// It loads .env if present but does not fail if missing.
//
// The base URL is resolved through a fallback chain, highest priority first:
// EXSTEM_API_URL env var (.env counts as env), client.yaml next to the
// binary or under the user config dir, then the compiled-in default.
func Load() *Config {
	_ = godotenv.Load() // .env is optional

	fc := loadFileConfig()

	baseURL := firstNonEmpty(os.Getenv("EXSTEM_API_URL"), fc.APIURL, defaultBaseURL)
	baseURL = strings.TrimRight(baseURL, "/")

	wsURL := firstNonEmpty(os.Getenv("EXSTEM_WS_URL"), fc.WSURL, deriveWSURL(baseURL))

	return &Config{
		BaseURL:     baseURL,
		WSBaseURL:   strings.TrimRight(wsURL, "/"),
		LogLevel:    firstNonEmpty(os.Getenv("LOG_LEVEL"), fc.LogLevel, "info"),
		LogFormat:   getEnv("LOG_FORMAT", "pretty"),
		LogFile:     getEnv("EXSTEM_LOG_FILE", "exstem-client.log"),
		TokenPath:   getEnv("EXSTEM_TOKEN_PATH", defaultTokenPath()),
		HTTPTimeout: time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 15)) * time.Second,
	}
}

// loadFileConfig reads client.yaml from the working directory, then the user
// config dir. A missing or malformed file yields an empty config.
func loadFileConfig() fileConfig {
	var fc fileConfig

	paths := []string{"client.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "exstem", "client.yaml"))
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			continue
		}
		return fc
	}
	return fc
}

// deriveWSURL rewrites an http(s) base URL into its ws(s) counterpart.
func deriveWSURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	}
	return baseURL
}

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".exstem-token.json"
	}
	return filepath.Join(home, ".exstem", "token.json")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
