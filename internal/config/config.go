// Package config loads application configuration from environment variables
// and the declarative pipeline definition from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken    string
	WebhookSecret  string
	PipelinePath   string
	ListenAddr     string
	DBPath         string
	WorkDir        string
	CommandTimeout time.Duration
	Workers        int
	QueueSize      int
	LogLevel       slog.Level
	LogFormat      string
}

// HasGitHubToken returns true when a GitHub token is configured.
func (c *Config) HasGitHubToken() bool {
	return c.GitHubToken != ""
}

// Load reads configuration from environment variables and returns a validated Config.
//
// Variables from CHAINUPDATE_ENV_FILE (default ".env") are loaded first when the
// file exists; variables already present in the environment win.
// CHAINUPDATE_GITHUB_TOKEN falls back to GITHUB_TOKEN, which CI runners provide.
// Optional variables with defaults: CHAINUPDATE_PIPELINE (chainupdate.yaml),
// CHAINUPDATE_LISTEN_ADDR (127.0.0.1:8080), CHAINUPDATE_DB_PATH (chainupdate.db),
// CHAINUPDATE_WORK_DIR (os.TempDir()), CHAINUPDATE_COMMAND_TIMEOUT (10m),
// CHAINUPDATE_WORKERS (2), CHAINUPDATE_QUEUE_SIZE (32),
// CHAINUPDATE_LOG_LEVEL (info), CHAINUPDATE_LOG_FORMAT (text).
func Load() (*Config, error) {
	envFile := ".env"
	if v, ok := os.LookupEnv("CHAINUPDATE_ENV_FILE"); ok && v != "" {
		envFile = v
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
	}

	token := os.Getenv("CHAINUPDATE_GITHUB_TOKEN")
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	cfg := &Config{
		GitHubToken:    token,
		WebhookSecret:  os.Getenv("CHAINUPDATE_WEBHOOK_SECRET"),
		PipelinePath:   envOr("CHAINUPDATE_PIPELINE", "chainupdate.yaml"),
		ListenAddr:     envOr("CHAINUPDATE_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:         envOr("CHAINUPDATE_DB_PATH", "chainupdate.db"),
		WorkDir:        envOr("CHAINUPDATE_WORK_DIR", os.TempDir()),
		CommandTimeout: 10 * time.Minute,
		Workers:        2,
		QueueSize:      32,
		LogLevel:       slog.LevelInfo,
		LogFormat:      envOr("CHAINUPDATE_LOG_FORMAT", "text"),
	}

	if v, ok := os.LookupEnv("CHAINUPDATE_COMMAND_TIMEOUT"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("CHAINUPDATE_COMMAND_TIMEOUT has invalid duration %q: %w", v, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("CHAINUPDATE_COMMAND_TIMEOUT must be positive, got %s", parsed)
		}
		cfg.CommandTimeout = parsed
	}

	var err error
	if cfg.Workers, err = positiveInt("CHAINUPDATE_WORKERS", cfg.Workers); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = positiveInt("CHAINUPDATE_QUEUE_SIZE", cfg.QueueSize); err != nil {
		return nil, err
	}

	if v, ok := os.LookupEnv("CHAINUPDATE_LOG_LEVEL"); ok {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("CHAINUPDATE_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("CHAINUPDATE_LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func positiveInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s must be at least 1, got %d", key, n)
	}
	return n, nil
}
