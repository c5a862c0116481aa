// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the daemon needs at startup.
type Config struct {
	ListenAddr string
	DBPath     string

	LLMProvider string
	LLMModel    string
	LLMAPIKey   string
	LLMBaseURL  string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	StepTimeout time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:   envOr("BRIEFBOT_LISTEN_ADDR", ":8080"),
		DBPath:       os.Getenv("BRIEFBOT_DB_PATH"),
		LLMProvider:  envOr("BRIEFBOT_LLM_PROVIDER", "openai"),
		LLMModel:     envOr("BRIEFBOT_LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey:    os.Getenv("BRIEFBOT_LLM_API_KEY"),
		LLMBaseURL:   os.Getenv("BRIEFBOT_LLM_BASE_URL"),
		SMTPHost:     os.Getenv("BRIEFBOT_SMTP_HOST"),
		SMTPPort:     587,
		SMTPUsername: os.Getenv("BRIEFBOT_SMTP_USERNAME"),
		SMTPPassword: os.Getenv("BRIEFBOT_SMTP_PASSWORD"),
		SMTPFrom:     os.Getenv("BRIEFBOT_SMTP_FROM"),
		StepTimeout:  2 * time.Minute,
	}

	if port := os.Getenv("BRIEFBOT_SMTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid BRIEFBOT_SMTP_PORT %q: %w", port, err)
		}
		cfg.SMTPPort = p
	}

	if timeout := os.Getenv("BRIEFBOT_STEP_TIMEOUT"); timeout != "" {
		d, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid BRIEFBOT_STEP_TIMEOUT %q: %w", timeout, err)
		}
		cfg.StepTimeout = d
	}

	if cfg.DBPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		cfg.DBPath = filepath.Join(homeDir, ".briefbot", "briefbot.db")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
