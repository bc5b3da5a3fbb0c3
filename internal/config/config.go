// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all runtime knobs for the reflow-ocr backend. Values come from
// REFLOW_* environment variables; a .env file is loaded by the root command
// before Load runs.
type Config struct {
	// HTTP server
	Port string

	// DataDir is the root for persisted sessions and page files.
	DataDir string

	// AutosaveInterval is how often dirty sessions are flushed to disk.
	AutosaveInterval time.Duration

	// Engine selects the recognition backend: tesseract, gemini, ollama, fallback.
	Engine string

	// LanguageHint is passed to engines, e.g. "eng" or "rus+eng".
	LanguageHint string

	// Workers bounds how many recognition runs execute concurrently
	// across all sessions.
	Workers int

	// EngineTimeout bounds a single engine call per page.
	EngineTimeout time.Duration

	// ExportTimeout bounds a single export rendering.
	ExportTimeout time.Duration

	// GeminiModel is the model used by the gemini engine.
	GeminiModel string

	// OllamaHost is the base URL of a local Ollama instance.
	OllamaHost string

	// OllamaModel is the vision model used by the ollama engine.
	OllamaModel string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("REFLOW_PORT", "8484"),
		DataDir:      getEnv("REFLOW_DATA_DIR", defaultDataDir()),
		Engine:       getEnv("REFLOW_ENGINE", "tesseract"),
		LanguageHint: getEnv("REFLOW_LANGUAGES", "eng"),
		GeminiModel:  getEnv("REFLOW_GEMINI_MODEL", "gemini-1.5-flash"),
		OllamaHost:   getEnv("REFLOW_OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:  getEnv("REFLOW_OLLAMA_MODEL", "llava"),
	}

	var err error
	if cfg.AutosaveInterval, err = getDuration("REFLOW_AUTOSAVE_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.EngineTimeout, err = getDuration("REFLOW_ENGINE_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ExportTimeout, err = getDuration("REFLOW_EXPORT_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getInt("REFLOW_WORKERS", 2); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("REFLOW_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.AutosaveInterval < 5*time.Second {
		return fmt.Errorf("REFLOW_AUTOSAVE_INTERVAL must be at least 5s, got %s", c.AutosaveInterval)
	}
	if c.EngineTimeout <= 0 {
		return fmt.Errorf("REFLOW_ENGINE_TIMEOUT must be positive, got %s", c.EngineTimeout)
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, ".reflow-ocr")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}
