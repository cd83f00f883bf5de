// Package config provides configuration management for ecotrace.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultWorkerPort is the HTTP port the worker listens on.
	DefaultWorkerPort = 8732

	// DefaultModel is the chat model used by the inference oracle.
	DefaultModel = "gemini-flash-latest"
)

// Config holds all ecotrace settings. Secrets come from environment
// variables and are never written to the settings file.
type Config struct {
	WorkerPort  int    `yaml:"worker_port"`
	DatabaseURL string `yaml:"database_url"`
	MaxConns    int    `yaml:"max_conns"`

	// Batch coordinator
	MaxConcurrency int `yaml:"max_concurrency"`

	// Inference oracle
	OracleBaseURL      string `yaml:"oracle_base_url"`
	OracleAPIKey       string `yaml:"-"`
	OracleModel        string `yaml:"oracle_model"`
	OracleMaxTokens    int    `yaml:"oracle_max_tokens"`
	OracleTimeoutSecs  int    `yaml:"oracle_timeout_secs"`
	SnippetTokenBudget int    `yaml:"snippet_token_budget"`

	// Search grounding
	GoogleAPIKey string `yaml:"-"`
	GoogleCSEID  string `yaml:"-"`

	// Optional Redis classification cache. Empty disables caching.
	RedisAddr string `yaml:"redis_addr"`

	// Auth. PEM-encoded RSA public key for verifying bearer tokens.
	// Empty means unverified decode (development only).
	JWTPublicKeyPEM string `yaml:"-"`

	// Nightly rollup cron schedule.
	RollupSchedule string `yaml:"rollup_schedule"`
}

var (
	mu      sync.RWMutex
	current *Config
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		WorkerPort:         DefaultWorkerPort,
		DatabaseURL:        "", // resolved to DBPath() when empty
		MaxConns:           4,
		MaxConcurrency:     8,
		OracleBaseURL:      "https://generativelanguage.googleapis.com/v1beta/openai",
		OracleModel:        DefaultModel,
		OracleMaxTokens:    1024,
		OracleTimeoutSecs:  30,
		SnippetTokenBudget: 512,
		RollupSchedule:     "0 3 * * *",
	}
}

// DataDir returns the ecotrace data directory (~/.ecotrace).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".ecotrace")
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), "ecotrace.db")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.yaml")
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o755)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default settings: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// EnsureAll creates the data directory and settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}
	if err := EnsureSettings(); err != nil {
		return fmt.Errorf("ensure settings: %w", err)
	}
	return nil
}

// Load reads settings.yaml, applies environment overrides, and installs the
// result as the process-wide config.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}

	applyEnv(cfg)

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = DBPath()
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 8
	}
	if cfg.OracleTimeoutSecs <= 0 {
		cfg.OracleTimeoutSecs = 30
	}

	Set(cfg)
	return cfg, nil
}

// applyEnv overrides settings from the environment. Secrets are env-only.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("ORACLE_API_KEY"); v != "" {
		cfg.OracleAPIKey = v
	}
	if v := os.Getenv("ORACLE_BASE_URL"); v != "" {
		cfg.OracleBaseURL = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		cfg.GoogleAPIKey = v
	}
	if v := os.Getenv("GOOGLE_CSE_ID"); v != "" {
		cfg.GoogleCSEID = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("ECOTRACE_JWT_PUBLIC_KEY"); v != "" {
		cfg.JWTPublicKeyPEM = v
	}
}

// Get returns the current process-wide config, falling back to defaults
// when Load has not run (tests).
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return Default()
	}
	return current
}

// Set installs the process-wide config.
func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	current = cfg
}
