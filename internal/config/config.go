package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the mirror. Values come from an
// optional YAML file (CONFIG_FILE) overridden by environment
// variables; anything unset falls back to the defaults below.
type Config struct {
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	DatabaseURL string `yaml:"db_dsn"`

	RequestsPerMinute  int `yaml:"requests_per_minute"`
	MaxRetries         int `yaml:"max_retries"`
	RateLimitSleepMs   int `yaml:"rate_limit_sleep_ms"`
	BatchSize          int `yaml:"batch_size"`
	RollingWindowDays  int `yaml:"rolling_window_days"`
	InterParentPauseMs int `yaml:"inter_parent_pause_ms"`
	PageLimit          int `yaml:"page_limit"`

	HTTPAddr       string `yaml:"http_addr"`
	AdminJWTSecret string `yaml:"admin_jwt_secret"`
	UserAgent      string `yaml:"user_agent"`
	Env            string `yaml:"env"`
}

// Defaults returns a Config populated with the documented defaults.
func Defaults() Config {
	return Config{
		RequestsPerMinute:  30,
		MaxRetries:         5,
		RateLimitSleepMs:   20000,
		BatchSize:          100,
		RollingWindowDays:  30,
		InterParentPauseMs: 100,
		PageLimit:          100,
		HTTPAddr:           ":8082",
		UserAgent:          "fulfillsync-mirror/1.0",
		Env:                "dev",
	}
}

// Load builds the effective configuration: defaults, then the YAML
// file named by CONFIG_FILE (if any), then environment variables.
func Load() (Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.APIKey = env("API_KEY", cfg.APIKey)
	cfg.BaseURL = env("BASE_URL", cfg.BaseURL)
	cfg.DatabaseURL = env("DATABASE_URL", cfg.DatabaseURL)
	cfg.HTTPAddr = env("HTTP_ADDR", cfg.HTTPAddr)
	cfg.AdminJWTSecret = env("ADMIN_JWT_SECRET", cfg.AdminJWTSecret)
	cfg.UserAgent = env("USER_AGENT", cfg.UserAgent)
	cfg.Env = env("ENV", cfg.Env)

	var err error
	if cfg.RequestsPerMinute, err = envInt("REQUESTS_PER_MINUTE", cfg.RequestsPerMinute); err != nil {
		return cfg, err
	}
	if cfg.MaxRetries, err = envInt("MAX_RETRIES", cfg.MaxRetries); err != nil {
		return cfg, err
	}
	if cfg.RateLimitSleepMs, err = envInt("RATE_LIMIT_SLEEP_MS", cfg.RateLimitSleepMs); err != nil {
		return cfg, err
	}
	if cfg.BatchSize, err = envInt("BATCH_SIZE", cfg.BatchSize); err != nil {
		return cfg, err
	}
	if cfg.RollingWindowDays, err = envInt("ROLLING_WINDOW_DAYS", cfg.RollingWindowDays); err != nil {
		return cfg, err
	}
	if cfg.InterParentPauseMs, err = envInt("INTER_PARENT_PAUSE_MS", cfg.InterParentPauseMs); err != nil {
		return cfg, err
	}
	if cfg.PageLimit, err = envInt("PAGE_LIMIT", cfg.PageLimit); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate checks the required keys and value ranges.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("API_KEY is required")
	}
	if c.BaseURL == "" {
		return errors.New("BASE_URL is required")
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.RequestsPerMinute <= 0 {
		return errors.New("requests_per_minute must be positive")
	}
	if c.PageLimit <= 0 || c.BatchSize <= 0 {
		return errors.New("page_limit and batch_size must be positive")
	}
	return nil
}

// RateLimitSleep is the 429 cool-down as a duration.
func (c Config) RateLimitSleep() time.Duration {
	return time.Duration(c.RateLimitSleepMs) * time.Millisecond
}

// InterParentPause is the pause between per-parent detail fetches.
func (c Config) InterParentPause() time.Duration {
	return time.Duration(c.InterParentPauseMs) * time.Millisecond
}

// RollingWindow is the backward expansion applied to incremental syncs.
func (c Config) RollingWindow() time.Duration {
	return time.Duration(c.RollingWindowDays) * 24 * time.Hour
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s must be an integer: %w", k, err)
	}
	return n, nil
}
