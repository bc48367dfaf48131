// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

// Package config loads and validates service configuration from layered
// sources: struct defaults, an optional YAML file, then environment
// variables (highest priority).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Emby      EmbyConfig      `koanf:"emby"`
	TMDB      TMDBConfig      `koanf:"tmdb"`
	Dispatch  DispatchConfig  `koanf:"dispatch"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout time.Duration `koanf:"timeout"`

	// CORSOrigins lists allowed browser origins; "*" allows all.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs requests per RateLimitWindow per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// StoreConfig holds the embedded key-value store settings.
type StoreConfig struct {
	// Path is the BadgerDB data directory. Empty means in-memory,
	// which is only useful for tests.
	Path string `koanf:"path"`

	// LogRetention bounds how long delivery-log entries are kept.
	LogRetention time.Duration `koanf:"log_retention"`
}

// EmbyConfig holds the upstream Emby server connection. The channel
// registry can override these at runtime; this is the bootstrap value.
type EmbyConfig struct {
	URL     string        `koanf:"url" validate:"omitempty,url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// TMDBConfig holds the TMDB API bootstrap settings.
type TMDBConfig struct {
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// DispatchConfig tunes the notification fan-out.
type DispatchConfig struct {
	// Parallelism bounds concurrent channel sends per dispatch.
	Parallelism int `koanf:"parallelism" validate:"gte=1,lte=64"`

	// MaxRetries per channel for transient failures.
	MaxRetries int `koanf:"max_retries" validate:"gte=0,lte=10"`

	// BaseDelay seeds the exponential backoff between retries.
	BaseDelay time.Duration `koanf:"base_delay"`

	// SendTimeout bounds one channel send attempt.
	SendTimeout time.Duration `koanf:"send_timeout"`

	// RatePerSecond caps outbound sends per channel; 0 disables.
	RatePerSecond float64 `koanf:"rate_per_second" validate:"gte=0"`
}

// SchedulerConfig tunes the report scheduler loop.
type SchedulerConfig struct {
	Enabled bool `koanf:"enabled"`

	// CheckInterval is how often due schedules are evaluated.
	CheckInterval time.Duration `koanf:"check_interval"`

	// ExecutionTimeout bounds one generate+render+dispatch run.
	ExecutionTimeout time.Duration `koanf:"execution_timeout"`
}

// SecurityConfig holds the single-admin authentication settings.
type SecurityConfig struct {
	// JWTSecret signs bearer tokens. Required when auth is enabled.
	JWTSecret string `koanf:"jwt_secret"`

	// AdminUsername and AdminPasswordHash (bcrypt) gate the API.
	// Empty username disables authentication entirely.
	AdminUsername     string `koanf:"admin_username"`
	AdminPasswordHash string `koanf:"admin_password_hash"`

	SessionTimeout time.Duration `koanf:"session_timeout"`
}

// LoggingConfig holds the logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error disabled"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// AuthEnabled reports whether admin authentication is configured.
func (s *SecurityConfig) AuthEnabled() bool {
	return s.AdminUsername != ""
}

var validate = validator.New()

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Security.AuthEnabled() {
		if c.Security.JWTSecret == "" {
			return fmt.Errorf("security.jwt_secret is required when admin auth is enabled")
		}
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("security.jwt_secret must be at least 32 bytes")
		}
		if c.Security.AdminPasswordHash == "" {
			return fmt.Errorf("security.admin_password_hash is required when admin auth is enabled")
		}
	}
	return nil
}
