// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations searched in order; the
// first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/embywatch/config.yaml",
	"/etc/embywatch/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "EMBYWATCH_CONFIG"

// defaultConfig returns the built-in defaults, applied before file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8710,
			Timeout:         30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Store: StoreConfig{
			Path:         "/data/embywatch",
			LogRetention: 90 * 24 * time.Hour,
		},
		Emby: EmbyConfig{
			URL:     "",
			APIKey:  "",
			Timeout: 15 * time.Second,
		},
		TMDB: TMDBConfig{
			APIKey:  "",
			Timeout: 10 * time.Second,
		},
		Dispatch: DispatchConfig{
			Parallelism:   5,
			MaxRetries:    2,
			BaseDelay:     time.Second,
			SendTimeout:   30 * time.Second,
			RatePerSecond: 0,
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			CheckInterval:    30 * time.Second,
			ExecutionTimeout: 5 * time.Minute,
		},
		Security: SecurityConfig{
			JWTSecret:         "",
			AdminUsername:     "",
			AdminPasswordHash: "",
			SessionTimeout:    24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Default returns the built-in defaults without reading files or the
// environment. Useful for tests and embedded setups.
func Default() *Config {
	return defaultConfig()
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists paths parsed from comma-separated env strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated env values into slices.
// YAML-sourced values are already slices and are left alone.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps EMBYWATCH_* environment variables to config
// paths. Unmapped variables are skipped so random environment noise
// never pollutes the config.
//
// Examples:
//   - EMBYWATCH_SERVER_PORT -> server.port
//   - EMBYWATCH_EMBY_API_KEY -> emby.api_key
//   - EMBYWATCH_LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"embywatch_server_host":       "server.host",
		"embywatch_server_port":       "server.port",
		"embywatch_server_timeout":    "server.timeout",
		"embywatch_cors_origins":      "server.cors_origins",
		"embywatch_rate_limit_reqs":   "server.rate_limit_reqs",
		"embywatch_rate_limit_window": "server.rate_limit_window",

		// Store
		"embywatch_store_path":    "store.path",
		"embywatch_log_retention": "store.log_retention",

		// Emby
		"embywatch_emby_url":     "emby.url",
		"embywatch_emby_api_key": "emby.api_key",
		"embywatch_emby_timeout": "emby.timeout",

		// TMDB
		"embywatch_tmdb_api_key": "tmdb.api_key",
		"embywatch_tmdb_timeout": "tmdb.timeout",

		// Dispatch
		"embywatch_dispatch_parallelism": "dispatch.parallelism",
		"embywatch_dispatch_max_retries": "dispatch.max_retries",
		"embywatch_dispatch_base_delay":  "dispatch.base_delay",
		"embywatch_dispatch_timeout":     "dispatch.send_timeout",
		"embywatch_dispatch_rate":        "dispatch.rate_per_second",

		// Scheduler
		"embywatch_scheduler_enabled":        "scheduler.enabled",
		"embywatch_scheduler_check_interval": "scheduler.check_interval",
		"embywatch_scheduler_exec_timeout":   "scheduler.execution_timeout",

		// Security
		"embywatch_jwt_secret":          "security.jwt_secret",
		"embywatch_admin_username":      "security.admin_username",
		"embywatch_admin_password_hash": "security.admin_password_hash",
		"embywatch_session_timeout":     "security.session_timeout",

		// Logging
		"embywatch_log_level":  "logging.level",
		"embywatch_log_format": "logging.format",
		"embywatch_log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// WatchConfigFile watches path and invokes callback on change. The
// caller owns mutex protection around any reload.
func WatchConfigFile(path string, callback func()) error {
	provider := file.Provider(path)
	return provider.Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
