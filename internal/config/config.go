// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

// Package config loads and validates application configuration using Koanf v2
// with layered sources (highest priority wins): environment variables, config
// file (config.yaml), built-in defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	Tracking TrackingConfig `koanf:"tracking"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// StoreConfig selects and configures the record store backend.
//
// Backends:
//   - memory: in-process store, no persistence (development, tests)
//   - badger: embedded BadgerDB document store (single-node production)
//   - mongo:  MongoDB (multi-node production)
type StoreConfig struct {
	Backend       string `koanf:"backend"`
	BadgerPath    string `koanf:"badger_path"`
	MongoURI      string `koanf:"mongo_uri"`
	MongoDatabase string `koanf:"mongo_database"`

	// BreakerEnabled wraps the backend with a circuit breaker so a failing
	// store sheds load instead of stacking up timed-out requests.
	BreakerEnabled     bool          `koanf:"breaker_enabled"`
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// TrackingConfig tunes the ingestion core.
type TrackingConfig struct {
	// MaxResolveAttempts bounds the session resolver's conditional-create
	// retry loop. One retry suffices for a single concurrent racer; higher
	// values tolerate N-way create races.
	MaxResolveAttempts int `koanf:"max_resolve_attempts"`
}

// SecurityConfig holds authentication and rate-limit settings.
type SecurityConfig struct {
	// AuthMode is "jwt" or "none". Token issuance is external; in jwt mode
	// the bearer token's subject must match the event's userId.
	AuthMode  string `koanf:"auth_mode"`
	JWTSecret string `koanf:"jwt_secret"`

	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for invalid combinations.
// It is called by Load after all layers are merged.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Store.Backend {
	case "memory":
	case "badger":
		if c.Store.BadgerPath == "" {
			return fmt.Errorf("store.badger_path is required for the badger backend")
		}
	case "mongo":
		if c.Store.MongoURI == "" {
			return fmt.Errorf("store.mongo_uri is required for the mongo backend")
		}
		if c.Store.MongoDatabase == "" {
			return fmt.Errorf("store.mongo_database is required for the mongo backend")
		}
	default:
		return fmt.Errorf("store.backend must be one of memory, badger, mongo; got %q", c.Store.Backend)
	}

	switch c.Security.AuthMode {
	case "jwt":
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("security.jwt_secret must be at least 32 characters in jwt mode")
		}
	case "none":
	default:
		return fmt.Errorf("security.auth_mode must be jwt or none, got %q", c.Security.AuthMode)
	}

	if c.Tracking.MaxResolveAttempts < 1 {
		return fmt.Errorf("tracking.max_resolve_attempts must be at least 1, got %d", c.Tracking.MaxResolveAttempts)
	}

	return nil
}
