// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

// Package config defines the layered application configuration: built-in
// defaults, an optional YAML file, and environment variable overrides.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	Security SecurityConfig `koanf:"security"`
	Realtime RealtimeConfig `koanf:"realtime"`
	API      APIConfig      `koanf:"api"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StoreConfig configures the BadgerDB persistence layer.
type StoreConfig struct {
	// Path is the directory holding the Badger value log and LSM tree.
	Path string `koanf:"path" validate:"required"`

	// InMemory runs the store without disk persistence. Test use only.
	InMemory bool `koanf:"in_memory"`
}

// SecurityConfig configures credential verification and HTTP hardening.
// Token issuance is external; the server only verifies pre-issued JWTs.
type SecurityConfig struct {
	// JWTSecret signs/verifies HS256 tokens. Minimum 32 characters.
	JWTSecret string `koanf:"jwt_secret" validate:"required,min=32"`

	TokenTTL time.Duration `koanf:"token_ttl"`

	CORSOrigins []string `koanf:"cors_origins"`

	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
}

// RealtimeConfig tunes the WebSocket layer.
type RealtimeConfig struct {
	// SendQueueSize is the per-connection outbound buffer. A connection whose
	// queue is full has individual broadcasts dropped, not the connection.
	SendQueueSize int `koanf:"send_queue_size" validate:"min=1"`

	// MaxMessageSize bounds a single inbound frame in bytes.
	MaxMessageSize int64 `koanf:"max_message_size" validate:"min=1"`

	// FramesPerSecond rate-limits inbound frames per connection.
	// Zero disables the limiter.
	FramesPerSecond float64 `koanf:"frames_per_second" validate:"min=0"`

	// FrameBurst is the limiter burst size when FramesPerSecond is set.
	FrameBurst int `koanf:"frame_burst" validate:"min=0"`
}

// APIConfig configures the REST surface.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size" validate:"min=1"`
	MaxPageSize     int `koanf:"max_page_size" validate:"min=1"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for invalid or missing values.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.API.DefaultPageSize > c.API.MaxPageSize {
		return fmt.Errorf("api.default_page_size (%d) exceeds api.max_page_size (%d)",
			c.API.DefaultPageSize, c.API.MaxPageSize)
	}
	return nil
}
