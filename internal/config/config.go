// Package config provides centralized configuration management.
// Every setting has a default here and can be overridden from the
// environment or a .env file.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// =============================================================================
// HTTP SERVER
// =============================================================================

// ServerConfig holds the public listener settings.
type ServerConfig struct {
	Port        int      `env:"PORT" envDefault:"3000"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
	// Per-IP HTTP limiter
	RequestsPerSecond float64 `env:"HTTP_RATE_LIMIT" envDefault:"10"`
	RequestBurst      int     `env:"HTTP_RATE_BURST" envDefault:"20"`
	// WebSocket connection caps
	MaxConnections      int           `env:"WS_MAX_CONNECTIONS" envDefault:"500"`
	MaxConnectionsPerIP int           `env:"WS_MAX_CONNECTIONS_PER_IP" envDefault:"10"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Addr returns the listen address for the configured port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// =============================================================================
// RELAY
// =============================================================================

// RelayConfig controls how rooms treat gameplay actions.
type RelayConfig struct {
	// Authoritative runs the engine on the server and validates every action.
	// Otherwise actions are forwarded verbatim between the two peers.
	Authoritative bool          `env:"RELAY_AUTHORITATIVE" envDefault:"false"`
	TurnTimeout   time.Duration `env:"RELAY_TURN_TIMEOUT" envDefault:"0s"`
	// RoomSeed fixes every room's vote/seed stream. 0 seeds from the clock.
	RoomSeed         int64   `env:"RELAY_ROOM_SEED" envDefault:"0"`
	ActionsPerSecond float64 `env:"RELAY_ACTIONS_PER_SECOND" envDefault:"10"`
	ActionBurst      int     `env:"RELAY_ACTION_BURST" envDefault:"20"`
}

// =============================================================================
// STORAGE
// =============================================================================

// ArchiveConfig points at the match archive. An empty path disables it.
type ArchiveConfig struct {
	Path string `env:"ARCHIVE_PATH" envDefault:"data/matches.sqlite"`
}

// EventLogConfig controls the append-only match event log.
type EventLogConfig struct {
	// Path of the JSONL file. Empty keeps events in memory only.
	Path              string `env:"EVENT_LOG_PATH" envDefault:"events.jsonl"`
	MaxEventsPerSec   int    `env:"EVENT_LOG_MAX_PER_SEC" envDefault:"10000"`
	MaxEventsPerMatch int    `env:"EVENT_LOG_MAX_PER_MATCH" envDefault:"200"`
}

// =============================================================================
// OBSERVABILITY
// =============================================================================

// DebugConfig configures the localhost pprof/metrics server.
type DebugConfig struct {
	Enabled       bool   `env:"DEBUG_SERVER_ENABLED" envDefault:"true"`
	ListenAddr    string `env:"DEBUG_SERVER_ADDR" envDefault:"127.0.0.1:6060"`
	AllowExternal bool   `env:"ALLOW_DEBUG_EXTERNAL" envDefault:"false"`
	BasicAuthUser string `env:"DEBUG_BASIC_AUTH_USER"`
	BasicAuthPass string `env:"DEBUG_BASIC_AUTH_PASS"`
}

// LogConfig selects the logrus level and formatter.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"text"` // "text" or "json"
}

// =============================================================================
// UNIFIED CONFIG
// =============================================================================

// AppConfig aggregates all configuration for the server.
type AppConfig struct {
	Server   ServerConfig
	Relay    RelayConfig
	Archive  ArchiveConfig
	EventLog EventLogConfig
	Debug    DebugConfig
	Log      LogConfig
}

// Load reads .env files (when present) and then the environment.
// Files are tried in order; variables already set are never overwritten.
func Load(files ...string) (AppConfig, error) {
	if len(files) == 0 {
		files = []string{"../.env", ".env"}
	}
	for _, f := range files {
		// Missing files are fine: the environment alone is a valid config.
		_ = godotenv.Load(f)
	}
	return Parse()
}

// Parse builds the config from the current environment only.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Server.Port)
	}
	if c.Relay.TurnTimeout < 0 {
		return fmt.Errorf("RELAY_TURN_TIMEOUT must not be negative")
	}
	if c.Relay.TurnTimeout > 0 && !c.Relay.Authoritative {
		return fmt.Errorf("RELAY_TURN_TIMEOUT requires RELAY_AUTHORITATIVE")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	return nil
}
