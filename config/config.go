// Package config provides configuration for the gateway.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the gateway configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database (read-only votes dataset)
	DatabaseURL string

	// Agent runtime (generation producer)
	AgentURL     string
	AgentAPIKey  string
	AgentModel   string
	AgentTimeout time.Duration

	// Session registry
	MaxSessions   int
	SessionTTL    time.Duration
	SweepInterval time.Duration

	// Rate limiting
	MaxRequestsPerWindow int
	Window               time.Duration

	// Query guard
	DefaultRowLimit int
	MaxRowLimit     int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:             getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:          getEnv("DATABASE_URL", "file:parliament_votes.db?mode=ro"),
		AgentURL:             getEnv("AGENT_URL", "http://localhost:4000"),
		AgentAPIKey:          getEnv("AGENT_API_KEY", ""),
		AgentModel:           getEnv("AGENT_MODEL", "fireworks_ai/accounts/fireworks/models/kimi-k2-instruct"),
		AgentTimeout:         time.Duration(getEnvInt("AGENT_TIMEOUT_MS", 300000)) * time.Millisecond,
		MaxSessions:          getEnvInt("MAX_SESSIONS", 20),
		SessionTTL:           time.Duration(getEnvInt("SESSION_TTL_SECONDS", 900)) * time.Second,
		SweepInterval:        time.Duration(getEnvInt("SWEEP_INTERVAL_SECONDS", 300)) * time.Second,
		MaxRequestsPerWindow: getEnvInt("MAX_REQUESTS_PER_WINDOW", 10),
		Window:               time.Duration(getEnvInt("WINDOW_SECONDS", 60)) * time.Second,
		DefaultRowLimit:      getEnvInt("DEFAULT_ROW_LIMIT", 100),
		MaxRowLimit:          getEnvInt("MAX_ROW_LIMIT", 1000),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
