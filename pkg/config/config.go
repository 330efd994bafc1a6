// Package config loads daemon configuration from the environment and
// operator-authored autonomy profiles from YAML.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds daemon configuration.
type Config struct {
	DatabaseURL        string // empty means embedded SQLite
	SQLitePath         string
	RedisURL           string // empty disables the distributed scan lock
	LogLevel           string
	OTLPEndpoint       string
	ProfilesDir        string
	Profile            string // autonomy profile applied at startup, empty keeps stored settings
	ScanInterval       time.Duration
	SimulationInterval time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		OTLPEndpoint:       os.Getenv("OTLP_ENDPOINT"),
		Profile:            os.Getenv("AUTONOMY_PROFILE"),
		ScanInterval:       durationEnv("SCAN_INTERVAL", 15*time.Minute),
		SimulationInterval: durationEnv("SIMULATION_INTERVAL", 5*time.Minute),
	}

	cfg.SQLitePath = os.Getenv("SQLITE_PATH")
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "autonomy.db"
	}

	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}

	cfg.ProfilesDir = os.Getenv("PROFILES_DIR")
	if cfg.ProfilesDir == "" {
		cfg.ProfilesDir = "profiles"
	}

	return cfg
}

func durationEnv(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	// Bare numbers are minutes.
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return time.Duration(n) * time.Minute
	}
	return def
}
