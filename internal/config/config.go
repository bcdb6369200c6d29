// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	SecretKey         []byte // nil when LIFESYNC_SECRET_KEY is unset
	ListenAddr        string
	DBPath            string
	SchedulerInterval time.Duration
	SyncWorkers       int
	LockMaxAge        time.Duration
	FailureThreshold  int
}

// HasSecretKey returns true when a credential encryption key is configured.
// Without one, new credential values are stored as-is and ciphertext rows
// cannot be decrypted.
func (c *Config) HasSecretKey() bool {
	return c.SecretKey != nil
}

// Load reads configuration from environment variables and returns a validated
// Config. LIFESYNC_SECRET_KEY is optional but, when set, must be 64 hex
// characters (a 32-byte AES-256 key). Optional variables with defaults:
// LIFESYNC_LISTEN_ADDR (127.0.0.1:8080), LIFESYNC_DB_PATH (lifesync.db),
// LIFESYNC_SCHEDULER_INTERVAL (1m), LIFESYNC_SYNC_WORKERS (3),
// LIFESYNC_LOCK_MAX_AGE (30m), LIFESYNC_FAILURE_THRESHOLD (5).
func Load() (*Config, error) {
	var secretKey []byte
	if v, ok := os.LookupEnv("LIFESYNC_SECRET_KEY"); ok && v != "" {
		decoded, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("LIFESYNC_SECRET_KEY is not valid hex: %w", err)
		}
		if len(decoded) != 32 {
			return nil, fmt.Errorf("LIFESYNC_SECRET_KEY must decode to 32 bytes, got %d", len(decoded))
		}
		secretKey = decoded
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("LIFESYNC_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "lifesync.db"
	if v, ok := os.LookupEnv("LIFESYNC_DB_PATH"); ok {
		dbPath = v
	}

	schedulerInterval := time.Minute
	if v, ok := os.LookupEnv("LIFESYNC_SCHEDULER_INTERVAL"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("LIFESYNC_SCHEDULER_INTERVAL has invalid duration %q: %w", v, err)
		}
		schedulerInterval = parsed
	}

	syncWorkers := 3
	if v, ok := os.LookupEnv("LIFESYNC_SYNC_WORKERS"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("LIFESYNC_SYNC_WORKERS must be a positive integer, got %q", v)
		}
		syncWorkers = parsed
	}

	lockMaxAge := 30 * time.Minute
	if v, ok := os.LookupEnv("LIFESYNC_LOCK_MAX_AGE"); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("LIFESYNC_LOCK_MAX_AGE has invalid duration %q: %w", v, err)
		}
		lockMaxAge = parsed
	}

	failureThreshold := 5
	if v, ok := os.LookupEnv("LIFESYNC_FAILURE_THRESHOLD"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("LIFESYNC_FAILURE_THRESHOLD must be a positive integer, got %q", v)
		}
		failureThreshold = parsed
	}

	return &Config{
		SecretKey:         secretKey,
		ListenAddr:        listenAddr,
		DBPath:            dbPath,
		SchedulerInterval: schedulerInterval,
		SyncWorkers:       syncWorkers,
		LockMaxAge:        lockMaxAge,
		FailureThreshold:  failureThreshold,
	}, nil
}
