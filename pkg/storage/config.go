package storage

import (
	"errors"
	"fmt"
	"time"
)

// Backend names a store implementation.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendBolt     Backend = "bolt"
)

// ErrUnknownBackend is returned by Config.Validate for unsupported backends.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Config for storage backend
type Config struct {
	Backend Backend

	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs []string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration
	PostgresMaxLifetime time.Duration
	PostgresMaxIdleTime time.Duration

	// Bolt config
	BoltPath    string
	BoltTimeout time.Duration

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Backend:             BackendBolt,
		PostgresMaxConns:    20,
		PostgresMinConns:    2,
		PostgresTimeout:     10 * time.Second,
		PostgresMaxLifetime: 30 * time.Minute,
		PostgresMaxIdleTime: 5 * time.Minute,
		BoltPath:            "/tmp/joboost/joboost.db",
		BoltTimeout:         time.Second,
		RedisDB:             0,
		RedisMaxRetries:     3,
		RedisPoolSize:       10,
	}
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendPostgres:
		if c.PostgresURL == "" {
			return errors.New("postgres backend requires a database url")
		}
	case BackendBolt:
		if c.BoltPath == "" {
			return errors.New("bolt backend requires a file path")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	return nil
}
