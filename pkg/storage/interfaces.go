package storage

import (
	"context"
	"fmt"
	"time"
)

// Backend types
const (
	TypeMemory   = "memory"
	TypePostgres = "postgres"
)

// UnitOfWork runs fn inside a transaction carried by the context passed to fn.
// The transaction commits when fn returns nil and rolls back otherwise.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// UnitOfWorkFunc adapts a function to UnitOfWork
type UnitOfWorkFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// RunInTx calls f
func (f UnitOfWorkFunc) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}

// Config for storage backend
type Config struct {
	Type string // "memory", "postgres"

	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs []string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// Identity cache config
	IdentityCacheSize int
	IdentityCacheTTL  time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:              TypeMemory,
		PostgresMaxConns:  20,
		PostgresMinConns:  2,
		PostgresTimeout:   10 * time.Second,
		RedisDB:           0,
		RedisMaxRetries:   3,
		RedisPoolSize:     10,
		IdentityCacheSize: 10000,
		IdentityCacheTTL:  5 * time.Minute,
	}
}

// Validate checks the configuration is usable
func (c Config) Validate() error {
	switch c.Type {
	case TypeMemory:
	case TypePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
		if c.PostgresMaxConns < 1 {
			return fmt.Errorf("postgres max connections must be positive")
		}
		if c.PostgresMinConns > c.PostgresMaxConns {
			return fmt.Errorf("postgres min connections (%d) exceed max connections (%d)", c.PostgresMinConns, c.PostgresMaxConns)
		}
	default:
		return fmt.Errorf("unknown storage type %q", c.Type)
	}
	if c.IdentityCacheSize < 0 {
		return fmt.Errorf("identity cache size must not be negative")
	}
	return nil
}
