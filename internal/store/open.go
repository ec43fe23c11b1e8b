package store

import (
	"context"
	"fmt"
)

// Config selects and configures a KV implementation.
type Config struct {
	// Driver is one of "memory", "sqlite", "redis", "postgres".
	Driver string

	// Path is the database file for the sqlite driver.
	Path string

	// Redis holds connection settings for the redis driver.
	Redis RedisConfig

	// PostgresURL is the connection string for the postgres driver.
	PostgresURL string
}

// Open creates the KV named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (KV, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(ctx, cfg.Path)
	case "redis":
		return NewRedis(ctx, cfg.Redis)
	case "postgres":
		return NewPostgres(ctx, cfg.PostgresURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
