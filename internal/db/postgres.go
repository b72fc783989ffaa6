package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolSettings sizes the pgx pool for a caller. Zero values fall back to
// defaults suitable for the CLI tools; the servers fill them from config.
type PoolSettings struct {
	MaxConns       int
	MinConns       int
	ConnectTimeout time.Duration
}

func (s PoolSettings) withDefaults() PoolSettings {
	if s.MaxConns <= 0 {
		s.MaxConns = 10
	}
	if s.MinConns <= 0 {
		s.MinConns = 1
	}
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = 5 * time.Second
	}
	return s
}

// ConnectPostgres opens a pgx pool and verifies the connection before
// returning it.
func ConnectPostgres(ctx context.Context, dsn string, settings PoolSettings) (*pgxpool.Pool, error) {
	settings = settings.withDefaults()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MaxConns = int32(settings.MaxConns)
	cfg.MinConns = int32(settings.MinConns)
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, settings.ConnectTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}
