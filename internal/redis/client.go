package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Settings configures the Redis connection backing the block locks. Zero
// values fall back to defaults; the servers fill them from config.
type Settings struct {
	Addr      string
	Username  string
	Password  string
	OpTimeout time.Duration // read and write deadline per command
	PoolSize  int
}

func (s Settings) withDefaults() Settings {
	if s.OpTimeout <= 0 {
		s.OpTimeout = 2 * time.Second
	}
	if s.PoolSize <= 0 {
		s.PoolSize = 10
	}
	return s
}

// NewRedisClient connects and verifies the connection before returning it.
func NewRedisClient(ctx context.Context, settings Settings) (*redis.Client, error) {
	settings = settings.withDefaults()

	rdb := redis.NewClient(&redis.Options{
		Addr:         settings.Addr,
		Username:     settings.Username,
		Password:     settings.Password,
		ReadTimeout:  settings.OpTimeout,
		WriteTimeout: settings.OpTimeout,
		PoolSize:     settings.PoolSize,
		MinIdleConns: 1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
