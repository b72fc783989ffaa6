package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medtrack/hospital-booking/internal/booking"
	"github.com/medtrack/hospital-booking/internal/config"
	"github.com/medtrack/hospital-booking/internal/db"
	redisclient "github.com/medtrack/hospital-booking/internal/redis"
	"github.com/medtrack/hospital-booking/internal/schedule"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "reminder-worker").Logger()
	logger.Info().Msg("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("configured")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolSettings{
		MaxConns:       cfg.PgMaxConns,
		MinConns:       cfg.PgMinConns,
		ConnectTimeout: cfg.PgConnectTimeout,
	})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Settings{
		Addr:      cfg.RedisAddr,
		Username:  cfg.RedisUsername,
		Password:  cfg.RedisPassword,
		OpTimeout: cfg.RedisTimeout,
		PoolSize:  cfg.RedisPoolSize,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	store := schedule.NewPgStore(pgPool)
	repo := booking.NewPgRepository(pgPool)
	locker := redisclient.NewRedisBlockLocker(rdb, cfg.LockTTL, cfg.LockKeyPrefix)
	svc := booking.NewService(repo, store, locker, cfg.Rules, logger)

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.CancelOverdueAppointments(runCtx); err != nil {
		logger.Error().Err(err).Msg("overdue sweep error")
		return
	}
	logger.Info().Dur("elapsed", time.Since(start)).Msg("overdue sweep complete")
}
