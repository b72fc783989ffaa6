package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medtrack/hospital-booking/internal/booking"
	"github.com/medtrack/hospital-booking/internal/schedule"
)

type RouterConfig struct {
	Service *booking.Service
	Store   schedule.Store
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
	Now     func() time.Time // defaults to time.Now
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(ActorMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Post("/appointments", createAppointmentHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Patch("/appointments/{id}/status", updateStatusHandler(cfg.Service))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))

	r.Post("/schedule-blocks", createBlockHandler(cfg.Store))
	r.Get("/schedule-blocks", listBlocksHandler(cfg.Store, cfg.Now))

	r.Post("/teleconsultations/{appointmentID}/start", startTeleconsultationHandler(cfg.Service))
	r.Post("/teleconsultations/{appointmentID}/end", endTeleconsultationHandler(cfg.Service))

	return r
}
