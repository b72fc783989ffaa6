package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/medtrack/hospital-booking/internal/db"
)

var logger zerolog.Logger

func main() {
	logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "seed").Logger()
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.PoolSettings{})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 50)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(context.Background(), pool, 5000); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedServices(context.Background(), pool); err != nil {
		logger.Fatal().Err(err).Msg("seed services")
	}
	if err := seedScheduleBlocks(context.Background(), pool, doctorIDs, 14); err != nil {
		logger.Fatal().Err(err).Msg("seed schedule blocks")
	}

	logger.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding doctors")

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}
	titles := []string{"MD", "MD PhD", "Specialist I", "Specialist II"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		title := titles[gofakeit.Number(0, len(titles)-1)]
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, title, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, title, spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info().Msg("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()
			phone := gofakeit.Phone()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, email, phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded batch")
	}

	logger.Info().Msg("patients seeded")
	return nil
}

func seedServices(ctx context.Context, pool *pgxpool.Pool) error {
	services := []struct {
		name     string
		price    int64
		duration int
		remote   bool
	}{
		{"General consultation", 200000, 30, false},
		{"Specialist consultation", 350000, 30, false},
		{"Remote consultation", 150000, 20, true},
		{"Full health screening", 1200000, 90, false},
		{"Follow-up visit", 100000, 15, false},
		{"Vaccination", 250000, 15, false},
	}

	logger.Info().Int("count", len(services)).Msg("seeding services")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, s := range services {
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, price, duration_minutes, remote, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, uuid.New(), s.name, s.price, s.duration, s.remote)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("services seeded")
	return nil
}

// seedScheduleBlocks publishes morning and afternoon blocks for each doctor
// for the next days ahead, skipping Sundays.
func seedScheduleBlocks(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID, daysAhead int) error {
	logger.Info().Int("doctors", len(doctorIDs)).Int("days", daysAhead).Msg("seeding schedule blocks")

	type window struct {
		startHour int
		endHour   int
	}
	windows := []window{
		{9, 12},
		{14, 17},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	for day := 1; day <= daysAhead; day++ {
		date := now.AddDate(0, 0, day)
		if date.Weekday() == time.Sunday {
			continue
		}

		for _, doctorID := range doctorIDs {
			for _, wnd := range windows {
				start := time.Date(date.Year(), date.Month(), date.Day(), wnd.startHour, 0, 0, 0, time.Local)
				end := time.Date(date.Year(), date.Month(), date.Day(), wnd.endHour, 0, 0, 0, time.Local)
				capacity := gofakeit.Number(5, 20)

				_, err := tx.Exec(ctx, `
					INSERT INTO work_schedule_blocks (id, doctor_id, start_at, end_at, capacity, booked_count, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, 0, now(), now())
				`, uuid.New(), doctorID, start, end, capacity)
				if err != nil {
					return err
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("schedule blocks seeded")
	return nil
}
