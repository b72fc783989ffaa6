package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Querier is satisfied by *pgxpool.Pool, pgx.Conn and pgx.Tx. The Tx variants
// of Reserve/Release exist so the booking repository can run the same
// statements inside its own transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgStore struct {
	pool  *pgxpool.Pool
	nowFn func() time.Time
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, nowFn: time.Now}
}

func scanBlock(row pgx.Row) (*WorkScheduleBlock, error) {
	var b WorkScheduleBlock

	err := row.Scan(
		&b.ID,
		&b.DoctorID,
		&b.StartAt,
		&b.EndAt,
		&b.Capacity,
		&b.BookedCount,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}

	return &b, nil
}

func (s *PgStore) CreateBlock(ctx context.Context, block *WorkScheduleBlock) (*WorkScheduleBlock, error) {
	if err := block.Validate(s.nowFn()); err != nil {
		return nil, err
	}

	id := block.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO work_schedule_blocks (id, doctor_id, start_at, end_at, capacity, booked_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, now(), now())
		RETURNING id, doctor_id, start_at, end_at, capacity, booked_count, created_at, updated_at
	`, id, block.DoctorID, block.StartAt, block.EndAt, block.Capacity)

	created, err := scanBlock(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrDuplicateBlock
		}
		return nil, fmt.Errorf("insert schedule block: %w", err)
	}

	return created, nil
}

func (s *PgStore) GetBlock(ctx context.Context, id uuid.UUID) (*WorkScheduleBlock, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, doctor_id, start_at, end_at, capacity, booked_count, created_at, updated_at
		FROM work_schedule_blocks
		WHERE id = $1
	`, id)
	return scanBlock(row)
}

func (s *PgStore) GetRemaining(ctx context.Context, id uuid.UUID) (int, error) {
	var remaining int
	err := s.pool.QueryRow(ctx, `
		SELECT capacity - booked_count
		FROM work_schedule_blocks
		WHERE id = $1
	`, id).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrBlockNotFound
		}
		return 0, err
	}
	return remaining, nil
}

func (s *PgStore) ListBlocks(ctx context.Context, f BlockFilter) ([]WorkScheduleBlock, error) {
	query := `
		SELECT id, doctor_id, start_at, end_at, capacity, booked_count, created_at, updated_at
		FROM work_schedule_blocks
		WHERE 1=1`
	var args []any

	if f.DoctorID != uuid.Nil {
		args = append(args, f.DoctorID)
		query += fmt.Sprintf(" AND doctor_id = $%d", len(args))
	}
	if !f.Date.IsZero() {
		args = append(args, f.Date)
		query += fmt.Sprintf(" AND start_at::date = $%d::date", len(args))
	}
	if !f.FromDate.IsZero() {
		args = append(args, f.FromDate)
		query += fmt.Sprintf(" AND start_at::date >= $%d::date", len(args))
	}
	if f.AvailableOnly {
		query += " AND booked_count < capacity"
	}
	query += " ORDER BY start_at"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedule blocks: %w", err)
	}
	defer rows.Close()

	var result []WorkScheduleBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *PgStore) Reserve(ctx context.Context, id uuid.UUID) (int, error) {
	return ReserveTx(ctx, s.pool, id)
}

func (s *PgStore) Release(ctx context.Context, id uuid.UUID) error {
	return ReleaseTx(ctx, s.pool, id)
}

// ReserveTx performs the conditional increment against q. A read-then-write
// here would race; the single UPDATE is the capacity guarantee.
func ReserveTx(ctx context.Context, q Querier, id uuid.UUID) (int, error) {
	var bookedCount int
	err := q.QueryRow(ctx, `
		UPDATE work_schedule_blocks
		SET booked_count = booked_count + 1,
		    updated_at = now()
		WHERE id = $1
		  AND booked_count < capacity
		RETURNING booked_count
	`, id).Scan(&bookedCount)
	if err == nil {
		return bookedCount, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("reserve block: %w", err)
	}

	// No row matched: either the block is full or it does not exist.
	var exists bool
	if err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM work_schedule_blocks WHERE id = $1)
	`, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check block exists: %w", err)
	}
	if !exists {
		return 0, ErrBlockNotFound
	}
	return 0, ErrCapacityExceeded
}

// ReleaseTx decrements the booking counter, never below zero.
func ReleaseTx(ctx context.Context, q Querier, id uuid.UUID) error {
	tag, err := q.Exec(ctx, `
		UPDATE work_schedule_blocks
		SET booked_count = GREATEST(booked_count - 1, 0),
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("release block: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlockNotFound
	}
	return nil
}
