package schedule

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidRange     = errors.New("block start must be before block end")
	ErrInvalidCapacity  = errors.New("block capacity must be positive")
	ErrPastDate         = errors.New("block date is in the past")
	ErrDuplicateBlock   = errors.New("doctor already has a block at this start time")
	ErrBlockNotFound    = errors.New("schedule block not found")
	ErrCapacityExceeded = errors.New("schedule block is fully booked")
)

// WorkScheduleBlock is a doctor-published, capacity-bounded time window
// available for booking. BookedCount never exceeds Capacity; the conditional
// update in Reserve is what holds that under concurrency.
type WorkScheduleBlock struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	StartAt     time.Time
	EndAt       time.Time
	Capacity    int
	BookedCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (b *WorkScheduleBlock) Remaining() int {
	return b.Capacity - b.BookedCount
}

// Date returns the calendar day of the block, midnight in the block's zone.
func (b *WorkScheduleBlock) Date() time.Time {
	y, m, d := b.StartAt.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, b.StartAt.Location())
}

// Validate checks the block against creation rules. Uniqueness of
// (doctor, start time) is left to the store.
func (b *WorkScheduleBlock) Validate(now time.Time) error {
	if !b.StartAt.Before(b.EndAt) {
		return ErrInvalidRange
	}
	if b.Capacity <= 0 {
		return ErrInvalidCapacity
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if b.Date().Before(today) {
		return ErrPastDate
	}
	return nil
}
