package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BlockFilter narrows ListBlocks. Zero values mean "no filter".
type BlockFilter struct {
	DoctorID      uuid.UUID
	Date          time.Time // match blocks on this calendar day
	FromDate      time.Time // match blocks on or after this day
	AvailableOnly bool      // only blocks with remaining capacity
}

// Store holds published work-schedule blocks and their booking counters.
type Store interface {
	CreateBlock(ctx context.Context, block *WorkScheduleBlock) (*WorkScheduleBlock, error)
	GetBlock(ctx context.Context, id uuid.UUID) (*WorkScheduleBlock, error)
	GetRemaining(ctx context.Context, id uuid.UUID) (int, error)
	ListBlocks(ctx context.Context, f BlockFilter) ([]WorkScheduleBlock, error)

	// Reserve atomically increments booked_count iff it is below capacity
	// and returns the post-increment value, which doubles as the queue
	// position of the booking that won it.
	Reserve(ctx context.Context, id uuid.UUID) (int, error)

	// Release decrements booked_count, floored at zero.
	Release(ctx context.Context, id uuid.UUID) error
}
