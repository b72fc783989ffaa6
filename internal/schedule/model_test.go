package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var now = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

func validBlock() *WorkScheduleBlock {
	start := now.Add(24 * time.Hour)
	return &WorkScheduleBlock{
		ID:       uuid.New(),
		DoctorID: uuid.New(),
		StartAt:  start,
		EndAt:    start.Add(3 * time.Hour),
		Capacity: 10,
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(b *WorkScheduleBlock)
		want   error
	}{
		{"valid", func(b *WorkScheduleBlock) {}, nil},
		{"start equals end", func(b *WorkScheduleBlock) { b.EndAt = b.StartAt }, ErrInvalidRange},
		{"start after end", func(b *WorkScheduleBlock) { b.EndAt = b.StartAt.Add(-time.Hour) }, ErrInvalidRange},
		{"zero capacity", func(b *WorkScheduleBlock) { b.Capacity = 0 }, ErrInvalidCapacity},
		{"negative capacity", func(b *WorkScheduleBlock) { b.Capacity = -1 }, ErrInvalidCapacity},
		{"yesterday", func(b *WorkScheduleBlock) {
			b.StartAt = now.Add(-24 * time.Hour)
			b.EndAt = b.StartAt.Add(time.Hour)
		}, ErrPastDate},
		{"earlier today", func(b *WorkScheduleBlock) {
			// Same calendar day counts as valid even if the hour has passed.
			b.StartAt = now.Add(-2 * time.Hour)
			b.EndAt = b.StartAt.Add(time.Hour)
		}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := validBlock()
			tc.mutate(b)
			if err := b.Validate(now); !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRemaining(t *testing.T) {
	b := validBlock()
	b.Capacity = 10
	b.BookedCount = 3
	if got := b.Remaining(); got != 7 {
		t.Fatalf("Remaining() = %d, want 7", got)
	}

	b.BookedCount = 10
	if got := b.Remaining(); got != 0 {
		t.Fatalf("Remaining() = %d, want 0", got)
	}
}

func TestDate(t *testing.T) {
	b := validBlock()
	b.StartAt = time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)

	want := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	if got := b.Date(); !got.Equal(want) {
		t.Fatalf("Date() = %s, want %s", got, want)
	}
}
