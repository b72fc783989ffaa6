package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Availability answers conflict questions from committed appointment state.
// All methods are read-only; callers must not cache results across a booking.
type Availability struct {
	repo Repository
}

func NewAvailability(repo Repository) *Availability {
	return &Availability{repo: repo}
}

// IsDoctorFree reports whether the doctor has no non-cancelled appointment at
// exactly visitAt.
func (a *Availability) IsDoctorFree(ctx context.Context, doctorID uuid.UUID, visitAt time.Time) (bool, error) {
	count, err := a.repo.CountDoctorAt(ctx, doctorID, visitAt)
	if err != nil {
		return false, fmt.Errorf("check doctor availability: %w", err)
	}
	return count == 0, nil
}

// PatientConflicts returns the patient's non-cancelled appointments on the
// same day strictly closer than window to visitAt. A zero window matches only
// the exact time; two appointments exactly window apart do not conflict.
func (a *Availability) PatientConflicts(ctx context.Context, patientID uuid.UUID, visitAt time.Time, window time.Duration) ([]Appointment, error) {
	appts, err := a.repo.PatientAppointmentsNear(ctx, patientID, visitAt, window)
	if err != nil {
		return nil, fmt.Errorf("check patient conflicts: %w", err)
	}
	return appts, nil
}

// DailyCount returns the number of the patient's non-cancelled appointments
// on the given calendar day.
func (a *Availability) DailyCount(ctx context.Context, patientID uuid.UUID, day time.Time) (int, error) {
	count, err := a.repo.CountPatientOnDate(ctx, patientID, day)
	if err != nil {
		return 0, fmt.Errorf("count daily appointments: %w", err)
	}
	return count, nil
}
