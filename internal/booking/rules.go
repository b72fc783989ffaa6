package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/hospital-booking/internal/config"
	"github.com/medtrack/hospital-booking/internal/schedule"
)

type RejectReason string

const (
	RejectNoCapacity          RejectReason = "no_capacity"
	RejectDoctorMismatch      RejectReason = "doctor_mismatch"
	RejectTooSoon             RejectReason = "too_soon"
	RejectTooFar              RejectReason = "too_far"
	RejectInPast              RejectReason = "in_past"
	RejectOutsideWorkingHours RejectReason = "outside_working_hours"
	RejectUnavailableDay      RejectReason = "unavailable_day"
	RejectDoctorDoubleBooked  RejectReason = "doctor_double_booked"
	RejectPatientDoubleBooked RejectReason = "patient_double_booked"
	RejectPatientTooClose     RejectReason = "patient_too_close"
	RejectDailyLimitExceeded  RejectReason = "daily_limit_exceeded"
)

// RejectionError is a business-rule rejection. It carries the specific reason
// so the API layer can return a machine-readable code; it is never retried.
type RejectionError struct {
	Reason  RejectReason
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("booking rejected (%s): %s", e.Reason, e.Message)
}

func reject(reason RejectReason, format string, args ...any) error {
	return &RejectionError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Rules validates prospective bookings. Checks run in a fixed order and fail
// fast on the first violation; Validate performs no mutation.
type Rules struct {
	availability *Availability
	cfg          config.BookingRules
}

func NewRules(availability *Availability, cfg config.BookingRules) *Rules {
	return &Rules{availability: availability, cfg: cfg}
}

// Validate checks a prospective booking of block by patient with doctor at
// the block's start time, as seen from now.
func (r *Rules) Validate(ctx context.Context, patientID, doctorID uuid.UUID, block *schedule.WorkScheduleBlock, now time.Time) error {
	visitAt := block.StartAt

	if block.Remaining() <= 0 {
		return reject(RejectNoCapacity, "schedule block %s is fully booked", block.ID)
	}

	if block.DoctorID != doctorID {
		return reject(RejectDoctorMismatch, "schedule block belongs to a different doctor")
	}

	if err := r.validateTime(visitAt, now); err != nil {
		return err
	}

	free, err := r.availability.IsDoctorFree(ctx, doctorID, visitAt)
	if err != nil {
		return err
	}
	if !free {
		return reject(RejectDoctorDoubleBooked, "doctor already has an appointment at %s", visitAt.Format(time.RFC3339))
	}

	exact, err := r.availability.PatientConflicts(ctx, patientID, visitAt, 0)
	if err != nil {
		return err
	}
	if len(exact) > 0 {
		return reject(RejectPatientDoubleBooked, "patient already has an appointment at %s", visitAt.Format(time.RFC3339))
	}

	near, err := r.availability.PatientConflicts(ctx, patientID, visitAt, r.cfg.PatientSpacing)
	if err != nil {
		return err
	}
	if len(near) > 0 {
		return reject(RejectPatientTooClose, "patient has another appointment within %s", r.cfg.PatientSpacing)
	}

	count, err := r.availability.DailyCount(ctx, patientID, visitAt)
	if err != nil {
		return err
	}
	if count >= r.cfg.DailyLimit {
		return reject(RejectDailyLimitExceeded, "patient already has %d appointments that day", count)
	}

	return nil
}

// validateTime applies the advance-notice, horizon, working-hours and weekday
// rules. There is no fallback: an out-of-hours request is rejected, never
// rounded.
func (r *Rules) validateTime(visitAt, now time.Time) error {
	if visitAt.Before(now.Add(r.cfg.MinAdvance)) {
		return reject(RejectTooSoon, "appointments must be booked at least %s in advance", r.cfg.MinAdvance)
	}

	if visitAt.After(now.Add(r.cfg.MaxHorizon)) {
		return reject(RejectTooFar, "appointments cannot be booked more than %s in advance", r.cfg.MaxHorizon)
	}

	ny, nm, nd := now.Date()
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, now.Location())
	vy, vm, vd := visitAt.Date()
	visitDay := time.Date(vy, vm, vd, 0, 0, 0, 0, visitAt.Location())
	if visitDay.Before(today) {
		return reject(RejectInPast, "cannot book appointments in the past")
	}

	minutes := visitAt.Hour()*60 + visitAt.Minute()
	if minutes < r.cfg.WorkdayStart || minutes > r.cfg.WorkdayEnd {
		return reject(RejectOutsideWorkingHours, "appointments must be between %s and %s",
			clockString(r.cfg.WorkdayStart), clockString(r.cfg.WorkdayEnd))
	}

	for _, day := range r.cfg.ClosedWeekdays {
		if visitAt.Weekday() == day {
			return reject(RejectUnavailableDay, "appointments are not available on %s", day)
		}
	}

	return nil
}

func clockString(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
