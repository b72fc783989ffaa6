package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusConfirmed            Status = "confirmed"
	StatusCompleted            Status = "completed"
	StatusCancelled            Status = "cancelled"
)

// KnownStatus reports whether s is a recognized appointment status.
func KnownStatus(s Status) bool {
	switch s {
	case StatusAwaitingConfirmation, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Actor is the already-authorized caller. Roles are derived once by the
// identity layer; the core never re-derives them.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) CanManageAppointments() bool {
	return a.Role == RoleDoctor || a.Role == RoleAdmin
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Title     *string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type MedicalService struct {
	ID              uuid.UUID
	Name            string
	Price           int64
	DurationMinutes int
	Remote          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Appointment is a patient's reservation against a WorkScheduleBlock.
// VisitAt is copied from the block's start at creation time; QueuePosition is
// the post-increment booked_count of the block.
type Appointment struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	DoctorID      uuid.UUID
	ServiceID     uuid.UUID
	BlockID       uuid.UUID
	VisitAt       time.Time
	QueuePosition int
	Status        Status
	Note          *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionEnded      SessionStatus = "ended"
)

// TeleconsultationSession is the 1:1 remote-consultation record for an
// appointment whose service is remote.
type TeleconsultationSession struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	CallRef       *string
	Status        SessionStatus
	StartedAt     *time.Time
	EndedAt       *time.Time
	DoctorNotes   *string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Patient *Patient
	Doctor  *Doctor
	Service *MedicalService
}
