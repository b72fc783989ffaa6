package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSessionNotFound     = errors.New("teleconsultation session not found")

	// ErrSlotTaken is the storage-level uniqueness guarantee firing: another
	// non-cancelled appointment for the same doctor or patient at the same
	// time won the race.
	ErrSlotTaken = errors.New("time slot already taken")

	ErrAlreadyCancelled     = errors.New("appointment is already cancelled")
	ErrSessionExists        = errors.New("teleconsultation session already exists")
	ErrSessionNotInProgress = errors.New("teleconsultation session is not in progress")
)

// AppointmentFilter narrows ListAppointments. Zero values mean "no filter".
type AppointmentFilter struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	Status    Status
	Date      time.Time
	Limit     int
	Offset    int
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetServiceByID(ctx context.Context, id uuid.UUID) (*MedicalService, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentDetail, error)

	// Availability reads. All reflect committed state at call time; none of
	// them caches across a booking.
	CountDoctorAt(ctx context.Context, doctorID uuid.UUID, visitAt time.Time) (int, error)
	PatientAppointmentsNear(ctx context.Context, patientID uuid.UUID, visitAt time.Time, window time.Duration) ([]Appointment, error)
	CountPatientOnDate(ctx context.Context, patientID uuid.UUID, day time.Time) (int, error)

	// CreateReserved inserts the appointment and increments the block's
	// booked_count in one transaction. The appointment's QueuePosition is
	// set from the post-increment counter.
	CreateReserved(ctx context.Context, appt *Appointment) (*Appointment, error)

	// SetStatus updates the status of a non-terminal appointment.
	SetStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error)

	// CancelReleased marks the appointment cancelled and returns one unit of
	// capacity to its block in one transaction.
	CancelReleased(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Reminder worker sweep.
	FindOverdueAwaiting(ctx context.Context, before time.Time) ([]Appointment, error)

	// Teleconsultation sessions.
	CreateSession(ctx context.Context, s *TeleconsultationSession) (*TeleconsultationSession, error)
	GetSessionByAppointment(ctx context.Context, appointmentID uuid.UUID) (*TeleconsultationSession, error)
	EndSession(ctx context.Context, appointmentID uuid.UUID, notes *string) (*TeleconsultationSession, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
