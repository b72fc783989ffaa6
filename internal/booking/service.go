package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medtrack/hospital-booking/internal/config"
	redisclient "github.com/medtrack/hospital-booking/internal/redis"
	"github.com/medtrack/hospital-booking/internal/schedule"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentStatusSet = "APPOINTMENT_STATUS_SET"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventOverdueCancelled     = "APPOINTMENT_OVERDUE_CANCELLED"
	EventTeleconsultStarted   = "TELECONSULT_STARTED"
	EventTeleconsultEnded     = "TELECONSULT_ENDED"
)

var (
	ErrInvalidStatus = errors.New("unrecognized appointment status")
	ErrForbidden     = errors.New("actor is not allowed to perform this operation")

	// ErrTerminalStatus rejects transitions out of completed or cancelled.
	ErrTerminalStatus = errors.New("appointment is in a terminal status")

	// ErrCancelViaStatus rejects setting cancelled through the status path:
	// capacity release only happens through Cancel.
	ErrCancelViaStatus = errors.New("use the cancel operation to cancel an appointment")

	ErrTooLateToCancel = errors.New("appointments can only be cancelled up to the cutoff before the visit")
	ErrBlockBusy       = errors.New("schedule block is currently being booked, please retry")
)

type Service struct {
	repo   Repository
	store  schedule.Store
	rules  *Rules
	locker redisclient.Locker
	cfg    config.BookingRules
	logger zerolog.Logger
	nowFn  func() time.Time
}

func NewService(repo Repository, store schedule.Store, locker redisclient.Locker, cfg config.BookingRules, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		store:  store,
		rules:  NewRules(NewAvailability(repo), cfg),
		locker: locker,
		cfg:    cfg,
		logger: logger,
		nowFn:  time.Now,
	}
}

type CreateParams struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	ServiceID uuid.UUID
	BlockID   uuid.UUID
	Note      *string
}

// CreateAppointment validates the booking, then reserves a capacity unit and
// persists the appointment as one atomic unit. A per-block lock keeps
// concurrent requests for the same block from stampeding the row; the
// database constraints remain the real guarantee.
func (s *Service) CreateAppointment(ctx context.Context, p CreateParams) (*Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, p.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.repo.GetDoctorByID(ctx, p.DoctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if _, err := s.repo.GetServiceByID(ctx, p.ServiceID); err != nil {
		if errors.Is(err, ErrServiceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load service: %w", err)
	}

	block, err := s.store.GetBlock(ctx, p.BlockID)
	if err != nil {
		return nil, fmt.Errorf("load schedule block: %w", err)
	}

	if err := s.rules.Validate(ctx, p.PatientID, p.DoctorID, block, s.nowFn()); err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.locker.WithBlockLock(ctx, block.ID, func(lockCtx context.Context) error {
		appt, err := s.repo.CreateReserved(lockCtx, &Appointment{
			PatientID: p.PatientID,
			DoctorID:  p.DoctorID,
			ServiceID: p.ServiceID,
			BlockID:   block.ID,
			VisitAt:   block.StartAt,
			Note:      p.Note,
		})
		if err != nil {
			return err
		}

		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"block_id":       block.ID.String(),
			"patient_id":     p.PatientID.String(),
			"doctor_id":      p.DoctorID.String(),
			"visit_at":       block.StartAt,
			"queue_position": appt.QueuePosition,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBlockBusy
		}
		return nil, err
	}

	return created, nil
}

// UpdateStatus sets the appointment status at a doctor or admin's request.
// Any recognized status is accepted except cancelled, which must go through
// Cancel; transitions out of a terminal status are rejected.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, to Status) (*Appointment, error) {
	if !KnownStatus(to) {
		return nil, ErrInvalidStatus
	}
	if !actor.CanManageAppointments() {
		return nil, ErrForbidden
	}
	if to == StatusCancelled {
		return nil, ErrCancelViaStatus
	}

	updated, err := s.repo.SetStatus(ctx, id, to)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentStatusSet, map[string]any{
		"status":   string(to),
		"actor_id": actor.ID.String(),
		"role":     string(actor.Role),
	})

	return updated, nil
}

// Cancel marks the appointment cancelled and returns its capacity unit to the
// block, provided the cutoff window has not been reached. Patients may only
// cancel their own appointments.
func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if actor.Role == RolePatient && appt.PatientID != actor.ID {
		return nil, ErrForbidden
	}

	if appt.Status == StatusCancelled {
		return nil, ErrAlreadyCancelled
	}

	now := s.nowFn()
	if appt.VisitAt.Sub(now) < s.cfg.CancelCutoff {
		return nil, ErrTooLateToCancel
	}

	cancelled, err := s.repo.CancelReleased(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, cancelled.ID, EventAppointmentCancelled, map[string]any{
		"actor_id": actor.ID.String(),
		"role":     string(actor.Role),
		"visit_at": cancelled.VisitAt,
	})

	return cancelled, nil
}

// StartTeleconsultation opens the remote session for an appointment.
func (s *Service) StartTeleconsultation(ctx context.Context, actor Actor, appointmentID uuid.UUID) (*TeleconsultationSession, error) {
	if !actor.CanManageAppointments() {
		return nil, ErrForbidden
	}

	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return nil, ErrTerminalStatus
	}

	now := s.nowFn()
	callRef := fmt.Sprintf("CALL_%s_%d", appt.ID, now.Unix())

	session, err := s.repo.CreateSession(ctx, &TeleconsultationSession{
		AppointmentID: appt.ID,
		CallRef:       &callRef,
		Status:        SessionInProgress,
		StartedAt:     &now,
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventTeleconsultStarted, map[string]any{
		"call_ref": callRef,
		"actor_id": actor.ID.String(),
	})

	return session, nil
}

// EndTeleconsultation closes the session and completes the owning
// appointment; the two writes are one transaction in the repository.
func (s *Service) EndTeleconsultation(ctx context.Context, actor Actor, appointmentID uuid.UUID, notes *string) (*TeleconsultationSession, error) {
	if !actor.CanManageAppointments() {
		return nil, ErrForbidden
	}

	session, err := s.repo.EndSession(ctx, appointmentID, notes)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, appointmentID, EventTeleconsultEnded, map[string]any{
		"actor_id": actor.ID.String(),
	})

	return session, nil
}

// CancelOverdueAppointments is called periodically by the reminder worker.
// Appointments still awaiting confirmation after their visit date has passed
// are cancelled and their capacity released.
func (s *Service) CancelOverdueAppointments(ctx context.Context) error {
	now := s.nowFn()
	overdue, err := s.repo.FindOverdueAwaiting(ctx, now)
	if err != nil {
		return fmt.Errorf("find overdue appointments: %w", err)
	}

	for _, appt := range overdue {
		if _, err := s.repo.CancelReleased(ctx, appt.ID); err != nil {
			if errors.Is(err, ErrAlreadyCancelled) || errors.Is(err, ErrAppointmentNotFound) {
				continue
			}
			s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to cancel overdue appointment")
			continue
		}
		s.logEvent(ctx, appt.ID, EventOverdueCancelled, map[string]any{
			"visit_at": appt.VisitAt,
		})
	}

	return nil
}

// GetAppointment retrieves a fully hydrated appointment, scoped to what the
// actor may see.
func (s *Service) GetAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	switch actor.Role {
	case RolePatient:
		if detail.PatientID != actor.ID {
			return nil, ErrForbidden
		}
	case RoleDoctor:
		if detail.DoctorID != actor.ID {
			return nil, ErrForbidden
		}
	}

	return detail, nil
}

// ListAppointments returns appointments visible to the actor: patients see
// their own, doctors their own schedule, admins everything.
func (s *Service) ListAppointments(ctx context.Context, actor Actor, f AppointmentFilter) ([]AppointmentDetail, error) {
	switch actor.Role {
	case RolePatient:
		f.PatientID = actor.ID
	case RoleDoctor:
		f.DoctorID = actor.ID
	}

	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	appointments, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appointments, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.nowFn(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
