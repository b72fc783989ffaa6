package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medtrack/hospital-booking/internal/schedule"
)

const uniqueViolation = "23505"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Title,
		&d.Specialty,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanService(row pgx.Row) (*MedicalService, error) {
	var s MedicalService

	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Price,
		&s.DurationMinutes,
		&s.Remote,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}

	return &s, nil
}

const appointmentColumns = `id, patient_id, doctor_id, service_id, block_id, visit_at, queue_position, status, note, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.ServiceID,
		&a.BlockID,
		&a.VisitAt,
		&a.QueuePosition,
		&a.Status,
		&a.Note,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanSession(row pgx.Row) (*TeleconsultationSession, error) {
	var s TeleconsultationSession

	err := row.Scan(
		&s.ID,
		&s.AppointmentID,
		&s.CallRef,
		&s.Status,
		&s.StartedAt,
		&s.EndedAt,
		&s.DoctorNotes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return &s, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, title, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetServiceByID(ctx context.Context, id uuid.UUID) (*MedicalService, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, price, duration_minutes, remote, created_at, updated_at
		FROM services
		WHERE id = $1
	`, id)
	return scanService(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &AppointmentDetail{Appointment: *appt}

	if detail.Patient, err = r.GetPatientByID(ctx, appt.PatientID); err != nil {
		return nil, err
	}
	if detail.Doctor, err = r.GetDoctorByID(ctx, appt.DoctorID); err != nil {
		return nil, err
	}
	if detail.Service, err = r.GetServiceByID(ctx, appt.ServiceID); err != nil {
		return nil, err
	}

	return detail, nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, f AppointmentFilter) ([]AppointmentDetail, error) {
	query := `
		SELECT a.id, a.patient_id, a.doctor_id, a.service_id, a.block_id, a.visit_at,
		       a.queue_position, a.status, a.note, a.created_at, a.updated_at,
		       p.id, p.name, p.email, p.phone, p.created_at, p.updated_at,
		       d.id, d.name, d.title, d.specialty, d.created_at, d.updated_at,
		       s.id, s.name, s.price, s.duration_minutes, s.remote, s.created_at, s.updated_at
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		JOIN doctors d ON d.id = a.doctor_id
		JOIN services s ON s.id = a.service_id
		WHERE 1=1`
	var args []any

	if f.PatientID != uuid.Nil {
		args = append(args, f.PatientID)
		query += fmt.Sprintf(" AND a.patient_id = $%d", len(args))
	}
	if f.DoctorID != uuid.Nil {
		args = append(args, f.DoctorID)
		query += fmt.Sprintf(" AND a.doctor_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND a.status = $%d", len(args))
	}
	if !f.Date.IsZero() {
		args = append(args, f.Date)
		query += fmt.Sprintf(" AND a.visit_at::date = $%d::date", len(args))
	}

	query += " ORDER BY a.visit_at DESC"

	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		var (
			detail AppointmentDetail
			p      Patient
			d      Doctor
			s      MedicalService
		)
		err := rows.Scan(
			&detail.ID, &detail.PatientID, &detail.DoctorID, &detail.ServiceID, &detail.BlockID,
			&detail.VisitAt, &detail.QueuePosition, &detail.Status, &detail.Note,
			&detail.CreatedAt, &detail.UpdatedAt,
			&p.ID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt,
			&d.ID, &d.Name, &d.Title, &d.Specialty, &d.CreatedAt, &d.UpdatedAt,
			&s.ID, &s.Name, &s.Price, &s.DurationMinutes, &s.Remote, &s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		detail.Patient = &p
		detail.Doctor = &d
		detail.Service = &s
		result = append(result, detail)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CountDoctorAt(ctx context.Context, doctorID uuid.UUID, visitAt time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND visit_at = $2
		  AND status <> 'cancelled'
	`, doctorID, visitAt).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count doctor appointments: %w", err)
	}
	return count, nil
}

func (r *PgRepository) PatientAppointmentsNear(ctx context.Context, patientID uuid.UUID, visitAt time.Time, window time.Duration) ([]Appointment, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if window <= 0 {
		rows, err = r.pool.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE patient_id = $1
			  AND visit_at = $2
			  AND status <> 'cancelled'
		`, patientID, visitAt)
	} else {
		// Same calendar day and strictly inside the window. Appointments
		// exactly window apart do not conflict.
		rows, err = r.pool.Query(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE patient_id = $1
			  AND visit_at::date = $2::date
			  AND abs(extract(epoch from (visit_at - $2))) < $3
			  AND status <> 'cancelled'
		`, patientID, visitAt, window.Seconds())
	}
	if err != nil {
		return nil, fmt.Errorf("patient appointments near: %w", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CountPatientOnDate(ctx context.Context, patientID uuid.UUID, day time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE patient_id = $1
		  AND visit_at::date = $2::date
		  AND status <> 'cancelled'
	`, patientID, day).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count patient appointments: %w", err)
	}
	return count, nil
}

// CreateReserved increments the block counter and inserts the appointment as
// one transaction. Losing either race (capacity or slot uniqueness) rolls the
// whole unit back.
func (r *PgRepository) CreateReserved(ctx context.Context, appt *Appointment) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	bookedCount, err := schedule.ReserveTx(ctx, tx, appt.BlockID)
	if err != nil {
		return nil, err
	}

	id := appt.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, service_id, block_id, visit_at, queue_position, status, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, appt.PatientID, appt.DoctorID, appt.ServiceID, appt.BlockID,
		appt.VisitAt, bookedCount, StatusAwaitingConfirmation, appt.Note)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}

	return created, nil
}

func (r *PgRepository) SetStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status NOT IN ('completed', 'cancelled')
		RETURNING `+appointmentColumns+`
	`, id, to)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Either missing or terminal; tell the caller which.
			if _, getErr := r.GetAppointmentByID(ctx, id); getErr == nil {
				return nil, ErrTerminalStatus
			}
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return updated, nil
}

// CancelReleased flips the appointment to cancelled and returns its capacity
// unit to the block as one transaction. The conditional UPDATE makes a
// concurrent double-cancel release capacity only once.
func (r *PgRepository) CancelReleased(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'cancelled'
		RETURNING `+appointmentColumns+`
	`, id)

	cancelled, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			if _, getErr := r.GetAppointmentByID(ctx, id); getErr == nil {
				return nil, ErrAlreadyCancelled
			}
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if err := schedule.ReleaseTx(ctx, tx, cancelled.BlockID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel tx: %w", err)
	}

	return cancelled, nil
}

func (r *PgRepository) FindOverdueAwaiting(ctx context.Context, before time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'awaiting_confirmation'
		  AND visit_at::date < $1::date
	`, before)
	if err != nil {
		return nil, fmt.Errorf("find overdue appointments: %w", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateSession(ctx context.Context, s *TeleconsultationSession) (*TeleconsultationSession, error) {
	id := s.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO teleconsultation_sessions (id, appointment_id, call_ref, status, started_at, doctor_notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, appointment_id, call_ref, status, started_at, ended_at, doctor_notes
	`, id, s.AppointmentID, s.CallRef, s.Status, s.StartedAt, s.DoctorNotes)

	created, err := scanSession(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrSessionExists
		}
		return nil, fmt.Errorf("insert teleconsultation session: %w", err)
	}

	return created, nil
}

func (r *PgRepository) GetSessionByAppointment(ctx context.Context, appointmentID uuid.UUID) (*TeleconsultationSession, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, appointment_id, call_ref, status, started_at, ended_at, doctor_notes
		FROM teleconsultation_sessions
		WHERE appointment_id = $1
	`, appointmentID)
	return scanSession(row)
}

// EndSession closes an in-progress session and completes the owning
// appointment as one transaction.
func (r *PgRepository) EndSession(ctx context.Context, appointmentID uuid.UUID, notes *string) (*TeleconsultationSession, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin end-session tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE teleconsultation_sessions
		SET status = 'ended',
		    ended_at = now(),
		    doctor_notes = COALESCE($2, doctor_notes)
		WHERE appointment_id = $1
		  AND status = 'in_progress'
		RETURNING id, appointment_id, call_ref, status, started_at, ended_at, doctor_notes
	`, appointmentID, notes)

	ended, err := scanSession(row)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			if _, getErr := r.GetSessionByAppointment(ctx, appointmentID); getErr == nil {
				return nil, ErrSessionNotInProgress
			}
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'completed',
		    updated_at = now()
		WHERE id = $1
	`, appointmentID); err != nil {
		return nil, fmt.Errorf("complete appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit end-session tx: %w", err)
	}

	return ended, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
