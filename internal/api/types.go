package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/hospital-booking/internal/booking"
	"github.com/medtrack/hospital-booking/internal/schedule"
)

type CreateAppointmentRequest struct {
	DoctorID  string  `json:"doctor_id" validate:"required,uuid"`
	ServiceID string  `json:"service_id" validate:"required,uuid"`
	BlockID   string  `json:"block_id" validate:"required,uuid"`
	PatientID string  `json:"patient_id" validate:"omitempty,uuid"` // admin only
	Note      *string `json:"note" validate:"omitempty,max=2000"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type CreateBlockRequest struct {
	DoctorID string    `json:"doctor_id" validate:"omitempty,uuid"` // admin only; doctors publish their own
	StartAt  time.Time `json:"start_at" validate:"required"`
	EndAt    time.Time `json:"end_at" validate:"required"`
	Capacity int       `json:"capacity" validate:"required,min=1"`
}

type EndTeleconsultationRequest struct {
	DoctorNotes *string `json:"doctor_notes" validate:"omitempty,max=5000"`
}

type AppointmentResponse struct {
	ID            uuid.UUID `json:"id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	ServiceID     uuid.UUID `json:"service_id"`
	BlockID       uuid.UUID `json:"block_id"`
	VisitAt       time.Time `json:"visit_at"`
	QueuePosition int       `json:"queue_position"`
	Status        string    `json:"status"`
	Note          *string   `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		ServiceID:     a.ServiceID,
		BlockID:       a.BlockID,
		VisitAt:       a.VisitAt,
		QueuePosition: a.QueuePosition,
		Status:        string(a.Status),
		Note:          a.Note,
		CreatedAt:     a.CreatedAt,
	}
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	PatientName string `json:"patient_name"`
	DoctorName  string `json:"doctor_name"`
	ServiceName string `json:"service_name"`
}

func toAppointmentDetailResponse(d *booking.AppointmentDetail) AppointmentDetailResponse {
	resp := AppointmentDetailResponse{
		AppointmentResponse: toAppointmentResponse(&d.Appointment),
	}
	if d.Patient != nil {
		resp.PatientName = d.Patient.Name
	}
	if d.Doctor != nil {
		resp.DoctorName = d.Doctor.Name
	}
	if d.Service != nil {
		resp.ServiceName = d.Service.Name
	}
	return resp
}

type BlockResponse struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	Capacity    int       `json:"capacity"`
	BookedCount int       `json:"booked_count"`
	Remaining   int       `json:"remaining"`
}

func toBlockResponse(b *schedule.WorkScheduleBlock) BlockResponse {
	return BlockResponse{
		ID:          b.ID,
		DoctorID:    b.DoctorID,
		StartAt:     b.StartAt,
		EndAt:       b.EndAt,
		Capacity:    b.Capacity,
		BookedCount: b.BookedCount,
		Remaining:   b.Remaining(),
	}
}

type SessionResponse struct {
	ID            uuid.UUID  `json:"id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	CallRef       *string    `json:"call_ref,omitempty"`
	Status        string     `json:"status"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	DoctorNotes   *string    `json:"doctor_notes,omitempty"`
}

func toSessionResponse(s *booking.TeleconsultationSession) SessionResponse {
	return SessionResponse{
		ID:            s.ID,
		AppointmentID: s.AppointmentID,
		CallRef:       s.CallRef,
		Status:        string(s.Status),
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		DoctorNotes:   s.DoctorNotes,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
