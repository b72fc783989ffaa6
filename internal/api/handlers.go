package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medtrack/hospital-booking/internal/booking"
)

func createAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		var req CreateAppointmentRequest
		if !decodeValid(w, r, &req) {
			return
		}

		// Patients book for themselves; admins may book on a patient's
		// behalf. Doctors do not create bookings.
		var patientID uuid.UUID
		switch actor.Role {
		case booking.RolePatient:
			patientID = actor.ID
		case booking.RoleAdmin:
			if req.PatientID == "" {
				writeError(w, http.StatusBadRequest, "missing_patient_id", "patient_id is required when booking as admin")
				return
			}
			var err error
			patientID, err = uuid.Parse(req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
		default:
			writeError(w, http.StatusForbidden, "forbidden", "only patients and admins may book appointments")
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		serviceID, err := uuid.Parse(req.ServiceID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
			return
		}
		blockID, err := uuid.Parse(req.BlockID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_block_id", "block_id must be a valid UUID")
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), booking.CreateParams{
			PatientID: patientID,
			DoctorID:  doctorID,
			ServiceID: serviceID,
			BlockID:   blockID,
			Note:      req.Note,
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		detail, err := svc.GetAppointment(r.Context(), actor, id)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentDetailResponse(detail))
	}
}

func listAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		f := booking.AppointmentFilter{
			Limit:  queryInt(r, "limit", 20),
			Offset: queryInt(r, "offset", 0),
		}

		if v := r.URL.Query().Get("status"); v != "" {
			f.Status = booking.Status(v)
		}
		if v := r.URL.Query().Get("date"); v != "" {
			day, err := time.Parse("2006-01-02", v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			f.Date = day
		}
		if v := r.URL.Query().Get("patient_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			f.PatientID = id
		}
		if v := r.URL.Query().Get("doctor_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			f.DoctorID = id
		}

		appointments, err := svc.ListAppointments(r.Context(), actor, f)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := make([]AppointmentDetailResponse, 0, len(appointments))
		for i := range appointments {
			resp = append(resp, toAppointmentDetailResponse(&appointments[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func updateStatusHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req UpdateStatusRequest
		if !decodeValid(w, r, &req) {
			return
		}

		appt, err := svc.UpdateStatus(r.Context(), actor, id, booking.Status(req.Status))
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Cancel(r.Context(), actor, id)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func startTeleconsultationHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		apptID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment id must be a valid UUID")
			return
		}

		session, err := svc.StartTeleconsultation(r.Context(), actor, apptID)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSessionResponse(session))
	}
}

func endTeleconsultationHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		apptID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment id must be a valid UUID")
			return
		}

		var req EndTeleconsultationRequest
		if r.ContentLength > 0 {
			if !decodeValid(w, r, &req) {
				return
			}
		}

		session, err := svc.EndTeleconsultation(r.Context(), actor, apptID, req.DoctorNotes)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSessionResponse(session))
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
