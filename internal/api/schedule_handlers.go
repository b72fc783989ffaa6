package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/medtrack/hospital-booking/internal/booking"
	"github.com/medtrack/hospital-booking/internal/schedule"
)

func createBlockHandler(store schedule.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}

		var req CreateBlockRequest
		if !decodeValid(w, r, &req) {
			return
		}

		// Doctors publish their own schedule; admins publish for any doctor.
		var doctorID uuid.UUID
		switch actor.Role {
		case booking.RoleDoctor:
			doctorID = actor.ID
		case booking.RoleAdmin:
			if req.DoctorID == "" {
				writeError(w, http.StatusBadRequest, "missing_doctor_id", "doctor_id is required when publishing as admin")
				return
			}
			var err error
			doctorID, err = uuid.Parse(req.DoctorID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
		default:
			writeError(w, http.StatusForbidden, "forbidden", "only doctors and admins may publish schedule blocks")
			return
		}

		block, err := store.CreateBlock(r.Context(), &schedule.WorkScheduleBlock{
			DoctorID: doctorID,
			StartAt:  req.StartAt,
			EndAt:    req.EndAt,
			Capacity: req.Capacity,
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBlockResponse(block))
	}
}

func listBlocksHandler(store schedule.Store, now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f schedule.BlockFilter

		if v := r.URL.Query().Get("doctor_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			f.DoctorID = id
		}
		if v := r.URL.Query().Get("date"); v != "" {
			day, err := time.Parse("2006-01-02", v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			f.Date = day
		}
		f.AvailableOnly = r.URL.Query().Get("available_only") == "true"

		// Booking callers only see today-forward; doctors and admins see
		// their full history.
		actor, ok := actorFrom(r)
		if !ok || actor.Role == booking.RolePatient {
			f.FromDate = now()
		}

		blocks, err := store.ListBlocks(r.Context(), f)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		resp := make([]BlockResponse, 0, len(blocks))
		for i := range blocks {
			resp = append(resp, toBlockResponse(&blocks[i]))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
