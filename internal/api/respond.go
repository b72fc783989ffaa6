package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/medtrack/hospital-booking/internal/booking"
	"github.com/medtrack/hospital-booking/internal/schedule"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// decodeValid decodes the JSON body into v and runs struct validation,
// reporting field-level detail on failure. Returns false once the error has
// been written.
func decodeValid(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", verrs[0].Error())
			return false
		}
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

// handleDomainError maps core failures to the caller-facing taxonomy.
// Business-rule rejections keep their specific reason code; lost races are
// 409 and the one case worth a client retry.
func handleDomainError(w http.ResponseWriter, err error) {
	var rejection *booking.RejectionError
	if errors.As(err, &rejection) {
		writeError(w, http.StatusUnprocessableEntity, string(rejection.Reason), rejection.Message)
		return
	}

	switch {
	// Not found
	case errors.Is(err, booking.ErrPatientNotFound),
		errors.Is(err, booking.ErrDoctorNotFound),
		errors.Is(err, booking.ErrServiceNotFound),
		errors.Is(err, booking.ErrAppointmentNotFound),
		errors.Is(err, booking.ErrSessionNotFound),
		errors.Is(err, schedule.ErrBlockNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())

	// Authorization
	case errors.Is(err, booking.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())

	// Lost races on capacity or uniqueness: retry against fresh data.
	case errors.Is(err, schedule.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, "no_capacity", err.Error())
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, booking.ErrBlockBusy):
		writeError(w, http.StatusConflict, "block_busy", "schedule block is currently being booked, please retry shortly")

	// State conflicts
	case errors.Is(err, booking.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", err.Error())
	case errors.Is(err, booking.ErrTerminalStatus):
		writeError(w, http.StatusConflict, "terminal_status", err.Error())
	case errors.Is(err, booking.ErrSessionExists):
		writeError(w, http.StatusConflict, "session_exists", err.Error())
	case errors.Is(err, booking.ErrSessionNotInProgress):
		writeError(w, http.StatusConflict, "session_not_in_progress", err.Error())
	case errors.Is(err, schedule.ErrDuplicateBlock):
		writeError(w, http.StatusConflict, "duplicate_block", err.Error())

	// Business-rule rejections outside the rule engine
	case errors.Is(err, booking.ErrTooLateToCancel):
		writeError(w, http.StatusUnprocessableEntity, "too_late_to_cancel", err.Error())
	case errors.Is(err, booking.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, booking.ErrCancelViaStatus):
		writeError(w, http.StatusBadRequest, "cancel_via_status", err.Error())

	// Block creation validation
	case errors.Is(err, schedule.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
	case errors.Is(err, schedule.ErrInvalidCapacity):
		writeError(w, http.StatusBadRequest, "invalid_capacity", err.Error())
	case errors.Is(err, schedule.ErrPastDate):
		writeError(w, http.StatusBadRequest, "past_date", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}
