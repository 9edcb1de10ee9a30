// Package handler exposes the care-coordination services as a JSON API.
// Handlers decode the request, call the service with the authenticated
// principal, and translate domain errors to HTTP statuses.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jmckenna/carecircle/internal/alert"
	"github.com/jmckenna/carecircle/internal/care"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// writeError maps the domain error taxonomy to HTTP statuses. Anything
// outside the taxonomy is an internal error and gets logged.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		notFound   *care.NotFoundError
		forbidden  *care.ForbiddenError
		conflict   *care.ConflictError
		transition *care.InvalidTransitionError
		validation *care.ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &forbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":                err.Error(),
			"conflicting_shift_id": conflict.ShiftID,
		})
	case errors.As(err, &transition):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":       err.Error(),
			"from_status": transition.From,
		})
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, alert.ErrAlreadyResolved):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
