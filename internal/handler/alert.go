package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jmckenna/carecircle/internal/alert"
	"github.com/jmckenna/carecircle/internal/auth"
	"github.com/jmckenna/carecircle/internal/model"
)

type AlertHandler struct {
	alerts *alert.Service
	logger *slog.Logger
}

func NewAlertHandler(alerts *alert.Service, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, logger: logger}
}

// Raise handles POST /api/recipients/{id}/alerts
func (h *AlertHandler) Raise(w http.ResponseWriter, r *http.Request) {
	recipientID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	a, err := h.alerts.Raise(auth.Principal(r.Context()), recipientID, req.Message)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// Resolve handles POST /api/alerts/{id}/resolve
func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	a, err := h.alerts.Resolve(auth.Principal(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Active handles GET /api/recipients/{id}/alerts
func (h *AlertHandler) Active(w http.ResponseWriter, r *http.Request) {
	recipientID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	alerts, err := h.alerts.Active(auth.Principal(r.Context()), recipientID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if alerts == nil {
		alerts = []model.EmergencyAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}
