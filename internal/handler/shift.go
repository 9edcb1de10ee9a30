package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmckenna/carecircle/internal/auth"
	"github.com/jmckenna/carecircle/internal/model"
	"github.com/jmckenna/carecircle/internal/shift"
)

type ShiftHandler struct {
	shifts *shift.Service
	logger *slog.Logger
}

func NewShiftHandler(shifts *shift.Service, logger *slog.Logger) *ShiftHandler {
	return &ShiftHandler{shifts: shifts, logger: logger}
}

type createShiftRequest struct {
	CaregiverID int64     `json:"caregiver_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Notes       string    `json:"notes"`
}

// Create handles POST /api/recipients/{id}/shifts
func (h *ShiftHandler) Create(w http.ResponseWriter, r *http.Request) {
	recipientID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req createShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	created, err := h.shifts.Create(auth.Principal(r.Context()), shift.CreateParams{
		CareRecipientID: recipientID,
		CaregiverID:     req.CaregiverID,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// Get handles GET /api/shifts/{id}
func (h *ShiftHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	s, err := h.shifts.Get(auth.Principal(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Confirm handles POST /api/shifts/{id}/confirm
func (h *ShiftHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.shifts.Confirm)
}

// CheckIn handles POST /api/shifts/{id}/check-in
func (h *ShiftHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.shifts.CheckIn)
}

// Cancel handles POST /api/shifts/{id}/cancel
func (h *ShiftHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.shifts.Cancel)
}

// NoShow handles POST /api/shifts/{id}/no-show
func (h *ShiftHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.shifts.MarkNoShow)
}

func (h *ShiftHandler) transition(w http.ResponseWriter, r *http.Request, op func(model.Principal, int64) (*model.Shift, error)) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	s, err := op(auth.Principal(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// CheckOut handles POST /api/shifts/{id}/check-out
func (h *ShiftHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req struct {
		HandoffNotes string `json:"handoff_notes"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	s, err := h.shifts.CheckOut(auth.Principal(r.Context()), id, req.HandoffNotes)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Current handles GET /api/recipients/{id}/shifts/current
func (h *ShiftHandler) Current(w http.ResponseWriter, r *http.Request) {
	recipientID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	s, err := h.shifts.Current(auth.Principal(r.Context()), recipientID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if s == nil {
		writeJSON(w, http.StatusOK, map[string]any{"shift": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shift": s})
}

// Upcoming handles GET /api/recipients/{id}/shifts/upcoming
func (h *ShiftHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	recipientID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	shifts, err := h.shifts.Upcoming(auth.Principal(r.Context()), recipientID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if shifts == nil {
		shifts = []model.Shift{}
	}
	writeJSON(w, http.StatusOK, shifts)
}

// Day handles GET /api/recipients/{id}/shifts/day?date=YYYY-MM-DD
func (h *ShiftHandler) Day(w http.ResponseWriter, r *http.Request) {
	recipientID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	shifts, err := h.shifts.Day(auth.Principal(r.Context()), recipientID, date)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if shifts == nil {
		shifts = []model.Shift{}
	}
	writeJSON(w, http.StatusOK, shifts)
}

// Range handles GET /api/recipients/{id}/shifts?start=...&end=...
// with RFC 3339 bounds.
func (h *ShiftHandler) Range(w http.ResponseWriter, r *http.Request) {
	recipientID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start must be RFC 3339"})
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end must be RFC 3339"})
		return
	}

	shifts, err := h.shifts.Range(auth.Principal(r.Context()), recipientID, start, end)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if shifts == nil {
		shifts = []model.Shift{}
	}
	writeJSON(w, http.StatusOK, shifts)
}

// MyShifts handles GET /api/my/shifts
func (h *ShiftHandler) MyShifts(w http.ResponseWriter, r *http.Request) {
	shifts, err := h.shifts.MyShifts(auth.Principal(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if shifts == nil {
		shifts = []model.Shift{}
	}
	writeJSON(w, http.StatusOK, shifts)
}
