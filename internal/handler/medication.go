package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jmckenna/carecircle/internal/auth"
	"github.com/jmckenna/carecircle/internal/medication"
	"github.com/jmckenna/carecircle/internal/model"
)

type MedicationHandler struct {
	meds   *medication.Service
	logger *slog.Logger
}

func NewMedicationHandler(meds *medication.Service, logger *slog.Logger) *MedicationHandler {
	return &MedicationHandler{meds: meds, logger: logger}
}

type medicationRequest struct {
	Name           string   `json:"name"`
	Dosage         string   `json:"dosage"`
	Form           string   `json:"form"`
	Frequency      string   `json:"frequency"`
	ScheduledTimes []string `json:"scheduled_times"`
	CurrentSupply  *int64   `json:"current_supply"`
	RefillAt       *int64   `json:"refill_at"`
	StartDate      string   `json:"start_date"`
	EndDate        *string  `json:"end_date"`
}

func (req *medicationRequest) params() (medication.DefinitionParams, error) {
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return medication.DefinitionParams{}, err
	}
	var end *time.Time
	if req.EndDate != nil {
		e, err := time.Parse("2006-01-02", *req.EndDate)
		if err != nil {
			return medication.DefinitionParams{}, err
		}
		end = &e
	}
	return medication.DefinitionParams{
		Name:           req.Name,
		Dosage:         req.Dosage,
		Form:           req.Form,
		Frequency:      req.Frequency,
		ScheduledTimes: req.ScheduledTimes,
		CurrentSupply:  req.CurrentSupply,
		RefillAt:       req.RefillAt,
		StartDate:      start,
		EndDate:        end,
	}, nil
}

// Create handles POST /api/recipients/{id}/medications
func (h *MedicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	recipientID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req medicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	params, err := req.params()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "dates must be YYYY-MM-DD"})
		return
	}

	med, err := h.meds.Create(auth.Principal(r.Context()), recipientID, params)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, med)
}

// Update handles PUT /api/medications/{id}
func (h *MedicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req medicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	params, err := req.params()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "dates must be YYYY-MM-DD"})
		return
	}

	med, err := h.meds.Update(auth.Principal(r.Context()), id, params)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, med)
}

// SetActive handles PUT /api/medications/{id}/active
func (h *MedicationHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	med, err := h.meds.SetActive(auth.Principal(r.Context()), id, req.Active)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, med)
}

// Get handles GET /api/medications/{id}
func (h *MedicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	med, err := h.meds.Get(auth.Principal(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, med)
}

// List handles GET /api/recipients/{id}/medications?active=true
func (h *MedicationHandler) List(w http.ResponseWriter, r *http.Request) {
	recipientID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	activeOnly := r.URL.Query().Get("active") == "true"
	meds, err := h.meds.List(auth.Principal(r.Context()), recipientID, activeOnly)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if meds == nil {
		meds = []model.Medication{}
	}
	writeJSON(w, http.StatusOK, meds)
}

// DaySchedule handles GET /api/recipients/{id}/medications/schedule?date=YYYY-MM-DD
func (h *MedicationHandler) DaySchedule(w http.ResponseWriter, r *http.Request) {
	recipientID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	principal := auth.Principal(r.Context())
	date := r.URL.Query().Get("date")

	var slots []medication.ScheduleSlot
	if date == "" {
		slots, err = h.meds.TodaySchedule(principal, recipientID)
	} else {
		slots, err = h.meds.DaySchedule(principal, recipientID, date)
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if slots == nil {
		slots = []medication.ScheduleSlot{}
	}
	writeJSON(w, http.StatusOK, slots)
}

type logDoseRequest struct {
	Status        string    `json:"status"`
	ScheduledTime time.Time `json:"scheduled_time"`
	SkipReason    string    `json:"skip_reason"`
	Notes         string    `json:"notes"`
}

// LogDose handles POST /api/medications/{id}/logs
func (h *MedicationHandler) LogDose(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req logDoseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	log, err := h.meds.LogDose(auth.Principal(r.Context()), id, medication.LogDoseParams{
		Status:        model.LogStatus(req.Status),
		ScheduledTime: req.ScheduledTime,
		SkipReason:    req.SkipReason,
		Notes:         req.Notes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, log)
}

// Logs handles GET /api/medications/{id}/logs?start=...&end=...
// Bounds default to the trailing 30 days.
func (h *MedicationHandler) Logs(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)
	if v := r.URL.Query().Get("start"); v != "" {
		if start, err = time.Parse(time.RFC3339, v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "start must be RFC 3339"})
			return
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if end, err = time.Parse(time.RFC3339, v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "end must be RFC 3339"})
			return
		}
	}

	logs, err := h.meds.Logs(auth.Principal(r.Context()), id, start, end)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if logs == nil {
		logs = []model.MedicationLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// Adherence handles GET /api/recipients/{id}/adherence?days=7
func (h *MedicationHandler) Adherence(w http.ResponseWriter, r *http.Request) {
	recipientID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		if days, err = strconv.Atoi(v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "days must be an integer"})
			return
		}
	}

	stats, err := h.meds.Adherence(auth.Principal(r.Context()), recipientID, days)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// LowSupply handles GET /api/recipients/{id}/medications/low-supply
func (h *MedicationHandler) LowSupply(w http.ResponseWriter, r *http.Request) {
	recipientID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	meds, err := h.meds.LowSupply(auth.Principal(r.Context()), recipientID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if meds == nil {
		meds = []model.Medication{}
	}
	writeJSON(w, http.StatusOK, meds)
}

// Refill handles POST /api/medications/{id}/refill
func (h *MedicationHandler) Refill(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req struct {
		Quantity int64 `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	med, err := h.meds.RecordRefill(auth.Principal(r.Context()), id, req.Quantity)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, med)
}
