package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jmckenna/carecircle/internal/auth"
	"github.com/jmckenna/carecircle/internal/model"
	"github.com/jmckenna/carecircle/internal/push"
	"github.com/jmckenna/carecircle/internal/store"
)

type PushHandler struct {
	pushStore *store.PushStore
	families  *store.FamilyStore
	service   *push.Service
	logger    *slog.Logger
}

func NewPushHandler(ps *store.PushStore, families *store.FamilyStore, svc *push.Service, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, families: families, service: svc, logger: logger}
}

// activeMember reports whether the caller holds an active membership in
// the family. A user can belong to several families, so every push
// operation names the family it applies to.
func (h *PushHandler) activeMember(r *http.Request, familyID int64) (bool, error) {
	m, err := h.families.GetMembership(familyID, auth.UserID(r.Context()))
	if err != nil {
		return false, err
	}
	return m != nil && m.IsActive, nil
}

func (h *PushHandler) familyIDQuery(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("family_id"), 10, 64)
	return id, err == nil && id > 0
}

type subscribeRequest struct {
	FamilyID   int64  `json:"family_id"`
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

// Subscribe handles POST /api/push/subscribe
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if req.FamilyID == 0 || req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "family_id, endpoint, p256dh, and auth are required"})
		return
	}

	ok, err := h.activeMember(r, req.FamilyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "no active membership in this family"})
		return
	}

	sub, err := h.pushStore.CreateSubscription(auth.UserID(r.Context()), req.FamilyID, req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		h.logger.Error("create push subscription", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to save subscription"})
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions/{id}?family_id=N
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	familyID, ok := h.familyIDQuery(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "family_id is required"})
		return
	}

	member, err := h.activeMember(r, familyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !member {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "no active membership in this family"})
		return
	}

	if err := h.pushStore.DeleteSubscription(id, familyID); err != nil {
		h.logger.Error("delete push subscription", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete subscription"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions?family_id=N
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	familyID, ok := h.familyIDQuery(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "family_id is required"})
		return
	}

	subs, err := h.pushStore.ListByUser(auth.UserID(r.Context()), familyID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list subscriptions"})
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}

// GetVAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) GetVAPIDKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.service.VAPIDPublicKey()})
}

type updatePreferencesRequest struct {
	FamilyID    int64      `json:"family_id"`
	Preferences []prefItem `json:"preferences"`
}

type prefItem struct {
	EventKind string `json:"event_kind"`
	Enabled   bool   `json:"enabled"`
}

// UpdatePreferences handles PUT /api/push/preferences
func (h *PushHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req updatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.FamilyID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "family_id is required"})
		return
	}

	member, err := h.activeMember(r, req.FamilyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !member {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "no active membership in this family"})
		return
	}

	userID := auth.UserID(r.Context())
	for _, p := range req.Preferences {
		if err := h.pushStore.SetPreference(userID, req.FamilyID, p.EventKind, p.Enabled); err != nil {
			h.logger.Error("set notification preference", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to update preferences"})
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
