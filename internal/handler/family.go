package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jmckenna/carecircle/internal/access"
	"github.com/jmckenna/carecircle/internal/auth"
	"github.com/jmckenna/carecircle/internal/model"
	"github.com/jmckenna/carecircle/internal/store"
)

type FamilyHandler struct {
	families   *store.FamilyStore
	recipients *store.CareRecipientStore
	users      *store.UserStore
	guard      *access.Guard
	logger     *slog.Logger
}

func NewFamilyHandler(families *store.FamilyStore, recipients *store.CareRecipientStore, users *store.UserStore, guard *access.Guard, logger *slog.Logger) *FamilyHandler {
	return &FamilyHandler{
		families:   families,
		recipients: recipients,
		users:      users,
		guard:      guard,
		logger:     logger,
	}
}

// membership returns the caller's active membership in the family, or
// nil when they have none.
func (h *FamilyHandler) membership(familyID, userID int64) (*model.FamilyMembership, error) {
	m, err := h.families.GetMembership(familyID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil || !m.IsActive {
		return nil, nil
	}
	return m, nil
}

func (h *FamilyHandler) requireMember(w http.ResponseWriter, r *http.Request, familyID int64, adminOnly bool) *model.FamilyMembership {
	m, err := h.membership(familyID, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return nil
	}
	if m == nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "no active membership in this family"})
		return nil
	}
	if adminOnly && m.Role != model.RoleAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin role required"})
		return nil
	}
	return m
}

// CreateFamily handles POST /api/families. The creator becomes the
// family's first admin.
func (h *FamilyHandler) CreateFamily(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	family, err := h.families.Create(req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.families.AddMembership(family.ID, auth.UserID(r.Context()), model.RoleAdmin); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, family)
}

// MyFamilies handles GET /api/families
func (h *FamilyHandler) MyFamilies(w http.ResponseWriter, r *http.Request) {
	families, err := h.families.ListFamiliesForUser(auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if families == nil {
		families = []model.Family{}
	}
	writeJSON(w, http.StatusOK, families)
}

type addMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// AddMember handles POST /api/families/{id}/members
func (h *FamilyHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	familyID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if h.requireMember(w, r, familyID, true) == nil {
		return
	}

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	switch req.Role {
	case model.RoleAdmin, model.RoleCaregiver, model.RoleViewer:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be admin, caregiver, or viewer"})
		return
	}

	user, err := h.users.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no user with that email"})
		return
	}

	m, err := h.families.AddMembership(familyID, user.ID, req.Role)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// ListMembers handles GET /api/families/{id}/members
func (h *FamilyHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	familyID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if h.requireMember(w, r, familyID, false) == nil {
		return
	}

	members, err := h.families.ListMemberships(familyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if members == nil {
		members = []model.FamilyMembership{}
	}
	writeJSON(w, http.StatusOK, members)
}

// UpdateMemberRole handles PUT /api/families/{id}/members/{user_id}
func (h *FamilyHandler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	familyID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
		return
	}
	if h.requireMember(w, r, familyID, true) == nil {
		return
	}

	var req struct {
		Role     string `json:"role"`
		IsActive *bool  `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if req.IsActive != nil {
		if err := h.families.SetMembershipActive(familyID, userID, *req.IsActive); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	if req.Role != "" {
		switch req.Role {
		case model.RoleAdmin, model.RoleCaregiver, model.RoleViewer:
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be admin, caregiver, or viewer"})
			return
		}
		if _, err := h.families.UpdateMembershipRole(familyID, userID, req.Role); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	m, err := h.families.GetMembership(familyID, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if m == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "membership not found"})
		return
	}
	writeJSON(w, http.StatusOK, m)
}

type recipientRequest struct {
	Name        string  `json:"name"`
	DateOfBirth *string `json:"date_of_birth"`
	Notes       string  `json:"notes"`
}

func (req *recipientRequest) dob() (*time.Time, error) {
	if req.DateOfBirth == nil {
		return nil, nil
	}
	d, err := time.Parse("2006-01-02", *req.DateOfBirth)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateRecipient handles POST /api/families/{id}/recipients
func (h *FamilyHandler) CreateRecipient(w http.ResponseWriter, r *http.Request) {
	familyID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	m := h.requireMember(w, r, familyID, false)
	if m == nil {
		return
	}
	if m.Role == model.RoleViewer {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "viewer role cannot manage care recipients"})
		return
	}

	var req recipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	dob, err := req.dob()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date_of_birth must be YYYY-MM-DD"})
		return
	}

	recipient, err := h.recipients.Create(familyID, req.Name, dob, req.Notes)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, recipient)
}

// ListRecipients handles GET /api/families/{id}/recipients
func (h *FamilyHandler) ListRecipients(w http.ResponseWriter, r *http.Request) {
	familyID, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if h.requireMember(w, r, familyID, false) == nil {
		return
	}

	recipients, err := h.recipients.ListByFamily(familyID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if recipients == nil {
		recipients = []model.CareRecipient{}
	}
	writeJSON(w, http.StatusOK, recipients)
}

// GetRecipient handles GET /api/recipients/{id}
func (h *FamilyHandler) GetRecipient(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	grant, err := h.guard.Authorize(auth.Principal(r.Context()), id, access.CapViewCare)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, grant.Recipient)
}

// UpdateRecipient handles PUT /api/recipients/{id}
func (h *FamilyHandler) UpdateRecipient(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	grant, err := h.guard.Authorize(auth.Principal(r.Context()), id, access.CapManageShifts)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req recipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Name == "" {
		req.Name = grant.Recipient.Name
	}
	dob, err := req.dob()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date_of_birth must be YYYY-MM-DD"})
		return
	}
	if dob == nil {
		dob = grant.Recipient.DateOfBirth
	}

	recipient, err := h.recipients.Update(id, req.Name, dob, req.Notes)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, recipient)
}
