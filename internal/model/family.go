package model

import "time"

// Role values for a family membership.
const (
	RoleAdmin     = "admin"
	RoleCaregiver = "caregiver"
	RoleViewer    = "viewer"
)

type Family struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FamilyMembership links a user to a family with a role. The (family_id,
// user_id) pair is unique; deactivated members keep their row with
// is_active = false so history stays intact.
type FamilyMembership struct {
	ID        int64     `json:"id"`
	FamilyID  int64     `json:"family_id"`
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Principal identifies the authenticated caller of an operation. It is
// passed explicitly into every service call; nothing reads it from
// ambient request state.
type Principal struct {
	UserID int64
}
