package model

import "time"

// CareRecipient is the person receiving care. It is the root scoping
// entity: shifts, medications, and alerts all hang off a recipient, and
// authorization resolves through the recipient's owning family.
type CareRecipient struct {
	ID          int64      `json:"id"`
	FamilyID    int64      `json:"family_id"`
	Name        string     `json:"name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Notes       string     `json:"notes"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
