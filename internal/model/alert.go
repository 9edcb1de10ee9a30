package model

import "time"

// EmergencyAlert is raised against a care recipient and stays active
// until a care-team member resolves it.
type EmergencyAlert struct {
	ID              int64      `json:"id"`
	CareRecipientID int64      `json:"care_recipient_id"`
	RaisedByID      int64      `json:"raised_by_id"`
	Message         string     `json:"message"`
	RaisedAt        time.Time  `json:"raised_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedByID    *int64     `json:"resolved_by_id,omitempty"`
}
