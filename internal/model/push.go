package model

import "time"

type PushSubscription struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	FamilyID   int64     `json:"family_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// NotificationPreference toggles delivery of one event kind for a user
// within a family. Absence of a row means enabled.
type NotificationPreference struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	FamilyID  int64     `json:"family_id"`
	EventKind string    `json:"event_kind"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
