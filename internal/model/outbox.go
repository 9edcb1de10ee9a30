package model

import "time"

// OutboxEvent is a domain event queued for asynchronous delivery.
// Mutating operations append a row after their state change commits; the
// notification dispatcher drains pending rows and delivers them through
// the configured sinks. Delivery is at-least-once and best-effort;
// failures never propagate back to the operation that queued the event.
type OutboxEvent struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	FamilyID    int64      `json:"family_id"`
	Payload     string     `json:"payload"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}
