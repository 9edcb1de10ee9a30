package model

import "time"

// ShiftStatus is the lifecycle state of a caregiving shift.
type ShiftStatus string

const (
	ShiftScheduled  ShiftStatus = "scheduled"
	ShiftConfirmed  ShiftStatus = "confirmed"
	ShiftInProgress ShiftStatus = "in_progress"
	ShiftCompleted  ShiftStatus = "completed"
	ShiftCancelled  ShiftStatus = "cancelled"
	ShiftNoShow     ShiftStatus = "no_show"
)

// Terminal reports whether no further transitions are allowed from s.
func (s ShiftStatus) Terminal() bool {
	return s == ShiftCompleted || s == ShiftCancelled || s == ShiftNoShow
}

// Shift is one caregiver's on-duty window for a care recipient. The
// window is half-open: [StartTime, EndTime). Shifts are never deleted;
// cancellation is a status.
type Shift struct {
	ID              int64       `json:"id"`
	CareRecipientID int64       `json:"care_recipient_id"`
	CaregiverID     int64       `json:"caregiver_id"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         time.Time   `json:"end_time"`
	Status          ShiftStatus `json:"status"`
	CheckedInAt     *time.Time  `json:"checked_in_at,omitempty"`
	CheckedOutAt    *time.Time  `json:"checked_out_at,omitempty"`
	Notes           string      `json:"notes"`
	HandoffNotes    string      `json:"handoff_notes"`
	CreatedByID     int64       `json:"created_by_id"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Overlaps reports whether the shift's window intersects [start, end).
// Half-open intervals overlap iff s1 < e2 && s2 < e1; the single
// predicate also covers full containment.
func (s *Shift) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && start.Before(s.EndTime)
}
