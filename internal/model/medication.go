package model

import "time"

// LogStatus records what happened to one scheduled dose.
type LogStatus string

const (
	LogGiven   LogStatus = "given"
	LogSkipped LogStatus = "skipped"
	LogMissed  LogStatus = "missed"
)

// Medication is a recurring daily dosing plan for a care recipient.
// ScheduledTimes holds "HH:MM" times-of-day, unique within the
// medication and kept sorted. CurrentSupply and RefillAt are nil when
// the medication does not track supply.
type Medication struct {
	ID              int64      `json:"id"`
	CareRecipientID int64      `json:"care_recipient_id"`
	Name            string     `json:"name"`
	Dosage          string     `json:"dosage"`
	Form            string     `json:"form"`
	Frequency       string     `json:"frequency"`
	ScheduledTimes  []string   `json:"scheduled_times"`
	CurrentSupply   *int64     `json:"current_supply,omitempty"`
	RefillAt        *int64     `json:"refill_at,omitempty"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         *time.Time `json:"end_date,omitempty"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// MedicationLog is an administration fact for one schedule slot.
// ScheduledTime combines a calendar date with one of the medication's
// scheduled times; GivenTime is set only when Status is given.
type MedicationLog struct {
	ID            int64      `json:"id"`
	MedicationID  int64      `json:"medication_id"`
	Status        LogStatus  `json:"status"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	GivenTime     *time.Time `json:"given_time,omitempty"`
	LoggedByID    int64      `json:"logged_by_id"`
	SkipReason    string     `json:"skip_reason"`
	Notes         string     `json:"notes"`
	CreatedAt     time.Time  `json:"created_at"`
}
