// Package care holds the domain error taxonomy shared by the shift,
// medication, and access packages. Every operation failure is one of
// these types, raised at the point of detection and returned to the
// caller unmodified.
package care

import "fmt"

// NotFoundError indicates a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// ForbiddenError indicates an authorization failure: no active
// membership, insufficient role, or not the assigned caregiver.
type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return "forbidden: " + e.Reason
}

// ConflictError indicates an overlapping shift window for the same
// caregiver.
type ConflictError struct {
	CaregiverID int64
	ShiftID     int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("caregiver %d already has shift %d overlapping the requested window", e.CaregiverID, e.ShiftID)
}

// InvalidTransitionError indicates a shift state machine guard
// violation, e.g. checking out a shift that was never checked in.
type InvalidTransitionError struct {
	ShiftID int64
	From    string
	Action  string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s shift %d from status %q", e.Action, e.ShiftID, e.From)
}

// ValidationError indicates malformed input, e.g. end <= start.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
