// Package notify carries domain events from mutating operations to
// their consumers. Operations append events to a persistent outbox; a
// dispatcher drains it and delivers through the configured sinks.
// Delivery is asynchronous, at-least-once, and best-effort: a sink
// failure is never surfaced to the caller whose mutation produced the
// event.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jmckenna/carecircle/internal/model"
	"github.com/jmckenna/carecircle/internal/store"
)

// Event kinds emitted by the core.
const (
	KindShiftAssigned = "shift.assigned"
	KindShiftHandoff  = "shift.handoff"
	KindRefillNeeded  = "medication.refillNeeded"
	KindEmergency     = "care.emergency"
)

// ShiftAssignedPayload announces a newly scheduled shift.
type ShiftAssignedPayload struct {
	ShiftID         int64     `json:"shift_id"`
	CareRecipientID int64     `json:"care_recipient_id"`
	CaregiverID     int64     `json:"caregiver_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
}

// ShiftHandoffPayload carries duty transfer from the caregiver checking
// out to the next scheduled caregiver.
type ShiftHandoffPayload struct {
	ShiftID             int64  `json:"shift_id"`
	NextShiftID         int64  `json:"next_shift_id"`
	CareRecipientID     int64  `json:"care_recipient_id"`
	OutgoingCaregiverID int64  `json:"outgoing_caregiver_id"`
	IncomingCaregiverID int64  `json:"incoming_caregiver_id"`
	HandoffNotes        string `json:"handoff_notes"`
}

// RefillNeededPayload signals supply at or below the refill threshold.
type RefillNeededPayload struct {
	MedicationID    int64  `json:"medication_id"`
	CareRecipientID int64  `json:"care_recipient_id"`
	MedicationName  string `json:"medication_name"`
	CurrentSupply   int64  `json:"current_supply"`
	RefillAt        int64  `json:"refill_at"`
}

// EmergencyPayload announces a raised emergency alert.
type EmergencyPayload struct {
	AlertID         int64  `json:"alert_id"`
	CareRecipientID int64  `json:"care_recipient_id"`
	RaisedByID      int64  `json:"raised_by_id"`
	Message         string `json:"message"`
}

// Sink is one delivery leg for domain events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event model.OutboxEvent) error
}

// Recorder is the metrics surface the emitter and dispatcher use.
type Recorder interface {
	RecordEventQueued(kind string)
	RecordEventDelivered(kind string)
	RecordDeliveryFailure(kind, sink string)
}

// Emitter appends domain events to the outbox. Emit never returns an
// error: the append is a cheap local write made after the state change
// is durable, and a failure to queue a notification must not fail the
// operation that produced it.
type Emitter struct {
	outbox  *store.OutboxStore
	metrics Recorder
	logger  *slog.Logger
}

func NewEmitter(outbox *store.OutboxStore, metrics Recorder, logger *slog.Logger) *Emitter {
	return &Emitter{outbox: outbox, metrics: metrics, logger: logger}
}

func (e *Emitter) Emit(kind string, familyID int64, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error("marshal event payload", "kind", kind, "error", err)
		return
	}
	if _, err := e.outbox.Append(kind, familyID, string(data)); err != nil {
		e.logger.Error("queue event", "kind", kind, "family_id", familyID, "error", err)
		return
	}
	if e.metrics != nil {
		e.metrics.RecordEventQueued(kind)
	}
	e.logger.Debug("event queued", "kind", kind, "family_id", familyID)
}
