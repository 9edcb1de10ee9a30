package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmckenna/carecircle/internal/model"
	"github.com/jmckenna/carecircle/internal/websocket"
)

// WebSocketSink pushes events to the family's connected dashboards.
type WebSocketSink struct {
	hub *websocket.Hub
}

func NewWebSocketSink(hub *websocket.Hub) *WebSocketSink {
	return &WebSocketSink{hub: hub}
}

func (s *WebSocketSink) Name() string { return "websocket" }

func (s *WebSocketSink) Deliver(_ context.Context, event model.OutboxEvent) error {
	msg, err := messageFor(event)
	if err != nil {
		return err
	}
	s.hub.BroadcastFamily(event.FamilyID, msg)
	return nil
}

func messageFor(event model.OutboxEvent) (websocket.Message, error) {
	switch event.Kind {
	case KindShiftAssigned:
		var p ShiftAssignedPayload
		if err := json.Unmarshal([]byte(event.Payload), &p); err != nil {
			return websocket.Message{}, fmt.Errorf("decode %s payload: %w", event.Kind, err)
		}
		return websocket.NewMessage("shift", "assigned", p.ShiftID, map[string]any{
			"care_recipient_id": p.CareRecipientID,
			"caregiver_id":      p.CaregiverID,
		}), nil
	case KindShiftHandoff:
		var p ShiftHandoffPayload
		if err := json.Unmarshal([]byte(event.Payload), &p); err != nil {
			return websocket.Message{}, fmt.Errorf("decode %s payload: %w", event.Kind, err)
		}
		return websocket.NewMessage("shift", "handoff", p.ShiftID, map[string]any{
			"next_shift_id":         p.NextShiftID,
			"care_recipient_id":     p.CareRecipientID,
			"incoming_caregiver_id": p.IncomingCaregiverID,
		}), nil
	case KindRefillNeeded:
		var p RefillNeededPayload
		if err := json.Unmarshal([]byte(event.Payload), &p); err != nil {
			return websocket.Message{}, fmt.Errorf("decode %s payload: %w", event.Kind, err)
		}
		return websocket.NewMessage("medication", "refill_needed", p.MedicationID, map[string]any{
			"care_recipient_id": p.CareRecipientID,
			"current_supply":    p.CurrentSupply,
		}), nil
	case KindEmergency:
		var p EmergencyPayload
		if err := json.Unmarshal([]byte(event.Payload), &p); err != nil {
			return websocket.Message{}, fmt.Errorf("decode %s payload: %w", event.Kind, err)
		}
		return websocket.NewMessage("alert", "raised", p.AlertID, map[string]any{
			"care_recipient_id": p.CareRecipientID,
			"message":           p.Message,
		}), nil
	default:
		return websocket.Message{}, fmt.Errorf("unknown event kind %q", event.Kind)
	}
}
