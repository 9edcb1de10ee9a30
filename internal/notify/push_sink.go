package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmckenna/carecircle/internal/model"
	"github.com/jmckenna/carecircle/internal/push"
	"github.com/jmckenna/carecircle/internal/store"
)

// PushSink fans an event out to every push subscription in the family,
// honoring per-user notification preferences. Expired subscriptions are
// removed as they are discovered.
type PushSink struct {
	subs    *store.PushStore
	service *push.Service
	logger  *slog.Logger
}

func NewPushSink(subs *store.PushStore, service *push.Service, logger *slog.Logger) *PushSink {
	return &PushSink{subs: subs, service: service, logger: logger}
}

func (s *PushSink) Name() string { return "webpush" }

func (s *PushSink) Deliver(_ context.Context, event model.OutboxEvent) error {
	payload, err := pushPayloadFor(event)
	if err != nil {
		return err
	}

	subs, err := s.subs.ListByFamily(event.FamilyID)
	if err != nil {
		return fmt.Errorf("list family subscriptions: %w", err)
	}

	var failures int
	for i := range subs {
		sub := &subs[i]

		enabled, err := s.subs.IsPreferenceEnabled(sub.UserID, sub.FamilyID, event.Kind)
		if err != nil {
			s.logger.Error("check notification preference", "user_id", sub.UserID, "error", err)
			continue
		}
		if !enabled {
			continue
		}

		if err := s.service.Send(sub, payload); err != nil {
			if errors.Is(err, push.ErrExpired) {
				if err := s.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
					s.logger.Error("delete expired subscription", "error", err)
				}
				continue
			}
			failures++
			s.logger.Warn("send push", "user_id", sub.UserID, "error", err)
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d push deliveries failed", failures)
	}
	return nil
}

func pushPayloadFor(event model.OutboxEvent) (push.Payload, error) {
	switch event.Kind {
	case KindShiftAssigned:
		var p ShiftAssignedPayload
		if err := json.Unmarshal([]byte(event.Payload), &p); err != nil {
			return push.Payload{}, fmt.Errorf("decode %s payload: %w", event.Kind, err)
		}
		return push.Payload{
			Title: "New shift assigned",
			Body:  fmt.Sprintf("Shift starting %s", p.StartTime.Format("Mon Jan 2 15:04")),
			URL:   fmt.Sprintf("/shifts/%d", p.ShiftID),
			Tag:   "shift",
		}, nil
	case KindShiftHandoff:
		var p ShiftHandoffPayload
		if err := json.Unmarshal([]byte(event.Payload), &p); err != nil {
			return push.Payload{}, fmt.Errorf("decode %s payload: %w", event.Kind, err)
		}
		body := "You are next on duty"
		if p.HandoffNotes != "" {
			body = "Handoff notes: " + p.HandoffNotes
		}
		return push.Payload{
			Title: "Shift handoff",
			Body:  body,
			URL:   fmt.Sprintf("/shifts/%d", p.NextShiftID),
			Tag:   "shift",
		}, nil
	case KindRefillNeeded:
		var p RefillNeededPayload
		if err := json.Unmarshal([]byte(event.Payload), &p); err != nil {
			return push.Payload{}, fmt.Errorf("decode %s payload: %w", event.Kind, err)
		}
		return push.Payload{
			Title: "Refill needed",
			Body:  fmt.Sprintf("%s has %d doses left", p.MedicationName, p.CurrentSupply),
			URL:   fmt.Sprintf("/medications/%d", p.MedicationID),
			Tag:   "medication",
		}, nil
	case KindEmergency:
		var p EmergencyPayload
		if err := json.Unmarshal([]byte(event.Payload), &p); err != nil {
			return push.Payload{}, fmt.Errorf("decode %s payload: %w", event.Kind, err)
		}
		return push.Payload{
			Title: "Emergency alert",
			Body:  p.Message,
			URL:   fmt.Sprintf("/alerts/%d", p.AlertID),
			Tag:   "emergency",
		}, nil
	default:
		return push.Payload{}, fmt.Errorf("unknown event kind %q", event.Kind)
	}
}
