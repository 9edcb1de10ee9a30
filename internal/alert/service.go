// Package alert raises and resolves emergency alerts for a care
// recipient. Any active family member may raise one, viewers included;
// resolving requires a care-team role.
package alert

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jmckenna/carecircle/internal/access"
	"github.com/jmckenna/carecircle/internal/care"
	"github.com/jmckenna/carecircle/internal/model"
	"github.com/jmckenna/carecircle/internal/notify"
	"github.com/jmckenna/carecircle/internal/store"
)

// ErrAlreadyResolved is returned when resolving an alert a second time.
var ErrAlreadyResolved = errors.New("alert already resolved")

type Service struct {
	alerts  *store.AlertStore
	guard   *access.Guard
	emitter *notify.Emitter
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(alerts *store.AlertStore, guard *access.Guard, emitter *notify.Emitter, logger *slog.Logger) *Service {
	return &Service{
		alerts:  alerts,
		guard:   guard,
		emitter: emitter,
		logger:  logger,
		now:     time.Now,
	}
}

// Raise creates an emergency alert and notifies the family.
func (s *Service) Raise(principal model.Principal, careRecipientID int64, message string) (*model.EmergencyAlert, error) {
	if message == "" {
		return nil, &care.ValidationError{Field: "message", Reason: "required"}
	}

	grant, err := s.guard.Authorize(principal, careRecipientID, access.CapRaiseAlerts)
	if err != nil {
		return nil, err
	}

	alert, err := s.alerts.Create(careRecipientID, principal.UserID, message)
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(notify.KindEmergency, grant.Recipient.FamilyID, notify.EmergencyPayload{
		AlertID:         alert.ID,
		CareRecipientID: careRecipientID,
		RaisedByID:      principal.UserID,
		Message:         message,
	})

	s.logger.Warn("emergency alert raised", "alert_id", alert.ID, "care_recipient_id", careRecipientID, "raised_by", principal.UserID)
	return alert, nil
}

// Resolve marks an active alert resolved. The store update is guarded
// on the unresolved state, so concurrent resolutions race safely and
// the loser gets ErrAlreadyResolved.
func (s *Service) Resolve(principal model.Principal, alertID int64) (*model.EmergencyAlert, error) {
	alert, err := s.alerts.GetByID(alertID)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, &care.NotFoundError{Entity: "emergency alert", ID: alertID}
	}

	if _, err := s.guard.Authorize(principal, alert.CareRecipientID, access.CapResolveAlerts); err != nil {
		return nil, err
	}

	ok, err := s.alerts.Resolve(alertID, principal.UserID, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyResolved
	}

	return s.alerts.GetByID(alertID)
}

// Active lists a recipient's unresolved alerts.
func (s *Service) Active(principal model.Principal, careRecipientID int64) ([]model.EmergencyAlert, error) {
	if _, err := s.guard.Authorize(principal, careRecipientID, access.CapViewCare); err != nil {
		return nil, err
	}
	return s.alerts.ListActive(careRecipientID)
}
