// Package access decides whether a principal may perform an operation
// on a care recipient's data, based on their family-membership role.
package access

import (
	"github.com/jmckenna/carecircle/internal/care"
	"github.com/jmckenna/carecircle/internal/model"
	"github.com/jmckenna/carecircle/internal/store"
)

// Capability names one kind of operation the guard can authorize.
type Capability string

const (
	CapViewCare          Capability = "view_care"
	CapManageShifts      Capability = "manage_shifts"
	CapManageMedications Capability = "manage_medications"
	CapLogDoses          Capability = "log_doses"
	CapRaiseAlerts       Capability = "raise_alerts"
	CapResolveAlerts     Capability = "resolve_alerts"
	CapExportCareFile    Capability = "export_care_file"
)

// roleCapabilities is the single source of truth for what each role may
// do. Viewers are read-only apart from raising an emergency alert.
var roleCapabilities = map[string]map[Capability]bool{
	model.RoleAdmin: {
		CapViewCare:          true,
		CapManageShifts:      true,
		CapManageMedications: true,
		CapLogDoses:          true,
		CapRaiseAlerts:       true,
		CapResolveAlerts:     true,
		CapExportCareFile:    true,
	},
	model.RoleCaregiver: {
		CapViewCare:          true,
		CapManageShifts:      true,
		CapManageMedications: true,
		CapLogDoses:          true,
		CapRaiseAlerts:       true,
		CapResolveAlerts:     true,
		CapExportCareFile:    true,
	},
	model.RoleViewer: {
		CapViewCare:    true,
		CapRaiseAlerts: true,
	},
}

// Grant is the successful result of an authorization check. It carries
// the resolved recipient and membership so callers don't re-query them.
type Grant struct {
	Recipient  *model.CareRecipient
	Membership *model.FamilyMembership
}

// IsAdmin reports whether the granted membership holds the admin role.
func (g *Grant) IsAdmin() bool {
	return g.Membership.Role == model.RoleAdmin
}

// Guard resolves a care recipient's owning family and checks the
// principal's active membership against the capability table.
type Guard struct {
	recipients *store.CareRecipientStore
	families   *store.FamilyStore
}

func NewGuard(recipients *store.CareRecipientStore, families *store.FamilyStore) *Guard {
	return &Guard{recipients: recipients, families: families}
}

// Resolve looks up a care recipient without an authorization check.
// For internal use where the caller's access was already established.
func (g *Guard) Resolve(careRecipientID int64) (*model.CareRecipient, error) {
	recipient, err := g.recipients.GetByID(careRecipientID)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, &care.NotFoundError{Entity: "care recipient", ID: careRecipientID}
	}
	return recipient, nil
}

// Authorize returns a Grant when the principal holds an active
// membership in the recipient's family whose role carries the
// capability. It fails with NotFoundError when the recipient does not
// exist and ForbiddenError otherwise.
func (g *Guard) Authorize(principal model.Principal, careRecipientID int64, cap Capability) (*Grant, error) {
	recipient, err := g.recipients.GetByID(careRecipientID)
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		return nil, &care.NotFoundError{Entity: "care recipient", ID: careRecipientID}
	}

	membership, err := g.families.GetMembership(recipient.FamilyID, principal.UserID)
	if err != nil {
		return nil, err
	}
	if membership == nil || !membership.IsActive {
		return nil, &care.ForbiddenError{Reason: "no active membership in the care recipient's family"}
	}

	if !roleCapabilities[membership.Role][cap] {
		return nil, &care.ForbiddenError{Reason: string(membership.Role) + " role lacks " + string(cap)}
	}

	return &Grant{Recipient: recipient, Membership: membership}, nil
}
