// Package shift implements the caregiving shift lifecycle: scheduling
// with conflict detection, the status state machine, and handoff
// chaining at check-out.
package shift

import (
	"log/slog"
	"time"

	"github.com/jmckenna/carecircle/internal/access"
	"github.com/jmckenna/carecircle/internal/cache"
	"github.com/jmckenna/carecircle/internal/care"
	"github.com/jmckenna/carecircle/internal/metrics"
	"github.com/jmckenna/carecircle/internal/model"
	"github.com/jmckenna/carecircle/internal/notify"
	"github.com/jmckenna/carecircle/internal/store"
)

const defaultUpcomingLimit = 20

// Service coordinates shift operations. Every mutation invalidates the
// recipient's cached projections before returning, and emits its domain
// events only after the state change is durable.
type Service struct {
	shifts   *store.ShiftStore
	families *store.FamilyStore
	guard    *access.Guard
	cache    *cache.Cache
	emitter  *notify.Emitter
	metrics  *metrics.Collector
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(shifts *store.ShiftStore, families *store.FamilyStore, guard *access.Guard, c *cache.Cache, emitter *notify.Emitter, m *metrics.Collector, logger *slog.Logger) *Service {
	return &Service{
		shifts:   shifts,
		families: families,
		guard:    guard,
		cache:    c,
		emitter:  emitter,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateParams are the inputs for scheduling a new shift.
type CreateParams struct {
	CareRecipientID int64
	CaregiverID     int64
	StartTime       time.Time
	EndTime         time.Time
	Notes           string
}

// Create schedules a shift after validating the window and checking
// that the caregiver has no overlapping non-cancelled shift. The
// conflict check and the insert are one atomic unit in the store.
func (s *Service) Create(principal model.Principal, p CreateParams) (*model.Shift, error) {
	if !p.StartTime.Before(p.EndTime) {
		return nil, &care.ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	if p.CaregiverID == 0 {
		return nil, &care.ValidationError{Field: "caregiver_id", Reason: "required"}
	}

	grant, err := s.guard.Authorize(principal, p.CareRecipientID, access.CapManageShifts)
	if err != nil {
		return nil, err
	}

	assignee, err := s.families.GetMembership(grant.Recipient.FamilyID, p.CaregiverID)
	if err != nil {
		return nil, err
	}
	if assignee == nil || !assignee.IsActive {
		return nil, &care.ValidationError{Field: "caregiver_id", Reason: "not an active member of the care recipient's family"}
	}
	if assignee.Role == model.RoleViewer {
		return nil, &care.ValidationError{Field: "caregiver_id", Reason: "viewers cannot be assigned shifts"}
	}

	created, conflicting, err := s.shifts.CreateIfNoConflict(p.CareRecipientID, p.CaregiverID, p.StartTime, p.EndTime, p.Notes, principal.UserID)
	if err != nil {
		return nil, err
	}
	if conflicting != nil {
		return nil, &care.ConflictError{CaregiverID: p.CaregiverID, ShiftID: conflicting.ID}
	}

	s.invalidate(p.CareRecipientID)
	if s.metrics != nil {
		s.metrics.RecordShiftTransition(string(model.ShiftScheduled))
	}

	s.emitter.Emit(notify.KindShiftAssigned, grant.Recipient.FamilyID, notify.ShiftAssignedPayload{
		ShiftID:         created.ID,
		CareRecipientID: created.CareRecipientID,
		CaregiverID:     created.CaregiverID,
		StartTime:       created.StartTime,
		EndTime:         created.EndTime,
	})

	s.logger.Info("shift created", "shift_id", created.ID, "care_recipient_id", created.CareRecipientID, "caregiver_id", created.CaregiverID)
	return created, nil
}

// Confirm moves a scheduled shift to confirmed. Only the assigned
// caregiver may confirm.
func (s *Service) Confirm(principal model.Principal, shiftID int64) (*model.Shift, error) {
	sh, err := s.loadAssigned(principal, shiftID)
	if err != nil {
		return nil, err
	}

	ok, err := s.shifts.Transition(shiftID, model.ShiftConfirmed, model.ShiftScheduled)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidTransition(shiftID, sh, "confirm")
	}

	s.afterTransition(sh.CareRecipientID, model.ShiftConfirmed)
	return s.shifts.GetByID(shiftID)
}

// CheckIn moves a scheduled or confirmed shift to in_progress, stamping
// the check-in time. Confirmation first is not required.
func (s *Service) CheckIn(principal model.Principal, shiftID int64) (*model.Shift, error) {
	sh, err := s.loadAssigned(principal, shiftID)
	if err != nil {
		return nil, err
	}

	ok, err := s.shifts.CheckIn(shiftID, s.now(), model.ShiftScheduled, model.ShiftConfirmed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidTransition(shiftID, sh, "check in")
	}

	s.afterTransition(sh.CareRecipientID, model.ShiftInProgress)
	return s.shifts.GetByID(shiftID)
}

// CheckOut completes an in-progress shift and merges handoff notes.
// If a later non-cancelled shift exists for the recipient it emits a
// handoff event to the incoming caregiver.
func (s *Service) CheckOut(principal model.Principal, shiftID int64, handoffNotes string) (*model.Shift, error) {
	sh, err := s.loadAssigned(principal, shiftID)
	if err != nil {
		return nil, err
	}

	ok, err := s.shifts.CheckOut(shiftID, s.now(), handoffNotes)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidTransition(shiftID, sh, "check out")
	}

	s.afterTransition(sh.CareRecipientID, model.ShiftCompleted)

	next, err := s.shifts.NextScheduled(sh.CareRecipientID, sh.StartTime, sh.ID)
	if err != nil {
		s.logger.Error("look up next shift for handoff", "shift_id", shiftID, "error", err)
	} else if next != nil {
		familyID, ferr := s.familyOf(sh.CareRecipientID)
		if ferr != nil {
			s.logger.Error("resolve family for handoff", "shift_id", shiftID, "error", ferr)
		} else {
			s.emitter.Emit(notify.KindShiftHandoff, familyID, notify.ShiftHandoffPayload{
				ShiftID:             sh.ID,
				NextShiftID:         next.ID,
				CareRecipientID:     sh.CareRecipientID,
				OutgoingCaregiverID: sh.CaregiverID,
				IncomingCaregiverID: next.CaregiverID,
				HandoffNotes:        handoffNotes,
			})
		}
	}

	return s.shifts.GetByID(shiftID)
}

// Cancel moves a shift to cancelled from any non-terminal state. A
// family admin or the assigned caregiver may cancel.
func (s *Service) Cancel(principal model.Principal, shiftID int64) (*model.Shift, error) {
	sh, err := s.shifts.GetByID(shiftID)
	if err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, &care.NotFoundError{Entity: "shift", ID: shiftID}
	}

	if principal.UserID != sh.CaregiverID {
		grant, err := s.guard.Authorize(principal, sh.CareRecipientID, access.CapManageShifts)
		if err != nil {
			return nil, err
		}
		if !grant.IsAdmin() {
			return nil, &care.ForbiddenError{Reason: "only an admin or the assigned caregiver may cancel"}
		}
	}

	ok, err := s.shifts.Transition(shiftID, model.ShiftCancelled,
		model.ShiftScheduled, model.ShiftConfirmed, model.ShiftInProgress)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidTransition(shiftID, sh, "cancel")
	}

	s.afterTransition(sh.CareRecipientID, model.ShiftCancelled)
	return s.shifts.GetByID(shiftID)
}

// MarkNoShow records a missed check-in on a shift that never started.
// Admin only; normally invoked by an external scheduler once the window
// has elapsed.
func (s *Service) MarkNoShow(principal model.Principal, shiftID int64) (*model.Shift, error) {
	sh, err := s.shifts.GetByID(shiftID)
	if err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, &care.NotFoundError{Entity: "shift", ID: shiftID}
	}

	grant, err := s.guard.Authorize(principal, sh.CareRecipientID, access.CapManageShifts)
	if err != nil {
		return nil, err
	}
	if !grant.IsAdmin() {
		return nil, &care.ForbiddenError{Reason: "only an admin may mark a no-show"}
	}

	ok, err := s.shifts.Transition(shiftID, model.ShiftNoShow, model.ShiftScheduled, model.ShiftConfirmed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.invalidTransition(shiftID, sh, "mark no-show")
	}

	s.afterTransition(sh.CareRecipientID, model.ShiftNoShow)
	return s.shifts.GetByID(shiftID)
}

// Get returns one shift, checking view access on its recipient.
func (s *Service) Get(principal model.Principal, shiftID int64) (*model.Shift, error) {
	sh, err := s.shifts.GetByID(shiftID)
	if err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, &care.NotFoundError{Entity: "shift", ID: shiftID}
	}
	if _, err := s.guard.Authorize(principal, sh.CareRecipientID, access.CapViewCare); err != nil {
		return nil, err
	}
	return sh, nil
}

// Current returns the shift covering now for the recipient, or nil.
// Served read-through from the cache.
func (s *Service) Current(principal model.Principal, careRecipientID int64) (*model.Shift, error) {
	if _, err := s.guard.Authorize(principal, careRecipientID, access.CapViewCare); err != nil {
		return nil, err
	}

	key := cache.CurrentShiftKey(careRecipientID)
	if v, ok := s.cache.Get(key); ok {
		s.recordCacheHit()
		return v.(*model.Shift), nil
	}
	s.recordCacheMiss()

	sh, err := s.shifts.Current(careRecipientID, s.now())
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, sh)
	return sh, nil
}

// Upcoming returns the recipient's next scheduled or confirmed shifts.
func (s *Service) Upcoming(principal model.Principal, careRecipientID int64) ([]model.Shift, error) {
	if _, err := s.guard.Authorize(principal, careRecipientID, access.CapViewCare); err != nil {
		return nil, err
	}

	key := cache.UpcomingShiftsKey(careRecipientID)
	if v, ok := s.cache.Get(key); ok {
		s.recordCacheHit()
		return v.([]model.Shift), nil
	}
	s.recordCacheMiss()

	shifts, err := s.shifts.Upcoming(careRecipientID, s.now(), defaultUpcomingLimit)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, shifts)
	return shifts, nil
}

// Day returns all shifts touching the given calendar day (UTC),
// cancelled included.
func (s *Service) Day(principal model.Principal, careRecipientID int64, date string) ([]model.Shift, error) {
	if _, err := s.guard.Authorize(principal, careRecipientID, access.CapViewCare); err != nil {
		return nil, err
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, &care.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}

	key := cache.DayScheduleKey(careRecipientID, date)
	if v, ok := s.cache.Get(key); ok {
		s.recordCacheHit()
		return v.([]model.Shift), nil
	}
	s.recordCacheMiss()

	shifts, err := s.shifts.ListByRecipientRange(careRecipientID, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, shifts)
	return shifts, nil
}

// Range returns shifts intersecting [start, end). Not cached; range
// queries are ad hoc.
func (s *Service) Range(principal model.Principal, careRecipientID int64, start, end time.Time) ([]model.Shift, error) {
	if !start.Before(end) {
		return nil, &care.ValidationError{Field: "end", Reason: "must be after start"}
	}
	if _, err := s.guard.Authorize(principal, careRecipientID, access.CapViewCare); err != nil {
		return nil, err
	}
	return s.shifts.ListByRecipientRange(careRecipientID, start, end)
}

// MyShifts returns the caller's own non-cancelled shifts that have not
// yet ended.
func (s *Service) MyShifts(principal model.Principal) ([]model.Shift, error) {
	return s.shifts.ListByCaregiver(principal.UserID, s.now())
}

// loadAssigned fetches a shift and verifies the caller is its assigned
// caregiver. Confirm, check-in, and check-out are caregiver-identity
/// checks, not membership checks: a shift's caregiver may act on it even
// if their family role has since changed.
func (s *Service) loadAssigned(principal model.Principal, shiftID int64) (*model.Shift, error) {
	sh, err := s.shifts.GetByID(shiftID)
	if err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, &care.NotFoundError{Entity: "shift", ID: shiftID}
	}
	if sh.CaregiverID != principal.UserID {
		return nil, &care.ForbiddenError{Reason: "only the assigned caregiver may perform this transition"}
	}
	return sh, nil
}

// invalidTransition re-reads the shift so the error reports the status
// that actually blocked the optimistic update.
func (s *Service) invalidTransition(shiftID int64, stale *model.Shift, action string) error {
	from := string(stale.Status)
	if current, err := s.shifts.GetByID(shiftID); err == nil && current != nil {
		from = string(current.Status)
	}
	return &care.InvalidTransitionError{ShiftID: shiftID, From: from, Action: action}
}

func (s *Service) afterTransition(careRecipientID int64, to model.ShiftStatus) {
	s.invalidate(careRecipientID)
	if s.metrics != nil {
		s.metrics.RecordShiftTransition(string(to))
	}
}

func (s *Service) invalidate(careRecipientID int64) {
	s.cache.InvalidateRecipient(careRecipientID)
}

func (s *Service) familyOf(careRecipientID int64) (int64, error) {
	recipient, err := s.guard.Resolve(careRecipientID)
	if err != nil {
		return 0, err
	}
	return recipient.FamilyID, nil
}

func (s *Service) recordCacheHit() {
	if s.metrics != nil {
		s.metrics.RecordCacheHit()
	}
}

func (s *Service) recordCacheMiss() {
	if s.metrics != nil {
		s.metrics.RecordCacheMiss()
	}
}
