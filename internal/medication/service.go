package medication

import (
	"log/slog"
	"sort"
	"time"

	"github.com/jmckenna/carecircle/internal/access"
	"github.com/jmckenna/carecircle/internal/cache"
	"github.com/jmckenna/carecircle/internal/care"
	"github.com/jmckenna/carecircle/internal/metrics"
	"github.com/jmckenna/carecircle/internal/model"
	"github.com/jmckenna/carecircle/internal/notify"
	"github.com/jmckenna/carecircle/internal/store"
)

const defaultAdherenceDays = 7

// Service coordinates medication definitions, dose logging with supply
// tracking, and schedule/adherence reads.
type Service struct {
	meds    *store.MedicationStore
	guard   *access.Guard
	cache   *cache.Cache
	emitter *notify.Emitter
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(meds *store.MedicationStore, guard *access.Guard, c *cache.Cache, emitter *notify.Emitter, m *metrics.Collector, logger *slog.Logger) *Service {
	return &Service{
		meds:    meds,
		guard:   guard,
		cache:   c,
		emitter: emitter,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// DefinitionParams are the inputs for creating or updating a medication.
type DefinitionParams struct {
	Name           string
	Dosage         string
	Form           string
	Frequency      string
	ScheduledTimes []string
	CurrentSupply  *int64
	RefillAt       *int64
	StartDate      time.Time
	EndDate        *time.Time
}

// Create defines a new medication for a care recipient. Scheduled times
// are validated as unique "HH:MM" values and stored sorted.
func (s *Service) Create(principal model.Principal, careRecipientID int64, p DefinitionParams) (*model.Medication, error) {
	if _, err := s.guard.Authorize(principal, careRecipientID, access.CapManageMedications); err != nil {
		return nil, err
	}
	times, err := validateDefinition(&p)
	if err != nil {
		return nil, err
	}

	med, err := s.meds.Create(careRecipientID, p.Name, p.Dosage, p.Form, p.Frequency, times, p.CurrentSupply, p.RefillAt, p.StartDate, p.EndDate)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateRecipient(careRecipientID)
	s.logger.Info("medication created", "medication_id", med.ID, "care_recipient_id", careRecipientID, "name", med.Name)
	return med, nil
}

// Update rewrites a medication definition. Supply is not updated here;
// use RecordRefill so supply changes stay additive and auditable.
func (s *Service) Update(principal model.Principal, medicationID int64, p DefinitionParams) (*model.Medication, error) {
	med, _, err := s.authorizeMedication(principal, medicationID, access.CapManageMedications)
	if err != nil {
		return nil, err
	}
	times, err := validateDefinition(&p)
	if err != nil {
		return nil, err
	}

	updated, err := s.meds.Update(medicationID, p.Name, p.Dosage, p.Form, p.Frequency, times, p.RefillAt, p.StartDate, p.EndDate)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateRecipient(med.CareRecipientID)
	return updated, nil
}

// SetActive activates or deactivates a medication. Deactivation keeps
// the definition and its log history; the materializer simply stops
// producing slots for it.
func (s *Service) SetActive(principal model.Principal, medicationID int64, active bool) (*model.Medication, error) {
	med, _, err := s.authorizeMedication(principal, medicationID, access.CapManageMedications)
	if err != nil {
		return nil, err
	}
	if err := s.meds.SetActive(medicationID, active); err != nil {
		return nil, err
	}
	s.cache.InvalidateRecipient(med.CareRecipientID)
	return s.meds.GetByID(medicationID)
}

// Get returns one medication, checking view access.
func (s *Service) Get(principal model.Principal, medicationID int64) (*model.Medication, error) {
	med, _, err := s.authorizeMedication(principal, medicationID, access.CapViewCare)
	if err != nil {
		return nil, err
	}
	return med, nil
}

// List returns a recipient's medications, optionally active only.
func (s *Service) List(principal model.Principal, careRecipientID int64, activeOnly bool) ([]model.Medication, error) {
	if _, err := s.guard.Authorize(principal, careRecipientID, access.CapViewCare); err != nil {
		return nil, err
	}
	return s.meds.ListByRecipient(careRecipientID, activeOnly)
}

// DaySchedule materializes the recipient's expected doses for a day,
// joined against the logs recorded so far. Served read-through from the
// cache with the same invalidation discipline as the shift projections.
func (s *Service) DaySchedule(principal model.Principal, careRecipientID int64, date string) ([]ScheduleSlot, error) {
	if _, err := s.guard.Authorize(principal, careRecipientID, access.CapViewCare); err != nil {
		return nil, err
	}

	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, &care.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}

	key := cache.MedicationDayKey(careRecipientID, date)
	if v, ok := s.cache.Get(key); ok {
		if s.metrics != nil {
			s.metrics.RecordCacheHit()
		}
		return v.([]ScheduleSlot), nil
	}
	if s.metrics != nil {
		s.metrics.RecordCacheMiss()
	}

	meds, err := s.meds.ListByRecipient(careRecipientID, true)
	if err != nil {
		return nil, err
	}
	logs, err := s.meds.ListLogsForSlots(careRecipientID, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}

	slots, err := materializeDay(day, meds, logs)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, slots)
	return slots, nil
}

// TodaySchedule is DaySchedule for the current UTC date.
func (s *Service) TodaySchedule(principal model.Principal, careRecipientID int64) ([]ScheduleSlot, error) {
	return s.DaySchedule(principal, careRecipientID, s.now().UTC().Format("2006-01-02"))
}

// LogDoseParams are the inputs for recording what happened to one slot.
type LogDoseParams struct {
	Status        model.LogStatus
	ScheduledTime time.Time
	SkipReason    string
	Notes         string
}

// LogDose records an administration fact. A GIVEN dose of a
// supply-tracked medication decrements the supply atomically, floored at
// zero; if the post-decrement supply is at or below the refill
// threshold, a refill-needed event goes to the family. The threshold
// check runs on every GIVEN log, so reminders repeat until a refill is
// recorded.
func (s *Service) LogDose(principal model.Principal, medicationID int64, p LogDoseParams) (*model.MedicationLog, error) {
	med, grant, err := s.authorizeMedication(principal, medicationID, access.CapLogDoses)
	if err != nil {
		return nil, err
	}

	switch p.Status {
	case model.LogGiven, model.LogSkipped, model.LogMissed:
	default:
		return nil, &care.ValidationError{Field: "status", Reason: "must be given, skipped, or missed"}
	}
	if p.ScheduledTime.IsZero() {
		return nil, &care.ValidationError{Field: "scheduled_time", Reason: "required"}
	}

	var givenTime *time.Time
	if p.Status == model.LogGiven {
		now := s.now().UTC()
		givenTime = &now
	}

	log, newSupply, err := s.meds.InsertLogAndDecrement(medicationID, p.Status, p.ScheduledTime, givenTime, principal.UserID, p.SkipReason, p.Notes)
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateRecipient(med.CareRecipientID)
	if s.metrics != nil {
		s.metrics.RecordDoseLogged(string(p.Status))
	}

	if p.Status == model.LogGiven && newSupply != nil && med.RefillAt != nil && *newSupply <= *med.RefillAt {
		s.emitter.Emit(notify.KindRefillNeeded, grant.Recipient.FamilyID, notify.RefillNeededPayload{
			MedicationID:    med.ID,
			CareRecipientID: med.CareRecipientID,
			MedicationName:  med.Name,
			CurrentSupply:   *newSupply,
			RefillAt:        *med.RefillAt,
		})
	}

	return log, nil
}

// Logs returns a medication's logs over [start, end).
func (s *Service) Logs(principal model.Principal, medicationID int64, start, end time.Time) ([]model.MedicationLog, error) {
	if _, _, err := s.authorizeMedication(principal, medicationID, access.CapViewCare); err != nil {
		return nil, err
	}
	return s.meds.ListLogsByMedication(medicationID, start, end)
}

// AdherenceStats summarizes a recipient's logs over a trailing window.
type AdherenceStats struct {
	WindowDays int `json:"window_days"`
	Given      int `json:"given"`
	Skipped    int `json:"skipped"`
	Missed     int `json:"missed"`
	Total      int `json:"total"`
}

// Adherence aggregates given/skipped/missed counts over the trailing
// days window (default 7).
func (s *Service) Adherence(principal model.Principal, careRecipientID int64, days int) (*AdherenceStats, error) {
	if _, err := s.guard.Authorize(principal, careRecipientID, access.CapViewCare); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = defaultAdherenceDays
	}

	end := s.now().UTC()
	start := end.AddDate(0, 0, -days)
	counts, err := s.meds.AdherenceCounts(careRecipientID, start, end)
	if err != nil {
		return nil, err
	}

	stats := &AdherenceStats{
		WindowDays: days,
		Given:      counts[model.LogGiven],
		Skipped:    counts[model.LogSkipped],
		Missed:     counts[model.LogMissed],
	}
	stats.Total = stats.Given + stats.Skipped + stats.Missed
	return stats, nil
}

// LowSupply returns active, supply-tracked medications at or below
// their refill threshold.
func (s *Service) LowSupply(principal model.Principal, careRecipientID int64) ([]model.Medication, error) {
	if _, err := s.guard.Authorize(principal, careRecipientID, access.CapViewCare); err != nil {
		return nil, err
	}
	return s.meds.ListLowSupply(careRecipientID)
}

// RecordRefill adds quantity to the medication's supply.
func (s *Service) RecordRefill(principal model.Principal, medicationID int64, quantity int64) (*model.Medication, error) {
	med, _, err := s.authorizeMedication(principal, medicationID, access.CapManageMedications)
	if err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, &care.ValidationError{Field: "quantity", Reason: "must be positive"}
	}

	updated, err := s.meds.AddSupply(medicationID, quantity)
	if err != nil {
		return nil, err
	}
	s.cache.InvalidateRecipient(med.CareRecipientID)
	s.logger.Info("refill recorded", "medication_id", medicationID, "quantity", quantity)
	return updated, nil
}

// authorizeMedication loads a medication and authorizes the capability
// against its owning recipient.
func (s *Service) authorizeMedication(principal model.Principal, medicationID int64, cap access.Capability) (*model.Medication, *access.Grant, error) {
	med, err := s.meds.GetByID(medicationID)
	if err != nil {
		return nil, nil, err
	}
	if med == nil {
		return nil, nil, &care.NotFoundError{Entity: "medication", ID: medicationID}
	}
	grant, err := s.guard.Authorize(principal, med.CareRecipientID, cap)
	if err != nil {
		return nil, nil, err
	}
	return med, grant, nil
}

func validateDefinition(p *DefinitionParams) ([]string, error) {
	if p.Name == "" {
		return nil, &care.ValidationError{Field: "name", Reason: "required"}
	}
	if len(p.ScheduledTimes) == 0 {
		return nil, &care.ValidationError{Field: "scheduled_times", Reason: "at least one time required"}
	}
	if p.StartDate.IsZero() {
		return nil, &care.ValidationError{Field: "start_date", Reason: "required"}
	}
	if p.EndDate != nil && p.EndDate.Before(p.StartDate) {
		return nil, &care.ValidationError{Field: "end_date", Reason: "must not precede start_date"}
	}
	if p.CurrentSupply != nil && *p.CurrentSupply < 0 {
		return nil, &care.ValidationError{Field: "current_supply", Reason: "must not be negative"}
	}
	if p.RefillAt != nil && *p.RefillAt < 0 {
		return nil, &care.ValidationError{Field: "refill_at", Reason: "must not be negative"}
	}

	seen := make(map[string]bool, len(p.ScheduledTimes))
	times := make([]string, 0, len(p.ScheduledTimes))
	for _, hhmm := range p.ScheduledTimes {
		if _, err := time.Parse("15:04", hhmm); err != nil {
			return nil, &care.ValidationError{Field: "scheduled_times", Reason: "entries must be HH:MM"}
		}
		if seen[hhmm] {
			return nil, &care.ValidationError{Field: "scheduled_times", Reason: "duplicate time " + hhmm}
		}
		seen[hhmm] = true
		times = append(times, hhmm)
	}
	sort.Strings(times)
	return times, nil
}
