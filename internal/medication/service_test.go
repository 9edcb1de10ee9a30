package medication

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jmckenna/carecircle/internal/access"
	"github.com/jmckenna/carecircle/internal/cache"
	"github.com/jmckenna/carecircle/internal/care"
	"github.com/jmckenna/carecircle/internal/database"
	"github.com/jmckenna/carecircle/internal/model"
	"github.com/jmckenna/carecircle/internal/notify"
	"github.com/jmckenna/carecircle/internal/store"
)

type fixture struct {
	svc       *Service
	outbox    *store.OutboxStore
	recipient *model.CareRecipient
	caregiver model.Principal
	viewer    model.Principal
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	users := store.NewUserStore(db)
	families := store.NewFamilyStore(db)
	recipients := store.NewCareRecipientStore(db)
	meds := store.NewMedicationStore(db)
	outbox := store.NewOutboxStore(db)

	family, err := families.Create("Nguyens")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	recipient, err := recipients.Create(family.ID, "Grandpa Minh", nil, "")
	if err != nil {
		t.Fatalf("create recipient: %v", err)
	}

	cg, err := users.Create("cg@example.com", "Chau")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := families.AddMembership(family.ID, cg.ID, model.RoleCaregiver); err != nil {
		t.Fatalf("add membership: %v", err)
	}
	vw, err := users.Create("vw@example.com", "Vinh")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := families.AddMembership(family.ID, vw.ID, model.RoleViewer); err != nil {
		t.Fatalf("add membership: %v", err)
	}

	guard := access.NewGuard(recipients, families)
	emitter := notify.NewEmitter(outbox, nil, slog.Default())
	svc := NewService(meds, guard, cache.New(time.Minute), emitter, nil, slog.Default())

	return &fixture{
		svc:       svc,
		outbox:    outbox,
		recipient: recipient,
		caregiver: model.Principal{UserID: cg.ID},
		viewer:    model.Principal{UserID: vw.ID},
	}
}

func ptr(v int64) *int64 { return &v }

func metformin(supply, refillAt *int64) DefinitionParams {
	return DefinitionParams{
		Name:           "Metformin",
		Dosage:         "500mg",
		Form:           "tablet",
		Frequency:      "twice daily",
		ScheduledTimes: []string{"08:00", "20:00"},
		CurrentSupply:  supply,
		RefillAt:       refillAt,
		StartDate:      day(2026, 1, 1),
	}
}

func mustCreateMed(t *testing.T, f *fixture, p DefinitionParams) *model.Medication {
	t.Helper()
	med, err := f.svc.Create(f.caregiver, f.recipient.ID, p)
	if err != nil {
		t.Fatalf("create medication: %v", err)
	}
	return med
}

func refillEvents(t *testing.T, f *fixture) int {
	t.Helper()
	events, err := f.outbox.ListPending(50)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	var n int
	for _, e := range events {
		if e.Kind == notify.KindRefillNeeded {
			n++
		}
	}
	return n
}

func TestCreateMedicationSortsTimes(t *testing.T) {
	f := setup(t)

	med := mustCreateMed(t, f, DefinitionParams{
		Name:           "Lisinopril",
		ScheduledTimes: []string{"20:00", "08:00"},
		StartDate:      day(2026, 1, 1),
	})
	if len(med.ScheduledTimes) != 2 || med.ScheduledTimes[0] != "08:00" {
		t.Errorf("scheduled times = %v, want sorted", med.ScheduledTimes)
	}
	if !med.IsActive {
		t.Error("new medication should be active")
	}
}

func TestCreateMedicationValidation(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name string
		p    DefinitionParams
	}{
		{"no name", DefinitionParams{ScheduledTimes: []string{"08:00"}, StartDate: day(2026, 1, 1)}},
		{"no times", DefinitionParams{Name: "X", StartDate: day(2026, 1, 1)}},
		{"bad time", DefinitionParams{Name: "X", ScheduledTimes: []string{"8am"}, StartDate: day(2026, 1, 1)}},
		{"duplicate time", DefinitionParams{Name: "X", ScheduledTimes: []string{"08:00", "08:00"}, StartDate: day(2026, 1, 1)}},
		{"no start date", DefinitionParams{Name: "X", ScheduledTimes: []string{"08:00"}}},
		{"negative supply", DefinitionParams{Name: "X", ScheduledTimes: []string{"08:00"}, StartDate: day(2026, 1, 1), CurrentSupply: ptr(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(f.caregiver, f.recipient.ID, tt.p)
			var v *care.ValidationError
			if !errors.As(err, &v) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestCreateMedicationViewerForbidden(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Create(f.viewer, f.recipient.ID, metformin(nil, nil))
	var forbidden *care.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
}

func TestLogDoseRefillScenario(t *testing.T) {
	f := setup(t)
	med := mustCreateMed(t, f, metformin(ptr(2), ptr(5)))

	slot1 := day(2026, 3, 15).Add(8 * time.Hour)
	log1, err := f.svc.LogDose(f.caregiver, med.ID, LogDoseParams{Status: model.LogGiven, ScheduledTime: slot1})
	if err != nil {
		t.Fatalf("log dose: %v", err)
	}
	if log1.GivenTime == nil {
		t.Error("given_time should be stamped for GIVEN")
	}

	after1, _ := f.svc.Get(f.caregiver, med.ID)
	if after1.CurrentSupply == nil || *after1.CurrentSupply != 1 {
		t.Fatalf("supply after first dose = %v, want 1", after1.CurrentSupply)
	}
	if got := refillEvents(t, f); got != 1 {
		t.Fatalf("refill events after first dose = %d, want 1", got)
	}

	slot2 := day(2026, 3, 15).Add(20 * time.Hour)
	if _, err := f.svc.LogDose(f.caregiver, med.ID, LogDoseParams{Status: model.LogGiven, ScheduledTime: slot2}); err != nil {
		t.Fatalf("log dose: %v", err)
	}

	after2, _ := f.svc.Get(f.caregiver, med.ID)
	if after2.CurrentSupply == nil || *after2.CurrentSupply != 0 {
		t.Fatalf("supply after second dose = %v, want 0", after2.CurrentSupply)
	}
	// Threshold re-check fires on every GIVEN while supply stays low.
	if got := refillEvents(t, f); got != 2 {
		t.Fatalf("refill events after second dose = %d, want 2", got)
	}
}

func TestLogDoseSupplyFloor(t *testing.T) {
	f := setup(t)
	med := mustCreateMed(t, f, metformin(ptr(1), nil))

	base := day(2026, 3, 15)
	for i := 0; i < 3; i++ {
		slot := base.AddDate(0, 0, i).Add(8 * time.Hour)
		if _, err := f.svc.LogDose(f.caregiver, med.ID, LogDoseParams{Status: model.LogGiven, ScheduledTime: slot}); err != nil {
			t.Fatalf("log dose %d: %v", i, err)
		}
	}

	got, _ := f.svc.Get(f.caregiver, med.ID)
	if got.CurrentSupply == nil || *got.CurrentSupply != 0 {
		t.Fatalf("supply = %v, want floored at 0", got.CurrentSupply)
	}
}

func TestLogDoseSkippedDoesNotDecrement(t *testing.T) {
	f := setup(t)
	med := mustCreateMed(t, f, metformin(ptr(10), ptr(5)))

	slot := day(2026, 3, 15).Add(8 * time.Hour)
	log, err := f.svc.LogDose(f.caregiver, med.ID, LogDoseParams{
		Status:        model.LogSkipped,
		ScheduledTime: slot,
		SkipReason:    "nausea",
	})
	if err != nil {
		t.Fatalf("log dose: %v", err)
	}
	if log.GivenTime != nil {
		t.Error("given_time must not be stamped for skipped")
	}

	got, _ := f.svc.Get(f.caregiver, med.ID)
	if *got.CurrentSupply != 10 {
		t.Errorf("supply = %d, want unchanged 10", *got.CurrentSupply)
	}
	if refillEvents(t, f) != 0 {
		t.Error("skipped dose must not emit refill events")
	}
}

func TestLogDoseUntrackedSupply(t *testing.T) {
	f := setup(t)
	med := mustCreateMed(t, f, metformin(nil, nil))

	slot := day(2026, 3, 15).Add(8 * time.Hour)
	if _, err := f.svc.LogDose(f.caregiver, med.ID, LogDoseParams{Status: model.LogGiven, ScheduledTime: slot}); err != nil {
		t.Fatalf("log dose: %v", err)
	}

	got, _ := f.svc.Get(f.caregiver, med.ID)
	if got.CurrentSupply != nil {
		t.Errorf("supply = %v, want nil for untracked medication", got.CurrentSupply)
	}
	if refillEvents(t, f) != 0 {
		t.Error("untracked medication must not emit refill events")
	}
}

func TestLogDoseViewerForbidden(t *testing.T) {
	f := setup(t)
	med := mustCreateMed(t, f, metformin(nil, nil))

	_, err := f.svc.LogDose(f.viewer, med.ID, LogDoseParams{
		Status:        model.LogGiven,
		ScheduledTime: day(2026, 3, 15).Add(8 * time.Hour),
	})
	var forbidden *care.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
}

func TestLogDoseUnknownMedication(t *testing.T) {
	f := setup(t)

	_, err := f.svc.LogDose(f.caregiver, 9999, LogDoseParams{
		Status:        model.LogGiven,
		ScheduledTime: day(2026, 3, 15).Add(8 * time.Hour),
	})
	var nf *care.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestDayScheduleJoinsLoggedSlots(t *testing.T) {
	f := setup(t)
	med := mustCreateMed(t, f, metformin(nil, nil))
	mustCreateMed(t, f, DefinitionParams{
		Name:           "Lisinopril",
		ScheduledTimes: []string{"09:00"},
		StartDate:      day(2026, 1, 1),
	})

	slot := day(2026, 3, 15).Add(8 * time.Hour)
	if _, err := f.svc.LogDose(f.caregiver, med.ID, LogDoseParams{Status: model.LogGiven, ScheduledTime: slot}); err != nil {
		t.Fatalf("log dose: %v", err)
	}

	slots, err := f.svc.DaySchedule(f.viewer, f.recipient.ID, "2026-03-15")
	if err != nil {
		t.Fatalf("day schedule: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("got %d slots, want 3", len(slots))
	}
	if slots[0].Status != string(model.LogGiven) {
		t.Errorf("08:00 slot status = %q, want given", slots[0].Status)
	}
	if slots[1].Status != SlotPending || slots[2].Status != SlotPending {
		t.Error("unlogged slots should be pending")
	}
}

func TestDayScheduleCacheInvalidatedByLog(t *testing.T) {
	f := setup(t)
	med := mustCreateMed(t, f, metformin(nil, nil))

	before, err := f.svc.DaySchedule(f.viewer, f.recipient.ID, "2026-03-15")
	if err != nil {
		t.Fatalf("day schedule: %v", err)
	}
	if before[0].Status != SlotPending {
		t.Fatalf("expected pending before logging")
	}

	slot := day(2026, 3, 15).Add(8 * time.Hour)
	if _, err := f.svc.LogDose(f.caregiver, med.ID, LogDoseParams{Status: model.LogGiven, ScheduledTime: slot}); err != nil {
		t.Fatalf("log dose: %v", err)
	}

	after, err := f.svc.DaySchedule(f.viewer, f.recipient.ID, "2026-03-15")
	if err != nil {
		t.Fatalf("day schedule after log: %v", err)
	}
	if after[0].Status != string(model.LogGiven) {
		t.Errorf("read after invalidation = %q, want given", after[0].Status)
	}
}

func TestAdherence(t *testing.T) {
	f := setup(t)
	med := mustCreateMed(t, f, metformin(nil, nil))

	f.svc.now = func() time.Time { return day(2026, 3, 16) }

	slots := []struct {
		offset time.Duration
		status model.LogStatus
	}{
		{8 * time.Hour, model.LogGiven},
		{20 * time.Hour, model.LogGiven},
		{32 * time.Hour, model.LogSkipped},
		{44 * time.Hour, model.LogMissed},
	}
	base := day(2026, 3, 13)
	for _, s := range slots {
		if _, err := f.svc.LogDose(f.caregiver, med.ID, LogDoseParams{Status: s.status, ScheduledTime: base.Add(s.offset)}); err != nil {
			t.Fatalf("log dose: %v", err)
		}
	}

	stats, err := f.svc.Adherence(f.viewer, f.recipient.ID, 7)
	if err != nil {
		t.Fatalf("adherence: %v", err)
	}
	if stats.Given != 2 || stats.Skipped != 1 || stats.Missed != 1 {
		t.Errorf("stats = %+v, want 2/1/1", stats)
	}
	if stats.Total != 4 {
		t.Errorf("total = %d, want counts to sum to logs in range", stats.Total)
	}
}

func TestLowSupplyAndRefill(t *testing.T) {
	f := setup(t)
	med := mustCreateMed(t, f, metformin(ptr(3), ptr(5)))
	mustCreateMed(t, f, DefinitionParams{
		Name:           "Vitamin D",
		ScheduledTimes: []string{"08:00"},
		StartDate:      day(2026, 1, 1),
		CurrentSupply:  ptr(90),
		RefillAt:       ptr(10),
	})

	low, err := f.svc.LowSupply(f.viewer, f.recipient.ID)
	if err != nil {
		t.Fatalf("low supply: %v", err)
	}
	if len(low) != 1 || low[0].ID != med.ID {
		t.Fatalf("low supply = %+v, want only Metformin", low)
	}

	refilled, err := f.svc.RecordRefill(f.caregiver, med.ID, 60)
	if err != nil {
		t.Fatalf("record refill: %v", err)
	}
	if *refilled.CurrentSupply != 63 {
		t.Errorf("supply after refill = %d, want 63", *refilled.CurrentSupply)
	}

	low, err = f.svc.LowSupply(f.viewer, f.recipient.ID)
	if err != nil {
		t.Fatalf("low supply: %v", err)
	}
	if len(low) != 0 {
		t.Errorf("low supply after refill = %+v, want empty", low)
	}
}

func TestRecordRefillRejectsNonPositive(t *testing.T) {
	f := setup(t)
	med := mustCreateMed(t, f, metformin(ptr(3), nil))

	_, err := f.svc.RecordRefill(f.caregiver, med.ID, 0)
	var v *care.ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestSetActiveStopsMaterialization(t *testing.T) {
	f := setup(t)
	med := mustCreateMed(t, f, metformin(nil, nil))

	got, err := f.svc.SetActive(f.caregiver, med.ID, false)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if got.IsActive {
		t.Fatal("medication should be inactive")
	}

	slots, err := f.svc.DaySchedule(f.viewer, f.recipient.ID, "2026-03-15")
	if err != nil {
		t.Fatalf("day schedule: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("got %d slots for inactive medication, want 0", len(slots))
	}
}

func TestUpdateMedication(t *testing.T) {
	f := setup(t)
	med := mustCreateMed(t, f, metformin(ptr(30), ptr(5)))

	updated, err := f.svc.Update(f.caregiver, med.ID, DefinitionParams{
		Name:           "Metformin ER",
		Dosage:         "750mg",
		ScheduledTimes: []string{"21:00"},
		RefillAt:       ptr(7),
		StartDate:      day(2026, 1, 1),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Metformin ER" || len(updated.ScheduledTimes) != 1 {
		t.Errorf("updated = %+v", updated)
	}
	// Supply is untouched by Update.
	if updated.CurrentSupply == nil || *updated.CurrentSupply != 30 {
		t.Errorf("supply = %v, want 30 preserved", updated.CurrentSupply)
	}
}
