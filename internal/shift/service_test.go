package shift

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
	admin     model.Principal
	caregiver model.Principal
	viewer    model.Principal
	outsider  model.Principal
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
	shifts := store.NewShiftStore(db)
	outbox := store.NewOutboxStore(db)

	family, err := families.Create("Hendersons")
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	recipient, err := recipients.Create(family.ID, "Grandma June", nil, "")
	if err != nil {
		t.Fatalf("create recipient: %v", err)
	}

	mkUser := func(email, name, role string) model.Principal {
		u, err := users.Create(email, name)
		if err != nil {
			t.Fatalf("create user: %v", err)
		}
		if role != "" {
			if _, err := families.AddMembership(family.ID, u.ID, role); err != nil {
				t.Fatalf("add membership: %v", err)
			}
		}
		return model.Principal{UserID: u.ID}
	}

	admin := mkUser("admin@example.com", "Ana", model.RoleAdmin)
	caregiver := mkUser("cg@example.com", "Carlos", model.RoleCaregiver)
	viewer := mkUser("viewer@example.com", "Vera", model.RoleViewer)
	outsider := mkUser("out@example.com", "Omar", "")

	guard := access.NewGuard(recipients, families)
	emitter := notify.NewEmitter(outbox, nil, slog.Default())
	svc := NewService(shifts, families, guard, cache.New(time.Minute), emitter, nil, slog.Default())

	return &fixture{
		svc:       svc,
		outbox:    outbox,
		recipient: recipient,
		admin:     admin,
		caregiver: caregiver,
		viewer:    viewer,
		outsider:  outsider,
	}
}

func mustCreate(t *testing.T, f *fixture, caregiverID int64, start, end time.Time) *model.Shift {
	t.Helper()
	sh, err := f.svc.Create(f.admin, CreateParams{
		CareRecipientID: f.recipient.ID,
		CaregiverID:     caregiverID,
		StartTime:       start,
		EndTime:         end,
	})
	if err != nil {
		t.Fatalf("create shift: %v", err)
	}
	return sh
}

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 15, hour, min, 0, 0, time.UTC)
}

func TestCreateShift(t *testing.T) {
	f := setup(t)

	sh := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))

	if sh.Status != model.ShiftScheduled {
		t.Errorf("status = %q, want %q", sh.Status, model.ShiftScheduled)
	}
	if sh.CreatedByID != f.admin.UserID {
		t.Errorf("created_by = %d, want %d", sh.CreatedByID, f.admin.UserID)
	}

	events, err := f.outbox.ListPending(10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(events) != 1 || events[0].Kind != notify.KindShiftAssigned {
		t.Errorf("expected one shift.assigned event, got %+v", events)
	}
}

func TestCreateShiftOverlapConflicts(t *testing.T) {
	f := setup(t)

	mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))

	_, err := f.svc.Create(f.admin, CreateParams{
		CareRecipientID: f.recipient.ID,
		CaregiverID:     f.caregiver.UserID,
		StartTime:       at(11, 0),
		EndTime:         at(13, 0),
	})
	var conflict *care.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.CaregiverID != f.caregiver.UserID {
		t.Errorf("conflict caregiver = %d, want %d", conflict.CaregiverID, f.caregiver.UserID)
	}
}

func TestCreateShiftTouchingWindowsAllowed(t *testing.T) {
	f := setup(t)

	mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))

	// [12:00, 15:00) touches [09:00, 12:00) but does not overlap.
	sh, err := f.svc.Create(f.admin, CreateParams{
		CareRecipientID: f.recipient.ID,
		CaregiverID:     f.caregiver.UserID,
		StartTime:       at(12, 0),
		EndTime:         at(15, 0),
	})
	if err != nil {
		t.Fatalf("touching shift should be allowed: %v", err)
	}
	if sh.Status != model.ShiftScheduled {
		t.Errorf("status = %q, want scheduled", sh.Status)
	}
}

func TestCreateShiftContainmentConflicts(t *testing.T) {
	f := setup(t)

	mustCreate(t, f, f.caregiver.UserID, at(10, 0), at(11, 0))

	// New window fully contains the existing one.
	_, err := f.svc.Create(f.admin, CreateParams{
		CareRecipientID: f.recipient.ID,
		CaregiverID:     f.caregiver.UserID,
		StartTime:       at(9, 0),
		EndTime:         at(12, 0),
	})
	var conflict *care.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError for containment, got %v", err)
	}
}

func TestCreateShiftCancelledDoesNotBlock(t *testing.T) {
	f := setup(t)

	sh := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))
	if _, err := f.svc.Cancel(f.admin, sh.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := f.svc.Create(f.admin, CreateParams{
		CareRecipientID: f.recipient.ID,
		CaregiverID:     f.caregiver.UserID,
		StartTime:       at(9, 0),
		EndTime:         at(12, 0),
	}); err != nil {
		t.Fatalf("cancelled shift should not block rebooking: %v", err)
	}
}

func TestCreateShiftValidation(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Create(f.admin, CreateParams{
		CareRecipientID: f.recipient.ID,
		CaregiverID:     f.caregiver.UserID,
		StartTime:       at(12, 0),
		EndTime:         at(9, 0),
	})
	var v *care.ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("expected ValidationError for end <= start, got %v", err)
	}
}

func TestCreateShiftViewerForbidden(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Create(f.viewer, CreateParams{
		CareRecipientID: f.recipient.ID,
		CaregiverID:     f.caregiver.UserID,
		StartTime:       at(9, 0),
		EndTime:         at(12, 0),
	})
	var forbidden *care.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError for viewer, got %v", err)
	}
}

func TestCreateShiftViewerAssigneeRejected(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Create(f.admin, CreateParams{
		CareRecipientID: f.recipient.ID,
		CaregiverID:     f.viewer.UserID,
		StartTime:       at(9, 0),
		EndTime:         at(12, 0),
	})
	var v *care.ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("expected ValidationError assigning a viewer, got %v", err)
	}
}

func TestCreateShiftUnknownRecipient(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Create(f.admin, CreateParams{
		CareRecipientID: 9999,
		CaregiverID:     f.caregiver.UserID,
		StartTime:       at(9, 0),
		EndTime:         at(12, 0),
	})
	var nf *care.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestConfirm(t *testing.T) {
	f := setup(t)
	sh := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))

	got, err := f.svc.Confirm(f.caregiver, sh.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got.Status != model.ShiftConfirmed {
		t.Errorf("status = %q, want confirmed", got.Status)
	}
}

func TestConfirmOnlyAssignedCaregiver(t *testing.T) {
	f := setup(t)
	sh := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))

	_, err := f.svc.Confirm(f.admin, sh.ID)
	var forbidden *care.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
}

func TestCheckInWithoutConfirm(t *testing.T) {
	f := setup(t)
	sh := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))

	got, err := f.svc.CheckIn(f.caregiver, sh.ID)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if got.Status != model.ShiftInProgress {
		t.Errorf("status = %q, want in_progress", got.Status)
	}
	if got.CheckedInAt == nil {
		t.Error("checked_in_at should be stamped")
	}
}

func TestCheckOutFromScheduledFails(t *testing.T) {
	f := setup(t)
	sh := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))

	_, err := f.svc.CheckOut(f.caregiver, sh.ID, "")
	var it *care.InvalidTransitionError
	if !errors.As(err, &it) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if it.From != string(model.ShiftScheduled) {
		t.Errorf("From = %q, want scheduled", it.From)
	}
}

func TestCheckOutCompletesAndOrdersTimestamps(t *testing.T) {
	f := setup(t)
	sh := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))

	if _, err := f.svc.CheckIn(f.caregiver, sh.ID); err != nil {
		t.Fatalf("check in: %v", err)
	}
	got, err := f.svc.CheckOut(f.caregiver, sh.ID, "meds given at noon")
	if err != nil {
		t.Fatalf("check out: %v", err)
	}

	if got.Status != model.ShiftCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.HandoffNotes != "meds given at noon" {
		t.Errorf("handoff notes = %q", got.HandoffNotes)
	}
	if got.CheckedOutAt == nil || got.CheckedInAt == nil {
		t.Fatal("both timestamps should be stamped")
	}
	if got.CheckedOutAt.Before(*got.CheckedInAt) {
		t.Error("checked_out_at must not precede checked_in_at")
	}
}

func TestCheckOutEmitsHandoff(t *testing.T) {
	f := setup(t)
	first := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))
	second := mustCreate(t, f, f.admin.UserID, at(12, 0), at(15, 0))

	if _, err := f.svc.CheckIn(f.caregiver, first.ID); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := f.svc.CheckOut(f.caregiver, first.ID, "all quiet"); err != nil {
		t.Fatalf("check out: %v", err)
	}

	events, err := f.outbox.ListPending(10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	var handoffs int
	for _, e := range events {
		if e.Kind == notify.KindShiftHandoff {
			handoffs++
		}
	}
	if handoffs != 1 {
		t.Fatalf("expected 1 handoff event, got %d (events: %+v)", handoffs, events)
	}
	_ = second
}

func TestCheckOutNoNextShiftNoHandoff(t *testing.T) {
	f := setup(t)
	sh := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))

	if _, err := f.svc.CheckIn(f.caregiver, sh.ID); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := f.svc.CheckOut(f.caregiver, sh.ID, ""); err != nil {
		t.Fatalf("check out: %v", err)
	}

	events, _ := f.outbox.ListPending(10)
	for _, e := range events {
		if e.Kind == notify.KindShiftHandoff {
			t.Fatal("no handoff should be emitted without a next shift")
		}
	}
}

func TestCancelByAdmin(t *testing.T) {
	f := setup(t)
	sh := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))

	got, err := f.svc.Cancel(f.admin, sh.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != model.ShiftCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
}

func TestCancelByAssignedCaregiverFromInProgress(t *testing.T) {
	f := setup(t)
	sh := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))

	if _, err := f.svc.CheckIn(f.caregiver, sh.ID); err != nil {
		t.Fatalf("check in: %v", err)
	}
	got, err := f.svc.Cancel(f.caregiver, sh.ID)
	if err != nil {
		t.Fatalf("cancel from in_progress: %v", err)
	}
	if got.Status != model.ShiftCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
}

func TestCancelByUnrelatedCaregiverForbidden(t *testing.T) {
	f := setup(t)
	sh := mustCreate(t, f, f.admin.UserID, at(9, 0), at(12, 0))

	_, err := f.svc.Cancel(f.caregiver, sh.ID)
	var forbidden *care.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
}

func TestCancelCompletedFails(t *testing.T) {
	f := setup(t)
	sh := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))

	if _, err := f.svc.CheckIn(f.caregiver, sh.ID); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := f.svc.CheckOut(f.caregiver, sh.ID, ""); err != nil {
		t.Fatalf("check out: %v", err)
	}

	_, err := f.svc.Cancel(f.admin, sh.ID)
	var it *care.InvalidTransitionError
	if !errors.As(err, &it) {
		t.Fatalf("expected InvalidTransitionError cancelling a completed shift, got %v", err)
	}
}

func TestMarkNoShow(t *testing.T) {
	f := setup(t)
	sh := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))

	got, err := f.svc.MarkNoShow(f.admin, sh.ID)
	if err != nil {
		t.Fatalf("mark no-show: %v", err)
	}
	if got.Status != model.ShiftNoShow {
		t.Errorf("status = %q, want no_show", got.Status)
	}

	if _, err := f.svc.MarkNoShow(f.admin, sh.ID); err == nil {
		t.Error("no_show is terminal; second mark should fail")
	}
}

func TestMarkNoShowNonAdminForbidden(t *testing.T) {
	f := setup(t)
	sh := mustCreate(t, f, f.admin.UserID, at(9, 0), at(12, 0))

	_, err := f.svc.MarkNoShow(f.caregiver, sh.ID)
	var forbidden *care.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
}

func TestCurrentPrefersInProgress(t *testing.T) {
	f := setup(t)
	f.svc.now = func() time.Time { return at(10, 0) }

	sh := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))
	if _, err := f.svc.CheckIn(f.caregiver, sh.ID); err != nil {
		t.Fatalf("check in: %v", err)
	}

	got, err := f.svc.Current(f.viewer, f.recipient.ID)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if got == nil || got.ID != sh.ID {
		t.Fatalf("current = %+v, want shift %d", got, sh.ID)
	}
	if got.Status != model.ShiftInProgress {
		t.Errorf("status = %q, want in_progress", got.Status)
	}
}

func TestCurrentCachesAndInvalidates(t *testing.T) {
	f := setup(t)
	f.svc.now = func() time.Time { return at(10, 0) }

	sh := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))

	first, err := f.svc.Current(f.viewer, f.recipient.ID)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if first == nil || first.Status != model.ShiftScheduled {
		t.Fatalf("current = %+v, want scheduled shift", first)
	}

	// Mutation invalidates; the next read sees the new status, not the
	// cached scheduled one.
	if _, err := f.svc.CheckIn(f.caregiver, sh.ID); err != nil {
		t.Fatalf("check in: %v", err)
	}
	second, err := f.svc.Current(f.viewer, f.recipient.ID)
	if err != nil {
		t.Fatalf("current after mutation: %v", err)
	}
	if second.Status != model.ShiftInProgress {
		t.Errorf("read after invalidation = %q, want in_progress", second.Status)
	}
}

func TestUpcomingExcludesStartedAndCancelled(t *testing.T) {
	f := setup(t)
	f.svc.now = func() time.Time { return at(8, 0) }

	a := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))
	b := mustCreate(t, f, f.admin.UserID, at(12, 0), at(15, 0))
	if _, err := f.svc.Cancel(f.admin, b.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	upcoming, err := f.svc.Upcoming(f.viewer, f.recipient.ID)
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(upcoming) != 1 || upcoming[0].ID != a.ID {
		t.Fatalf("upcoming = %+v, want only shift %d", upcoming, a.ID)
	}
}

func TestDayIncludesCancelled(t *testing.T) {
	f := setup(t)

	a := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))
	if _, err := f.svc.Cancel(f.admin, a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	day, err := f.svc.Day(f.viewer, f.recipient.ID, "2026-03-15")
	if err != nil {
		t.Fatalf("day: %v", err)
	}
	if len(day) != 1 {
		t.Fatalf("day = %+v, want the cancelled shift included", day)
	}
}

func TestDayRejectsBadDate(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Day(f.viewer, f.recipient.ID, "03/15/2026")
	var v *care.ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestMyShifts(t *testing.T) {
	f := setup(t)
	f.svc.now = func() time.Time { return at(8, 0) }

	mine := mustCreate(t, f, f.caregiver.UserID, at(9, 0), at(12, 0))
	mustCreate(t, f, f.admin.UserID, at(12, 0), at(15, 0))

	shifts, err := f.svc.MyShifts(f.caregiver)
	if err != nil {
		t.Fatalf("my shifts: %v", err)
	}
	if len(shifts) != 1 || shifts[0].ID != mine.ID {
		t.Fatalf("my shifts = %+v, want only shift %d", shifts, mine.ID)
	}
}

func TestReadsForbiddenForOutsider(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Current(f.outsider, f.recipient.ID)
	var forbidden *care.ForbiddenError
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ForbiddenError, got %v", err)
	}
}

func TestNoDoubleBookingProperty(t *testing.T) {
	f := setup(t)

	windows := [][2]time.Time{
		{at(8, 0), at(10, 0)},
		{at(9, 0), at(11, 0)},
		{at(10, 0), at(12, 0)},
		{at(11, 30), at(12, 30)},
		{at(7, 0), at(13, 0)},
	}
	for _, w := range windows {
		f.svc.Create(f.admin, CreateParams{
			CareRecipientID: f.recipient.ID,
			CaregiverID:     f.caregiver.UserID,
			StartTime:       w[0],
			EndTime:         w[1],
		})
	}

	shifts, err := f.svc.Range(f.admin, f.recipient.ID, at(0, 0), at(23, 59))
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	for i := range shifts {
		for j := i + 1; j < len(shifts); j++ {
			a, b := shifts[i], shifts[j]
			if a.Status == model.ShiftCancelled || b.Status == model.ShiftCancelled {
				continue
			}
			if a.Overlaps(b.StartTime, b.EndTime) {
				t.Errorf("shifts %d and %d overlap: [%v,%v) vs [%v,%v)",
					a.ID, b.ID, a.StartTime, a.EndTime, b.StartTime, b.EndTime)
			}
		}
	}
}
