package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmckenna/carecircle/internal/model"
)

type ShiftStore struct {
	db *sql.DB
}

func NewShiftStore(db *sql.DB) *ShiftStore {
	return &ShiftStore{db: db}
}

const shiftCols = `id, care_recipient_id, caregiver_id, start_time, end_time, status,
	checked_in_at, checked_out_at, notes, handoff_notes, created_by_id, created_at, updated_at`

func scanShift(scanner interface{ Scan(...any) error }) (*model.Shift, error) {
	var sh model.Shift
	var status string
	var checkedIn, checkedOut sql.NullTime

	err := scanner.Scan(
		&sh.ID, &sh.CareRecipientID, &sh.CaregiverID, &sh.StartTime, &sh.EndTime, &status,
		&checkedIn, &checkedOut, &sh.Notes, &sh.HandoffNotes, &sh.CreatedByID, &sh.CreatedAt, &sh.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sh.Status = model.ShiftStatus(status)
	if checkedIn.Valid {
		sh.CheckedInAt = &checkedIn.Time
	}
	if checkedOut.Valid {
		sh.CheckedOutAt = &checkedOut.Time
	}
	return &sh, nil
}

// CreateIfNoConflict inserts a scheduled shift unless the caregiver
// already has a non-cancelled shift overlapping [start, end). The
// overlap check and the insert run in one transaction so two concurrent
// creates cannot both pass the check. On conflict it returns the
// existing shift and no new one.
func (s *ShiftStore) CreateIfNoConflict(careRecipientID, caregiverID int64, start, end time.Time, notes string, createdByID int64) (created *model.Shift, conflicting *model.Shift, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(
		`SELECT `+shiftCols+` FROM shifts
		 WHERE caregiver_id = ? AND status != 'cancelled' AND start_time < ? AND end_time > ?
		 ORDER BY start_time ASC LIMIT 1`,
		caregiverID, end.UTC(), start.UTC(),
	)
	existing, err := scanShift(row)
	if err != nil && err != sql.ErrNoRows {
		return nil, nil, fmt.Errorf("check shift conflict: %w", err)
	}
	if existing != nil {
		return nil, existing, nil
	}

	result, err := tx.Exec(
		`INSERT INTO shifts (care_recipient_id, caregiver_id, start_time, end_time, status, notes, created_by_id)
		 VALUES (?, ?, ?, ?, 'scheduled', ?, ?)`,
		careRecipientID, caregiverID, start.UTC(), end.UTC(), notes, createdByID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("insert shift: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit shift create: %w", err)
	}
	created, err = s.GetByID(id)
	return created, nil, err
}

func (s *ShiftStore) GetByID(id int64) (*model.Shift, error) {
	row := s.db.QueryRow(`SELECT `+shiftCols+` FROM shifts WHERE id = ?`, id)
	sh, err := scanShift(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shift: %w", err)
	}
	return sh, nil
}

// Current returns the shift covering now for a recipient, preferring an
// in-progress shift over a merely scheduled one. Cancelled and finished
// shifts are never current.
func (s *ShiftStore) Current(careRecipientID int64, now time.Time) (*model.Shift, error) {
	row := s.db.QueryRow(
		`SELECT `+shiftCols+` FROM shifts
		 WHERE care_recipient_id = ? AND start_time <= ? AND end_time > ?
		   AND status IN ('scheduled', 'confirmed', 'in_progress')
		 ORDER BY CASE status WHEN 'in_progress' THEN 0 ELSE 1 END, start_time ASC
		 LIMIT 1`,
		careRecipientID, now.UTC(), now.UTC(),
	)
	sh, err := scanShift(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get current shift: %w", err)
	}
	return sh, nil
}

func (s *ShiftStore) Upcoming(careRecipientID int64, after time.Time, limit int) ([]model.Shift, error) {
	rows, err := s.db.Query(
		`SELECT `+shiftCols+` FROM shifts
		 WHERE care_recipient_id = ? AND start_time > ? AND status IN ('scheduled', 'confirmed')
		 ORDER BY start_time ASC LIMIT ?`,
		careRecipientID, after.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list upcoming shifts: %w", err)
	}
	defer rows.Close()
	return collectShifts(rows)
}

// ListByRecipientRange returns shifts for a recipient whose window
// intersects [start, end), cancelled included so day views can show
// them struck through.
func (s *ShiftStore) ListByRecipientRange(careRecipientID int64, start, end time.Time) ([]model.Shift, error) {
	rows, err := s.db.Query(
		`SELECT `+shiftCols+` FROM shifts
		 WHERE care_recipient_id = ? AND start_time < ? AND end_time > ?
		 ORDER BY start_time ASC`,
		careRecipientID, end.UTC(), start.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list shifts by range: %w", err)
	}
	defer rows.Close()
	return collectShifts(rows)
}

func (s *ShiftStore) ListByCaregiver(caregiverID int64, after time.Time) ([]model.Shift, error) {
	rows, err := s.db.Query(
		`SELECT `+shiftCols+` FROM shifts
		 WHERE caregiver_id = ? AND end_time > ? AND status != 'cancelled'
		 ORDER BY start_time ASC`,
		caregiverID, after.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list shifts by caregiver: %w", err)
	}
	defer rows.Close()
	return collectShifts(rows)
}

// NextScheduled returns the next non-cancelled shift for the recipient
// starting at or after the given time, excluding one shift id. Used for
// handoff chaining at check-out.
func (s *ShiftStore) NextScheduled(careRecipientID int64, after time.Time, excludeID int64) (*model.Shift, error) {
	row := s.db.QueryRow(
		`SELECT `+shiftCols+` FROM shifts
		 WHERE care_recipient_id = ? AND start_time >= ? AND id != ? AND status != 'cancelled'
		 ORDER BY start_time ASC LIMIT 1`,
		careRecipientID, after.UTC(), excludeID,
	)
	sh, err := scanShift(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get next scheduled shift: %w", err)
	}
	return sh, nil
}

// Transition moves a shift to a new status only if its current status is
// one of the expected pre-states. It reports whether the update applied,
// so concurrent transition attempts on the same shift cannot both
// succeed.
func (s *ShiftStore) Transition(id int64, to model.ShiftStatus, from ...model.ShiftStatus) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE shifts SET status = ?, updated_at = datetime('now') WHERE id = ? AND status IN (`+statusPlaceholders(len(from))+`)`,
		transitionArgs(string(to), id, from)...,
	)
	if err != nil {
		return false, fmt.Errorf("transition shift: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// CheckIn transitions to in_progress and stamps checked_in_at in the
// same statement, guarded by the expected pre-states.
func (s *ShiftStore) CheckIn(id int64, at time.Time, from ...model.ShiftStatus) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE shifts SET status = 'in_progress', checked_in_at = ?, updated_at = datetime('now')
		 WHERE id = ? AND status IN (`+statusPlaceholders(len(from))+`)`,
		transitionArgs(at.UTC(), id, from)...,
	)
	if err != nil {
		return false, fmt.Errorf("check in shift: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// CheckOut transitions to completed, stamps checked_out_at, and merges
// handoff notes, guarded on the in_progress pre-state.
func (s *ShiftStore) CheckOut(id int64, at time.Time, handoffNotes string) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE shifts SET status = 'completed', checked_out_at = ?, handoff_notes = ?, updated_at = datetime('now')
		 WHERE id = ? AND status = 'in_progress'`,
		at.UTC(), handoffNotes, id,
	)
	if err != nil {
		return false, fmt.Errorf("check out shift: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func collectShifts(rows *sql.Rows) ([]model.Shift, error) {
	var shifts []model.Shift
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		shifts = append(shifts, *sh)
	}
	return shifts, rows.Err()
}

func statusPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func transitionArgs(first any, id int64, from []model.ShiftStatus) []any {
	args := []any{first, id}
	for _, f := range from {
		args = append(args, string(f))
	}
	return args
}
