package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmckenna/carecircle/internal/model"
)

const medicationLogCols = `id, medication_id, status, scheduled_time, given_time, logged_by_id, skip_reason, notes, created_at`

func scanMedicationLog(scanner interface{ Scan(...any) error }) (*model.MedicationLog, error) {
	var l model.MedicationLog
	var status string
	var given sql.NullTime

	err := scanner.Scan(
		&l.ID, &l.MedicationID, &status, &l.ScheduledTime, &given,
		&l.LoggedByID, &l.SkipReason, &l.Notes, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Status = model.LogStatus(status)
	if given.Valid {
		l.GivenTime = &given.Time
	}
	return &l, nil
}

func (s *MedicationStore) GetLogByID(id int64) (*model.MedicationLog, error) {
	row := s.db.QueryRow(`SELECT `+medicationLogCols+` FROM medication_logs WHERE id = ?`, id)
	l, err := scanMedicationLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get medication log: %w", err)
	}
	return l, nil
}

// ListLogsForSlots returns the logs of a recipient's medications whose
// scheduled_time falls in [start, end). The materializer joins these
// against the expanded schedule.
func (s *MedicationStore) ListLogsForSlots(careRecipientID int64, start, end time.Time) ([]model.MedicationLog, error) {
	rows, err := s.db.Query(
		`SELECT l.id, l.medication_id, l.status, l.scheduled_time, l.given_time, l.logged_by_id, l.skip_reason, l.notes, l.created_at
		 FROM medication_logs l
		 JOIN medications m ON m.id = l.medication_id
		 WHERE m.care_recipient_id = ? AND l.scheduled_time >= ? AND l.scheduled_time < ?
		 ORDER BY l.scheduled_time ASC`,
		careRecipientID, start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list logs for slots: %w", err)
	}
	defer rows.Close()
	return collectMedicationLogs(rows)
}

func (s *MedicationStore) ListLogsByMedication(medicationID int64, start, end time.Time) ([]model.MedicationLog, error) {
	rows, err := s.db.Query(
		`SELECT `+medicationLogCols+` FROM medication_logs
		 WHERE medication_id = ? AND scheduled_time >= ? AND scheduled_time < ?
		 ORDER BY scheduled_time DESC`,
		medicationID, start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list logs by medication: %w", err)
	}
	defer rows.Close()
	return collectMedicationLogs(rows)
}

// AdherenceCounts aggregates a recipient's logs by status over
// [start, end).
func (s *MedicationStore) AdherenceCounts(careRecipientID int64, start, end time.Time) (map[model.LogStatus]int, error) {
	rows, err := s.db.Query(
		`SELECT l.status, COUNT(*)
		 FROM medication_logs l
		 JOIN medications m ON m.id = l.medication_id
		 WHERE m.care_recipient_id = ? AND l.scheduled_time >= ? AND l.scheduled_time < ?
		 GROUP BY l.status`,
		careRecipientID, start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("adherence counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.LogStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan adherence count: %w", err)
		}
		counts[model.LogStatus(status)] = n
	}
	return counts, rows.Err()
}

func collectMedicationLogs(rows *sql.Rows) ([]model.MedicationLog, error) {
	var logs []model.MedicationLog
	for rows.Next() {
		l, err := scanMedicationLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan medication log: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}
