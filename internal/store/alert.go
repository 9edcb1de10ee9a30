package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmckenna/carecircle/internal/model"
)

type AlertStore struct {
	db *sql.DB
}

func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

const alertCols = `id, care_recipient_id, raised_by_id, message, raised_at, resolved_at, resolved_by_id`

func scanAlert(scanner interface{ Scan(...any) error }) (*model.EmergencyAlert, error) {
	var a model.EmergencyAlert
	var resolvedAt sql.NullTime
	var resolvedBy sql.NullInt64

	err := scanner.Scan(&a.ID, &a.CareRecipientID, &a.RaisedByID, &a.Message, &a.RaisedAt, &resolvedAt, &resolvedBy)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	if resolvedBy.Valid {
		a.ResolvedByID = &resolvedBy.Int64
	}
	return &a, nil
}

func (s *AlertStore) Create(careRecipientID, raisedByID int64, message string) (*model.EmergencyAlert, error) {
	result, err := s.db.Exec(
		`INSERT INTO emergency_alerts (care_recipient_id, raised_by_id, message) VALUES (?, ?, ?)`,
		careRecipientID, raisedByID, message,
	)
	if err != nil {
		return nil, fmt.Errorf("insert emergency alert: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *AlertStore) GetByID(id int64) (*model.EmergencyAlert, error) {
	row := s.db.QueryRow(`SELECT `+alertCols+` FROM emergency_alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get emergency alert: %w", err)
	}
	return a, nil
}

// Resolve stamps resolution only if the alert is still unresolved, so
// two simultaneous resolutions cannot both report success.
func (s *AlertStore) Resolve(id, resolvedByID int64, at time.Time) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE emergency_alerts SET resolved_at = ?, resolved_by_id = ? WHERE id = ? AND resolved_at IS NULL`,
		at.UTC(), resolvedByID, id,
	)
	if err != nil {
		return false, fmt.Errorf("resolve emergency alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *AlertStore) ListActive(careRecipientID int64) ([]model.EmergencyAlert, error) {
	rows, err := s.db.Query(
		`SELECT `+alertCols+` FROM emergency_alerts
		 WHERE care_recipient_id = ? AND resolved_at IS NULL
		 ORDER BY raised_at DESC`,
		careRecipientID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.EmergencyAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}
