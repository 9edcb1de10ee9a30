package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmckenna/carecircle/internal/model"
)

type OutboxStore struct {
	db *sql.DB
}

func NewOutboxStore(db *sql.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

const outboxCols = `id, kind, family_id, payload, attempts, last_error, created_at, delivered_at`

func scanOutboxEvent(scanner interface{ Scan(...any) error }) (*model.OutboxEvent, error) {
	var e model.OutboxEvent
	var delivered sql.NullTime

	err := scanner.Scan(&e.ID, &e.Kind, &e.FamilyID, &e.Payload, &e.Attempts, &e.LastError, &e.CreatedAt, &delivered)
	if err != nil {
		return nil, err
	}
	if delivered.Valid {
		e.DeliveredAt = &delivered.Time
	}
	return &e, nil
}

// Append queues a domain event for delivery. This is the cheap, local
// write mutating operations make after their state change commits.
func (s *OutboxStore) Append(kind string, familyID int64, payload string) (*model.OutboxEvent, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO outbox_events (id, kind, family_id, payload) VALUES (?, ?, ?, ?)`,
		id, kind, familyID, payload,
	)
	if err != nil {
		return nil, fmt.Errorf("append outbox event: %w", err)
	}
	return s.GetByID(id)
}

func (s *OutboxStore) GetByID(id string) (*model.OutboxEvent, error) {
	row := s.db.QueryRow(`SELECT `+outboxCols+` FROM outbox_events WHERE id = ?`, id)
	e, err := scanOutboxEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get outbox event: %w", err)
	}
	return e, nil
}

// ListPending returns undelivered events oldest-first, up to limit.
func (s *OutboxStore) ListPending(limit int) ([]model.OutboxEvent, error) {
	rows, err := s.db.Query(
		`SELECT `+outboxCols+` FROM outbox_events WHERE delivered_at IS NULL ORDER BY created_at ASC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox events: %w", err)
	}
	defer rows.Close()

	var events []model.OutboxEvent
	for rows.Next() {
		e, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (s *OutboxStore) MarkDelivered(id string, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE outbox_events SET delivered_at = ? WHERE id = ?`,
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox event delivered: %w", err)
	}
	return nil
}

func (s *OutboxStore) RecordFailure(id string, attempts int, lastError string) error {
	_, err := s.db.Exec(
		`UPDATE outbox_events SET attempts = ?, last_error = ? WHERE id = ?`,
		attempts, lastError, id,
	)
	if err != nil {
		return fmt.Errorf("record outbox failure: %w", err)
	}
	return nil
}

// DeleteDelivered prunes events delivered before the cutoff. Returns
// the number removed.
func (s *OutboxStore) DeleteDelivered(before time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM outbox_events WHERE delivered_at IS NOT NULL AND delivered_at < ?`,
		before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete delivered outbox events: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
