package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmckenna/carecircle/internal/model"
)

type CareRecipientStore struct {
	db *sql.DB
}

func NewCareRecipientStore(db *sql.DB) *CareRecipientStore {
	return &CareRecipientStore{db: db}
}

const careRecipientCols = `id, family_id, name, date_of_birth, notes, created_at, updated_at`

func scanCareRecipient(scanner interface{ Scan(...any) error }) (*model.CareRecipient, error) {
	var r model.CareRecipient
	var dob sql.NullTime

	err := scanner.Scan(&r.ID, &r.FamilyID, &r.Name, &dob, &r.Notes, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if dob.Valid {
		r.DateOfBirth = &dob.Time
	}
	return &r, nil
}

func (s *CareRecipientStore) Create(familyID int64, name string, dateOfBirth *time.Time, notes string) (*model.CareRecipient, error) {
	var dob sql.NullTime
	if dateOfBirth != nil {
		dob = sql.NullTime{Time: dateOfBirth.UTC(), Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO care_recipients (family_id, name, date_of_birth, notes) VALUES (?, ?, ?, ?)`,
		familyID, name, dob, notes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert care recipient: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *CareRecipientStore) GetByID(id int64) (*model.CareRecipient, error) {
	row := s.db.QueryRow(`SELECT `+careRecipientCols+` FROM care_recipients WHERE id = ?`, id)
	r, err := scanCareRecipient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get care recipient: %w", err)
	}
	return r, nil
}

func (s *CareRecipientStore) ListByFamily(familyID int64) ([]model.CareRecipient, error) {
	rows, err := s.db.Query(
		`SELECT `+careRecipientCols+` FROM care_recipients WHERE family_id = ? ORDER BY name ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list care recipients: %w", err)
	}
	defer rows.Close()

	var recipients []model.CareRecipient
	for rows.Next() {
		r, err := scanCareRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan care recipient: %w", err)
		}
		recipients = append(recipients, *r)
	}
	return recipients, rows.Err()
}

func (s *CareRecipientStore) Update(id int64, name string, dateOfBirth *time.Time, notes string) (*model.CareRecipient, error) {
	var dob sql.NullTime
	if dateOfBirth != nil {
		dob = sql.NullTime{Time: dateOfBirth.UTC(), Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE care_recipients SET name = ?, date_of_birth = ?, notes = ?, updated_at = datetime('now') WHERE id = ?`,
		name, dob, notes, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update care recipient: %w", err)
	}
	return s.GetByID(id)
}
