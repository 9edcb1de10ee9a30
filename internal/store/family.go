package store

import (
	"database/sql"
	"fmt"

	"github.com/jmckenna/carecircle/internal/model"
)

type FamilyStore struct {
	db *sql.DB
}

func NewFamilyStore(db *sql.DB) *FamilyStore {
	return &FamilyStore{db: db}
}

const familyCols = `id, name, created_at, updated_at`
const membershipCols = `id, family_id, user_id, role, is_active, created_at, updated_at`

func scanFamily(scanner interface{ Scan(...any) error }) (*model.Family, error) {
	var f model.Family
	err := scanner.Scan(&f.ID, &f.Name, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func scanMembership(scanner interface{ Scan(...any) error }) (*model.FamilyMembership, error) {
	var m model.FamilyMembership
	var active int
	err := scanner.Scan(&m.ID, &m.FamilyID, &m.UserID, &m.Role, &active, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.IsActive = active != 0
	return &m, nil
}

func (s *FamilyStore) Create(name string) (*model.Family, error) {
	result, err := s.db.Exec(`INSERT INTO families (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("insert family: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *FamilyStore) GetByID(id int64) (*model.Family, error) {
	row := s.db.QueryRow(`SELECT `+familyCols+` FROM families WHERE id = ?`, id)
	f, err := scanFamily(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	return f, nil
}

func (s *FamilyStore) AddMembership(familyID, userID int64, role string) (*model.FamilyMembership, error) {
	result, err := s.db.Exec(
		`INSERT INTO family_memberships (family_id, user_id, role) VALUES (?, ?, ?)`,
		familyID, userID, role,
	)
	if err != nil {
		return nil, fmt.Errorf("add membership: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+membershipCols+` FROM family_memberships WHERE id = ?`, id)
	return scanMembership(row)
}

func (s *FamilyStore) GetMembership(familyID, userID int64) (*model.FamilyMembership, error) {
	row := s.db.QueryRow(
		`SELECT `+membershipCols+` FROM family_memberships WHERE family_id = ? AND user_id = ?`,
		familyID, userID,
	)
	m, err := scanMembership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

func (s *FamilyStore) ListMemberships(familyID int64) ([]model.FamilyMembership, error) {
	rows, err := s.db.Query(
		`SELECT `+membershipCols+` FROM family_memberships WHERE family_id = ? ORDER BY created_at ASC`,
		familyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []model.FamilyMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		memberships = append(memberships, *m)
	}
	return memberships, rows.Err()
}

// ListFamiliesForUser returns the families where the user holds an
// active membership.
func (s *FamilyStore) ListFamiliesForUser(userID int64) ([]model.Family, error) {
	rows, err := s.db.Query(
		`SELECT f.id, f.name, f.created_at, f.updated_at
		 FROM families f
		 JOIN family_memberships fm ON f.id = fm.family_id
		 WHERE fm.user_id = ? AND fm.is_active = 1
		 ORDER BY f.name ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list families for user: %w", err)
	}
	defer rows.Close()

	var families []model.Family
	for rows.Next() {
		f, err := scanFamily(rows)
		if err != nil {
			return nil, fmt.Errorf("scan family: %w", err)
		}
		families = append(families, *f)
	}
	return families, rows.Err()
}

func (s *FamilyStore) UpdateMembershipRole(familyID, userID int64, role string) (*model.FamilyMembership, error) {
	_, err := s.db.Exec(
		`UPDATE family_memberships SET role = ?, updated_at = datetime('now') WHERE family_id = ? AND user_id = ?`,
		role, familyID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update membership role: %w", err)
	}
	return s.GetMembership(familyID, userID)
}

// SetMembershipActive flips the active flag without removing the row,
// so past shifts and logs keep a valid reference.
func (s *FamilyStore) SetMembershipActive(familyID, userID int64, active bool) error {
	activeInt := 0
	if active {
		activeInt = 1
	}
	_, err := s.db.Exec(
		`UPDATE family_memberships SET is_active = ?, updated_at = datetime('now') WHERE family_id = ? AND user_id = ?`,
		activeInt, familyID, userID,
	)
	if err != nil {
		return fmt.Errorf("set membership active: %w", err)
	}
	return nil
}
