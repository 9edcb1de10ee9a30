package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmckenna/carecircle/internal/model"
)

type MedicationStore struct {
	db *sql.DB
}

func NewMedicationStore(db *sql.DB) *MedicationStore {
	return &MedicationStore{db: db}
}

const medicationCols = `id, care_recipient_id, name, dosage, form, frequency, scheduled_times,
	current_supply, refill_at, start_date, end_date, is_active, created_at, updated_at`

func scanMedication(scanner interface{ Scan(...any) error }) (*model.Medication, error) {
	var m model.Medication
	var times string
	var supply, refillAt sql.NullInt64
	var endDate sql.NullTime
	var active int

	err := scanner.Scan(
		&m.ID, &m.CareRecipientID, &m.Name, &m.Dosage, &m.Form, &m.Frequency, &times,
		&supply, &refillAt, &m.StartDate, &endDate, &active, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(times), &m.ScheduledTimes); err != nil {
		return nil, fmt.Errorf("decode scheduled times: %w", err)
	}
	if supply.Valid {
		m.CurrentSupply = &supply.Int64
	}
	if refillAt.Valid {
		m.RefillAt = &refillAt.Int64
	}
	if endDate.Valid {
		m.EndDate = &endDate.Time
	}
	m.IsActive = active != 0
	return &m, nil
}

func encodeTimes(times []string) (string, error) {
	if times == nil {
		times = []string{}
	}
	b, err := json.Marshal(times)
	if err != nil {
		return "", fmt.Errorf("encode scheduled times: %w", err)
	}
	return string(b), nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func (s *MedicationStore) Create(careRecipientID int64, name, dosage, form, frequency string, scheduledTimes []string, currentSupply, refillAt *int64, startDate time.Time, endDate *time.Time) (*model.Medication, error) {
	times, err := encodeTimes(scheduledTimes)
	if err != nil {
		return nil, err
	}

	var end sql.NullTime
	if endDate != nil {
		end = sql.NullTime{Time: endDate.UTC(), Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO medications (care_recipient_id, name, dosage, form, frequency, scheduled_times, current_supply, refill_at, start_date, end_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		careRecipientID, name, dosage, form, frequency, times, nullInt(currentSupply), nullInt(refillAt), startDate.UTC(), end,
	)
	if err != nil {
		return nil, fmt.Errorf("insert medication: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *MedicationStore) GetByID(id int64) (*model.Medication, error) {
	row := s.db.QueryRow(`SELECT `+medicationCols+` FROM medications WHERE id = ?`, id)
	m, err := scanMedication(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get medication: %w", err)
	}
	return m, nil
}

func (s *MedicationStore) ListByRecipient(careRecipientID int64, activeOnly bool) ([]model.Medication, error) {
	query := `SELECT ` + medicationCols + ` FROM medications WHERE care_recipient_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.Query(query, careRecipientID)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()
	return collectMedications(rows)
}

func (s *MedicationStore) Update(id int64, name, dosage, form, frequency string, scheduledTimes []string, refillAt *int64, startDate time.Time, endDate *time.Time) (*model.Medication, error) {
	times, err := encodeTimes(scheduledTimes)
	if err != nil {
		return nil, err
	}

	var end sql.NullTime
	if endDate != nil {
		end = sql.NullTime{Time: endDate.UTC(), Valid: true}
	}

	_, err = s.db.Exec(
		`UPDATE medications SET name = ?, dosage = ?, form = ?, frequency = ?, scheduled_times = ?, refill_at = ?, start_date = ?, end_date = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		name, dosage, form, frequency, times, nullInt(refillAt), startDate.UTC(), end, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update medication: %w", err)
	}
	return s.GetByID(id)
}

func (s *MedicationStore) SetActive(id int64, active bool) error {
	activeInt := 0
	if active {
		activeInt = 1
	}
	_, err := s.db.Exec(
		`UPDATE medications SET is_active = ?, updated_at = datetime('now') WHERE id = ?`,
		activeInt, id,
	)
	if err != nil {
		return fmt.Errorf("set medication active: %w", err)
	}
	return nil
}

// InsertLogAndDecrement persists an administration log and, for a GIVEN
// dose of a supply-tracked medication, decrements current_supply in the
// same transaction. The decrement is a single UPDATE flooring at zero,
// so concurrent GIVEN logs cannot lose a decrement or drive the supply
// negative. It returns the log and the post-decrement supply (nil when
// the medication does not track supply).
func (s *MedicationStore) InsertLogAndDecrement(medicationID int64, status model.LogStatus, scheduledTime time.Time, givenTime *time.Time, loggedByID int64, skipReason, notes string) (*model.MedicationLog, *int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var given sql.NullTime
	if givenTime != nil {
		given = sql.NullTime{Time: givenTime.UTC(), Valid: true}
	}

	result, err := tx.Exec(
		`INSERT INTO medication_logs (medication_id, status, scheduled_time, given_time, logged_by_id, skip_reason, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		medicationID, string(status), scheduledTime.UTC(), given, loggedByID, skipReason, notes,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("insert medication log: %w", err)
	}
	logID, err := result.LastInsertId()
	if err != nil {
		return nil, nil, fmt.Errorf("last insert id: %w", err)
	}

	var newSupply *int64
	if status == model.LogGiven {
		if _, err := tx.Exec(
			`UPDATE medications SET current_supply = MAX(0, current_supply - 1), updated_at = datetime('now')
			 WHERE id = ? AND current_supply IS NOT NULL`,
			medicationID,
		); err != nil {
			return nil, nil, fmt.Errorf("decrement supply: %w", err)
		}

		var supply sql.NullInt64
		if err := tx.QueryRow(`SELECT current_supply FROM medications WHERE id = ?`, medicationID).Scan(&supply); err != nil {
			return nil, nil, fmt.Errorf("read supply: %w", err)
		}
		if supply.Valid {
			newSupply = &supply.Int64
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit dose log: %w", err)
	}

	log, err := s.GetLogByID(logID)
	return log, newSupply, err
}

// AddSupply records a refill by adding quantity to the current supply.
// A medication that was not tracking supply starts tracking from the
// refilled quantity.
func (s *MedicationStore) AddSupply(id int64, quantity int64) (*model.Medication, error) {
	_, err := s.db.Exec(
		`UPDATE medications SET current_supply = COALESCE(current_supply, 0) + ?, updated_at = datetime('now') WHERE id = ?`,
		quantity, id,
	)
	if err != nil {
		return nil, fmt.Errorf("add supply: %w", err)
	}
	return s.GetByID(id)
}

// ListLowSupply returns active, supply-tracked medications at or below
// their refill threshold.
func (s *MedicationStore) ListLowSupply(careRecipientID int64) ([]model.Medication, error) {
	rows, err := s.db.Query(
		`SELECT `+medicationCols+` FROM medications
		 WHERE care_recipient_id = ? AND is_active = 1
		   AND current_supply IS NOT NULL AND refill_at IS NOT NULL AND current_supply <= refill_at
		 ORDER BY current_supply ASC, name ASC`,
		careRecipientID,
	)
	if err != nil {
		return nil, fmt.Errorf("list low supply medications: %w", err)
	}
	defer rows.Close()
	return collectMedications(rows)
}

func collectMedications(rows *sql.Rows) ([]model.Medication, error) {
	var meds []model.Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		meds = append(meds, *m)
	}
	return meds, rows.Err()
}
