// Package medication covers the dosing domain: the day-schedule
// materializer, dose logging with supply tracking, and adherence
// statistics.
package medication

import (
	"fmt"
	"sort"
	"time"

	"github.com/jmckenna/carecircle/internal/model"
)

// SlotPending marks a schedule slot with no log yet.
const SlotPending = "pending"

// ScheduleSlot is one expected dose on a given day: the cross of a
// medication's recurring time-of-day with a calendar date, joined
// against any log recorded for that exact slot.
type ScheduleSlot struct {
	MedicationID   int64      `json:"medication_id"`
	MedicationName string     `json:"medication_name"`
	Dosage         string     `json:"dosage"`
	ScheduledTime  time.Time  `json:"scheduled_time"`
	Status         string     `json:"status"`
	LogID          *int64     `json:"log_id,omitempty"`
	GivenTime      *time.Time `json:"given_time,omitempty"`
	LoggedByID     *int64     `json:"logged_by_id,omitempty"`
}

// materializeDay expands every active medication whose date window
// contains day into slots and joins the logs by exact scheduled time.
// Pure projection: no state is read or written here; the caller supplies
// both sides of the join. Output is sorted by slot time, then
// medication id for a stable order within the same minute.
func materializeDay(day time.Time, meds []model.Medication, logs []model.MedicationLog) ([]ScheduleSlot, error) {
	logIndex := make(map[int64]map[time.Time]*model.MedicationLog, len(meds))
	for i := range logs {
		l := &logs[i]
		byTime, ok := logIndex[l.MedicationID]
		if !ok {
			byTime = make(map[time.Time]*model.MedicationLog)
			logIndex[l.MedicationID] = byTime
		}
		byTime[l.ScheduledTime.UTC()] = l
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	var slots []ScheduleSlot
	for i := range meds {
		m := &meds[i]
		if !m.IsActive || !coversDay(m, dayStart) {
			continue
		}
		for _, hhmm := range m.ScheduledTimes {
			slotTime, err := combine(dayStart, hhmm)
			if err != nil {
				return nil, fmt.Errorf("medication %d: %w", m.ID, err)
			}

			slot := ScheduleSlot{
				MedicationID:   m.ID,
				MedicationName: m.Name,
				Dosage:         m.Dosage,
				ScheduledTime:  slotTime,
				Status:         SlotPending,
			}
			if l, ok := logIndex[m.ID][slotTime]; ok {
				slot.Status = string(l.Status)
				slot.LogID = &l.ID
				slot.GivenTime = l.GivenTime
				slot.LoggedByID = &l.LoggedByID
			}
			slots = append(slots, slot)
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].ScheduledTime.Equal(slots[j].ScheduledTime) {
			return slots[i].ScheduledTime.Before(slots[j].ScheduledTime)
		}
		return slots[i].MedicationID < slots[j].MedicationID
	})
	return slots, nil
}

// coversDay reports whether day falls inside the medication's
// [StartDate, EndDate] window, compared at date granularity. EndDate is
// inclusive; nil means open-ended.
func coversDay(m *model.Medication, day time.Time) bool {
	start := dateOnly(m.StartDate)
	if day.Before(start) {
		return false
	}
	if m.EndDate != nil && day.After(dateOnly(*m.EndDate)) {
		return false
	}
	return true
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// combine merges a date with an "HH:MM" time-of-day into one UTC instant.
func combine(dayStart time.Time, hhmm string) (time.Time, error) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad scheduled time %q: %w", hhmm, err)
	}
	return dayStart.Add(time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute), nil
}
