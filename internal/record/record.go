// Package record contains the daily usage accounting model and the pure
// decision logic applied to it. This package has NO external collaborators
// (no hub, storage, or clock access); time enters only as time.Time values.
package record

import (
	"time"

	"github.com/goodtune/hubwatch/internal/harmony"
)

// ActivityTally is the per-activity counter inside a day record.
type ActivityTally struct {
	Name   string `json:"name"`
	Active int    `json:"active"`
}

// Tally maps an activity id to its counter for the day.
type Tally map[string]ActivityTally

// DayRecord is the single persisted entity: one per hub per calendar day.
type DayRecord struct {
	// Date is truncated to midnight and identifies the record.
	Date time.Time `json:"date"`
	// Hub identifies the monitored hub the tally was collected for.
	Hub string `json:"hub"`
	// Activities holds one entry per activity the hub defined when the
	// record was created, plus the power-off sentinel.
	Activities Tally `json:"activities"`
}

// NewDayRecord builds a zeroed record seeded from the hub's activity catalog.
// The off activity gets an entry too so that samples taken while the system
// is off still have a home in the tally.
func NewDayRecord(date time.Time, hub string, activities []harmony.Activity, offID string) *DayRecord {
	tally := make(Tally, len(activities)+1)
	for _, a := range activities {
		tally[a.ID] = ActivityTally{Name: a.Label}
	}
	if _, ok := tally[offID]; !ok {
		tally[offID] = ActivityTally{Name: "PowerOff"}
	}
	return &DayRecord{
		Date:       StartOfDay(date),
		Hub:        hub,
		Activities: tally,
	}
}

// TotalActiveMinutes sums the tallied minutes across all activities except
// the off sentinel. It is recomputed on every call rather than stored, so it
// can never drift from the tally.
func (r *DayRecord) TotalActiveMinutes(offID string) int {
	total := 0
	for id, t := range r.Activities {
		if id == offID {
			continue
		}
		total += t.Active
	}
	return total
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
