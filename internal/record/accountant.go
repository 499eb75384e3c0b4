package record

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownActivity reports a sampled activity id that is missing from the
// day record's tally. The catalog loader seeds every defined activity at
// record creation, so hitting this is a programming defect, not a runtime
// condition to recover from.
var ErrUnknownActivity = errors.New("record: sampled activity not present in tally")

// Thresholds holds the configured daily limit and its warning ladder.
type Thresholds struct {
	// MaxMinutes is the hard daily limit. Must be > 0.
	MaxMinutes int
	// WarnPercentages are integer percentages in (0,100), ascending.
	WarnPercentages []int
}

// WarnAt converts a warning percentage to its absolute minute count.
func (t Thresholds) WarnAt(pct int) int {
	return t.MaxMinutes * pct / 100
}

// Effect is a side effect the caller must perform after a sample has been
// accounted. RecordSample computes effects; it never performs them.
type Effect interface {
	Message() string
}

// WarnEffect signals that a warning threshold was reached on this sample.
type WarnEffect struct {
	Pct   int
	Total int
	Max   int
}

// Message renders the warning notification text.
func (e WarnEffect) Message() string {
	return fmt.Sprintf("Warning: system usage is at %d%%.  Current Minutes: %d   Maximum Minutes: %d", e.Pct, e.Total, e.Max)
}

// ShutdownEffect signals that the daily limit was reached while the system
// was on. The caller must notify and then power the hub off.
type ShutdownEffect struct {
	Total int
	Max   int
}

// Message renders the shutdown notification text.
func (e ShutdownEffect) Message() string {
	return "Maximum minutes reached.  System will be shut down.  Sorry about that!"
}

// RecordSample accounts one per-minute sample against the record and returns
// the effects the caller must dispatch.
//
// The sampled activity's counter is incremented by exactly 1, then the total
// (excluding offID) is evaluated against the thresholds:
//
//   - a WarnEffect fires for each percentage whose absolute threshold equals
//     the new total. Exact equality, not >=: since the total grows by at most
//     1 per sample, each threshold is crossed at most once per day.
//   - a ShutdownEffect fires when the total is at or over the limit and the
//     sampled activity is not the off sentinel. After a shutdown the hub
//     reports the off activity, so the effect self-quiesces without any
//     persisted fired flag.
//
// The record is mutated in place. The function is total over valid input;
// an unknown activity id returns ErrUnknownActivity and leaves the record
// untouched.
func RecordSample(r *DayRecord, currentID, offID string, th Thresholds) ([]Effect, error) {
	tally, ok := r.Activities[currentID]
	if !ok {
		return nil, fmt.Errorf("%w: id %q (hub %s, date %s)",
			ErrUnknownActivity, currentID, r.Hub, r.Date.Format("2006-01-02"))
	}

	tally.Active++
	r.Activities[currentID] = tally

	total := r.TotalActiveMinutes(offID)

	var effects []Effect
	pcts := append([]int(nil), th.WarnPercentages...)
	sort.Ints(pcts)
	for _, pct := range pcts {
		if total == th.WarnAt(pct) {
			effects = append(effects, WarnEffect{Pct: pct, Total: total, Max: th.MaxMinutes})
		}
	}

	if total >= th.MaxMinutes && currentID != offID {
		effects = append(effects, ShutdownEffect{Total: total, Max: th.MaxMinutes})
	}

	return effects, nil
}
