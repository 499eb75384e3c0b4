// Package storage defines the persistence surface for daily usage records.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/goodtune/hubwatch/internal/record"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Records() RecordStore
}

// RecordStore persists day records, keyed uniquely by calendar date.
type RecordStore interface {
	// FindByDate returns the record for the given date, or ErrNotFound.
	FindByDate(ctx context.Context, date time.Time) (*record.DayRecord, error)

	// CreateIfAbsent stores the record only if no record exists for its
	// date yet. The check-and-set is atomic: two concurrent creators for
	// the same date result in exactly one stored record. Returns whether
	// this call created it.
	CreateIfAbsent(ctx context.Context, rec *record.DayRecord) (bool, error)

	// Upsert stores the record, replacing any existing record for its date.
	Upsert(ctx context.Context, rec *record.DayRecord) error
}

// DayKey renders the date key a record is stored under.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
