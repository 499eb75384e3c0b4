package watch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goodtune/hubwatch/internal/harmony"
	"github.com/goodtune/hubwatch/internal/notify"
	"github.com/goodtune/hubwatch/internal/record"
	"github.com/goodtune/hubwatch/internal/storage"
	"github.com/rs/zerolog"
)

var testCatalog = []harmony.Activity{
	{ID: "1", Label: "Watch TV"},
	{ID: "2", Label: "Listen to Music"},
	{ID: "-1", Label: "PowerOff"},
}

// memStore is an in-memory RecordStore for driver tests.
type memStore struct {
	mu      sync.Mutex
	records map[string]*record.DayRecord
	creates int
	FindErr error
	SaveErr error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*record.DayRecord)}
}

func (s *memStore) FindByDate(ctx context.Context, date time.Time) (*record.DayRecord, error) {
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[storage.DayKey(date)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *memStore) CreateIfAbsent(ctx context.Context, rec *record.DayRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := storage.DayKey(rec.Date)
	if _, ok := s.records[key]; ok {
		return false, nil
	}
	s.records[key] = cloneRecord(rec)
	s.creates++
	return true, nil
}

func (s *memStore) Upsert(ctx context.Context, rec *record.DayRecord) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[storage.DayKey(rec.Date)] = cloneRecord(rec)
	return nil
}

func cloneRecord(rec *record.DayRecord) *record.DayRecord {
	out := &record.DayRecord{Date: rec.Date, Hub: rec.Hub, Activities: make(record.Tally, len(rec.Activities))}
	for id, t := range rec.Activities {
		out.Activities[id] = t
	}
	return out
}

func newTestWatcher(t *testing.T, hub harmony.Client, store storage.RecordStore, notifier notify.Notifier, th record.Thresholds) *Watcher {
	t.Helper()
	w := New(Config{
		Hub:        "living-room",
		Thresholds: th,
		Recipients: []string{"alice", "bob"},
	}, hub, store, notifier, zerolog.Nop())
	w.now = func() time.Time { return time.Date(2026, 9, 1, 19, 30, 0, 0, time.UTC) }
	return w
}

func TestTick_CreatesRecordAndCounts(t *testing.T) {
	hub := harmony.NewFake(testCatalog, "1")
	store := newMemStore()
	w := newTestWatcher(t, hub, store, &notify.Fake{}, record.Thresholds{MaxMinutes: 100})

	for i := 0; i < 3; i++ {
		if err := w.tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	rec, err := store.FindByDate(context.Background(), w.now())
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if got := rec.Activities["1"].Active; got != 3 {
		t.Errorf("activity 1 tally = %d, want 3", got)
	}
	if store.creates != 1 {
		t.Errorf("record created %d times, want 1", store.creates)
	}
}

func TestTick_ScenarioWarnsThenShutsDown(t *testing.T) {
	hub := harmony.NewFake(testCatalog, "1", "1", "1", "2", "-1")
	store := newMemStore()
	notifier := &notify.Fake{}
	w := newTestWatcher(t, hub, store, notifier,
		record.Thresholds{MaxMinutes: 4, WarnPercentages: []int{50}})

	for i := 0; i < 5; i++ {
		if err := w.tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
	}

	if hub.TurnOffCalls != 1 {
		t.Errorf("hub powered off %d times, want 1", hub.TurnOffCalls)
	}

	var warns, shutdowns int
	for _, sent := range notifier.Messages() {
		switch {
		case strings.HasPrefix(sent.Message, "Warning:"):
			warns++
		case strings.HasPrefix(sent.Message, "Maximum minutes reached"):
			shutdowns++
		}
	}
	// Two recipients each: one warning at total 2, one shutdown notice at 4.
	if warns != 2 {
		t.Errorf("warning deliveries = %d, want 2", warns)
	}
	if shutdowns != 2 {
		t.Errorf("shutdown deliveries = %d, want 2", shutdowns)
	}

	rec, err := store.FindByDate(context.Background(), w.now())
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if got := rec.TotalActiveMinutes("-1"); got != 4 {
		t.Errorf("total = %d, want 4", got)
	}
}

func TestTick_AbandonedOnSampleFailure(t *testing.T) {
	hub := harmony.NewFake(testCatalog, "1")
	hub.SampleErr = errors.New("hub unreachable")
	store := newMemStore()
	w := newTestWatcher(t, hub, store, &notify.Fake{}, record.Thresholds{MaxMinutes: 100})

	if err := w.tick(context.Background()); err != nil {
		t.Fatalf("sample failure must not propagate: %v", err)
	}

	// The record exists (created before the sample) but holds no minutes.
	rec, err := store.FindByDate(context.Background(), w.now())
	if err != nil {
		t.Fatalf("FindByDate: %v", err)
	}
	for id, tally := range rec.Activities {
		if tally.Active != 0 {
			t.Errorf("activity %s counted %d minutes on a failed tick", id, tally.Active)
		}
	}

	// Recovery: the next tick samples fine and counts.
	hub.SampleErr = nil
	if err := w.tick(context.Background()); err != nil {
		t.Fatalf("recovered tick: %v", err)
	}
	rec, _ = store.FindByDate(context.Background(), w.now())
	if got := rec.Activities["1"].Active; got != 1 {
		t.Errorf("activity 1 tally = %d, want 1", got)
	}
}

func TestTick_UnknownActivityPropagates(t *testing.T) {
	hub := harmony.NewFake(testCatalog, "999")
	store := newMemStore()
	w := newTestWatcher(t, hub, store, &notify.Fake{}, record.Thresholds{MaxMinutes: 100})

	err := w.tick(context.Background())
	if !errors.Is(err, record.ErrUnknownActivity) {
		t.Fatalf("err = %v, want ErrUnknownActivity", err)
	}
}

func TestTick_NotifyFailureDoesNotBlockOthers(t *testing.T) {
	hub := harmony.NewFake(testCatalog, "1")
	store := newMemStore()
	notifier := &notify.Fake{FailFor: map[string]error{"alice": errors.New("offline")}}
	w := newTestWatcher(t, hub, store, notifier,
		record.Thresholds{MaxMinutes: 100, WarnPercentages: []int{1}})

	if err := w.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	sent := notifier.Messages()
	if len(sent) != 1 || sent[0].Recipient != "bob" {
		t.Fatalf("deliveries = %+v, want exactly one to bob", sent)
	}
}

func TestSnapshot_DoesNotSampleOrMutate(t *testing.T) {
	hub := harmony.NewFake(testCatalog) // no samples scripted: sampling would error
	store := newMemStore()
	w := newTestWatcher(t, hub, store, &notify.Fake{}, record.Thresholds{MaxMinutes: 100})

	rec, err := w.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got := rec.TotalActiveMinutes("-1"); got != 0 {
		t.Errorf("snapshot mutated tally: total %d", got)
	}

	// A second snapshot returns the same record without creating another.
	if _, err := w.Snapshot(context.Background()); err != nil {
		t.Fatalf("second Snapshot: %v", err)
	}
	if store.creates != 1 {
		t.Errorf("record created %d times, want 1", store.creates)
	}
}

func TestSnapshot_ConcurrentWithTicks(t *testing.T) {
	hub := harmony.NewFake(testCatalog, "1")
	store := newMemStore()
	w := newTestWatcher(t, hub, store, &notify.Fake{}, record.Thresholds{MaxMinutes: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = w.Snapshot(context.Background())
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.tick(context.Background())
		}()
	}
	wg.Wait()

	if store.creates != 1 {
		t.Errorf("record created %d times under concurrency, want 1", store.creates)
	}
}
