// Package watch drives the per-minute sampling loop: it checks out today's
// record, samples the hub, applies the usage accounting, persists the result,
// and dispatches whatever effects the accounting produced.
package watch

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodtune/hubwatch/internal/harmony"
	"github.com/goodtune/hubwatch/internal/metrics"
	"github.com/goodtune/hubwatch/internal/notify"
	"github.com/goodtune/hubwatch/internal/record"
	"github.com/goodtune/hubwatch/internal/storage"
	"github.com/rs/zerolog"
)

// DefaultTickTimeout bounds the hub and store calls of a single tick.
const DefaultTickTimeout = 30 * time.Second

// Config holds watcher configuration.
type Config struct {
	// Hub identifies the monitored hub in persisted records.
	Hub string
	// Thresholds is the daily limit and warning ladder.
	Thresholds record.Thresholds
	// Recipients receive warning and shutdown notifications.
	Recipients []string
	// Interval is the sampling period. Defaults to one minute.
	Interval time.Duration
	// TickTimeout bounds one tick's collaborator calls.
	TickTimeout time.Duration
}

// Watcher wires the accounting core to its collaborators.
type Watcher struct {
	cfg      Config
	hub      harmony.Client
	records  storage.RecordStore
	notifier notify.Notifier
	logger   zerolog.Logger

	// mu serializes record load-or-create between the tick and snapshot
	// paths so a date is only ever created once.
	mu sync.Mutex

	// inFlight guards against overlapping ticks; a tick that fires while
	// the previous one is still running is skipped.
	inFlight atomic.Bool

	// offID is the hub's power-off sentinel, resolved from the catalog on
	// first use.
	offID string

	// now is the clock, injectable for tests.
	now func() time.Time
}

// New creates a Watcher.
func New(cfg Config, hub harmony.Client, records storage.RecordStore, notifier notify.Notifier, logger zerolog.Logger) *Watcher {
	if cfg.Interval == 0 {
		cfg.Interval = time.Minute
	}
	if cfg.TickTimeout == 0 {
		cfg.TickTimeout = DefaultTickTimeout
	}
	return &Watcher{
		cfg:      cfg,
		hub:      hub,
		records:  records,
		notifier: notifier,
		logger:   logger.With().Str("component", "watch").Str("hub", cfg.Hub).Logger(),
		now:      time.Now,
	}
}

// Run samples once per interval until ctx is cancelled. The first tick is
// aligned to the next interval boundary, matching the original minute cron.
// A failed tick is logged and abandoned; the next interval is the retry.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info().
		Dur("interval", w.cfg.Interval).
		Int("max_minutes", w.cfg.Thresholds.MaxMinutes).
		Ints("warn_percentages", w.cfg.Thresholds.WarnPercentages).
		Msg("Watcher started")

	// Align to the next tick boundary.
	first := time.Until(w.now().Truncate(w.cfg.Interval).Add(w.cfg.Interval))
	select {
	case <-time.After(first):
	case <-ctx.Done():
		return ctx.Err()
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := w.runTick(ctx); err != nil {
			return err
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			w.logger.Info().Msg("Watcher stopped")
			return ctx.Err()
		}
	}
}

// runTick executes one guarded tick. Only invariant violations propagate;
// collaborator failures abandon the tick and are retried by the next one.
func (w *Watcher) runTick(ctx context.Context) error {
	if !w.inFlight.CompareAndSwap(false, true) {
		w.logger.Warn().Msg("Previous tick still running, skipping")
		metrics.TickErrors.WithLabelValues("overlap").Inc()
		return nil
	}
	defer w.inFlight.Store(false)

	tctx, cancel := context.WithTimeout(ctx, w.cfg.TickTimeout)
	defer cancel()

	err := w.tick(tctx)
	if err != nil && errors.Is(err, record.ErrUnknownActivity) {
		// The catalog loader seeds every defined activity, so this means
		// the hub reported an id it never defined. Not recoverable here.
		return err
	}
	return nil
}

// tick runs the pipeline: load-or-create, sample, account, save, dispatch.
func (w *Watcher) tick(ctx context.Context) error {
	w.logger.Debug().Msg("Checking which activity is running")

	rec, err := w.loadOrCreate(ctx, w.now())
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to load day record, abandoning tick")
		metrics.TickErrors.WithLabelValues("load").Inc()
		return nil
	}

	currentID, err := w.hub.CurrentActivityID(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to sample current activity, abandoning tick")
		metrics.TickErrors.WithLabelValues("sample").Inc()
		return nil
	}

	offID, err := w.offActivityID(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to resolve off activity, abandoning tick")
		metrics.TickErrors.WithLabelValues("catalog").Inc()
		return nil
	}

	effects, err := record.RecordSample(rec, currentID, offID, w.cfg.Thresholds)
	if err != nil {
		w.logger.Error().Err(err).Str("activity_id", currentID).Msg("Sample accounting failed")
		metrics.TickErrors.WithLabelValues("account").Inc()
		return err
	}

	total := rec.TotalActiveMinutes(offID)
	w.logger.Info().
		Str("activity_id", currentID).
		Int("total_active_minutes", total).
		Msg("Sample recorded")

	metrics.SamplesTotal.WithLabelValues(currentID).Inc()
	metrics.TotalActiveMinutes.Set(float64(total))
	for id, t := range rec.Activities {
		metrics.ActiveMinutes.WithLabelValues(id).Set(float64(t.Active))
	}

	if err := w.records.Upsert(ctx, rec); err != nil {
		// Not retried within the tick; the next minute loads fresh state.
		w.logger.Error().Err(err).Msg("Failed to save day record")
		metrics.TickErrors.WithLabelValues("save").Inc()
		return nil
	}

	w.dispatch(ctx, effects)
	return nil
}

// Snapshot returns today's record for the read endpoint. It shares
// load-or-create with the tick path but never samples or mutates.
func (w *Watcher) Snapshot(ctx context.Context) (*record.DayRecord, error) {
	return w.loadOrCreate(ctx, w.now())
}

// loadOrCreate checks out the record for now's date, creating and seeding it
// from the hub's catalog if this is the first touch of the day. Creation is
// idempotent: the store's atomic create plus the watcher mutex guarantee at
// most one record per date even with a concurrent snapshot request.
func (w *Watcher) loadOrCreate(ctx context.Context, now time.Time) (*record.DayRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	date := record.StartOfDay(now)

	rec, err := w.records.FindByDate(ctx, date)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	w.logger.Debug().Msg("No record found for today, creating a new one")

	activities, err := w.hub.Activities(ctx)
	if err != nil {
		return nil, err
	}
	w.offID = harmony.ResolveOffID(activities)

	rec = record.NewDayRecord(date, w.cfg.Hub, activities, w.offID)
	created, err := w.records.CreateIfAbsent(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !created {
		// Another writer created today's record between our lookup and the
		// create. Use theirs.
		return w.records.FindByDate(ctx, date)
	}

	w.logger.Info().
		Time("date", date).
		Int("activities", len(rec.Activities)).
		Msg("Day record created")
	return rec, nil
}

// offActivityID returns the hub's power-off sentinel, querying the catalog
// the first time. The hub client caches the catalog, so this stays cheap.
func (w *Watcher) offActivityID(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.offID != "" {
		return w.offID, nil
	}
	activities, err := w.hub.Activities(ctx)
	if err != nil {
		return "", err
	}
	w.offID = harmony.ResolveOffID(activities)
	return w.offID, nil
}

// dispatch performs the effects the accounting produced: notifications for
// warnings, then notification plus hub power-off for a shutdown.
func (w *Watcher) dispatch(ctx context.Context, effects []record.Effect) {
	for _, effect := range effects {
		switch e := effect.(type) {
		case record.WarnEffect:
			w.logger.Warn().
				Int("pct", e.Pct).
				Int("total", e.Total).
				Int("max", e.Max).
				Msg("Usage warning threshold reached")
			metrics.WarningsSent.WithLabelValues(strconv.Itoa(e.Pct)).Inc()
			w.broadcast(ctx, e.Message())

		case record.ShutdownEffect:
			w.logger.Warn().
				Int("total", e.Total).
				Int("max", e.Max).
				Msg("Maximum minutes reached, shutting hub down")
			metrics.ShutdownsTotal.Inc()
			w.broadcast(ctx, e.Message())
			if err := w.hub.TurnOff(ctx); err != nil {
				w.logger.Error().Err(err).Msg("Failed to power off hub")
				metrics.TickErrors.WithLabelValues("shutdown").Inc()
				continue
			}
			if err := w.hub.Close(); err != nil {
				w.logger.Error().Err(err).Msg("Failed to end hub session")
			}
		}
	}
}

// broadcast delivers a message to every recipient. A failed recipient is
// logged and skipped; the rest still get theirs.
func (w *Watcher) broadcast(ctx context.Context, message string) {
	for _, recipient := range w.cfg.Recipients {
		if err := w.notifier.Send(ctx, recipient, message); err != nil {
			w.logger.Error().Err(err).Str("recipient", recipient).Msg("Error sending message")
			metrics.NotifyFailures.WithLabelValues(recipient).Inc()
		}
	}
}
