// Package reaper recovers queue items lost to crashed or stuck workers: it
// releases stale claims on an interval and, once at startup, re-drives
// application of results that were computed but never persisted.
package reaper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"distill/internal/config"
	"distill/internal/logging"
	"distill/internal/queue"
)

// QueueStore is the slice of queue behavior the reaper drives.
type QueueStore interface {
	ReleaseStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error)
	FetchUnappliedCompleted(ctx context.Context) ([]*queue.Item, error)
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

// Applier re-drives result application during orphan recovery.
type Applier interface {
	Apply(ctx context.Context, item *queue.Item) error
}

// State names the coordinator's position in its cycle.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateScheduled State = "scheduled-next"
)

// Status is an observability snapshot; nothing reads it for control flow.
type Status struct {
	State            State
	LastRun          time.Time
	LastReleased     int64
	OrphansProcessed int64
	LastPurge        time.Time
	LastPurged       int64
}

// Reaper is a single serially-scheduled coordinator: one goroutine cycles
// running → scheduled-next, so runs never overlap.
type Reaper struct {
	store      QueueStore
	applier    Applier
	staleAfter time.Duration
	interval   time.Duration
	retention  time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// Daily is frequent enough for a 30-day retention window.
const purgeInterval = 24 * time.Hour

// New builds a reaper from configuration.
func New(cfg *config.Config, store QueueStore, applier Applier, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reaper{
		store:      store,
		applier:    applier,
		staleAfter: time.Duration(cfg.Reaper.StaleClaimMinutes) * time.Minute,
		interval:   time.Duration(cfg.Reaper.IntervalMinutes) * time.Minute,
		retention:  time.Duration(cfg.Reaper.RetentionDays) * 24 * time.Hour,
		logger:     logger.With(slog.String(logging.FieldComponent, "reaper")),
		status:     Status{State: StateIdle},
	}
}

// Start runs the startup pass synchronously (stale release plus orphan
// recovery), then schedules interval passes until Stop. Steady-state passes
// release stale claims only: orphan recovery is a startup concern, repeated
// silent reprocessing would hide real crashes.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return errors.New("reaper already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	r.runOnce(loopCtx, true)

	go r.loop(loopCtx)
	return nil
}

// Stop cancels the schedule and waits for any in-flight pass to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	r.mu.Lock()
	r.status.State = StateIdle
	r.mu.Unlock()
}

// Status returns the last-run snapshot.
func (r *Reaper) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Reaper) loop(ctx context.Context) {
	defer close(r.done)

	intervalTimer := time.NewTimer(r.interval)
	defer intervalTimer.Stop()
	purgeTimer := time.NewTimer(purgeInterval)
	defer purgeTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-intervalTimer.C:
			r.runOnce(ctx, false)
			intervalTimer.Reset(r.interval)
		case <-purgeTimer.C:
			r.purge(ctx)
			purgeTimer.Reset(purgeInterval)
		}
	}
}

func (r *Reaper) setState(state State) {
	r.mu.Lock()
	r.status.State = state
	r.mu.Unlock()
}

func (r *Reaper) runOnce(ctx context.Context, recoverOrphans bool) {
	r.setState(StateRunning)
	defer r.setState(StateScheduled)

	released, err := r.store.ReleaseStaleClaims(ctx, r.staleAfter)
	if err != nil {
		r.logger.Error("stale claim release failed", logging.Error(err))
	} else if released > 0 {
		r.logger.Info("released stale claims", slog.Int64("count", released))
	}

	var orphans int64
	if recoverOrphans {
		orphans = r.recoverOrphans(ctx)
	}

	r.mu.Lock()
	r.status.LastRun = time.Now().UTC()
	r.status.LastReleased = released
	r.status.OrphansProcessed = orphans
	r.mu.Unlock()
}

// recoverOrphans re-applies items whose result was recorded but never
// persisted, left behind by a crash between tool completion and transaction
// commit. One item's failure does not stop the sweep.
func (r *Reaper) recoverOrphans(ctx context.Context) int64 {
	items, err := r.store.FetchUnappliedCompleted(ctx)
	if err != nil {
		r.logger.Error("orphan fetch failed", logging.Error(err))
		return 0
	}
	var processed int64
	for _, item := range items {
		if ctx.Err() != nil {
			return processed
		}
		if err := r.applier.Apply(ctx, item); err != nil {
			r.logger.Error("orphan application failed",
				slog.String(logging.FieldQueueID, item.ID), logging.Error(err))
			continue
		}
		processed++
	}
	if processed > 0 {
		r.logger.Info("recovered orphaned results", slog.Int64("count", processed))
	}
	return processed
}

func (r *Reaper) purge(ctx context.Context) {
	purged, err := r.store.PurgeOlderThan(ctx, r.retention)
	if err != nil {
		r.logger.Error("terminal item purge failed", logging.Error(err))
		return
	}
	r.mu.Lock()
	r.status.LastPurge = time.Now().UTC()
	r.status.LastPurged = purged
	r.mu.Unlock()
	if purged > 0 {
		r.logger.Info("purged terminal items", slog.Int64("count", purged))
	}
}
