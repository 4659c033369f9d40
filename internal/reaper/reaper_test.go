package reaper

import (
	"context"
	"testing"
	"time"

	"distill/internal/apply"
	"distill/internal/conversations"
	"distill/internal/queue"
	"distill/internal/testsupport"
)

func TestStartReleasesStaleClaimsAndRecoversOrphans(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	qs := queue.NewStore(db)
	convs := conversations.NewStore(db)
	ctx := context.Background()

	testsupport.SeedConversation(t, convs, "c1", "Work", "first", "last")

	// A stale claim with no result: should return to ready.
	stale := testsupport.Enqueue(t, qs, "c1", queue.TypeLearning)

	// An orphan: result recorded, application crashed before commit.
	orphan := testsupport.Enqueue(t, qs, "c1", queue.TypeSummary)

	if _, err := qs.ClaimReady(ctx, 2, "crashed-worker"); err != nil {
		t.Fatalf("ClaimReady failed: %v", err)
	}
	if err := qs.RecordResult(ctx, orphan.ID, `{"queue_id":"x","suggested_title":"Fix CI","confidence":0.8}`); err != nil {
		t.Fatalf("RecordResult failed: %v", err)
	}
	old := time.Now().UTC().Add(-30 * time.Minute).Format(time.RFC3339Nano)
	if _, err := db.Handle().ExecContext(ctx, `UPDATE analysis_queue SET claimed_at = ?`, old); err != nil {
		t.Fatalf("age leases: %v", err)
	}

	r := New(cfg, qs, apply.NewApplier(db, nil), nil)
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	// The startup pass runs synchronously inside Start.
	status := r.Status()
	if status.State != StateScheduled {
		t.Errorf("state = %s, want scheduled-next", status.State)
	}
	if status.LastReleased != 1 {
		t.Errorf("released = %d, want 1", status.LastReleased)
	}
	if status.OrphansProcessed != 1 {
		t.Errorf("orphans processed = %d, want 1", status.OrphansProcessed)
	}

	released, err := qs.GetByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if released.State() != queue.StateReady {
		t.Errorf("stale item state = %s, want ready", released.State())
	}

	recovered, err := qs.GetByID(ctx, orphan.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if recovered.State() != queue.StateApplied {
		t.Errorf("orphan state = %s, want applied", recovered.State())
	}
}

func TestStartTwiceFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	qs := queue.NewStore(db)

	r := New(cfg, qs, apply.NewApplier(db, nil), nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer r.Stop()

	if err := r.Start(context.Background()); err == nil {
		t.Fatal("second Start must fail")
	}
}

func TestStopIsDeterministic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	qs := queue.NewStore(db)

	r := New(cfg, qs, apply.NewApplier(db, nil), nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.Stop()
	if got := r.Status().State; got != StateIdle {
		t.Errorf("state after Stop = %s, want idle", got)
	}
	// Stop again is a no-op, not a panic or deadlock.
	r.Stop()

	// A stopped reaper can be restarted.
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	r.Stop()
}

func TestPurgeRemovesOldTerminalItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	qs := queue.NewStore(db)
	ctx := context.Background()

	done := testsupport.Enqueue(t, qs, "c1", queue.TypeLearning)
	if err := qs.MarkFailed(ctx, done.ID, "decode failure"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	old := time.Now().UTC().Add(-45 * 24 * time.Hour).Format(time.RFC3339Nano)
	if _, err := db.Handle().ExecContext(ctx, `UPDATE analysis_queue SET updated_at = ? WHERE id = ?`, old, done.ID); err != nil {
		t.Fatalf("age item: %v", err)
	}

	r := New(cfg, qs, apply.NewApplier(db, nil), nil)
	r.purge(ctx)

	if got := r.Status().LastPurged; got != 1 {
		t.Errorf("purged = %d, want 1", got)
	}
	item, err := qs.GetByID(ctx, done.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if item != nil {
		t.Error("terminal item survived purge")
	}
}
