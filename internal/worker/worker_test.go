package worker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"distill/internal/apply"
	"distill/internal/conversations"
	"distill/internal/queue"
	"distill/internal/services"
	"distill/internal/storage"
	"distill/internal/testsupport"
)

// fakeExecutor returns canned output per call and records inputs.
type fakeExecutor struct {
	outputs []string
	err     error
	inputs  []string
}

func (f *fakeExecutor) Execute(ctx context.Context, input string) (string, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return "", f.err
	}
	out := f.outputs[0]
	if len(f.outputs) > 1 {
		f.outputs = f.outputs[1:]
	}
	return out, nil
}

type workerFixture struct {
	db    *storage.DB
	queue *queue.Store
	convs *conversations.Store
	exec  *fakeExecutor
	w     *Worker
}

func newWorkerFixture(t *testing.T, opts ...testsupport.ConfigOption) *workerFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	db := testsupport.MustOpenDB(t, cfg)
	exec := &fakeExecutor{}
	return &workerFixture{
		db:    db,
		queue: queue.NewStore(db),
		convs: conversations.NewStore(db),
		exec:  exec,
		w:     New(cfg, db, exec, nil),
	}
}

func TestRunOnceProcessesLearningBatch(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	testsupport.SeedConversation(t, f.convs, "c1", "Editor settings",
		"please use tabs not spaces", "switching to tabs")
	item := testsupport.Enqueue(t, f.queue, "c1", queue.TypeLearning)

	f.exec.outputs = []string{`[{"queue_id":"` + item.ID + `","learnings":[{"type":"correction","rule":"Use tabs instead of spaces","confidence":0.9,"evidence":"please use tabs","message_id":"c1-m1"}]}]`}

	processed, err := f.w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}

	applied, err := f.queue.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if applied.State() != queue.StateApplied {
		t.Fatalf("state = %s, want applied", applied.State())
	}

	learnings, err := apply.NewLearningStore(f.db).List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(learnings) != 1 {
		t.Fatalf("expected one learning, got %d", len(learnings))
	}

	if len(f.exec.inputs) != 1 || !strings.Contains(f.exec.inputs[0], item.ID) {
		t.Error("executor input missing queue item reference")
	}
}

func TestRunOnceEmptyQueue(t *testing.T) {
	f := newWorkerFixture(t)
	processed, err := f.w.RunOnce(context.Background())
	if err != nil || processed != 0 {
		t.Fatalf("RunOnce = %d, %v", processed, err)
	}
	if len(f.exec.inputs) != 0 {
		t.Error("executor must not run with an empty queue")
	}
}

func TestRunOnceMissingResultElementFailsItem(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	testsupport.SeedConversation(t, f.convs, "c1", "Work", "hello", "world")
	item := testsupport.Enqueue(t, f.queue, "c1", queue.TypeSummary)

	// Tool answered, but for some other queue id.
	f.exec.outputs = []string{`[{"queue_id":"someone-else","suggested_title":"X","confidence":0.5}]`}

	processed, err := f.w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}

	failed, err := f.queue.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if failed.State() != queue.StateFailed {
		t.Fatalf("state = %s, want failed", failed.State())
	}
	if !strings.Contains(failed.FailureReason, "missing result payload") {
		t.Errorf("reason = %q", failed.FailureReason)
	}
}

func TestRunOnceTransientToolFailureLeavesItemsClaimed(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	testsupport.SeedConversation(t, f.convs, "c1", "Work", "hello")
	item := testsupport.Enqueue(t, f.queue, "c1", queue.TypeWorkflow)

	f.exec.err = services.Wrap(services.ErrTimeout, "llmtool", "execute", "tool run exceeded wall-clock timeout", nil)

	processed, err := f.w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce must swallow transient tool failures, got %v", err)
	}
	if processed != 0 {
		t.Fatalf("processed = %d, want 0", processed)
	}

	claimed, err := f.queue.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if claimed.State() != queue.StateClaimed {
		t.Fatalf("state = %s, want claimed for lease-expiry retry", claimed.State())
	}
}

func TestRunOnceConsentFailureSurfaces(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	testsupport.SeedConversation(t, f.convs, "c1", "Work", "hello")
	testsupport.Enqueue(t, f.queue, "c1", queue.TypeWorkflow)

	f.exec.err = services.Wrap(services.ErrConsent, "llmtool", "execute", "analysis consent not granted", nil)

	_, err := f.w.RunOnce(ctx)
	if !errors.Is(err, services.ErrConsent) {
		t.Fatalf("expected consent error to surface, got %v", err)
	}
}

func TestRunOnceSplitsOversizedBatch(t *testing.T) {
	long := strings.Repeat("the user repeated a very detailed request here ", 10)
	f := newWorkerFixture(t, testsupport.WithMaxPayloadBytes(1200))
	ctx := context.Background()

	testsupport.SeedConversation(t, f.convs, "c1", "One", long)
	testsupport.SeedConversation(t, f.convs, "c2", "Two", long)
	itemA := testsupport.Enqueue(t, f.queue, "c1", queue.TypeSummary)
	itemB := testsupport.Enqueue(t, f.queue, "c2", queue.TypeSummary)

	f.exec.outputs = []string{
		`[{"queue_id":"` + itemA.ID + `","suggested_title":"One","confidence":0.5}]`,
		`[{"queue_id":"` + itemB.ID + `","suggested_title":"Two","confidence":0.5}]`,
	}

	processed, err := f.w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if processed != 2 {
		t.Fatalf("processed = %d, want 2", processed)
	}
	if len(f.exec.inputs) != 2 {
		t.Fatalf("expected split into 2 tool calls, got %d", len(f.exec.inputs))
	}
	for _, id := range []string{itemA.ID, itemB.ID} {
		item, err := f.queue.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if item.State() != queue.StateApplied {
			t.Errorf("item %s state = %s, want applied", id, item.State())
		}
	}
}

func TestRunOnceOversizedSingleItemFailsPermanently(t *testing.T) {
	long := strings.Repeat("an enormous single conversation that cannot shrink ", 20)
	f := newWorkerFixture(t, testsupport.WithMaxPayloadBytes(300))
	ctx := context.Background()

	testsupport.SeedConversation(t, f.convs, "c1", "Huge", long)
	item := testsupport.Enqueue(t, f.queue, "c1", queue.TypeSummary)

	processed, err := f.w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}
	failed, err := f.queue.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if failed.State() != queue.StateFailed {
		t.Fatalf("state = %s, want failed", failed.State())
	}
	if len(f.exec.inputs) != 0 {
		t.Error("oversized payload must be rejected before execution")
	}
}

func TestRunOnceMixedTypesGroupSeparately(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	testsupport.SeedConversation(t, f.convs, "c1", "Work", "deploy the service", "done")
	wf := testsupport.Enqueue(t, f.queue, "c1", queue.TypeWorkflow)
	sum := testsupport.Enqueue(t, f.queue, "c1", queue.TypeSummary)

	f.exec.outputs = []string{
		`[{"queue_id":"` + wf.ID + `","action":"deploy","artifact":"pipeline","domains":["ci"],"confidence":0.9,"reasoning":"user repeated the same release checklist in both sessions"}]`,
		`[{"queue_id":"` + sum.ID + `","suggested_title":"Deploy session","confidence":0.7}]`,
	}

	processed, err := f.w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if processed != 2 {
		t.Fatalf("processed = %d, want 2", processed)
	}
	if len(f.exec.inputs) != 2 {
		t.Fatalf("expected one tool call per analysis type, got %d", len(f.exec.inputs))
	}
}
