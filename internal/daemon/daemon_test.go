package daemon

import (
	"context"
	"testing"
	"time"

	"distill/internal/conversations"
	"distill/internal/queue"
	"distill/internal/testsupport"
)

type scriptedExecutor struct {
	output string
	calls  int
}

func (s *scriptedExecutor) Execute(ctx context.Context, input string) (string, error) {
	s.calls++
	return s.output, nil
}

func TestStartEnforcesSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	first, err := New(cfg, nil, WithExecutor(&scriptedExecutor{output: "[]"}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer first.Close()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	second, err := New(cfg, nil, WithExecutor(&scriptedExecutor{output: "[]"}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer second.Close()
	if err := second.Start(ctx); err == nil {
		t.Fatal("second daemon must not start while the lock is held")
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("start after lock release failed: %v", err)
	}
	second.Stop()
}

func TestStartTwiceOnSameDaemonFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := New(cfg, nil, WithExecutor(&scriptedExecutor{output: "[]"}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Close()

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("Start on a running daemon must fail")
	}
}

func TestDaemonProcessesQueuedItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	exec := &scriptedExecutor{}
	d, err := New(cfg, nil, WithExecutor(exec))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Close()

	convs := conversations.NewStore(d.db)
	testsupport.SeedConversation(t, convs, "c1", "Work", "hello", "world")
	item := testsupport.Enqueue(t, d.store, "c1", queue.TypeSummary)
	exec.output = `[{"queue_id":"` + item.ID + `","suggested_title":"Greeting","confidence":0.6}]`

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := d.store.GetByID(ctx, item.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if got != nil && got.State() == queue.StateApplied {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("item never applied, state = %v", got.State())
		}
		time.Sleep(10 * time.Millisecond)
	}

	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.Running {
		t.Error("status must report running")
	}
	if status.Queue.Applied != 1 {
		t.Errorf("applied = %d, want 1", status.Queue.Applied)
	}
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := New(cfg, nil, WithExecutor(&scriptedExecutor{output: "[]"}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer d.Close()

	sent, detail, err := d.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if sent {
		t.Error("notification must not send without a topic")
	}
	if detail == "" {
		t.Error("expected an explanatory detail message")
	}
}
