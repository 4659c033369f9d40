package conversations_test

import (
	"context"
	"testing"

	"distill/internal/conversations"
	"distill/internal/testsupport"
)

func newStore(t *testing.T) *conversations.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	return conversations.NewStore(db)
}

func TestUpsertAndGet(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	testsupport.SeedConversation(t, store, "c1", "Fix flaky CI", "the build keeps failing", "looks like a race in the cache test")

	conv, err := store.GetByID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if conv == nil || conv.Title != "Fix flaky CI" {
		t.Fatalf("unexpected conversation: %#v", conv)
	}

	// Upsert with the same id refreshes instead of duplicating.
	updated := conversations.Conversation{
		ID:          "c1",
		Title:       "Fix flaky CI runs",
		ProjectPath: "/home/dev/project",
		Provider:    "claude",
	}
	if err := store.Upsert(ctx, updated); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	conv, err = store.GetByID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if conv.Title != "Fix flaky CI runs" {
		t.Fatalf("expected refreshed title, got %q", conv.Title)
	}

	missing, err := store.GetByID(ctx, "nope")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing conversation, got %#v", missing)
	}
}

func TestMessagesOrderedByPosition(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	testsupport.SeedConversation(t, store, "c1", "Debug session", "first", "second", "third")

	messages, err := store.Messages(ctx, "c1")
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	for i, msg := range messages {
		if msg.Position != i {
			t.Fatalf("message %d out of order: position %d", i, msg.Position)
		}
	}
	if messages[0].Role != "user" || messages[1].Role != "assistant" {
		t.Fatalf("unexpected roles: %q %q", messages[0].Role, messages[1].Role)
	}
}

func TestGetByIDsSkipsMissing(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	testsupport.SeedConversation(t, store, "c1", "One")
	testsupport.SeedConversation(t, store, "c2", "Two")

	convs, err := store.GetByIDs(ctx, []string{"c1", "ghost", "c2"})
	if err != nil {
		t.Fatalf("GetByIDs failed: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
}

func TestRename(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	testsupport.SeedConversation(t, store, "c1", "untitled")

	if err := store.Rename(ctx, "c1", "Investigate cache race"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	conv, err := store.GetByID(ctx, "c1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if conv.Title != "Investigate cache race" {
		t.Fatalf("expected renamed title, got %q", conv.Title)
	}

	if err := store.Rename(ctx, "c1", "   "); err == nil {
		t.Fatal("expected error for blank title")
	}
	if err := store.Rename(ctx, "ghost", "anything"); err == nil {
		t.Fatal("expected error for missing conversation")
	}
}
