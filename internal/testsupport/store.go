package testsupport

import (
	"context"
	"fmt"
	"testing"

	"distill/internal/config"
	"distill/internal/conversations"
	"distill/internal/queue"
	"distill/internal/storage"
)

// MustOpenDB opens the shared database for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *storage.DB {
	t.Helper()

	db, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// SeedConversation inserts a conversation with the given messages and returns
// its id. Message ids are derived as <conv>-m1, <conv>-m2, ...
func SeedConversation(t testing.TB, store *conversations.Store, id, title string, messages ...string) string {
	t.Helper()

	ctx := context.Background()
	conv := conversations.Conversation{
		ID:          id,
		Title:       title,
		ProjectPath: "/home/dev/project",
		Provider:    "claude",
	}
	if err := store.Upsert(ctx, conv); err != nil {
		t.Fatalf("Upsert conversation: %v", err)
	}
	for i, content := range messages {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msg := conversations.Message{
			ID:             fmt.Sprintf("%s-m%d", id, i+1),
			ConversationID: id,
			Position:       i,
			Role:           role,
			Content:        content,
		}
		if err := store.AddMessage(ctx, msg); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}
	return id
}

// Enqueue inserts a queue item for tests.
func Enqueue(t testing.TB, store *queue.Store, conversationID string, kind queue.AnalysisType) *queue.Item {
	t.Helper()

	item, err := store.Enqueue(context.Background(), conversationID, kind, "claude-cli", "v1")
	if err != nil {
		t.Fatalf("queue.Enqueue: %v", err)
	}
	return item
}
