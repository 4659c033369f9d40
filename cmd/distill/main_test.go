package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"distill/internal/config"
	"distill/internal/conversations"
	"distill/internal/storage"
)

// writeTestConfig writes a config file rooted in a temp directory and returns
// its path plus the loaded configuration.
func writeTestConfig(t *testing.T) (string, *config.Config) {
	t.Helper()

	base := t.TempDir()
	path := filepath.Join(base, "config.toml")
	contents := fmt.Sprintf("[paths]\ndata_dir = %q\nlog_dir = %q\n", filepath.Join(base, "data"), filepath.Join(base, "logs"))
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return path, cfg
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func seedConversation(t *testing.T, cfg *config.Config, id, title string) {
	t.Helper()

	db, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	defer db.Close()

	store := conversations.NewStore(db)
	conv := conversations.Conversation{
		ID:          id,
		Title:       title,
		ProjectPath: "/home/dev/project",
		Provider:    "claude",
	}
	if err := store.Upsert(context.Background(), conv); err != nil {
		t.Fatalf("upsert conversation: %v", err)
	}
	msg := conversations.Message{
		ID:             id + "-m1",
		ConversationID: id,
		Position:       0,
		Role:           "user",
		Content:        "hello there",
	}
	if err := store.AddMessage(context.Background(), msg); err != nil {
		t.Fatalf("add message: %v", err)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := newRootCommand()
	expected := []string{"daemon", "queue", "analyze", "suggestions", "learnings", "config", "test-notify"}
	for _, name := range expected {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}
