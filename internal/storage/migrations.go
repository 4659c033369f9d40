package storage

import (
	"context"
	"fmt"
)

type migration struct {
	version string
	sql     string
}

// Migrations run in order inside one transaction each time Open is called;
// applied versions are recorded in schema_migrations and skipped.
var migrations = []migration{
	{version: "0001_conversations", sql: `
CREATE TABLE IF NOT EXISTS conversations (
    id            TEXT PRIMARY KEY,
    title         TEXT NOT NULL DEFAULT '',
    summary       TEXT NOT NULL DEFAULT '',
    project_path  TEXT NOT NULL DEFAULT '',
    provider      TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    position        INTEGER NOT NULL,
    role            TEXT NOT NULL DEFAULT '',
    content         TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation
    ON messages(conversation_id, position);
`},
	{version: "0002_analysis_queue", sql: `
CREATE TABLE IF NOT EXISTS analysis_queue (
    id               TEXT PRIMARY KEY,
    conversation_id  TEXT NOT NULL,
    analysis_type    TEXT NOT NULL,
    backend          TEXT NOT NULL DEFAULT '',
    analysis_version TEXT NOT NULL DEFAULT '',
    claim_holder     TEXT,
    claimed_at       TEXT,
    result_payload   TEXT,
    applied_at       TEXT,
    failure_reason   TEXT,
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queue_ready
    ON analysis_queue(created_at)
    WHERE claim_holder IS NULL AND result_payload IS NULL
      AND applied_at IS NULL AND failure_reason IS NULL;

CREATE INDEX IF NOT EXISTS idx_queue_claimed
    ON analysis_queue(claimed_at)
    WHERE claim_holder IS NOT NULL;
`},
	{version: "0003_derived_entities", sql: `
CREATE TABLE IF NOT EXISTS learnings (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    source_queue_id  TEXT NOT NULL,
    conversation_ids TEXT NOT NULL DEFAULT '[]',
    learning_type    TEXT NOT NULL,
    rule             TEXT NOT NULL,
    normalized_rule  TEXT NOT NULL,
    rule_hash        INTEGER NOT NULL,
    confidence       REAL NOT NULL DEFAULT 0,
    evidence         TEXT NOT NULL DEFAULT '',
    message_id       TEXT NOT NULL DEFAULT '',
    scope            TEXT NOT NULL DEFAULT 'project',
    evidence_count   INTEGER NOT NULL DEFAULT 1,
    backend          TEXT NOT NULL DEFAULT '',
    analysis_version TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL,
    UNIQUE(source_queue_id, rule_hash)
);

CREATE INDEX IF NOT EXISTS idx_learnings_normalized_rule
    ON learnings(learning_type, normalized_rule);

CREATE TABLE IF NOT EXISTS workflow_signatures (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    source_queue_id  TEXT NOT NULL UNIQUE,
    conversation_id  TEXT NOT NULL,
    action           TEXT NOT NULL,
    artifact         TEXT NOT NULL,
    domains          TEXT NOT NULL DEFAULT '[]',
    signature        TEXT NOT NULL,
    confidence       REAL NOT NULL DEFAULT 0,
    reasoning        TEXT NOT NULL DEFAULT '',
    backend          TEXT NOT NULL DEFAULT '',
    analysis_version TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signatures_signature
    ON workflow_signatures(signature);

CREATE TABLE IF NOT EXISTS suggestions (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    source_queue_id  TEXT NOT NULL,
    suggestion_type  TEXT NOT NULL,
    target_id        TEXT NOT NULL,
    payload          TEXT NOT NULL DEFAULT '{}',
    confidence       REAL NOT NULL DEFAULT 0,
    status           TEXT NOT NULL DEFAULT 'pending',
    reject_reason    TEXT NOT NULL DEFAULT '',
    backend          TEXT NOT NULL DEFAULT '',
    analysis_version TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL,
    UNIQUE(source_queue_id, suggestion_type, target_id)
);
`},
}

func (d *DB) applyMigrations(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, migration := range migrations {
		var count int
		row := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", migration.version)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, migration.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", migration.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", migration.version); err != nil {
			return fmt.Errorf("record migration %s: %w", migration.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}
