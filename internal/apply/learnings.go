package apply

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"distill/internal/storage"
)

// LearningRecord is a stored user-preference rule.
type LearningRecord struct {
	ID              int64
	SourceQueueID   string
	ConversationIDs []string
	Type            string
	Rule            string
	NormalizedRule  string
	RuleHash        int64
	Confidence      float64
	Evidence        string
	MessageID       string
	Scope           string
	EvidenceCount   int
	Backend         string
	AnalysisVersion string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NormalizeRule canonicalizes rule text for duplicate detection: lowercase,
// collapsed whitespace, trailing punctuation removed.
func NormalizeRule(rule string) string {
	rule = strings.ToLower(strings.TrimSpace(rule))
	rule = strings.Join(strings.Fields(rule), " ")
	return strings.TrimRight(rule, ".!?")
}

// RuleHash derives the persisted dedupe key from normalized rule text. It is
// a truncated cryptographic digest so the key is stable across process
// restarts; a language-level hash would not be.
func RuleHash(rule string) int64 {
	sum := sha256.Sum256([]byte(NormalizeRule(rule)))
	return int64(binary.BigEndian.Uint64(sum[:8]) &^ (1 << 63))
}

const learningColumns = "id, source_queue_id, conversation_ids, learning_type, rule, normalized_rule, rule_hash, confidence, evidence, message_id, scope, evidence_count, backend, analysis_version, created_at, updated_at"

func insertLearning(ctx context.Context, q storage.Querier, rec *LearningRecord) error {
	conversationIDs, err := json.Marshal(rec.ConversationIDs)
	if err != nil {
		return fmt.Errorf("encode conversation ids: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = q.ExecContext(
		ctx,
		`INSERT INTO learnings (
            source_queue_id, conversation_ids, learning_type, rule, normalized_rule,
            rule_hash, confidence, evidence, message_id, scope, evidence_count,
            backend, analysis_version, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		rec.SourceQueueID,
		string(conversationIDs),
		rec.Type,
		rec.Rule,
		rec.NormalizedRule,
		rec.RuleHash,
		rec.Confidence,
		rec.Evidence,
		rec.MessageID,
		rec.Scope,
		rec.Backend,
		rec.AnalysisVersion,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert learning: %w", err)
	}
	return nil
}

func learningExists(ctx context.Context, q storage.Querier, queueID string, ruleHash int64) (bool, error) {
	var count int
	row := q.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM learnings WHERE source_queue_id = ? AND rule_hash = ?`,
		queueID,
		ruleHash,
	)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check learning existence: %w", err)
	}
	return count > 0, nil
}

// findPreferenceByRule looks up an existing non-correction learning with the
// same normalized rule text, regardless of originating queue item.
func findPreferenceByRule(ctx context.Context, q storage.Querier, learningType, normalizedRule string) (*LearningRecord, error) {
	row := q.QueryRowContext(
		ctx,
		`SELECT `+learningColumns+` FROM learnings
         WHERE learning_type = ? AND normalized_rule = ?
         ORDER BY id LIMIT 1`,
		learningType,
		normalizedRule,
	)
	rec, err := scanLearning(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find learning by rule: %w", err)
	}
	return rec, nil
}

// mergeLearning folds a re-observed preference into an existing record:
// confidence takes the max, the evidence counter bumps, and the conversation
// set grows.
func mergeLearning(ctx context.Context, q storage.Querier, existing *LearningRecord, confidence float64, conversationID, scope string) error {
	ids := existing.ConversationIDs
	found := false
	for _, id := range ids {
		if id == conversationID {
			found = true
			break
		}
	}
	if !found && conversationID != "" {
		ids = append(ids, conversationID)
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode conversation ids: %w", err)
	}
	if confidence < existing.Confidence {
		confidence = existing.Confidence
	}
	_, err = q.ExecContext(
		ctx,
		`UPDATE learnings
         SET confidence = ?, evidence_count = evidence_count + 1,
             conversation_ids = ?, scope = ?, updated_at = ?
         WHERE id = ?`,
		confidence,
		string(encoded),
		scope,
		time.Now().UTC().Format(time.RFC3339Nano),
		existing.ID,
	)
	if err != nil {
		return fmt.Errorf("merge learning: %w", err)
	}
	return nil
}

// LearningStore provides read and merge access to stored learnings for the
// CLI and the suggestion lifecycle.
type LearningStore struct {
	db *storage.DB
}

// NewLearningStore builds a learning store on the shared database.
func NewLearningStore(db *storage.DB) *LearningStore {
	return &LearningStore{db: db}
}

// List returns all learnings ordered by recency.
func (s *LearningStore) List(ctx context.Context) ([]*LearningRecord, error) {
	rows, err := s.db.Handle().QueryContext(ctx, `SELECT `+learningColumns+` FROM learnings ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list learnings: %w", err)
	}
	defer rows.Close()

	var records []*LearningRecord
	for rows.Next() {
		rec, err := scanLearning(rows)
		if err != nil {
			return nil, fmt.Errorf("scan learning: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// mergeLearningRows collapses the source learning rows into one merged rule:
// the first source survives with the merged text, the rest are deleted.
// Runs inside the suggestion-approval transaction.
func mergeLearningRows(ctx context.Context, q storage.Querier, sourceIDs []string, mergedRule string) error {
	if len(sourceIDs) < 2 {
		return errors.New("merge needs at least two source learnings")
	}

	records := make([]*LearningRecord, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		row := q.QueryRowContext(ctx, `SELECT `+learningColumns+` FROM learnings WHERE id = ?`, id)
		rec, err := scanLearning(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("learning %s not found", id)
		}
		if err != nil {
			return fmt.Errorf("fetch learning %s: %w", id, err)
		}
		records = append(records, rec)
	}

	survivor := records[0]
	confidence := survivor.Confidence
	evidenceCount := 0
	seen := map[string]struct{}{}
	var conversationIDs []string
	scope := "project"
	for _, rec := range records {
		if rec.Confidence > confidence {
			confidence = rec.Confidence
		}
		evidenceCount += rec.EvidenceCount
		if rec.Scope == "global" {
			scope = "global"
		}
		for _, convID := range rec.ConversationIDs {
			if _, dup := seen[convID]; !dup {
				seen[convID] = struct{}{}
				conversationIDs = append(conversationIDs, convID)
			}
		}
	}
	encoded, err := json.Marshal(conversationIDs)
	if err != nil {
		return fmt.Errorf("encode conversation ids: %w", err)
	}

	normalized := NormalizeRule(mergedRule)
	if _, err := q.ExecContext(
		ctx,
		`UPDATE learnings
         SET rule = ?, normalized_rule = ?, rule_hash = ?, confidence = ?,
             evidence_count = ?, conversation_ids = ?, scope = ?, updated_at = ?
         WHERE id = ?`,
		mergedRule,
		normalized,
		RuleHash(mergedRule),
		confidence,
		evidenceCount,
		string(encoded),
		scope,
		time.Now().UTC().Format(time.RFC3339Nano),
		survivor.ID,
	); err != nil {
		return fmt.Errorf("update merged learning: %w", err)
	}
	for _, rec := range records[1:] {
		if _, err := q.ExecContext(ctx, `DELETE FROM learnings WHERE id = ?`, rec.ID); err != nil {
			return fmt.Errorf("delete merged learning %d: %w", rec.ID, err)
		}
	}
	return nil
}

func scanLearning(scanner interface{ Scan(dest ...any) error }) (*LearningRecord, error) {
	var (
		rec        LearningRecord
		idsRaw     string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.SourceQueueID,
		&idsRaw,
		&rec.Type,
		&rec.Rule,
		&rec.NormalizedRule,
		&rec.RuleHash,
		&rec.Confidence,
		&rec.Evidence,
		&rec.MessageID,
		&rec.Scope,
		&rec.EvidenceCount,
		&rec.Backend,
		&rec.AnalysisVersion,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(idsRaw), &rec.ConversationIDs); err != nil {
		rec.ConversationIDs = nil
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		rec.UpdatedAt = updated
	}
	return &rec, nil
}
