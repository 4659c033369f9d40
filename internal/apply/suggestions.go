package apply

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"distill/internal/conversations"
	"distill/internal/storage"
)

// SuggestionType identifies what a review suggestion proposes.
type SuggestionType string

const (
	SuggestionTitle   SuggestionType = "title"
	SuggestionSummary SuggestionType = "summary"
	SuggestionMerge   SuggestionType = "merge"
)

// SuggestionStatus is the user-driven lifecycle state.
type SuggestionStatus string

const (
	StatusPending  SuggestionStatus = "pending"
	StatusApproved SuggestionStatus = "approved"
	StatusRejected SuggestionStatus = "rejected"
)

// ErrSuggestionResolved is returned when a terminal suggestion is applied or
// rejected again. Double-apply must fail loudly, never re-run side effects.
var ErrSuggestionResolved = errors.New("suggestion already resolved")

// Suggestion is a stored review proposal awaiting user action.
type Suggestion struct {
	ID              int64
	SourceQueueID   string
	Type            SuggestionType
	TargetID        string
	Payload         string
	Confidence      float64
	Status          SuggestionStatus
	RejectReason    string
	Backend         string
	AnalysisVersion string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type titlePayload struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
}

type summaryPayload struct {
	ConversationID string `json:"conversation_id"`
	Summary        string `json:"summary"`
}

type mergePayload struct {
	SourceIDs  []string `json:"source_ids"`
	MergedRule string   `json:"merged_rule"`
	Reasoning  string   `json:"reasoning"`
}

// mergeTargetID is the stable identity of a merge proposal: its sorted source
// set. The same proposal from a re-applied item collides on the unique key.
func mergeTargetID(sourceIDs []string) string {
	sorted := append([]string(nil), sourceIDs...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// insertSuggestion writes a suggestion, silently keeping the existing row on
// the (queue, type, target) unique key so reapplication is a no-op.
func insertSuggestion(ctx context.Context, q storage.Querier, s *Suggestion) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := q.ExecContext(
		ctx,
		`INSERT INTO suggestions (
            source_queue_id, suggestion_type, target_id, payload, confidence,
            status, backend, analysis_version, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?)
        ON CONFLICT(source_queue_id, suggestion_type, target_id) DO NOTHING`,
		s.SourceQueueID,
		string(s.Type),
		s.TargetID,
		s.Payload,
		s.Confidence,
		s.Backend,
		s.AnalysisVersion,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert suggestion: %w", err)
	}
	return nil
}

// SuggestionStore drives the user-facing suggestion lifecycle.
type SuggestionStore struct {
	db *storage.DB
}

// NewSuggestionStore builds a suggestion store on the shared database.
func NewSuggestionStore(db *storage.DB) *SuggestionStore {
	return &SuggestionStore{db: db}
}

const suggestionColumns = "id, source_queue_id, suggestion_type, target_id, payload, confidence, status, reject_reason, backend, analysis_version, created_at, updated_at"

// List returns suggestions, optionally filtered by status.
func (s *SuggestionStore) List(ctx context.Context, status SuggestionStatus) ([]*Suggestion, error) {
	query := `SELECT ` + suggestionColumns + ` FROM suggestions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Handle().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []*Suggestion
	for rows.Next() {
		sug, err := scanSuggestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		suggestions = append(suggestions, sug)
	}
	return suggestions, rows.Err()
}

// GetByID fetches one suggestion. Returns nil when absent.
func (s *SuggestionStore) GetByID(ctx context.Context, id int64) (*Suggestion, error) {
	row := s.db.Handle().QueryRowContext(ctx, `SELECT `+suggestionColumns+` FROM suggestions WHERE id = ?`, id)
	sug, err := scanSuggestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get suggestion: %w", err)
	}
	return sug, nil
}

// ApplyAndApprove performs the suggestion's side effect and flips its status
// to approved in one transaction. Applying a resolved suggestion fails with
// ErrSuggestionResolved.
func (s *SuggestionStore) ApplyAndApprove(ctx context.Context, id int64) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	sug, err := s.lockPending(ctx, tx, id)
	if err != nil {
		return err
	}

	switch sug.Type {
	case SuggestionTitle:
		var payload titlePayload
		if err := json.Unmarshal([]byte(sug.Payload), &payload); err != nil {
			return fmt.Errorf("decode title payload: %w", err)
		}
		if err := conversations.RenameIn(ctx, tx, payload.ConversationID, payload.Title); err != nil {
			return err
		}
	case SuggestionSummary:
		var payload summaryPayload
		if err := json.Unmarshal([]byte(sug.Payload), &payload); err != nil {
			return fmt.Errorf("decode summary payload: %w", err)
		}
		if err := conversations.SetSummaryIn(ctx, tx, payload.ConversationID, payload.Summary); err != nil {
			return err
		}
	case SuggestionMerge:
		var payload mergePayload
		if err := json.Unmarshal([]byte(sug.Payload), &payload); err != nil {
			return fmt.Errorf("decode merge payload: %w", err)
		}
		if err := mergeLearningRows(ctx, tx, payload.SourceIDs, payload.MergedRule); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown suggestion type %q", sug.Type)
	}

	if err := s.setStatus(ctx, tx, id, StatusApproved, ""); err != nil {
		return err
	}
	return tx.Commit()
}

// Reject marks a pending suggestion rejected with an optional reason. No side
// effects run.
func (s *SuggestionStore) Reject(ctx context.Context, id int64, reason string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := s.lockPending(ctx, tx, id); err != nil {
		return err
	}
	if err := s.setStatus(ctx, tx, id, StatusRejected, reason); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SuggestionStore) lockPending(ctx context.Context, q storage.Querier, id int64) (*Suggestion, error) {
	row := q.QueryRowContext(ctx, `SELECT `+suggestionColumns+` FROM suggestions WHERE id = ?`, id)
	sug, err := scanSuggestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("suggestion %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get suggestion: %w", err)
	}
	if sug.Status != StatusPending {
		return nil, fmt.Errorf("%w: suggestion %d is %s", ErrSuggestionResolved, id, sug.Status)
	}
	return sug, nil
}

func (s *SuggestionStore) setStatus(ctx context.Context, q storage.Querier, id int64, status SuggestionStatus, reason string) error {
	_, err := q.ExecContext(
		ctx,
		`UPDATE suggestions SET status = ?, reject_reason = ?, updated_at = ? WHERE id = ?`,
		string(status),
		reason,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update suggestion status: %w", err)
	}
	return nil
}

func scanSuggestion(scanner interface{ Scan(dest ...any) error }) (*Suggestion, error) {
	var (
		sug        Suggestion
		kind       string
		status     string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&sug.ID,
		&sug.SourceQueueID,
		&kind,
		&sug.TargetID,
		&sug.Payload,
		&sug.Confidence,
		&status,
		&sug.RejectReason,
		&sug.Backend,
		&sug.AnalysisVersion,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	sug.Type = SuggestionType(kind)
	sug.Status = SuggestionStatus(status)
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		sug.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		sug.UpdatedAt = updated
	}
	return &sug, nil
}
