package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"distill/internal/storage"
)

// Store manages analysis queue persistence.
type Store struct {
	db *storage.DB
}

// NewStore builds a queue store on the shared database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// Enqueue inserts a new ready item for a conversation and analysis type.
func (s *Store) Enqueue(ctx context.Context, conversationID string, kind AnalysisType, backend, version string) (*Item, error) {
	if conversationID == "" {
		return nil, errors.New("conversation id required")
	}
	if _, ok := ParseAnalysisType(string(kind)); !ok {
		return nil, fmt.Errorf("unknown analysis type %q", kind)
	}

	id := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Handle().ExecContext(
		ctx,
		`INSERT INTO analysis_queue (
            id, conversation_id, analysis_type, backend, analysis_version,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		conversationID,
		string(kind),
		backend,
		version,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert queue item: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a queue item by identifier. Returns nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Item, error) {
	row := s.db.Handle().QueryRowContext(ctx, `SELECT `+itemColumns+` FROM analysis_queue WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get queue item: %w", err)
	}
	return item, nil
}

// ClaimReady atomically claims up to limit ready items for leaseHolder and
// returns them. Two concurrent callers never receive the same item: the
// claim UPDATE only matches rows that are still unclaimed, and the whole
// operation runs in one transaction.
func (s *Store) ClaimReady(ctx context.Context, limit int, leaseHolder string) ([]*Item, error) {
	if limit <= 0 {
		return nil, nil
	}
	if leaseHolder == "" {
		return nil, errors.New("lease holder required")
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(
		ctx,
		`SELECT id FROM analysis_queue
         WHERE claim_holder IS NULL AND result_payload IS NULL
           AND applied_at IS NULL AND failure_reason IS NULL
         ORDER BY created_at LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select ready items: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan ready id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ready ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	claimed := make([]string, 0, len(ids))
	for _, id := range ids {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE analysis_queue
             SET claim_holder = ?, claimed_at = ?, updated_at = ?
             WHERE id = ? AND claim_holder IS NULL
               AND applied_at IS NULL AND failure_reason IS NULL`,
			leaseHolder,
			now,
			now,
			id,
		)
		if err != nil {
			return nil, fmt.Errorf("claim item %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim rows affected: %w", err)
		}
		if affected == 1 {
			claimed = append(claimed, id)
		}
	}

	items := make([]*Item, 0, len(claimed))
	for _, id := range claimed {
		row := tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM analysis_queue WHERE id = ?`, id)
		item, err := scanItem(row)
		if err != nil {
			return nil, fmt.Errorf("fetch claimed item: %w", err)
		}
		items = append(items, item)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return items, nil
}

// RecordResult stores worker output on an item. The write is accepted even
// when the lease was already reclaimed: a computed result is still useful for
// orphan recovery, it just does not imply the item was applied.
func (s *Store) RecordResult(ctx context.Context, id, rawPayload string) error {
	if rawPayload == "" {
		return errors.New("result payload required")
	}
	res, err := s.db.Handle().ExecContext(
		ctx,
		`UPDATE analysis_queue
         SET result_payload = ?, updated_at = ?
         WHERE id = ? AND applied_at IS NULL AND failure_reason IS NULL`,
		rawPayload,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record result rows affected: %w", err)
	}
	if affected == 0 {
		return s.terminalOrMissing(ctx, id)
	}
	return nil
}

// MarkApplied records terminal success. Idempotent; conflicts with an
// existing failure are rejected.
func (s *Store) MarkApplied(ctx context.Context, id string) error {
	return MarkAppliedIn(ctx, s.db.Handle(), id)
}

// MarkFailed records terminal failure. Idempotent; conflicts with an
// existing success are rejected.
func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	return MarkFailedIn(ctx, s.db.Handle(), id, reason)
}

// MarkAppliedIn is MarkApplied running on an arbitrary querier, so the
// persister can include it in the same transaction as its derived writes.
// The update is guarded on both terminal columns being unset: a concurrent
// terminal write between the read and the update affects zero rows and is
// classified from a fresh read, so applied_at and failure_reason can never
// both end up set.
func MarkAppliedIn(ctx context.Context, q storage.Querier, id string) error {
	applied, failed, err := terminalState(ctx, q, id)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	if failed {
		return fmt.Errorf("%w: item %s already failed", ErrTerminalConflict, id)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := q.ExecContext(
		ctx,
		`UPDATE analysis_queue
         SET applied_at = ?, claim_holder = NULL, claimed_at = NULL, updated_at = ?
         WHERE id = ? AND applied_at IS NULL AND failure_reason IS NULL`,
		now,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark applied: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark applied: %w", err)
	}
	if affected == 0 {
		applied, failed, err = terminalState(ctx, q, id)
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
		if failed {
			return fmt.Errorf("%w: item %s already failed", ErrTerminalConflict, id)
		}
		return ErrNotFound
	}
	return nil
}

// MarkFailedIn is MarkFailed running on an arbitrary querier. Guarded the
// same way as MarkAppliedIn.
func MarkFailedIn(ctx context.Context, q storage.Querier, id, reason string) error {
	if reason == "" {
		reason = "unspecified failure"
	}
	applied, failed, err := terminalState(ctx, q, id)
	if err != nil {
		return err
	}
	if failed {
		return nil
	}
	if applied {
		return fmt.Errorf("%w: item %s already applied", ErrTerminalConflict, id)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := q.ExecContext(
		ctx,
		`UPDATE analysis_queue
         SET failure_reason = ?, claim_holder = NULL, claimed_at = NULL, updated_at = ?
         WHERE id = ? AND applied_at IS NULL AND failure_reason IS NULL`,
		reason,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if affected == 0 {
		applied, failed, err = terminalState(ctx, q, id)
		if err != nil {
			return err
		}
		if failed {
			return nil
		}
		if applied {
			return fmt.Errorf("%w: item %s already applied", ErrTerminalConflict, id)
		}
		return ErrNotFound
	}
	return nil
}

// terminalState reports which terminal column, if either, is set on the item.
func terminalState(ctx context.Context, q storage.Querier, id string) (applied, failed bool, err error) {
	var appliedAt, failureReason sql.NullString
	row := q.QueryRowContext(ctx, `SELECT applied_at, failure_reason FROM analysis_queue WHERE id = ?`, id)
	if err := row.Scan(&appliedAt, &failureReason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, false, ErrNotFound
		}
		return false, false, fmt.Errorf("read terminal state: %w", err)
	}
	return appliedAt.Valid, failureReason.Valid && failureReason.String != "", nil
}

// ReleaseStaleClaims clears the claim on every non-terminal item whose lease
// is older than the threshold and which has no recorded result, returning it
// to ready. Claim theft is safe because every downstream write is keyed by
// item id and idempotent.
func (s *Store) ReleaseStaleClaims(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.Handle().ExecContext(
		ctx,
		`UPDATE analysis_queue
         SET claim_holder = NULL, claimed_at = NULL, updated_at = ?
         WHERE claim_holder IS NOT NULL AND claimed_at < ?
           AND result_payload IS NULL
           AND applied_at IS NULL AND failure_reason IS NULL`,
		time.Now().UTC().Format(time.RFC3339Nano),
		cutoff.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	return res.RowsAffected()
}

// FetchUnappliedCompleted returns the orphan set: items with a stored result
// but no terminal state, left behind by a crash between tool completion and
// transaction commit.
func (s *Store) FetchUnappliedCompleted(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.Handle().QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM analysis_queue
         WHERE result_payload IS NOT NULL
           AND applied_at IS NULL AND failure_reason IS NULL
         ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch unapplied completed: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// PurgeOlderThan deletes terminal items past the retention window.
func (s *Store) PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := s.db.Handle().ExecContext(
		ctx,
		`DELETE FROM analysis_queue
         WHERE (applied_at IS NOT NULL OR failure_reason IS NOT NULL)
           AND updated_at < ?`,
		cutoff.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("purge terminal items: %w", err)
	}
	return res.RowsAffected()
}

// List returns queue items ordered by creation time, optionally filtered by state.
func (s *Store) List(ctx context.Context, states ...State) ([]*Item, error) {
	rows, err := s.db.Handle().QueryContext(ctx, `SELECT `+itemColumns+` FROM analysis_queue ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()

	items, err := collectItems(rows)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return items, nil
	}
	wanted := make(map[State]struct{}, len(states))
	for _, state := range states {
		wanted[state] = struct{}{}
	}
	filtered := items[:0]
	for _, item := range items {
		if _, ok := wanted[item.State()]; ok {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

// Stats returns a count of items grouped by lifecycle state.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	items, err := s.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Total: len(items)}
	for _, item := range items {
		switch item.State() {
		case StateReady:
			stats.Ready++
		case StateClaimed:
			stats.Claimed++
		case StateResultPending:
			stats.ResultPending++
		case StateApplied:
			stats.Applied++
		case StateFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// RetryFailed clears the terminal failure on the given items, returning them
// to ready. Used by the CLI for explicit operator-driven retries; the queue
// itself never retries permanent failures.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	var total int64
	for _, id := range ids {
		res, err := s.db.Handle().ExecContext(
			ctx,
			`UPDATE analysis_queue
             SET failure_reason = NULL, result_payload = NULL, updated_at = ?
             WHERE id = ? AND failure_reason IS NOT NULL`,
			now,
			id,
		)
		if err != nil {
			return total, fmt.Errorf("retry item %s: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("retry rows affected: %w", err)
		}
		total += affected
	}
	return total, nil
}

func (s *Store) terminalOrMissing(ctx context.Context, id string) error {
	item, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return ErrNotFound
	}
	return fmt.Errorf("%w: item %s is %s", ErrTerminalConflict, id, item.State())
}

const itemColumns = "id, conversation_id, analysis_type, backend, analysis_version, claim_holder, claimed_at, result_payload, applied_at, failure_reason, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id            string
		convID        string
		analysisType  string
		backend       sql.NullString
		version       sql.NullString
		claimHolder   sql.NullString
		claimedRaw    sql.NullString
		resultPayload sql.NullString
		appliedRaw    sql.NullString
		failureReason sql.NullString
		createdRaw    string
		updatedRaw    string
	)
	if err := scanner.Scan(
		&id,
		&convID,
		&analysisType,
		&backend,
		&version,
		&claimHolder,
		&claimedRaw,
		&resultPayload,
		&appliedRaw,
		&failureReason,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		ConversationID:  convID,
		Type:            AnalysisType(analysisType),
		Backend:         backend.String,
		AnalysisVersion: version.String,
		ClaimHolder:     claimHolder.String,
		ResultPayload:   resultPayload.String,
		FailureReason:   failureReason.String,
	}
	if claimed, ok := parseNullableTime(claimedRaw); ok {
		item.ClaimedAt = claimed
	}
	if applied, ok := parseNullableTime(appliedRaw); ok {
		item.AppliedAt = applied
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func parseNullableTime(value sql.NullString) (*time.Time, bool) {
	if !value.Valid || value.String == "" {
		return nil, false
	}
	parsed, err := time.Parse(time.RFC3339Nano, value.String)
	if err != nil {
		return nil, false
	}
	return &parsed, true
}
