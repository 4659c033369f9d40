package apply

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"distill/internal/storage"
)

// WorkflowSignature is a stored canonical workflow identity.
type WorkflowSignature struct {
	ID              int64
	SourceQueueID   string
	ConversationID  string
	Action          string
	Artifact        string
	Domains         []string
	Signature       string
	Confidence      float64
	Reasoning       string
	Backend         string
	AnalysisVersion string
	CreatedAt       time.Time
}

func signatureExists(ctx context.Context, q storage.Querier, queueID string) (bool, error) {
	var count int
	row := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM workflow_signatures WHERE source_queue_id = ?`, queueID)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check signature existence: %w", err)
	}
	return count > 0, nil
}

func insertSignature(ctx context.Context, q storage.Querier, sig *WorkflowSignature) error {
	domains, err := json.Marshal(sig.Domains)
	if err != nil {
		return fmt.Errorf("encode domains: %w", err)
	}
	_, err = q.ExecContext(
		ctx,
		`INSERT INTO workflow_signatures (
            source_queue_id, conversation_id, action, artifact, domains,
            signature, confidence, reasoning, backend, analysis_version, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.SourceQueueID,
		sig.ConversationID,
		sig.Action,
		sig.Artifact,
		string(domains),
		sig.Signature,
		sig.Confidence,
		sig.Reasoning,
		sig.Backend,
		sig.AnalysisVersion,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert workflow signature: %w", err)
	}
	return nil
}

// SignatureStore provides read access to stored workflow signatures.
type SignatureStore struct {
	db *storage.DB
}

// NewSignatureStore builds a signature store on the shared database.
func NewSignatureStore(db *storage.DB) *SignatureStore {
	return &SignatureStore{db: db}
}

// List returns all workflow signatures, newest first.
func (s *SignatureStore) List(ctx context.Context) ([]*WorkflowSignature, error) {
	rows, err := s.db.Handle().QueryContext(
		ctx,
		`SELECT id, source_queue_id, conversation_id, action, artifact, domains,
                signature, confidence, reasoning, backend, analysis_version, created_at
         FROM workflow_signatures ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	defer rows.Close()

	var signatures []*WorkflowSignature
	for rows.Next() {
		var (
			sig        WorkflowSignature
			domainsRaw string
			createdRaw string
		)
		if err := rows.Scan(
			&sig.ID,
			&sig.SourceQueueID,
			&sig.ConversationID,
			&sig.Action,
			&sig.Artifact,
			&domainsRaw,
			&sig.Signature,
			&sig.Confidence,
			&sig.Reasoning,
			&sig.Backend,
			&sig.AnalysisVersion,
			&createdRaw,
		); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		if err := json.Unmarshal([]byte(domainsRaw), &sig.Domains); err != nil {
			sig.Domains = nil
		}
		if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
			sig.CreatedAt = created
		}
		signatures = append(signatures, &sig)
	}
	return signatures, rows.Err()
}
