package apply

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"distill/internal/analysis"
	"distill/internal/conversations"
	"distill/internal/logging"
	"distill/internal/queue"
	"distill/internal/services"
	"distill/internal/storage"
)

// Applier turns recorded worker output into derived entities. Per item, all
// writes plus the terminal applied mark run in a single transaction; a crash
// at any point leaves either nothing or everything.
type Applier struct {
	db     *storage.DB
	convs  *conversations.Store
	logger *slog.Logger

	persistHook func() error
}

// Option configures the applier.
type Option func(*Applier)

// WithPersistHook runs fn inside the application transaction, after the
// type-specific writes and before the applied mark (primarily for tests,
// which abort there to exercise rollback).
func WithPersistHook(fn func() error) Option {
	return func(a *Applier) {
		a.persistHook = fn
	}
}

// NewApplier builds the result validator and persister.
func NewApplier(db *storage.DB, logger *slog.Logger, opts ...Option) *Applier {
	if logger == nil {
		logger = logging.NewNop()
	}
	a := &Applier{
		db:     db,
		convs:  conversations.NewStore(db),
		logger: logger.With(slog.String(logging.FieldComponent, "apply")),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Apply validates and persists one item's recorded result. Already-applied
// items are a no-op. Decode failures and other unretryable conditions mark
// the item permanently failed and return nil: the failure is handled, not
// propagated. A non-nil return means an infrastructure error; the item keeps
// its current state for a later attempt.
func (a *Applier) Apply(ctx context.Context, item *queue.Item) error {
	if item == nil {
		return errors.New("queue item required")
	}
	ctx = services.WithQueueID(ctx, item.ID)
	ctx = services.WithConversationID(ctx, item.ConversationID)
	ctx = services.WithAnalysisType(ctx, string(item.Type))
	log := logging.WithContext(ctx, a.logger)

	if item.AppliedAt != nil {
		return nil
	}
	if item.FailureReason != "" {
		return nil
	}
	if strings.TrimSpace(item.ResultPayload) == "" {
		return a.failPermanently(ctx, log, item.ID, "missing result payload")
	}
	if _, ok := queue.ParseAnalysisType(string(item.Type)); !ok {
		return a.failPermanently(ctx, log, item.ID, fmt.Sprintf("unknown analysis type %q", item.Type))
	}

	conv, err := a.convs.GetByID(ctx, item.ConversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return a.failPermanently(ctx, log, item.ID, fmt.Sprintf("conversation %s not found", item.ConversationID))
	}
	messages, err := a.convs.Messages(ctx, item.ConversationID)
	if err != nil {
		return err
	}

	tx, err := a.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	skipForMeta := (item.Type == queue.TypeWorkflow || item.Type == queue.TypeLearning) &&
		conversations.IsMeta(conv, messages)
	if skipForMeta {
		log.Info("skipping persistence for meta conversation")
	} else {
		var applyErr error
		switch item.Type {
		case queue.TypeWorkflow:
			applyErr = a.applyWorkflow(ctx, tx, log, item, conv)
		case queue.TypeLearning:
			applyErr = a.applyLearnings(ctx, tx, log, item, conv, messages)
		case queue.TypeSummary:
			applyErr = a.applySummary(ctx, tx, item, conv)
		case queue.TypeDedupe:
			applyErr = a.applyDedupe(ctx, tx, item)
		}
		var decodeErr *decodeError
		if errors.As(applyErr, &decodeErr) {
			// The payload will not change on retry; fail outside the
			// rolled-back transaction.
			_ = tx.Rollback()
			return a.failPermanently(ctx, log, item.ID, decodeErr.Error())
		}
		if applyErr != nil {
			return applyErr
		}
	}

	if a.persistHook != nil {
		if err := a.persistHook(); err != nil {
			return err
		}
	}
	if err := queue.MarkAppliedIn(ctx, tx, item.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit application: %w", err)
	}
	log.Info("item applied")
	return nil
}

// decodeError marks schema decode failures so Apply can translate them into
// permanent item failures.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "schema decode failure: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func (a *Applier) failPermanently(ctx context.Context, log *slog.Logger, id, reason string) error {
	if err := queue.MarkFailedIn(ctx, a.db.Handle(), id, reason); err != nil {
		return err
	}
	log.Warn("item permanently failed", slog.String("reason", reason))
	return nil
}

func (a *Applier) applyWorkflow(ctx context.Context, q storage.Querier, log *slog.Logger, item *queue.Item, conv *conversations.Conversation) error {
	result, err := analysis.DecodeWorkflow(item.ResultPayload)
	if err != nil {
		return &decodeError{err: err}
	}

	clean, ok := analysis.Sanitize(result)
	if !ok {
		// Hallucinated categories are expected; dropping them is not an error.
		log.Info("workflow result outside taxonomy, dropped")
		return nil
	}
	if analysis.IsExcluded(clean) {
		log.Info("workflow result excluded as non-actionable")
		return nil
	}
	exists, err := signatureExists(ctx, q, item.ID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return insertSignature(ctx, q, &WorkflowSignature{
		SourceQueueID:   item.ID,
		ConversationID:  conv.ID,
		Action:          clean.Action,
		Artifact:        clean.Artifact,
		Domains:         clean.Domains,
		Signature:       analysis.Signature(clean),
		Confidence:      clean.Confidence,
		Reasoning:       clean.Reasoning,
		Backend:         item.Backend,
		AnalysisVersion: item.AnalysisVersion,
	})
}

func (a *Applier) applyLearnings(ctx context.Context, q storage.Querier, log *slog.Logger, item *queue.Item, conv *conversations.Conversation, messages []conversations.Message) error {
	result, err := analysis.DecodeLearning(item.ResultPayload)
	if err != nil {
		return &decodeError{err: err}
	}

	for _, learning := range result.Learnings {
		rule := strings.TrimSpace(learning.Rule)
		if rule == "" {
			continue
		}
		if !evidenceFound(learning, messages) {
			// Integrity check against hallucinated corrections: no verbatim
			// quote in the conversation, no stored learning.
			log.Warn("learning dropped, evidence not found in conversation",
				slog.String("rule", rule))
			continue
		}

		hash := RuleHash(rule)
		exists, err := learningExists(ctx, q, item.ID, hash)
		if err != nil {
			return err
		}
		if exists {
			continue
		}

		if learning.Type != analysis.LearningTypeCorrection {
			existing, err := findPreferenceByRule(ctx, q, learning.Type, NormalizeRule(rule))
			if err != nil {
				return err
			}
			if existing != nil {
				scope, err := a.mergedScope(ctx, rule, existing, conv)
				if err != nil {
					return err
				}
				if err := mergeLearning(ctx, q, existing, learning.Confidence, conv.ID, scope); err != nil {
					return err
				}
				continue
			}
		}

		if err := insertLearning(ctx, q, &LearningRecord{
			SourceQueueID:   item.ID,
			ConversationIDs: []string{conv.ID},
			Type:            learning.Type,
			Rule:            rule,
			NormalizedRule:  NormalizeRule(rule),
			RuleHash:        hash,
			Confidence:      learning.Confidence,
			Evidence:        learning.Evidence,
			MessageID:       learning.MessageID,
			Scope:           resolveScope(rule, []*conversations.Conversation{conv}),
			Backend:         item.Backend,
			AnalysisVersion: item.AnalysisVersion,
		}); err != nil {
			return err
		}
	}
	return nil
}

// mergedScope recomputes scope for a merged learning across all of its
// underlying conversations, including the newly observed one.
func (a *Applier) mergedScope(ctx context.Context, rule string, existing *LearningRecord, conv *conversations.Conversation) (string, error) {
	ids := append([]string(nil), existing.ConversationIDs...)
	ids = append(ids, conv.ID)
	convs, err := a.convs.GetByIDs(ctx, ids)
	if err != nil {
		return "", err
	}
	return resolveScope(rule, convs), nil
}

func (a *Applier) applySummary(ctx context.Context, q storage.Querier, item *queue.Item, conv *conversations.Conversation) error {
	result, err := analysis.DecodeSummary(item.ResultPayload)
	if err != nil {
		return &decodeError{err: err}
	}

	if title := strings.TrimSpace(result.SuggestedTitle); title != "" {
		payload, err := encodePayload(titlePayload{ConversationID: conv.ID, Title: title})
		if err != nil {
			return err
		}
		if err := insertSuggestion(ctx, q, &Suggestion{
			SourceQueueID:   item.ID,
			Type:            SuggestionTitle,
			TargetID:        conv.ID,
			Payload:         payload,
			Confidence:      result.Confidence,
			Backend:         item.Backend,
			AnalysisVersion: item.AnalysisVersion,
		}); err != nil {
			return err
		}
	}
	if summary := strings.TrimSpace(result.SuggestedSummary); summary != "" {
		payload, err := encodePayload(summaryPayload{ConversationID: conv.ID, Summary: summary})
		if err != nil {
			return err
		}
		if err := insertSuggestion(ctx, q, &Suggestion{
			SourceQueueID:   item.ID,
			Type:            SuggestionSummary,
			TargetID:        conv.ID,
			Payload:         payload,
			Confidence:      result.Confidence,
			Backend:         item.Backend,
			AnalysisVersion: item.AnalysisVersion,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) applyDedupe(ctx context.Context, q storage.Querier, item *queue.Item) error {
	result, err := analysis.DecodeDedupe(item.ResultPayload)
	if err != nil {
		return &decodeError{err: err}
	}

	for _, merge := range result.MergeSuggestions {
		payload, err := encodePayload(mergePayload{
			SourceIDs:  merge.SourceIDs,
			MergedRule: merge.MergedRule,
			Reasoning:  merge.Reasoning,
		})
		if err != nil {
			return err
		}
		if err := insertSuggestion(ctx, q, &Suggestion{
			SourceQueueID:   item.ID,
			Type:            SuggestionMerge,
			TargetID:        mergeTargetID(merge.SourceIDs),
			Payload:         payload,
			Confidence:      merge.Confidence,
			Backend:         item.Backend,
			AnalysisVersion: item.AnalysisVersion,
		}); err != nil {
			return err
		}
	}
	return nil
}

// evidenceFound checks the quote against the named message first, then any
// message, case-insensitively.
func evidenceFound(learning analysis.Learning, messages []conversations.Message) bool {
	evidence := strings.ToLower(strings.TrimSpace(learning.Evidence))
	if evidence == "" {
		return false
	}
	if learning.MessageID != "" {
		for _, msg := range messages {
			if msg.ID == learning.MessageID {
				if strings.Contains(strings.ToLower(msg.Content), evidence) {
					return true
				}
				break
			}
		}
	}
	for _, msg := range messages {
		if strings.Contains(strings.ToLower(msg.Content), evidence) {
			return true
		}
	}
	return false
}

func encodePayload(v any) (string, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode suggestion payload: %w", err)
	}
	return string(encoded), nil
}
