// Package worker drives the analysis pipeline: it claims ready queue items,
// prepares payloads, runs the external tool once per batch, and hands each
// item's result to the applier. One item's failure never aborts the batch.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"distill/internal/analysis"
	"distill/internal/apply"
	"distill/internal/config"
	"distill/internal/conversations"
	"distill/internal/logging"
	"distill/internal/notifications"
	"distill/internal/payload"
	"distill/internal/queue"
	"distill/internal/services"
	"distill/internal/storage"
)

// Executor runs one external tool invocation for a prepared batch input.
type Executor interface {
	Execute(ctx context.Context, input string) (string, error)
}

// Worker owns one lease-holder identity. Multiple workers may run against
// the same database; the claim protocol keeps their batches disjoint.
type Worker struct {
	cfg      *config.Config
	queue    *queue.Store
	convs    *conversations.Store
	preparer *payload.Preparer
	executor Executor
	applier  *apply.Applier
	notifier notifications.Service
	logger   *slog.Logger
	holder   string
}

// New builds a worker on the shared database.
func New(cfg *config.Config, db *storage.DB, executor Executor, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Worker{
		cfg:      cfg,
		queue:    queue.NewStore(db),
		convs:    conversations.NewStore(db),
		preparer: payload.NewPreparer(cfg, logger),
		executor: executor,
		applier:  apply.NewApplier(db, logger),
		notifier: notifications.NewService(cfg),
		logger:   logger.With(slog.String(logging.FieldComponent, "worker")),
		holder:   "worker-" + uuid.NewString(),
	}
}

// Run polls the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	poll := time.Duration(w.cfg.Workflow.QueuePollInterval) * time.Second
	retry := time.Duration(w.cfg.Workflow.ErrorRetryInterval) * time.Second

	for {
		processed, err := w.RunOnce(ctx)
		wait := poll
		switch {
		case errors.Is(err, context.Canceled):
			return
		case err != nil:
			w.logger.Error("batch run failed", logging.Error(err))
			wait = retry
		case processed > 0:
			// Drain the backlog without waiting out the poll interval.
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// RunOnce claims and processes one batch. The returned count is the number of
// items that reached a terminal state. A non-nil error means the whole batch
// could not proceed (consent missing, store unavailable); claimed items are
// left for lease expiry.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	items, err := w.queue.ClaimReady(ctx, w.cfg.Analysis.BatchSize, w.holder)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	byType := make(map[queue.AnalysisType][]*queue.Item)
	order := make([]queue.AnalysisType, 0, 4)
	for _, item := range items {
		if _, seen := byType[item.Type]; !seen {
			order = append(order, item.Type)
		}
		byType[item.Type] = append(byType[item.Type], item)
	}

	processed := 0
	for _, kind := range order {
		n, err := w.processGroup(ctx, kind, byType[kind])
		processed += n
		if err != nil {
			return processed, err
		}
	}
	return processed, nil
}

// processGroup runs one analysis type's share of the batch. Oversized groups
// are split in half and retried; a single item that still exceeds the budget
// is a permanent failure, since re-minimizing the same conversation cannot
// shrink it further.
func (w *Worker) processGroup(ctx context.Context, kind queue.AnalysisType, items []*queue.Item) (int, error) {
	ctx = services.WithAnalysisType(ctx, string(kind))
	log := logging.WithContext(ctx, w.logger)

	batch := make([]payload.Item, 0, len(items))
	valid := make([]*queue.Item, 0, len(items))
	processed := 0
	for _, item := range items {
		conv, err := w.convs.GetByID(ctx, item.ConversationID)
		if err != nil {
			return processed, err
		}
		if conv == nil {
			if err := w.queue.MarkFailed(ctx, item.ID, "conversation "+item.ConversationID+" not found"); err != nil {
				return processed, err
			}
			processed++
			continue
		}
		messages, err := w.convs.Messages(ctx, item.ConversationID)
		if err != nil {
			return processed, err
		}
		batch = append(batch, payload.Item{QueueID: item.ID, Conversation: conv, Messages: messages})
		valid = append(valid, item)
	}
	if len(valid) == 0 {
		return processed, nil
	}

	input, err := w.preparer.Prepare(kind, payload.VariantMinimized, batch)
	if errors.Is(err, services.ErrPayloadTooLarge) {
		if len(valid) == 1 {
			if err := w.queue.MarkFailed(ctx, valid[0].ID, "payload exceeds byte budget after minimization"); err != nil {
				return processed, err
			}
			return processed + 1, nil
		}
		log.Info("batch payload too large, splitting", slog.Int("items", len(valid)))
		half := len(valid) / 2
		n1, err := w.processGroup(ctx, kind, valid[:half])
		processed += n1
		if err != nil {
			return processed, err
		}
		n2, err := w.processGroup(ctx, kind, valid[half:])
		return processed + n2, err
	}
	if err != nil {
		return processed, err
	}

	raw, err := w.executor.Execute(ctx, input)
	if err != nil {
		if errors.Is(err, services.ErrConsent) {
			_ = w.notifier.NotifyConsentMissing(ctx)
			return processed, err
		}
		if errors.Is(err, services.ErrAuthRequired) {
			_ = w.notifier.NotifyAuthRequired(ctx, err.Error())
		}
		// Transient, auth, and timeout failures leave the items claimed;
		// lease expiry hands them to a later run.
		log.Warn("tool execution failed, items left claimed", logging.Error(err))
		return processed, nil
	}

	results, err := analysis.SplitBatch(raw)
	if err != nil {
		// Malformed batch output can differ on the next invocation, so this
		// is not a per-item permanent failure.
		log.Warn("tool output not splittable, items left claimed", logging.Error(err))
		return processed, nil
	}

	for _, item := range valid {
		n, err := w.finishItem(ctx, log, item, results)
		processed += n
		if err != nil {
			log.Error("item application failed",
				slog.String(logging.FieldQueueID, item.ID), logging.Error(err))
		}
	}
	return processed, nil
}

func (w *Worker) finishItem(ctx context.Context, log *slog.Logger, item *queue.Item, results map[string]json.RawMessage) (int, error) {
	ctx = services.WithQueueID(ctx, item.ID)
	element, ok := results[item.ID]
	if !ok {
		if err := w.queue.MarkFailed(ctx, item.ID, "missing result payload"); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err := w.queue.RecordResult(ctx, item.ID, string(element)); err != nil {
		return 0, err
	}
	refreshed, err := w.queue.GetByID(ctx, item.ID)
	if err != nil {
		return 0, err
	}
	if refreshed == nil {
		return 0, nil
	}
	if err := w.applier.Apply(ctx, refreshed); err != nil {
		return 0, err
	}
	return 1, nil
}
