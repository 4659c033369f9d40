package logging

import (
	"context"
	"log/slog"

	"distill/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldQueueID is the standardized structured logging key for queue item identifiers.
	FieldQueueID = "queue_id"
	// FieldConversationID is the standardized structured logging key for conversation identifiers.
	FieldConversationID = "conversation_id"
	// FieldAnalysisType is the standardized structured logging key for analysis types.
	FieldAnalysisType = "analysis_type"
	// FieldEventType tags log records with a machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested next step for a failure.
	FieldErrorHint = "error_hint"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 3)
	if id, ok := services.QueueIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldQueueID, id))
	}
	if id, ok := services.ConversationIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldConversationID, id))
	}
	if kind, ok := services.AnalysisTypeFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldAnalysisType, kind))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
