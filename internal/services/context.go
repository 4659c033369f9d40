package services

import "context"

type contextKey string

const (
	queueIDKey        contextKey = "queue_id"
	conversationIDKey contextKey = "conversation_id"
	analysisTypeKey   contextKey = "analysis_type"
)

// WithQueueID annotates context with the queue item identifier.
func WithQueueID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, queueIDKey, id)
}

// QueueIDFromContext extracts the queue item identifier if present.
func QueueIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(queueIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithConversationID annotates context with the conversation identifier.
func WithConversationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, conversationIDKey, id)
}

// ConversationIDFromContext extracts the conversation identifier if present.
func ConversationIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(conversationIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithAnalysisType annotates context with the analysis type being processed.
func WithAnalysisType(ctx context.Context, kind string) context.Context {
	if kind == "" {
		return ctx
	}
	return context.WithValue(ctx, analysisTypeKey, kind)
}

// AnalysisTypeFromContext extracts the analysis type if present.
func AnalysisTypeFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(analysisTypeKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
