package payload

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"distill/internal/analysis"
	"distill/internal/config"
	"distill/internal/conversations"
	"distill/internal/logging"
	"distill/internal/queue"
	"distill/internal/services"
)

// Delimiter separates the free-text instructions from the JSON payload on the
// tool's input stream.
const Delimiter = "-----PAYLOAD-----"

// Item pairs a claimed queue item with the conversation data it analyzes.
type Item struct {
	QueueID      string
	Conversation *conversations.Conversation
	Messages     []conversations.Message
}

// Preparer builds tool requests for batches of claimed items.
type Preparer struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewPreparer builds a payload preparer.
func NewPreparer(cfg *config.Config, logger *slog.Logger) *Preparer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Preparer{cfg: cfg, logger: logger.With(slog.String(logging.FieldComponent, "payload"))}
}

type request struct {
	QueueItems    []queueItemRef    `json:"queueItems"`
	Conversations []conversationDoc `json:"conversations"`
	AnalysisType  string            `json:"analysisType"`
	SchemaVersion string            `json:"schemaVersion"`
}

type queueItemRef struct {
	QueueID        string `json:"queueId"`
	ConversationID string `json:"conversationId"`
}

type conversationDoc struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	ProjectPath string       `json:"projectPath,omitempty"`
	Provider    string       `json:"provider,omitempty"`
	Messages    []messageDoc `json:"messages"`
}

type messageDoc struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prepare minimizes, redacts, and serializes a batch into the tool's input:
// instructions, a delimiter line, then the request JSON. When the serialized
// payload exceeds the configured budget the whole batch is rejected with
// services.ErrPayloadTooLarge; callers retry with smaller batches.
func (p *Preparer) Prepare(kind queue.AnalysisType, variant Variant, items []Item) (string, error) {
	if len(items) == 0 {
		return "", services.Wrap(services.ErrValidation, "payload", "prepare", "empty batch", nil)
	}
	caps := capsFor(p.cfg, kind, variant)

	req := request{
		QueueItems:    make([]queueItemRef, 0, len(items)),
		Conversations: make([]conversationDoc, 0, len(items)),
		AnalysisType:  string(kind),
		SchemaVersion: strconv.Itoa(p.cfg.Analysis.SchemaVersion),
	}
	for _, item := range items {
		if item.Conversation == nil {
			return "", services.Wrap(services.ErrValidation, "payload", "prepare",
				fmt.Sprintf("item %s has no conversation", item.QueueID), nil)
		}
		req.QueueItems = append(req.QueueItems, queueItemRef{
			QueueID:        item.QueueID,
			ConversationID: item.Conversation.ID,
		})
		req.Conversations = append(req.Conversations, minimizeConversation(kind, caps, item))
	}

	serialized, err := json.Marshal(req)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "payload", "prepare", "serialize request", err)
	}
	if max := p.cfg.Payload.MaxBytes; max > 0 && len(serialized) > max {
		return "", services.Wrap(services.ErrPayloadTooLarge, "payload", "prepare",
			fmt.Sprintf("batch payload %d bytes exceeds budget %d", len(serialized), max), nil)
	}

	p.logger.Debug("prepared batch payload",
		slog.String(logging.FieldAnalysisType, string(kind)),
		slog.String("variant", string(variant)),
		slog.Int("items", len(items)),
		slog.Int("bytes", len(serialized)))

	var b strings.Builder
	b.WriteString(analysis.Instructions(kind))
	b.WriteString("\n\n")
	b.WriteString(Delimiter)
	b.WriteString("\n")
	b.Write(serialized)
	return b.String(), nil
}

// minimizeConversation applies the per-type profile, then redacts the bytes
// that survived it.
func minimizeConversation(kind queue.AnalysisType, caps config.Caps, item Item) conversationDoc {
	doc := conversationDoc{
		ID:          item.Conversation.ID,
		Title:       Redact(item.Conversation.Title),
		ProjectPath: item.Conversation.ProjectPath,
		Provider:    item.Conversation.Provider,
	}

	selected := selectMessages(kind, caps, item.Messages)
	doc.Messages = make([]messageDoc, 0, len(selected))
	for _, msg := range selected {
		doc.Messages = append(doc.Messages, messageDoc{
			ID:      msg.ID,
			Role:    msg.Role,
			Content: Redact(truncate(msg.Content, caps.MessageChars)),
		})
	}
	return doc
}

func selectMessages(kind queue.AnalysisType, caps config.Caps, messages []conversations.Message) []conversations.Message {
	if caps.MaxMessages <= 0 || len(messages) <= caps.MaxMessages {
		return messages
	}
	// Summaries only need how the conversation opened and where it ended.
	// Everything else wants the most recent turns.
	if kind == queue.TypeSummary {
		return []conversations.Message{messages[0], messages[len(messages)-1]}
	}
	return messages[len(messages)-caps.MaxMessages:]
}

func truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
