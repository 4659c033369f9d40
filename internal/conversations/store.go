package conversations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"distill/internal/storage"
)

// Conversation is the subset of conversation metadata the core consumes.
type Conversation struct {
	ID          string
	Title       string
	Summary     string
	ProjectPath string
	Provider    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Message is a single conversation turn.
type Message struct {
	ID             string
	ConversationID string
	Position       int
	Role           string
	Content        string
	CreatedAt      time.Time
}

// Store reads and writes conversation records on the shared database.
type Store struct {
	db *storage.DB
}

// NewStore builds a conversation store on the shared database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

// Upsert inserts or refreshes a conversation record.
func (s *Store) Upsert(ctx context.Context, conv Conversation) error {
	if conv.ID == "" {
		return errors.New("conversation id required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	created := now
	if !conv.CreatedAt.IsZero() {
		created = conv.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.Handle().ExecContext(
		ctx,
		`INSERT INTO conversations (id, title, project_path, provider, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             title = excluded.title,
             project_path = excluded.project_path,
             provider = excluded.provider,
             updated_at = excluded.updated_at`,
		conv.ID,
		conv.Title,
		conv.ProjectPath,
		conv.Provider,
		created,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// AddMessage appends a message to a conversation.
func (s *Store) AddMessage(ctx context.Context, msg Message) error {
	if msg.ID == "" || msg.ConversationID == "" {
		return errors.New("message id and conversation id required")
	}
	created := time.Now().UTC()
	if !msg.CreatedAt.IsZero() {
		created = msg.CreatedAt.UTC()
	}
	_, err := s.db.Handle().ExecContext(
		ctx,
		`INSERT INTO messages (id, conversation_id, position, role, content, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID,
		msg.ConversationID,
		msg.Position,
		msg.Role,
		msg.Content,
		created.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetByID fetches a conversation. Returns nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.Handle().QueryRowContext(
		ctx,
		`SELECT id, title, summary, project_path, provider, created_at, updated_at
         FROM conversations WHERE id = ?`,
		id,
	)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// GetByIDs fetches multiple conversations, skipping missing ones.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]*Conversation, error) {
	convs := make([]*Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if conv != nil {
			convs = append(convs, conv)
		}
	}
	return convs, nil
}

// Messages returns a conversation's messages in order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.Handle().QueryContext(
		ctx,
		`SELECT id, conversation_id, position, role, content, created_at
         FROM messages WHERE conversation_id = ? ORDER BY position`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			msg        Message
			createdRaw string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Position, &msg.Role, &msg.Content, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
			msg.CreatedAt = created
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Rename updates a conversation title.
func (s *Store) Rename(ctx context.Context, id, title string) error {
	return RenameIn(ctx, s.db.Handle(), id, title)
}

// SetSummaryIn updates a conversation summary on an arbitrary querier so
// suggestion approval can write inside its own transaction.
func SetSummaryIn(ctx context.Context, q storage.Querier, id, summary string) error {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return errors.New("summary required")
	}
	res, err := q.ExecContext(
		ctx,
		`UPDATE conversations SET summary = ?, updated_at = ? WHERE id = ?`,
		summary,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set conversation summary: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("summary rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("conversation %s not found", id)
	}
	return nil
}

// RenameIn is Rename running on an arbitrary querier so suggestion approval
// can rename inside its own transaction.
func RenameIn(ctx context.Context, q storage.Querier, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title required")
	}
	res, err := q.ExecContext(
		ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title,
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("rename conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("conversation %s not found", id)
	}
	return nil
}

func scanConversation(scanner interface{ Scan(dest ...any) error }) (*Conversation, error) {
	var (
		conv       Conversation
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&conv.ID, &conv.Title, &conv.Summary, &conv.ProjectPath, &conv.Provider, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		conv.CreatedAt = created
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		conv.UpdatedAt = updated
	}
	return &conv, nil
}
