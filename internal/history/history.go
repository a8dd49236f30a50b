// Package history persists the question/answer log in SQLite. Logging is
// fire-and-forget from the request path: a failed write is logged by the
// caller, never surfaced to the user.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// maxMessages caps the stored log; older messages are pruned on insert.
const maxMessages = 50

// Message is one logged Q&A exchange.
type Message struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Sources   []string  `json:"sources"`
	CreatedAt time.Time `json:"timestamp"`
}

// Stats summarizes the stored log.
type Stats struct {
	TotalMessages int        `json:"total_messages"`
	Oldest        *time.Time `json:"oldest_message,omitempty"`
	Newest        *time.Time `json:"newest_message,omitempty"`
}

// Store is a SQLite-backed chat log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path and bootstraps the
// schema. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db at %s: %w", path, err)
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            question TEXT NOT NULL,
            answer TEXT NOT NULL,
            sources TEXT NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );
        CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages (created_at);
    `)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Add appends a Q&A pair and prunes the log down to maxMessages.
func (s *Store) Add(ctx context.Context, question, answer string, sources []string) (*Message, error) {
	if sources == nil {
		sources = []string{}
	}
	encoded, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("encode sources: %w", err)
	}

	msg := &Message{
		ID:        uuid.New().String(),
		Question:  question,
		Answer:    answer,
		Sources:   sources,
		CreatedAt: time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, question, answer, sources, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.Question, msg.Answer, string(encoded), msg.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
        DELETE FROM messages WHERE id NOT IN (
            SELECT id FROM messages ORDER BY created_at DESC LIMIT ?
        )`, maxMessages)
	if err != nil {
		return nil, fmt.Errorf("prune messages: %w", err)
	}

	return msg, nil
}

// Recent returns the most recent messages, oldest first, capped at limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 || limit > maxMessages {
		limit = maxMessages
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, question, answer, sources, created_at FROM (
            SELECT * FROM messages ORDER BY created_at DESC LIMIT ?
        ) ORDER BY created_at ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var sources, createdAt string
		if err := rows.Scan(&msg.ID, &msg.Question, &msg.Answer, &sources, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &msg.Sources); err != nil {
			msg.Sources = []string{}
		}
		msg.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Delete removes one message by ID. Returns false if no message matched.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Clear removes all messages.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// GetStats reports the message count and the oldest/newest timestamps.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	var count int
	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(created_at), MAX(created_at) FROM messages`,
	).Scan(&count, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	stats := &Stats{TotalMessages: count}
	if oldest.Valid {
		if t, err := time.Parse(time.RFC3339Nano, oldest.String); err == nil {
			stats.Oldest = &t
		}
	}
	if newest.Valid {
		if t, err := time.Parse(time.RFC3339Nano, newest.String); err == nil {
			stats.Newest = &t
		}
	}
	return stats, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }
