// Package assistant – history_sqlite.go implements conversation history
// persistence backed by the central homeclaw.db SQLite database.
package assistant

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// SQLiteHistory stores conversation entries in the conversation_entries
// table. The table must already exist (created by storage.Open).
type SQLiteHistory struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteHistory creates a SQLite-backed history persistence.
func NewSQLiteHistory(db *sql.DB, logger *slog.Logger) *SQLiteHistory {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteHistory{db: db, logger: logger}
}

// SaveEntry appends a conversation entry for the given chat.
func (p *SQLiteHistory) SaveEntry(chatKey string, entry ConversationEntry) error {
	_, err := p.db.Exec(`
		INSERT INTO conversation_entries (chat_key, user_message, assistant_response, created_at)
		VALUES (?, ?, ?, ?)`,
		chatKey,
		entry.UserMessage,
		entry.AssistantResponse,
		entry.Timestamp.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save conversation entry: %w", err)
	}
	return nil
}

// LoadRecent reads the latest entries for a chat, oldest first.
func (p *SQLiteHistory) LoadRecent(chatKey string, limit int) ([]ConversationEntry, error) {
	rows, err := p.db.Query(`
		SELECT user_message, assistant_response, created_at
		FROM conversation_entries
		WHERE chat_key = ?
		ORDER BY id DESC
		LIMIT ?`, chatKey, limit)
	if err != nil {
		return nil, fmt.Errorf("load conversation entries: %w", err)
	}
	defer rows.Close()

	var entries []ConversationEntry
	for rows.Next() {
		var (
			e         ConversationEntry
			createdAt string
		)
		if err := rows.Scan(&e.UserMessage, &e.AssistantResponse, &createdAt); err != nil {
			return nil, fmt.Errorf("scan conversation entry: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation entries: %w", err)
	}

	// Query returned newest first, flip to chronological order.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// DeleteChat removes all persisted entries for a chat.
func (p *SQLiteHistory) DeleteChat(chatKey string) error {
	if _, err := p.db.Exec("DELETE FROM conversation_entries WHERE chat_key = ?", chatKey); err != nil {
		return fmt.Errorf("delete conversation entries: %w", err)
	}
	return nil
}
