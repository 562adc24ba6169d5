// Package scheduler – storage_sqlite.go persists reminders in the central
// homeclaw.db SQLite database.
package scheduler

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// SQLiteStorage implements ReminderStorage backed by homeclaw.db.
// The reminders table must already exist (created by storage.Open).
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStorage creates a SQLite-backed reminder storage.
func NewSQLiteStorage(db *sql.DB, logger *slog.Logger) *SQLiteStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStorage{db: db, logger: logger}
}

// Save inserts or updates a reminder.
func (s *SQLiteStorage) Save(r *Reminder) error {
	lastRun := ""
	if r.LastRunAt != nil {
		lastRun = r.LastRunAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(`
		INSERT INTO reminders (id, schedule, type, message, channel, chat_id, enabled, created_at, last_run_at, run_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schedule = excluded.schedule,
			type = excluded.type,
			message = excluded.message,
			channel = excluded.channel,
			chat_id = excluded.chat_id,
			enabled = excluded.enabled,
			last_run_at = excluded.last_run_at,
			run_count = excluded.run_count`,
		r.ID, r.Schedule, r.Type, r.Message, r.Channel, r.ChatID,
		boolToInt(r.Enabled), r.CreatedAt.UTC().Format(time.RFC3339), lastRun, r.RunCount,
	)
	if err != nil {
		return fmt.Errorf("save reminder %q: %w", r.ID, err)
	}
	return nil
}

// Delete removes a reminder by ID.
func (s *SQLiteStorage) Delete(id string) error {
	if _, err := s.db.Exec("DELETE FROM reminders WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete reminder %q: %w", id, err)
	}
	return nil
}

// LoadAll reads all persisted reminders.
func (s *SQLiteStorage) LoadAll() ([]*Reminder, error) {
	rows, err := s.db.Query(`
		SELECT id, schedule, type, message, channel, chat_id, enabled, created_at, last_run_at, run_count
		FROM reminders`)
	if err != nil {
		return nil, fmt.Errorf("load reminders: %w", err)
	}
	defer rows.Close()

	var result []*Reminder
	for rows.Next() {
		var (
			r         Reminder
			enabled   int
			createdAt string
			lastRun   string
		)
		if err := rows.Scan(&r.ID, &r.Schedule, &r.Type, &r.Message, &r.Channel,
			&r.ChatID, &enabled, &createdAt, &lastRun, &r.RunCount); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		r.Enabled = enabled != 0
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if lastRun != "" {
			if t, err := time.Parse(time.RFC3339, lastRun); err == nil {
				r.LastRunAt = &t
			}
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
