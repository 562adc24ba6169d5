// Package scheduler implements homeclaw's reminder system.
// Uses robfig/cron for cron expression parsing and execution,
// with SQLite-based persistence for surviving restarts.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/jholhewres/homeclaw/pkg/homeclaw/bus"
)

// Reminder is a scheduled message delivered to a chat.
type Reminder struct {
	// ID is the unique reminder identifier.
	ID string `json:"id"`

	// Schedule is the cron expression or shorthand.
	// Supports: standard 5-field cron, @daily, @hourly, @every 5m, etc.
	Schedule string `json:"schedule"`

	// Type is the schedule type: "cron" (recurring) or "at" (one-shot).
	Type string `json:"type"`

	// Message is the text delivered when the reminder fires.
	Message string `json:"message"`

	// Channel and ChatID identify the delivery target.
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`

	// Enabled indicates if the reminder is active.
	Enabled bool `json:"enabled"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`

	// LastRunAt is the last firing timestamp.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// RunCount tracks how many times the reminder has fired.
	RunCount int `json:"run_count"`
}

// ReminderStorage defines the persistence interface for reminders.
type ReminderStorage interface {
	Save(r *Reminder) error
	Delete(id string) error
	LoadAll() ([]*Reminder, error)
}

// Scheduler manages reminders using cron expressions. Fired reminders
// are published to the event bus; the assistant delivers them.
type Scheduler struct {
	reminders map[string]*Reminder
	cronIDs   map[string]cron.EntryID

	cron    *cron.Cron
	storage ReminderStorage
	bus     *bus.Bus

	logger *slog.Logger
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Scheduler with the given storage and event bus.
func New(storage ReminderStorage, b *bus.Bus, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		reminders: make(map[string]*Reminder),
		cronIDs:   make(map[string]cron.EntryID),
		storage:   storage,
		bus:       b,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start initializes the cron scheduler and loads persisted reminders.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))

	if s.storage != nil {
		loaded, err := s.storage.LoadAll()
		if err != nil {
			s.logger.Error("failed to load reminders", "error", err)
		} else {
			s.mu.Lock()
			for _, r := range loaded {
				s.reminders[r.ID] = r
				if r.Enabled {
					if err := s.schedule(r); err != nil {
						s.logger.Warn("skipping reminder with invalid schedule",
							"id", r.ID, "schedule", r.Schedule, "error", err)
					}
				}
			}
			s.mu.Unlock()
			s.logger.Info("reminders loaded from storage", "count", len(loaded))
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "entries", len(s.cron.Entries()))
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		done := s.cron.Stop()
		select {
		case <-done.Done():
		case <-time.After(10 * time.Second):
			s.logger.Warn("scheduler stop timed out")
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("scheduler stopped")
}

// Add registers and persists a new reminder.
func (s *Scheduler) Add(r *Reminder) error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("reminder message is required")
	}
	if r.ID == "" {
		r.ID = "rem-" + uuid.NewString()[:8]
	}
	if r.Type == "" {
		r.Type = "cron"
	}
	r.Enabled = true
	r.CreatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reminders[r.ID]; exists {
		return fmt.Errorf("reminder %q already exists", r.ID)
	}
	if err := s.schedule(r); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", r.Schedule, err)
	}
	s.reminders[r.ID] = r

	if s.storage != nil {
		if err := s.storage.Save(r); err != nil {
			s.logger.Error("failed to persist reminder", "id", r.ID, "error", err)
		}
	}

	s.logger.Info("reminder added", "id", r.ID, "schedule", r.Schedule, "channel", r.Channel)
	return nil
}

// Remove deletes a reminder by ID.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reminders[id]; !exists {
		return fmt.Errorf("reminder %q not found", id)
	}
	if entryID, ok := s.cronIDs[id]; ok {
		s.cron.Remove(entryID)
		delete(s.cronIDs, id)
	}
	delete(s.reminders, id)

	if s.storage != nil {
		if err := s.storage.Delete(id); err != nil {
			s.logger.Error("failed to delete reminder from storage", "id", id, "error", err)
		}
	}

	s.logger.Info("reminder removed", "id", id)
	return nil
}

// List returns all registered reminders.
func (s *Scheduler) List() []*Reminder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		result = append(result, r)
	}
	return result
}

// Get returns a reminder by ID.
func (s *Scheduler) Get(id string) (*Reminder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reminders[id]
	return r, ok
}

// ---------- Internal ----------

// schedule registers a reminder with the cron runner. Caller holds s.mu.
func (s *Scheduler) schedule(r *Reminder) error {
	if r.Type == "at" {
		go s.fireOnce(r)
		return nil
	}

	entryID, err := s.cron.AddFunc(r.Schedule, func() {
		s.fire(r)
	})
	if err != nil {
		return err
	}
	s.cronIDs[r.ID] = entryID
	return nil
}

// fireOnce waits for a one-shot reminder's time and fires it once.
// Supports relative durations ("30m"), "15:04" (today or tomorrow),
// and "2006-01-02 15:04".
func (s *Scheduler) fireOnce(r *Reminder) {
	target, err := parseOneShotTime(r.Schedule)
	if err != nil {
		s.logger.Warn("invalid one-shot time", "id", r.ID, "time", r.Schedule, "error", err)
		return
	}

	delay := time.Until(target)
	if delay <= 0 {
		delay = 0
	}

	select {
	case <-time.After(delay):
		// The reminder may have been removed while waiting.
		if _, ok := s.Get(r.ID); !ok {
			return
		}
		s.fire(r)
		s.Remove(r.ID)
	case <-s.ctx.Done():
	}
}

// fire publishes the reminder to the bus and updates run bookkeeping.
func (s *Scheduler) fire(r *Reminder) {
	now := time.Now()

	s.mu.Lock()
	r.LastRunAt = &now
	r.RunCount++
	if s.storage != nil {
		if err := s.storage.Save(r); err != nil {
			s.logger.Error("failed to persist reminder run", "id", r.ID, "error", err)
		}
	}
	s.mu.Unlock()

	s.logger.Info("reminder fired", "id", r.ID, "channel", r.Channel, "chat_id", r.ChatID)
	s.bus.PublishReminderFired(bus.ReminderFired{
		ReminderID: r.ID,
		Channel:    r.Channel,
		ChatID:     r.ChatID,
		Text:       r.Message,
		FiredAt:    now,
	})
}

// parseOneShotTime parses the supported one-shot time formats.
func parseOneShotTime(timeStr string) (time.Time, error) {
	now := time.Now()

	if d, err := time.ParseDuration(timeStr); err == nil && d > 0 {
		return now.Add(d), nil
	}

	if t, err := time.ParseInLocation("2006-01-02 15:04", timeStr, time.Local); err == nil {
		return t, nil
	}

	if t, err := time.ParseInLocation("15:04", timeStr, time.Local); err == nil {
		target := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.Local)
		if target.Before(now) {
			target = target.Add(24 * time.Hour)
		}
		return target, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized time format %q", timeStr)
}
