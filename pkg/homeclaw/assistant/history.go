// Package assistant – history.go keeps the per-chat conversation history
// used as LLM context. Bounded per chat and expired after idle TTL.
package assistant

import (
	"log/slog"
	"sync"
	"time"
)

// ConversationEntry represents one user/assistant exchange.
type ConversationEntry struct {
	UserMessage       string
	AssistantResponse string
	Timestamp         time.Time
}

// HistoryPersistence persists conversation entries across restarts.
type HistoryPersistence interface {
	SaveEntry(chatKey string, entry ConversationEntry) error
	LoadRecent(chatKey string, limit int) ([]ConversationEntry, error)
	DeleteChat(chatKey string) error
}

// conversation holds one chat's in-memory history.
type conversation struct {
	entries      []ConversationEntry
	lastActiveAt time.Time
	loaded       bool
}

// History is the bounded, expiring conversation store keyed by chat.
type History struct {
	conversations map[string]*conversation
	maxEntries    int
	ttl           time.Duration
	persistence   HistoryPersistence
	logger        *slog.Logger
	mu            sync.Mutex
}

// NewHistory creates a history store. maxEntries <= 0 defaults to 50,
// ttl <= 0 defaults to 24h. persistence may be nil for memory-only use.
func NewHistory(maxEntries int, ttl time.Duration, persistence HistoryPersistence, logger *slog.Logger) *History {
	if maxEntries <= 0 {
		maxEntries = 50
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &History{
		conversations: make(map[string]*conversation),
		maxEntries:    maxEntries,
		ttl:           ttl,
		persistence:   persistence,
		logger:        logger.With("component", "history"),
	}
}

// Append records an exchange for the chat and persists it.
func (h *History) Append(chatKey, userMsg, assistantResp string) {
	entry := ConversationEntry{
		UserMessage:       userMsg,
		AssistantResponse: assistantResp,
		Timestamp:         time.Now(),
	}

	h.mu.Lock()
	conv := h.load(chatKey)
	conv.entries = append(conv.entries, entry)
	if len(conv.entries) > h.maxEntries {
		conv.entries = conv.entries[len(conv.entries)-h.maxEntries:]
	}
	conv.lastActiveAt = time.Now()
	persistence := h.persistence
	h.mu.Unlock()

	if persistence != nil {
		if err := persistence.SaveEntry(chatKey, entry); err != nil {
			h.logger.Error("failed to persist history entry", "chat", chatKey, "error", err)
		}
	}
}

// Recent returns a copy of the chat's history, oldest first. An idle
// conversation past the TTL is dropped and comes back empty.
func (h *History) Recent(chatKey string) []ConversationEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	conv := h.load(chatKey)
	if !conv.lastActiveAt.IsZero() && time.Since(conv.lastActiveAt) > h.ttl {
		conv.entries = nil
		return nil
	}

	out := make([]ConversationEntry, len(conv.entries))
	copy(out, conv.entries)
	return out
}

// Clear drops the chat's history in memory and on disk.
func (h *History) Clear(chatKey string) {
	h.mu.Lock()
	delete(h.conversations, chatKey)
	persistence := h.persistence
	h.mu.Unlock()

	if persistence != nil {
		if err := persistence.DeleteChat(chatKey); err != nil {
			h.logger.Error("failed to delete persisted history", "chat", chatKey, "error", err)
		}
	}
}

// load returns the conversation for chatKey, reading persisted entries on
// first access. Caller holds h.mu.
func (h *History) load(chatKey string) *conversation {
	conv, ok := h.conversations[chatKey]
	if !ok {
		conv = &conversation{}
		h.conversations[chatKey] = conv
	}
	if !conv.loaded {
		conv.loaded = true
		if h.persistence != nil {
			entries, err := h.persistence.LoadRecent(chatKey, h.maxEntries)
			if err != nil {
				h.logger.Warn("failed to load persisted history", "chat", chatKey, "error", err)
			} else if len(entries) > 0 {
				conv.entries = entries
				conv.lastActiveAt = entries[len(entries)-1].Timestamp
			}
		}
	}
	return conv
}
