package assistant

import (
	"fmt"
	"testing"
	"time"
)

func TestHistoryAppendAndRecent(t *testing.T) {
	t.Run("entries come back oldest first", func(t *testing.T) {
		h := NewHistory(50, time.Hour, nil, nil)
		h.Append("telegram:1", "hello", "hi there")
		h.Append("telegram:1", "what's up", "not much")

		entries := h.Recent("telegram:1")
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
		if entries[0].UserMessage != "hello" || entries[1].UserMessage != "what's up" {
			t.Errorf("unexpected order: %+v", entries)
		}
	})

	t.Run("chats are isolated", func(t *testing.T) {
		h := NewHistory(50, time.Hour, nil, nil)
		h.Append("telegram:1", "a", "b")

		if got := h.Recent("discord:2"); len(got) != 0 {
			t.Errorf("expected empty history for other chat, got %d", len(got))
		}
	})

	t.Run("history is bounded to max entries", func(t *testing.T) {
		h := NewHistory(3, time.Hour, nil, nil)
		for i := 0; i < 10; i++ {
			h.Append("c", fmt.Sprintf("msg %d", i), "ok")
		}

		entries := h.Recent("c")
		if len(entries) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(entries))
		}
		if entries[0].UserMessage != "msg 7" {
			t.Errorf("expected oldest kept entry to be msg 7, got %q", entries[0].UserMessage)
		}
	})

	t.Run("idle conversations expire", func(t *testing.T) {
		h := NewHistory(50, time.Hour, nil, nil)
		h.Append("c", "old", "reply")
		h.conversations["c"].lastActiveAt = time.Now().Add(-2 * time.Hour)

		if got := h.Recent("c"); len(got) != 0 {
			t.Errorf("expected expired history to be empty, got %d entries", len(got))
		}
	})

	t.Run("clear drops the conversation", func(t *testing.T) {
		h := NewHistory(50, time.Hour, nil, nil)
		h.Append("c", "a", "b")
		h.Clear("c")

		if got := h.Recent("c"); len(got) != 0 {
			t.Errorf("expected empty history after clear, got %d", len(got))
		}
	})
}

// memPersistence is an in-memory HistoryPersistence for tests.
type memPersistence struct {
	entries map[string][]ConversationEntry
}

func newMemPersistence() *memPersistence {
	return &memPersistence{entries: make(map[string][]ConversationEntry)}
}

func (m *memPersistence) SaveEntry(chatKey string, entry ConversationEntry) error {
	m.entries[chatKey] = append(m.entries[chatKey], entry)
	return nil
}

func (m *memPersistence) LoadRecent(chatKey string, limit int) ([]ConversationEntry, error) {
	all := m.entries[chatKey]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]ConversationEntry(nil), all...), nil
}

func (m *memPersistence) DeleteChat(chatKey string) error {
	delete(m.entries, chatKey)
	return nil
}

func TestHistoryPersistence(t *testing.T) {
	t.Run("entries survive a restart", func(t *testing.T) {
		store := newMemPersistence()

		h := NewHistory(50, time.Hour, store, nil)
		h.Append("c", "remember me", "will do")

		h2 := NewHistory(50, time.Hour, store, nil)
		entries := h2.Recent("c")
		if len(entries) != 1 || entries[0].UserMessage != "remember me" {
			t.Errorf("expected persisted entry after restart, got %+v", entries)
		}
	})

	t.Run("clear removes persisted entries", func(t *testing.T) {
		store := newMemPersistence()

		h := NewHistory(50, time.Hour, store, nil)
		h.Append("c", "a", "b")
		h.Clear("c")

		h2 := NewHistory(50, time.Hour, store, nil)
		if got := h2.Recent("c"); len(got) != 0 {
			t.Errorf("expected no persisted entries after clear, got %d", len(got))
		}
	})
}
