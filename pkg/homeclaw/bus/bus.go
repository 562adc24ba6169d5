// Package bus implements the in-process pub/sub event bus that decouples
// channel adapters from the assistant and the Claude Code executor.
//
// Every event kind has its own typed topic with explicit payload structs,
// so subscribers never type-assert and the core has zero dependency on any
// particular transport. Fan-out is synchronous: listeners run inline during
// Publish and should dispatch to goroutines if they need to block.
package bus

import (
	"sync"
	"sync/atomic"
	"time"
)

// InboundMessage is a chat message received by a channel adapter.
type InboundMessage struct {
	Channel   string // source adapter name (e.g. "telegram")
	ChatID    string
	UserID    string
	UserName  string
	Content   string
	Timestamp time.Time
}

// OutboundMessage is a chat message to be delivered by a channel adapter.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
}

// ClaudeCodeRequest is one user-issued coding-agent turn.
type ClaudeCodeRequest struct {
	ID          string
	Channel     string
	ChatID      string
	UserID      string
	ProjectName string
	Prompt      string

	// SessionID, when set, resumes a prior agent conversation.
	SessionID string
}

// ClaudeCodeResponse carries (a chunk of) agent output back to the chat.
type ClaudeCodeResponse struct {
	RequestID string
	Channel   string
	ChatID    string
	Content   string

	// SessionID is only set on the final chunk of a response, so a
	// partial delivery is never treated as resumable.
	SessionID string

	Part       int
	TotalParts int
	Complete   bool
}

// PermissionRequest asks a human to approve one pending tool call.
type PermissionRequest struct {
	RequestID   string
	Channel     string
	ChatID      string
	ProjectName string
	ToolName    string
	ToolInput   map[string]any
	Description string
}

// PermissionResponse is the human decision for a PermissionRequest,
// correlated by RequestID.
type PermissionResponse struct {
	RequestID string
	ChatID    string
	Approved  bool
	Remember  bool
}

// ReminderFired is published by the scheduler when a reminder comes due.
type ReminderFired struct {
	ReminderID string
	Channel    string
	ChatID     string
	Text       string
	FiredAt    time.Time
}

// topic is a single-type subscriber list with synchronous fan-out.
type topic[T any] struct {
	listeners sync.Map // id (uint64) → func(T)
	nextID    atomic.Uint64
}

// subscribe registers a listener and returns an unsubscribe function.
func (t *topic[T]) subscribe(fn func(T)) func() {
	id := t.nextID.Add(1)
	t.listeners.Store(id, fn)
	return func() { t.listeners.Delete(id) }
}

// publish invokes every registered listener with v.
func (t *topic[T]) publish(v T) {
	t.listeners.Range(func(_, value any) bool {
		if fn, ok := value.(func(T)); ok {
			fn(v)
		}
		return true
	})
}

// Bus is the set of typed topics the system communicates over.
type Bus struct {
	inbound       topic[InboundMessage]
	outbound      topic[OutboundMessage]
	ccRequests    topic[ClaudeCodeRequest]
	ccResponses   topic[ClaudeCodeResponse]
	permRequests  topic[PermissionRequest]
	permResponses topic[PermissionResponse]
	reminders     topic[ReminderFired]
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

func (b *Bus) PublishInbound(m InboundMessage)   { b.inbound.publish(m) }
func (b *Bus) PublishOutbound(m OutboundMessage) { b.outbound.publish(m) }

func (b *Bus) PublishClaudeCodeRequest(r ClaudeCodeRequest)   { b.ccRequests.publish(r) }
func (b *Bus) PublishClaudeCodeResponse(r ClaudeCodeResponse) { b.ccResponses.publish(r) }

func (b *Bus) PublishPermissionRequest(r PermissionRequest)   { b.permRequests.publish(r) }
func (b *Bus) PublishPermissionResponse(r PermissionResponse) { b.permResponses.publish(r) }

func (b *Bus) PublishReminderFired(r ReminderFired) { b.reminders.publish(r) }

func (b *Bus) SubscribeInbound(fn func(InboundMessage)) func()   { return b.inbound.subscribe(fn) }
func (b *Bus) SubscribeOutbound(fn func(OutboundMessage)) func() { return b.outbound.subscribe(fn) }

func (b *Bus) SubscribeClaudeCodeRequests(fn func(ClaudeCodeRequest)) func() {
	return b.ccRequests.subscribe(fn)
}

func (b *Bus) SubscribeClaudeCodeResponses(fn func(ClaudeCodeResponse)) func() {
	return b.ccResponses.subscribe(fn)
}

func (b *Bus) SubscribePermissionRequests(fn func(PermissionRequest)) func() {
	return b.permRequests.subscribe(fn)
}

func (b *Bus) SubscribePermissionResponses(fn func(PermissionResponse)) func() {
	return b.permResponses.subscribe(fn)
}

func (b *Bus) SubscribeReminders(fn func(ReminderFired)) func() {
	return b.reminders.subscribe(fn)
}
