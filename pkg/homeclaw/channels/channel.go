// Package channels defines the interface and types for homeclaw
// communication channels. Each channel (Telegram, Discord, console)
// implements Channel to receive and send messages in a unified way.
package channels

import (
	"context"
	"fmt"
	"time"
)

// Channel is the contract every messaging adapter implements.
type Channel interface {
	// Name returns the channel identifier (e.g. "telegram").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Send delivers a message to the given chat.
	Send(ctx context.Context, chatID string, msg *OutgoingMessage) error

	// Receive returns a Go channel emitting incoming messages.
	Receive() <-chan *IncomingMessage

	// IsConnected reports whether the channel is connected.
	IsConnected() bool
}

// IncomingMessage is a message received from any channel.
type IncomingMessage struct {
	// ID is the message identifier in the source platform.
	ID string

	// Channel identifies the source adapter.
	Channel string

	// From is the sender identifier on the platform.
	From string

	// FromName is the sender display name, when available.
	FromName string

	// ChatID is the group or DM identifier.
	ChatID string

	// Content is the text content.
	Content string

	Timestamp time.Time
}

// OutgoingMessage is a message to be delivered through a channel.
type OutgoingMessage struct {
	Content string

	// Approval, when set, asks the adapter to render approve/deny
	// affordances (buttons where the platform has them, reply
	// instructions otherwise) correlated by the request id.
	Approval *ApprovalPrompt
}

// ApprovalPrompt carries the correlation id for a pending permission
// request. Adapters translate the user's choice back into an
// "/approve <id>" or "/deny <id>" message.
type ApprovalPrompt struct {
	RequestID string
}

// Errors.
var (
	ErrChannelDisconnected = fmt.Errorf("channel is not connected")
	ErrSendFailed          = fmt.Errorf("failed to send message")
	ErrConnectionFailed    = fmt.Errorf("failed to connect to channel")
)
