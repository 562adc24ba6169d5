// Package console implements a terminal channel for homeclaw, used by
// the `homeclaw chat` command. It reads lines with readline and prints
// responses to stdout, so the same assistant loop serves the terminal
// and the messaging platforms.
package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"
	"github.com/jholhewres/homeclaw/pkg/homeclaw/channels"
)

// ChatID is the fixed chat identifier for the terminal session.
const ChatID = "console"

// Console implements channels.Channel over stdin/stdout.
type Console struct {
	logger *slog.Logger
	userID string

	rl        *readline.Instance
	messages  chan *channels.IncomingMessage
	connected atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a console channel. userID is reported as the sender of
// every line, so registry authorization works the same as elsewhere.
func New(userID string, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{
		logger:   logger.With("component", "console"),
		userID:   userID,
		messages: make(chan *channels.IncomingMessage, 16),
	}
}

// Name returns "console".
func (c *Console) Name() string { return "console" }

// Connect opens the readline prompt and starts the read loop.
func (c *Console) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("console: init readline: %w", err)
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.rl = rl
	c.connected.Store(true)

	go c.readLoop()
	return nil
}

// Disconnect closes the prompt, which unblocks the read loop.
func (c *Console) Disconnect() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.connected.Store(false)
	if c.rl != nil {
		return c.rl.Close()
	}
	return nil
}

// Send prints a message above the prompt.
func (c *Console) Send(ctx context.Context, chatID string, msg *channels.OutgoingMessage) error {
	if !c.connected.Load() {
		return channels.ErrChannelDisconnected
	}

	out := msg.Content
	if msg.Approval != nil {
		out += fmt.Sprintf("\nReply \"/approve %s\" (add \"remember\" to save), or \"/deny %s\".",
			msg.Approval.RequestID, msg.Approval.RequestID)
	}
	// Writing through readline keeps the prompt line intact.
	fmt.Fprintf(c.rl.Stdout(), "\n%s\n\n", out)
	return nil
}

// Receive returns the incoming message stream.
func (c *Console) Receive() <-chan *channels.IncomingMessage {
	return c.messages
}

// IsConnected reports whether the prompt is active.
func (c *Console) IsConnected() bool { return c.connected.Load() }

func (c *Console) readLoop() {
	defer close(c.messages)

	seq := 0
	for {
		line, err := c.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF || err != nil {
			return
		}
		if line == "" {
			continue
		}

		seq++
		incoming := &channels.IncomingMessage{
			ID:        strconv.Itoa(seq),
			Channel:   "console",
			From:      c.userID,
			FromName:  "console",
			ChatID:    ChatID,
			Content:   line,
			Timestamp: time.Now(),
		}

		select {
		case c.messages <- incoming:
		case <-c.ctx.Done():
			return
		}
	}
}

var _ channels.Channel = (*Console)(nil)
