// Package assistant routes incoming chat messages: coding-agent commands go
// to the Claude Code executor over the event bus, approval replies resolve
// pending permission requests, and everything else runs through the LLM
// tool loop with conversation history.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/jholhewres/homeclaw/pkg/homeclaw/bus"
	"github.com/jholhewres/homeclaw/pkg/homeclaw/channels"
	"github.com/jholhewres/homeclaw/pkg/homeclaw/claudecode"
	"github.com/jholhewres/homeclaw/pkg/homeclaw/config"
)

// maxToolTurns bounds the LLM tool loop per user message.
const maxToolTurns = 8

// reDecision matches "/approve <id>" and "/deny <id>", with an optional
// trailing "remember".
var reDecision = regexp.MustCompile(`(?i)^/(approve|deny)\s+(\S+)(\s+remember)?\s*$`)

// Assistant wires the channel manager, the event bus, the command parser
// and the LLM loop together.
type Assistant struct {
	bus      *bus.Bus
	manager  *channels.Manager
	parser   *claudecode.Parser
	registry *claudecode.Registry
	perms    *claudecode.PermissionStore
	executor *claudecode.Executor
	history  *History
	llm      *LLMClient
	tools    *ToolRegistry
	logger   *slog.Logger

	systemPrompt string
	ctx          context.Context
}

// New creates the assistant. The tool registry may be empty; tools are
// registered by the caller based on configuration.
func New(cfg *config.Config, b *bus.Bus, manager *channels.Manager,
	registry *claudecode.Registry, perms *claudecode.PermissionStore,
	executor *claudecode.Executor, history *History, tools *ToolRegistry,
	logger *slog.Logger) *Assistant {

	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		bus:      b,
		manager:  manager,
		parser:   claudecode.NewParser(registry),
		registry: registry,
		perms:    perms,
		executor: executor,
		history:  history,
		llm:      NewLLMClient(cfg.API, logger),
		tools:    tools,
		logger:   logger.With("component", "assistant"),
		systemPrompt: "You are homeclaw, a concise personal assistant reachable " +
			"over chat. Use the available tools for tasks, notes and web search. " +
			"Answer briefly, in plain text suitable for a chat message.",
	}
}

// Start subscribes to the bus topics and begins consuming channel messages.
// Blocks until ctx is cancelled or the channel manager stream closes.
func (a *Assistant) Start(ctx context.Context) {
	a.ctx = ctx

	// Bus fan-out is synchronous; routing can block on the LLM or on a
	// human approval, so it runs in its own goroutine per message.
	a.bus.SubscribeInbound(func(m bus.InboundMessage) {
		go a.route(m)
	})
	a.bus.SubscribeOutbound(func(m bus.OutboundMessage) {
		a.deliver(m.Channel, m.ChatID, &channels.OutgoingMessage{Content: m.Content})
	})
	a.bus.SubscribeClaudeCodeResponses(func(r bus.ClaudeCodeResponse) {
		a.deliver(r.Channel, r.ChatID, &channels.OutgoingMessage{Content: r.Content})
	})
	a.bus.SubscribePermissionRequests(func(r bus.PermissionRequest) {
		a.deliver(r.Channel, r.ChatID, &channels.OutgoingMessage{
			Content: fmt.Sprintf("Claude Code wants to %s in %s.\nAllow?",
				r.Description, r.ProjectName),
			Approval: &channels.ApprovalPrompt{RequestID: r.RequestID},
		})
	})
	a.bus.SubscribeReminders(func(r bus.ReminderFired) {
		a.deliver(r.Channel, r.ChatID, &channels.OutgoingMessage{
			Content: "⏰ Reminder: " + r.Text,
		})
	})

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-a.manager.Messages():
			if !ok {
				return
			}
			a.bus.PublishInbound(bus.InboundMessage{
				Channel:   msg.Channel,
				ChatID:    msg.ChatID,
				UserID:    msg.From,
				UserName:  msg.FromName,
				Content:   msg.Content,
				Timestamp: msg.Timestamp,
			})
		}
	}
}

// route dispatches one inbound message.
func (a *Assistant) route(msg bus.InboundMessage) {
	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return
	}

	if m := reDecision.FindStringSubmatch(text); m != nil {
		a.bus.PublishPermissionResponse(bus.PermissionResponse{
			RequestID: m[2],
			ChatID:    msg.ChatID,
			Approved:  strings.EqualFold(m[1], "approve"),
			Remember:  m[3] != "",
		})
		return
	}

	if cmd := a.parser.Parse(text); cmd != nil {
		a.handleCommand(msg, cmd)
		return
	}

	a.chat(msg, text)
}

// handleCommand executes a parsed coding-agent command.
func (a *Assistant) handleCommand(msg bus.InboundMessage, cmd *claudecode.Command) {
	switch cmd.Type {
	case claudecode.CommandClaudeCode:
		a.bus.PublishClaudeCodeRequest(bus.ClaudeCodeRequest{
			ID:          "run-" + uuid.NewString()[:8],
			Channel:     msg.Channel,
			ChatID:      msg.ChatID,
			UserID:      msg.UserID,
			ProjectName: cmd.ProjectName,
			Prompt:      cmd.Prompt,
		})

	case claudecode.CommandListProjects:
		a.reply(msg, a.projectList())

	case claudecode.CommandClearSession:
		if a.executor.ClearSession(msg.ChatID, cmd.ProjectName) {
			a.reply(msg, fmt.Sprintf("Session cleared for %s. The next run starts fresh.", cmd.ProjectName))
		} else {
			a.reply(msg, fmt.Sprintf("No active session for %s.", cmd.ProjectName))
		}

	case claudecode.CommandClearPermissions:
		if err := a.perms.ClearProject(cmd.ProjectName); err != nil {
			a.logger.Error("clear permissions failed", "project", cmd.ProjectName, "error", err)
			a.reply(msg, "Could not clear permissions: "+err.Error())
			return
		}
		a.reply(msg, fmt.Sprintf("Saved permissions cleared for %s.", cmd.ProjectName))
	}
}

// projectList formats the registry for chat.
func (a *Assistant) projectList() string {
	projects := a.registry.List()
	if len(projects) == 0 {
		return "No projects are configured yet."
	}
	var b strings.Builder
	b.WriteString("Projects:\n")
	for _, p := range projects {
		fmt.Fprintf(&b, "• %s — %s\n", p.Name, p.Path)
	}
	return strings.TrimRight(b.String(), "\n")
}

// chat runs the LLM tool loop for a free-form message.
func (a *Assistant) chat(msg bus.InboundMessage, text string) {
	chatKey := msg.Channel + ":" + msg.ChatID
	ctx := withChatIdentity(a.runCtx(), msg.Channel, msg.ChatID)

	messages := []chatMessage{{Role: "system", Content: a.systemPrompt}}
	for _, entry := range a.history.Recent(chatKey) {
		messages = append(messages,
			chatMessage{Role: "user", Content: entry.UserMessage},
			chatMessage{Role: "assistant", Content: entry.AssistantResponse},
		)
	}
	messages = append(messages, chatMessage{Role: "user", Content: text})

	defs := a.tools.Definitions()
	var final string

	for turn := 0; turn < maxToolTurns; turn++ {
		resp, err := a.llm.CompleteWithTools(ctx, messages, defs)
		if err != nil {
			a.logger.Error("LLM completion failed", "error", err)
			a.reply(msg, "Something went wrong: "+err.Error())
			return
		}

		if len(resp.ToolCalls) == 0 {
			final = resp.Content
			break
		}

		messages = append(messages, chatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, result := range a.tools.Execute(ctx, resp.ToolCalls) {
			messages = append(messages, chatMessage{
				Role:       "tool",
				Content:    result.Content,
				ToolCallID: result.ToolCallID,
			})
		}
	}

	if final == "" {
		final = "I couldn't finish that within the allowed number of steps."
	}

	a.history.Append(chatKey, text, final)
	a.reply(msg, final)
}

// reply publishes an outbound message back to the sender's chat.
func (a *Assistant) reply(msg bus.InboundMessage, content string) {
	a.bus.PublishOutbound(bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: content,
	})
}

// runCtx returns the assistant's lifecycle context, usable before Start.
func (a *Assistant) runCtx() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

// deliver sends through the channel manager, logging failures.
func (a *Assistant) deliver(channel, chatID string, out *channels.OutgoingMessage) {
	ctx := a.runCtx()
	if err := a.manager.Send(ctx, channel, chatID, out); err != nil {
		a.logger.Error("delivery failed", "channel", channel, "chat_id", chatID, "error", err)
	}
}
