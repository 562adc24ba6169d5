// Package assistant – tools_reminders.go exposes the reminder scheduler
// to the LLM. The target chat is taken from the conversation the tool
// call came from, carried on the context.
package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jholhewres/homeclaw/pkg/homeclaw/scheduler"
)

type chatIdentity struct {
	Channel string
	ChatID  string
}

type chatIdentityKey struct{}

// withChatIdentity tags ctx with the channel and chat a message came from.
func withChatIdentity(ctx context.Context, channel, chatID string) context.Context {
	return context.WithValue(ctx, chatIdentityKey{}, chatIdentity{Channel: channel, ChatID: chatID})
}

func chatIdentityFrom(ctx context.Context) (chatIdentity, bool) {
	id, ok := ctx.Value(chatIdentityKey{}).(chatIdentity)
	return id, ok
}

type reminderTools struct {
	sched *scheduler.Scheduler
}

// RegisterReminderTools registers reminder management tools backed by the
// scheduler. Reminders fire back into the chat that created them.
func RegisterReminderTools(reg *ToolRegistry, sched *scheduler.Scheduler) {
	if sched == nil {
		return
	}
	r := &reminderTools{sched: sched}

	reg.Register(ToolDefinition{
		Type: "function",
		Function: FunctionDef{
			Name: "reminder_create",
			Description: "Create a reminder. Recurring reminders use a 5-field cron " +
				"expression or @daily/@hourly/@every 2h. One-shot reminders use a " +
				"duration (\"30m\"), a clock time (\"09:15\") or \"2006-01-02 15:04\".",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"schedule": {"type": "string", "description": "Cron expression or one-shot time"},
					"message": {"type": "string", "description": "Text to deliver when it fires"},
					"once": {"type": "boolean", "description": "True for a one-shot reminder"}
				},
				"required": ["schedule", "message"]
			}`),
		},
	}, r.create)

	reg.Register(ToolDefinition{
		Type: "function",
		Function: FunctionDef{
			Name:        "reminder_list",
			Description: "List the reminders set for this chat.",
			Parameters:  json.RawMessage(`{"type": "object"}`),
		},
	}, r.list)

	reg.Register(ToolDefinition{
		Type: "function",
		Function: FunctionDef{
			Name:        "reminder_delete",
			Description: "Delete a reminder by its id.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"reminder_id": {"type": "string", "description": "The reminder id"}
				},
				"required": ["reminder_id"]
			}`),
		},
	}, r.delete)
}

func (r *reminderTools) create(ctx context.Context, args map[string]any) (any, error) {
	id, ok := chatIdentityFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("reminders: no chat to deliver to")
	}

	schedule, _ := args["schedule"].(string)
	message, _ := args["message"].(string)
	if schedule == "" || message == "" {
		return nil, fmt.Errorf("reminders: schedule and message are required")
	}

	remType := "cron"
	if once, _ := args["once"].(bool); once {
		remType = "at"
	}

	rem := &scheduler.Reminder{
		Schedule: schedule,
		Type:     remType,
		Message:  message,
		Channel:  id.Channel,
		ChatID:   id.ChatID,
	}
	if err := r.sched.Add(rem); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Reminder %s set: %q (%s)", rem.ID, message, schedule), nil
}

func (r *reminderTools) list(ctx context.Context, _ map[string]any) (any, error) {
	id, ok := chatIdentityFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("reminders: no chat context")
	}

	var b strings.Builder
	for _, rem := range r.sched.List() {
		if rem.Channel != id.Channel || rem.ChatID != id.ChatID {
			continue
		}
		fmt.Fprintf(&b, "- [%s] %q at %s", rem.ID, rem.Message, rem.Schedule)
		if rem.Type == "at" {
			b.WriteString(" (one-shot)")
		}
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return "No reminders set for this chat.", nil
	}
	return b.String(), nil
}

func (r *reminderTools) delete(_ context.Context, args map[string]any) (any, error) {
	reminderID, _ := args["reminder_id"].(string)
	if reminderID == "" {
		return nil, fmt.Errorf("reminders: reminder_id is required")
	}
	if err := r.sched.Remove(reminderID); err != nil {
		return nil, err
	}
	return "Reminder " + reminderID + " deleted.", nil
}
