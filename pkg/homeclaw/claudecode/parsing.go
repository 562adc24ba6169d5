package claudecode

import (
	"encoding/json"
	"fmt"
)

// EventType classifies events surfaced from an agent run.
type EventType string

const (
	// EventInit carries the runtime-issued session id (system/init).
	EventInit EventType = "init"

	// EventText carries one assistant-authored text fragment.
	EventText EventType = "text"

	// EventResult is the terminal event of a run.
	EventResult EventType = "result"

	// EventError reports a runtime failure during streaming.
	EventError EventType = "error"
)

// Event is one typed event from an agent run, in arrival order.
type Event struct {
	Type      EventType
	SessionID string
	Text      string
	IsError   bool
}

// streamMessage mirrors one line of the claude CLI's stream-json output.
// Only the fields this system consumes are mapped.
type streamMessage struct {
	Type      string `json:"type"`    // "system", "assistant", "user", "result", "control_request"
	Subtype   string `json:"subtype"` // "init", "success", ...
	SessionID string `json:"session_id,omitempty"`

	Message struct {
		Content []struct {
			Type string `json:"type"` // "text", "tool_use", "tool_result"
			Text string `json:"text,omitempty"`
		} `json:"content"`
	} `json:"message"`

	// Result fields (type == "result").
	Result  string `json:"result,omitempty"`
	IsError bool   `json:"is_error,omitempty"`

	// Control protocol fields (type == "control_request").
	RequestID string          `json:"request_id,omitempty"`
	Request   *controlRequest `json:"request,omitempty"`
}

// controlRequest is the payload of a control_request line. The CLI blocks
// its own progress until the matching control_response is written back.
type controlRequest struct {
	Subtype  string          `json:"subtype"` // "can_use_tool"
	ToolName string          `json:"tool_name"`
	Input    json.RawMessage `json:"input"`
}

// parseStreamLine decodes one stream-json line. Unknown message types
// decode fine and are skipped by the caller.
func parseStreamLine(line []byte) (*streamMessage, error) {
	var msg streamMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("decoding stream message: %w", err)
	}
	return &msg, nil
}

// toolInputMap decodes a control request's tool input into a generic map.
// A malformed input yields an empty map rather than failing the request:
// the permission layer then sees an invocation with no matchable fields
// and resolves it as ask.
func (c *controlRequest) toolInputMap() map[string]any {
	if len(c.Input) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(c.Input, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

// events extracts the executor-visible events from one stream message.
func (m *streamMessage) events() []Event {
	switch m.Type {
	case "system":
		if m.Subtype == "init" && m.SessionID != "" {
			return []Event{{Type: EventInit, SessionID: m.SessionID}}
		}
	case "assistant":
		var out []Event
		for _, block := range m.Message.Content {
			if block.Type == "text" && block.Text != "" {
				out = append(out, Event{Type: EventText, Text: block.Text})
			}
		}
		return out
	case "result":
		return []Event{{
			Type:      EventResult,
			SessionID: m.SessionID,
			Text:      m.Result,
			IsError:   m.IsError,
		}}
	}
	return nil
}
