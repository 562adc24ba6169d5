package claudecode

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jholhewres/homeclaw/pkg/homeclaw/bus"
)

const deniedByRulesMessage = "Denied by saved project permissions."

// Executor orchestrates one coding-agent run per request: session resume,
// per-tool permission negotiation (sync with the store, async with a human
// over the bus), output aggregation and chunked re-publication.
type Executor struct {
	registry *Registry
	perms    *PermissionStore
	pending  *PendingPermissions
	runner   Runner
	bus      *bus.Bus
	logger   *slog.Logger

	// sessions binds (chatID, project) to the runtime-issued session id.
	// In-memory only: the agent runtime keeps its own durable session log.
	mu       sync.Mutex
	sessions map[string]string
}

// NewExecutor wires an executor to its collaborators. Call Start to begin
// consuming request events.
func NewExecutor(registry *Registry, perms *PermissionStore, runner Runner, b *bus.Bus, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		perms:    perms,
		pending:  NewPendingPermissions(logger),
		runner:   runner,
		bus:      b,
		logger:   logger.With("component", "claude_executor"),
		sessions: make(map[string]string),
	}
}

// Start subscribes the executor to request and permission-response events.
// Each request runs in its own goroutine; permission waits across requests
// are fully independent, keyed by globally unique ids.
func (e *Executor) Start(ctx context.Context) {
	e.bus.SubscribeClaudeCodeRequests(func(req bus.ClaudeCodeRequest) {
		go e.Execute(ctx, req)
	})
	e.bus.SubscribePermissionResponses(func(resp bus.PermissionResponse) {
		if !e.pending.Resolve(resp.RequestID, PermissionResult{
			Approved: resp.Approved,
			Remember: resp.Remember,
		}) {
			e.logger.Debug("permission response for unknown or resolved request",
				"request_id", resp.RequestID)
		}
	})
}

// Execute drives one request to a terminal state.
func (e *Executor) Execute(ctx context.Context, req bus.ClaudeCodeRequest) {
	// Hard authorization gate, no bypass. A refusal is not an error.
	if !e.registry.IsAuthorizedUser(req.UserID) {
		e.respond(req, "Sorry, you're not authorized to use Claude Code.", "", 1, 1, true)
		return
	}

	project, ok := e.registry.Get(req.ProjectName)
	if !ok {
		e.respond(req, e.unknownProjectMessage(req.ProjectName), "", 1, 1, true)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = e.ActiveSession(req.ChatID, req.ProjectName)
	}

	e.logger.Info("starting agent run",
		"request_id", req.ID,
		"project", req.ProjectName,
		"resume", sessionID != "",
	)

	events, err := e.runner.Run(ctx, RunOptions{
		Prompt:         req.Prompt,
		Dir:            project.Path,
		Resume:         sessionID,
		AllowedTools:   AgentTools,
		PermissionMode: "default",
		CanUseTool: func(ctx context.Context, toolName string, input map[string]any) ToolDecision {
			return e.handlePermission(ctx, req, toolName, input)
		},
	})
	if err != nil {
		e.failRun(req, err)
		return
	}

	var parts []string
	resultText := ""
	sawResult := false

	for ev := range events {
		switch ev.Type {
		case EventInit:
			sessionID = ev.SessionID
			e.bindSession(req.ChatID, req.ProjectName, ev.SessionID)
		case EventText:
			parts = append(parts, ev.Text)
		case EventResult:
			sawResult = true
			resultText = ev.Text
			if ev.SessionID != "" {
				sessionID = ev.SessionID
				e.bindSession(req.ChatID, req.ProjectName, ev.SessionID)
			}
		case EventError:
			e.failRun(req, fmt.Errorf("agent run failed: %s", ev.Text))
			return
		}
	}

	if !sawResult {
		e.failRun(req, fmt.Errorf("agent run ended without a result"))
		return
	}

	text := strings.Join(parts, "\n")
	if text == "" {
		text = resultText
	}
	if text == "" {
		text = "Done."
	}
	e.sendChunked(req, text, sessionID)
}

// handlePermission resolves one tool call: store hit answers immediately;
// a miss publishes a permission request and suspends this call until a
// human decision arrives or the timeout fires. Calls within one run are
// strictly sequential — the runtime blocks on each verdict.
func (e *Executor) handlePermission(ctx context.Context, req bus.ClaudeCodeRequest, toolName string, input map[string]any) ToolDecision {
	switch e.perms.Check(req.ProjectName, toolName, input) {
	case DecisionAllowed:
		return ToolDecision{Behavior: "allow", UpdatedInput: input}
	case DecisionDenied:
		return ToolDecision{Behavior: "deny", Message: deniedByRulesMessage}
	}

	id := e.pending.Create(req.ID)
	e.bus.PublishPermissionRequest(bus.PermissionRequest{
		RequestID:   id,
		Channel:     req.Channel,
		ChatID:      req.ChatID,
		ProjectName: req.ProjectName,
		ToolName:    toolName,
		ToolInput:   input,
		Description: describeToolUse(toolName, input),
	})

	res := e.pending.Wait(ctx, id)

	if res.Remember {
		if err := e.perms.Remember(req.ProjectName, toolName, input, res.Approved); err != nil {
			e.logger.Error("failed to persist permission", "error", err)
		}
	}

	if res.Approved {
		return ToolDecision{Behavior: "allow", UpdatedInput: input}
	}
	return ToolDecision{Behavior: "deny", Message: "Permission denied."}
}

// failRun reports a failed run once and cancels its pending permission
// waiters so no stale approval prompt outlives the run.
func (e *Executor) failRun(req bus.ClaudeCodeRequest, err error) {
	e.logger.Error("agent run error", "request_id", req.ID, "error", err)
	e.pending.CancelRun(req.ID)
	e.respond(req, fmt.Sprintf("Something went wrong: %v", err), "", 1, 1, true)
}

// chunkPrefixReserve is headroom withheld from the split budget on
// multi-part responses so the "[Part i/N] " label never pushes a message
// past ChunkBudget.
const chunkPrefixReserve = 16

// sendChunked delivers the aggregated output within the transport budget.
// Multi-part responses carry "[Part i/N]" prefixes; only the final chunk
// carries the session id and the complete marker, so a partial delivery is
// never treated as resumable.
func (e *Executor) sendChunked(req bus.ClaudeCodeRequest, text, sessionID string) {
	if len(text) <= ChunkBudget {
		e.respond(req, text, sessionID, 1, 1, true)
		return
	}

	chunks := splitChunks(text, ChunkBudget-chunkPrefixReserve)
	for i, chunk := range chunks {
		final := i == len(chunks)-1
		content := fmt.Sprintf("[Part %d/%d] %s", i+1, len(chunks), chunk)
		sid := ""
		if final {
			sid = sessionID
		}
		e.respond(req, content, sid, i+1, len(chunks), final)
	}
}

func (e *Executor) respond(req bus.ClaudeCodeRequest, content, sessionID string, part, total int, complete bool) {
	e.bus.PublishClaudeCodeResponse(bus.ClaudeCodeResponse{
		RequestID:  req.ID,
		Channel:    req.Channel,
		ChatID:     req.ChatID,
		Content:    content,
		SessionID:  sessionID,
		Part:       part,
		TotalParts: total,
		Complete:   complete,
	})
}

func (e *Executor) unknownProjectMessage(name string) string {
	projects := e.registry.List()
	if len(projects) == 0 {
		return fmt.Sprintf("Project %q not found. No projects are configured yet.", name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Project %q not found. Available projects:\n", name)
	for _, p := range projects {
		fmt.Fprintf(&b, "• %s — %s\n", p.Name, p.Path)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ── Session bindings ──

func sessionKey(chatID, project string) string {
	return chatID + ":" + strings.ToLower(project)
}

// ActiveSession returns the bound session id for a chat/project, or "".
func (e *Executor) ActiveSession(chatID, project string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[sessionKey(chatID, project)]
}

// ClearSession removes the binding, forcing the next request to start a
// fresh agent session. A run already in progress is unaffected.
func (e *Executor) ClearSession(chatID, project string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := sessionKey(chatID, project)
	if _, ok := e.sessions[key]; !ok {
		return false
	}
	delete(e.sessions, key)
	return true
}

func (e *Executor) bindSession(chatID, project, sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions[sessionKey(chatID, project)] = sessionID
}

// describeToolUse builds the human-readable line shown in a permission
// prompt: file path for file tools, truncated command for Bash, the bare
// tool name otherwise.
func describeToolUse(toolName string, input map[string]any) string {
	switch toolName {
	case "Read", "Edit", "Write":
		if path, ok := input["file_path"].(string); ok && path != "" {
			return fmt.Sprintf("%s %s", strings.ToLower(toolName), path)
		}
	case "Bash":
		if cmd, ok := input["command"].(string); ok && cmd != "" {
			if len(cmd) > 120 {
				cmd = cmd[:120] + "..."
			}
			return "run: " + cmd
		}
	}
	return "use tool " + toolName
}
