package claudecode

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// AgentTools is the fixed tool allowlist granted to agent runs.
var AgentTools = []string{
	"Read", "Edit", "Write", "Grep", "Glob", "Bash", "LS", "WebFetch",
}

// ToolDecision is the verdict returned to the agent runtime for one tool
// call. Behavior is "allow" or "deny"; on allow, UpdatedInput is passed
// through to the tool (unmodified input in this system).
type ToolDecision struct {
	Behavior     string         `json:"behavior"`
	UpdatedInput map[string]any `json:"updatedInput,omitempty"`
	Message      string         `json:"message,omitempty"`
}

// CanUseToolFunc is invoked synchronously by the runtime before each tool
// use. The runtime issues one tool call at a time and blocks on the result,
// so calls for the same run are never concurrent.
type CanUseToolFunc func(ctx context.Context, toolName string, input map[string]any) ToolDecision

// RunOptions configures one agent run.
type RunOptions struct {
	Prompt string

	// Dir is the project filesystem root the run is bound to.
	Dir string

	// Resume continues a prior session when non-empty.
	Resume string

	AllowedTools   []string
	PermissionMode string
	CanUseTool     CanUseToolFunc
}

// Runner is the opaque agent-runtime capability: run a task, yield an
// ordered stream of typed events. The channel closes when the run ends.
type Runner interface {
	Run(ctx context.Context, opts RunOptions) (<-chan Event, error)
}

// CLIRunner drives the Claude Code CLI in stream-json mode. Tool-use
// authorization flows over the CLI's control protocol: the CLI emits a
// control_request line before each tool call and suspends until a
// control_response is written to its stdin.
type CLIRunner struct {
	binary string
	logger *slog.Logger
}

// NewCLIRunner creates a runner that invokes the given claude binary
// ("claude" when empty).
func NewCLIRunner(binary string, logger *slog.Logger) *CLIRunner {
	if binary == "" {
		binary = "claude"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIRunner{binary: binary, logger: logger.With("component", "claude_runner")}
}

// Run starts one agent run. The returned channel yields init/text/result
// events in arrival order and closes when the process exits.
func (r *CLIRunner) Run(ctx context.Context, opts RunOptions) (<-chan Event, error) {
	if _, err := exec.LookPath(r.binary); err != nil {
		return nil, fmt.Errorf("claude CLI not found (install: npm install -g @anthropic-ai/claude-code): %w", err)
	}

	args := []string{
		"-p",
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose",
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", opts.PermissionMode)
	}
	if opts.Resume != "" {
		args = append(args, "--resume", opts.Resume)
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = opts.Dir
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting claude: %w", err)
	}

	if err := writeUserMessage(stdin, opts.Prompt); err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("sending prompt: %w", err)
	}

	events := make(chan Event, 16)
	go r.consume(ctx, cmd, stdin, stdout, opts, events)
	return events, nil
}

// consume reads stream-json lines until EOF, answering control requests
// inline. Inline handling preserves the runtime's strict sequencing: the
// CLI sends nothing further until the response is written.
func (r *CLIRunner) consume(ctx context.Context, cmd *exec.Cmd, stdin io.WriteCloser, stdout io.Reader, opts RunOptions, events chan<- Event) {
	defer close(events)
	defer stdin.Close()

	var stdinMu sync.Mutex
	sawResult := false

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		msg, err := parseStreamLine(line)
		if err != nil {
			r.logger.Debug("skipping unparseable stream line", "error", err)
			continue
		}

		if msg.Type == "control_request" && msg.Request != nil && msg.Request.Subtype == "can_use_tool" {
			decision := ToolDecision{Behavior: "deny", Message: "no permission handler configured"}
			if opts.CanUseTool != nil {
				decision = opts.CanUseTool(ctx, msg.Request.ToolName, msg.Request.toolInputMap())
			}
			stdinMu.Lock()
			err := writeControlResponse(stdin, msg.RequestID, decision)
			stdinMu.Unlock()
			if err != nil {
				r.logger.Error("writing control response failed", "error", err)
			}
			continue
		}

		for _, ev := range msg.events() {
			if ev.Type == EventResult {
				sawResult = true
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				return
			}
		}
	}

	err := cmd.Wait()
	if scanErr := scanner.Err(); err == nil && scanErr != nil {
		err = scanErr
	}
	if err != nil && !sawResult {
		events <- Event{Type: EventError, Text: err.Error(), IsError: true}
	}
}

// writeUserMessage sends the initial prompt as a stream-json user message.
func writeUserMessage(w io.Writer, prompt string) error {
	msg := map[string]any{
		"type": "user",
		"message": map[string]any{
			"role": "user",
			"content": []map[string]any{
				{"type": "text", "text": prompt},
			},
		},
	}
	return writeJSONLine(w, msg)
}

// writeControlResponse answers one control_request, unblocking the CLI.
func writeControlResponse(w io.Writer, requestID string, decision ToolDecision) error {
	msg := map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "success",
			"request_id": requestID,
			"response":   decision,
		},
	}
	return writeJSONLine(w, msg)
}

func writeJSONLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
