package claudecode

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jholhewres/homeclaw/pkg/homeclaw/bus"
)

// fakeToolCall scripts one tool invocation the fake runtime asks about
// before it emits its events.
type fakeToolCall struct {
	tool  string
	input map[string]any
}

// fakeRunner plays back a scripted run, invoking CanUseTool for each
// scripted tool call first, the way the real runtime blocks on each
// verdict before proceeding.
type fakeRunner struct {
	toolCalls []fakeToolCall
	events    []Event
	runErr    error

	mu        sync.Mutex
	lastOpts  RunOptions
	decisions []ToolDecision
}

func (f *fakeRunner) Run(ctx context.Context, opts RunOptions) (<-chan Event, error) {
	if f.runErr != nil {
		return nil, f.runErr
	}
	f.mu.Lock()
	f.lastOpts = opts
	f.mu.Unlock()

	ch := make(chan Event)
	go func() {
		defer close(ch)
		for _, tc := range f.toolCalls {
			d := opts.CanUseTool(ctx, tc.tool, tc.input)
			f.mu.Lock()
			f.decisions = append(f.decisions, d)
			f.mu.Unlock()
		}
		for _, ev := range f.events {
			ch <- ev
		}
	}()
	return ch, nil
}

type executorHarness struct {
	bus       *bus.Bus
	executor  *Executor
	runner    *fakeRunner
	perms     *PermissionStore
	responses *[]bus.ClaudeCodeResponse
}

func newExecutorHarness(t *testing.T, runner *fakeRunner) *executorHarness {
	t.Helper()
	b := bus.New()
	registry := writeRegistry(t, sampleRegistry)
	perms := NewPermissionStore(filepath.Join(t.TempDir(), "permissions.yaml"), nil)
	e := NewExecutor(registry, perms, runner, b, nil)
	// A permission wait that nothing answers must fail the test quickly,
	// not sit out the production timeout.
	e.pending.timeout = 100 * time.Millisecond
	e.Start(context.Background())

	var responses []bus.ClaudeCodeResponse
	b.SubscribeClaudeCodeResponses(func(r bus.ClaudeCodeResponse) {
		responses = append(responses, r)
	})

	return &executorHarness{bus: b, executor: e, runner: runner, perms: perms, responses: &responses}
}

func testRequest() bus.ClaudeCodeRequest {
	return bus.ClaudeCodeRequest{
		ID:          "req-1",
		Channel:     "telegram",
		ChatID:      "chat-1",
		UserID:      "u-100",
		ProjectName: "blog",
		Prompt:      "add a contact page",
	}
}

func TestExecutorGates(t *testing.T) {
	t.Run("unauthorized user is refused", func(t *testing.T) {
		h := newExecutorHarness(t, &fakeRunner{})
		req := testRequest()
		req.UserID = "u-999"

		h.executor.Execute(context.Background(), req)

		if len(*h.responses) != 1 {
			t.Fatalf("expected 1 response, got %d", len(*h.responses))
		}
		if !strings.Contains((*h.responses)[0].Content, "not authorized") {
			t.Errorf("unexpected refusal %q", (*h.responses)[0].Content)
		}
	})

	t.Run("unknown project lists configured projects", func(t *testing.T) {
		h := newExecutorHarness(t, &fakeRunner{})
		req := testRequest()
		req.ProjectName = "ghost"

		h.executor.Execute(context.Background(), req)

		got := (*h.responses)[0].Content
		if !strings.Contains(got, "blog") || !strings.Contains(got, "/srv/api") {
			t.Errorf("expected project listing, got %q", got)
		}
	})
}

func TestExecutorRun(t *testing.T) {
	t.Run("fresh run binds to project root and captures session", func(t *testing.T) {
		runner := &fakeRunner{events: []Event{
			{Type: EventInit, SessionID: "sess-abc"},
			{Type: EventText, Text: "Added the page."},
			{Type: EventResult, Text: "done"},
		}}
		h := newExecutorHarness(t, runner)

		h.executor.Execute(context.Background(), testRequest())

		if runner.lastOpts.Dir != "/srv/blog" {
			t.Errorf("expected run bound to /srv/blog, got %q", runner.lastOpts.Dir)
		}
		if runner.lastOpts.Resume != "" {
			t.Errorf("expected fresh session, got resume %q", runner.lastOpts.Resume)
		}

		resp := (*h.responses)[0]
		if resp.Content != "Added the page." || resp.SessionID != "sess-abc" || !resp.Complete {
			t.Errorf("unexpected response %+v", resp)
		}
		if got := h.executor.ActiveSession("chat-1", "blog"); got != "sess-abc" {
			t.Errorf("expected bound session, got %q", got)
		}
	})

	t.Run("next request resumes the bound session", func(t *testing.T) {
		runner := &fakeRunner{events: []Event{
			{Type: EventInit, SessionID: "sess-abc"},
			{Type: EventResult, Text: "ok"},
		}}
		h := newExecutorHarness(t, runner)

		h.executor.Execute(context.Background(), testRequest())
		h.executor.Execute(context.Background(), testRequest())

		if runner.lastOpts.Resume != "sess-abc" {
			t.Errorf("expected resume sess-abc, got %q", runner.lastOpts.Resume)
		}

		h.executor.ClearSession("chat-1", "blog")
		h.executor.Execute(context.Background(), testRequest())
		if runner.lastOpts.Resume != "" {
			t.Errorf("expected fresh session after clear, got %q", runner.lastOpts.Resume)
		}
	})

	t.Run("falls back to result text then Done", func(t *testing.T) {
		h := newExecutorHarness(t, &fakeRunner{events: []Event{
			{Type: EventResult, Text: "summary only"},
		}})
		h.executor.Execute(context.Background(), testRequest())
		if got := (*h.responses)[0].Content; got != "summary only" {
			t.Errorf("expected result fallback, got %q", got)
		}

		h2 := newExecutorHarness(t, &fakeRunner{events: []Event{
			{Type: EventResult},
		}})
		h2.executor.Execute(context.Background(), testRequest())
		if got := (*h2.responses)[0].Content; got != "Done." {
			t.Errorf("expected Done. fallback, got %q", got)
		}
	})

	t.Run("runner error surfaces as one response", func(t *testing.T) {
		h := newExecutorHarness(t, &fakeRunner{runErr: errors.New("claude CLI not found")})
		h.executor.Execute(context.Background(), testRequest())

		if len(*h.responses) != 1 {
			t.Fatalf("expected 1 response, got %d", len(*h.responses))
		}
		if !strings.Contains((*h.responses)[0].Content, "claude CLI not found") {
			t.Errorf("unexpected error response %q", (*h.responses)[0].Content)
		}
	})

	t.Run("stream error terminates the request", func(t *testing.T) {
		h := newExecutorHarness(t, &fakeRunner{events: []Event{
			{Type: EventInit, SessionID: "sess-x"},
			{Type: EventError, Text: "process exited"},
		}})
		h.executor.Execute(context.Background(), testRequest())

		if len(*h.responses) != 1 || !strings.Contains((*h.responses)[0].Content, "Something went wrong") {
			t.Errorf("unexpected responses %+v", *h.responses)
		}
	})
}

func TestExecutorChunking(t *testing.T) {
	long := strings.Repeat("x", 9000)
	h := newExecutorHarness(t, &fakeRunner{events: []Event{
		{Type: EventInit, SessionID: "sess-abc"},
		{Type: EventText, Text: long},
		{Type: EventResult},
	}})

	h.executor.Execute(context.Background(), testRequest())

	responses := *h.responses
	if len(responses) != 3 {
		t.Fatalf("expected 3 chunked responses, got %d", len(responses))
	}
	for i, resp := range responses {
		wantPrefix := "[Part " + string(rune('1'+i)) + "/3] "
		if !strings.HasPrefix(resp.Content, wantPrefix) {
			t.Errorf("chunk %d: expected prefix %q, got %q", i, wantPrefix, resp.Content[:12])
		}
		// The label counts against the transport budget.
		if len(resp.Content) > ChunkBudget {
			t.Errorf("chunk %d exceeds the budget: %d chars", i, len(resp.Content))
		}
		final := i == 2
		if resp.Complete != final {
			t.Errorf("chunk %d: complete=%v", i, resp.Complete)
		}
		if final && resp.SessionID != "sess-abc" {
			t.Errorf("final chunk must carry the session id, got %q", resp.SessionID)
		}
		if !final && resp.SessionID != "" {
			t.Errorf("partial chunk must not carry a session id, got %q", resp.SessionID)
		}
	}

	// Stripping prefixes reproduces the original text.
	var rebuilt strings.Builder
	for _, resp := range responses {
		_, rest, _ := strings.Cut(resp.Content, "] ")
		rebuilt.WriteString(rest)
	}
	if rebuilt.String() != long {
		t.Error("chunk round-trip mismatch")
	}
}

func TestExecutorPermissions(t *testing.T) {
	editCall := fakeToolCall{tool: "Edit", input: map[string]any{"file_path": "/srv/blog/posts/new.md"}}
	doneEvents := []Event{
		{Type: EventInit, SessionID: "sess-abc"},
		{Type: EventResult, Text: "ok"},
	}

	t.Run("cached allow skips the human round-trip", func(t *testing.T) {
		runner := &fakeRunner{toolCalls: []fakeToolCall{editCall}, events: doneEvents}
		h := newExecutorHarness(t, runner)
		if err := h.perms.Remember("blog", "Edit", editCall.input, true); err != nil {
			t.Fatal(err)
		}

		asked := 0
		h.bus.SubscribePermissionRequests(func(bus.PermissionRequest) { asked++ })

		h.executor.Execute(context.Background(), testRequest())

		if asked != 0 {
			t.Errorf("expected no permission request, got %d", asked)
		}
		if runner.decisions[0].Behavior != "allow" {
			t.Errorf("expected allow, got %+v", runner.decisions[0])
		}
	})

	t.Run("cached deny returns the fixed message", func(t *testing.T) {
		runner := &fakeRunner{toolCalls: []fakeToolCall{editCall}, events: doneEvents}
		h := newExecutorHarness(t, runner)
		if err := h.perms.Remember("blog", "Edit", editCall.input, false); err != nil {
			t.Fatal(err)
		}

		h.executor.Execute(context.Background(), testRequest())

		if d := runner.decisions[0]; d.Behavior != "deny" || d.Message != deniedByRulesMessage {
			t.Errorf("unexpected decision %+v", d)
		}
	})

	t.Run("cache miss asks the human and honors remember", func(t *testing.T) {
		runner := &fakeRunner{toolCalls: []fakeToolCall{editCall}, events: doneEvents}
		h := newExecutorHarness(t, runner)

		var asked []bus.PermissionRequest
		h.bus.SubscribePermissionRequests(func(pr bus.PermissionRequest) {
			asked = append(asked, pr)
			h.bus.PublishPermissionResponse(bus.PermissionResponse{
				RequestID: pr.RequestID,
				ChatID:    pr.ChatID,
				Approved:  true,
				Remember:  true,
			})
		})

		h.executor.Execute(context.Background(), testRequest())

		if len(asked) != 1 {
			t.Fatalf("expected 1 permission request, got %d", len(asked))
		}
		if asked[0].ToolName != "Edit" || !strings.Contains(asked[0].Description, "/srv/blog/posts/new.md") {
			t.Errorf("unexpected request %+v", asked[0])
		}
		if runner.decisions[0].Behavior != "allow" {
			t.Errorf("expected allow, got %+v", runner.decisions[0])
		}

		// The decision was written through: siblings are now auto-approved.
		if d := h.perms.Check("blog", "Edit", map[string]any{"file_path": "/srv/blog/posts/other.md"}); d != DecisionAllowed {
			t.Errorf("expected remembered allow, got %s", d)
		}
	})

	t.Run("unanswered ask resolves as a denial", func(t *testing.T) {
		runner := &fakeRunner{toolCalls: []fakeToolCall{editCall}, events: doneEvents}
		h := newExecutorHarness(t, runner)

		// Nobody subscribed to answer: the wait must hit the (shortened)
		// timeout and deny, not hang.
		start := time.Now()
		h.executor.Execute(context.Background(), testRequest())
		if elapsed := time.Since(start); elapsed > 5*time.Second {
			t.Fatalf("timed-out ask took %v", elapsed)
		}

		if d := runner.decisions[0]; d.Behavior != "deny" {
			t.Errorf("expected deny on timeout, got %+v", d)
		}
		if d := h.perms.Check("blog", "Edit", editCall.input); d != DecisionAsk {
			t.Errorf("timeout must not persist a rule, got %s", d)
		}
	})

	t.Run("human denial without remember is not persisted", func(t *testing.T) {
		runner := &fakeRunner{toolCalls: []fakeToolCall{editCall}, events: doneEvents}
		h := newExecutorHarness(t, runner)

		h.bus.SubscribePermissionRequests(func(pr bus.PermissionRequest) {
			h.bus.PublishPermissionResponse(bus.PermissionResponse{
				RequestID: pr.RequestID,
				Approved:  false,
			})
		})

		h.executor.Execute(context.Background(), testRequest())

		if runner.decisions[0].Behavior != "deny" {
			t.Errorf("expected deny, got %+v", runner.decisions[0])
		}
		if d := h.perms.Check("blog", "Edit", editCall.input); d != DecisionAsk {
			t.Errorf("expected ask (nothing persisted), got %s", d)
		}
	})
}
