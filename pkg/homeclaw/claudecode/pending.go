package claudecode

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PermissionTimeout is how long a permission request waits for a human
// decision before resolving as an implicit, non-remembered denial.
const PermissionTimeout = 5 * time.Minute

// PermissionResult is the human decision for one pending tool call.
type PermissionResult struct {
	Approved bool
	Remember bool
}

// pendingPermission is one in-flight request: alive only between publishing
// the permission-request event and receiving a matching response or hitting
// the timeout.
type pendingPermission struct {
	id        string
	runID     string
	createdAt time.Time
	result    chan PermissionResult // buffered 1: resolve never blocks
}

// PendingPermissions is the correlation table for in-flight permission
// requests. Entries are removed on resolution or timeout, whichever comes
// first — no leak, no double resolution.
type PendingPermissions struct {
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingPermission
}

// NewPendingPermissions creates an empty table with the default timeout.
func NewPendingPermissions(logger *slog.Logger) *PendingPermissions {
	if logger == nil {
		logger = slog.Default()
	}
	return &PendingPermissions{
		logger:  logger.With("component", "pending_permissions"),
		timeout: PermissionTimeout,
		pending: make(map[string]*pendingPermission),
	}
}

// Create registers a new pending entry bound to a run and returns its
// globally unique request id: a timestamp plus a random suffix, never
// reused while pending.
func (p *PendingPermissions) Create(runID string) string {
	id := fmt.Sprintf("perm-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])

	p.mu.Lock()
	p.pending[id] = &pendingPermission{
		id:        id,
		runID:     runID,
		createdAt: time.Now(),
		result:    make(chan PermissionResult, 1),
	}
	p.mu.Unlock()

	return id
}

// Wait blocks until the entry is resolved, the timeout elapses, or ctx is
// cancelled. Timeout and cancellation resolve as a denial that is not
// remembered. The entry is removed exactly once, whatever happens first.
func (p *PendingPermissions) Wait(ctx context.Context, id string) PermissionResult {
	p.mu.Lock()
	entry, ok := p.pending[id]
	p.mu.Unlock()
	if !ok {
		return PermissionResult{}
	}

	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	select {
	case res := <-entry.result:
		return res
	case <-time.After(p.timeout):
		p.logger.Warn("permission request timed out", "id", id)
		return PermissionResult{}
	case <-ctx.Done():
		return PermissionResult{}
	}
}

// Resolve delivers a human decision to a pending entry. Returns false when
// the id is unknown or the entry was already resolved (e.g. a late response
// after the timeout fired).
func (p *PendingPermissions) Resolve(id string, res PermissionResult) bool {
	p.mu.Lock()
	entry, ok := p.pending[id]
	p.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case entry.result <- res:
		return true
	default:
		return false
	}
}

// CancelRun resolves every pending entry for a run as a non-remembered
// denial. Called when a run errors so no stale "awaiting decision" prompt
// outlives it. Returns how many entries were cancelled.
func (p *PendingPermissions) CancelRun(runID string) int {
	p.mu.Lock()
	var ids []string
	for id, entry := range p.pending {
		if entry.runID == runID {
			ids = append(ids, id)
		}
	}
	p.mu.Unlock()

	cancelled := 0
	for _, id := range ids {
		if p.Resolve(id, PermissionResult{}) {
			cancelled++
		}
	}
	if cancelled > 0 {
		p.logger.Info("cancelled pending permissions for failed run",
			"run_id", runID, "count", cancelled)
	}
	return cancelled
}

// PendingCount returns the number of outstanding entries.
func (p *PendingPermissions) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
