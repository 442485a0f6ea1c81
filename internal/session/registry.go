// ABOUTME: Mutex-guarded registry of live threads, their status flags, and the user-input queue.
// ABOUTME: Owns thread lifecycle including pending-placeholder merges and the active-thread pointer.

package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/chorus/internal/schema"
)

// ErrThreadNotFound indicates the specified thread was not found.
var ErrThreadNotFound = errors.New("thread not found")

// threadState pairs a thread's metadata with the conversation content the
// registry maintains for it.
type threadState struct {
	meta  Thread
	items []schema.Item
	plan  *schema.TurnPlan

	// segments counts how many message segments have been closed per source
	// message id. Segment 0 reuses the source id itself; later segments get
	// "-seg-N" suffixes.
	segments map[string]int

	// pendingBoundary records reasoning items whose next summary burst
	// follows a boundary marker.
	pendingBoundary map[string]bool

	lastCompletedAtMs int64
}

// Registry coordinates every live thread across workspaces.
type Registry struct {
	mu      sync.RWMutex
	threads map[string]*threadState
	order   []string          // thread ids in creation order
	active  map[string]string // workspace id -> active thread id
	queue   []schema.UserInputRequest
	logger  *slog.Logger
	nowMs   func() int64
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		threads: make(map[string]*threadState),
		active:  make(map[string]string),
		logger:  logger.With("component", "session"),
		nowMs:   func() int64 { return time.Now().UnixMilli() },
	}
}

// EnsureThread resolves a session id to its thread, creating the thread on
// first contact. A freshly created thread becomes the workspace's active
// thread.
//
// When the session id is new and exactly one pending placeholder for the
// same engine and workspace is still processing, that placeholder is the
// conversation the backend just confirmed, so it is renamed onto the new id.
// With zero or several candidates the registry will not guess and starts a
// distinct thread.
func (r *Registry) EnsureThread(engine schema.Engine, workspaceID, sessionID string) Thread {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := ThreadID(engine, sessionID)
	if ts, ok := r.threads[id]; ok {
		return ts.meta
	}

	if candidate, ok := r.solePendingCandidate(engine, workspaceID); ok {
		if err := r.renameLocked(candidate, id); err == nil {
			r.logger.Info("pending thread confirmed",
				"thread_id", id,
				"placeholder_id", candidate,
				"workspace_id", workspaceID,
			)
			return r.threads[id].meta
		}
	}

	ts := r.createLocked(engine, workspaceID, id)
	r.logger.Info("thread created",
		"thread_id", id,
		"workspace_id", workspaceID,
		"engine", engine,
	)
	return ts.meta
}

// OpenThread resolves a session id to its thread, creating it on first
// reference without consulting pending placeholders. Reopening a known
// conversation is not a backend confirmation, so nothing merges.
func (r *Registry) OpenThread(engine schema.Engine, workspaceID, sessionID string) Thread {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := ThreadID(engine, sessionID)
	if ts, ok := r.threads[id]; ok {
		return ts.meta
	}
	ts := r.createLocked(engine, workspaceID, id)
	r.logger.Info("thread opened",
		"thread_id", id,
		"workspace_id", workspaceID,
		"engine", engine,
	)
	return ts.meta
}

// CreatePendingThread starts a placeholder thread for a conversation whose
// backend session id has not been assigned yet. The placeholder becomes the
// workspace's active thread immediately so the user sees it while the
// backend spins up.
func (r *Registry) CreatePendingThread(engine schema.Engine, workspaceID string) Thread {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.createLocked(engine, workspaceID, PendingThreadID(engine))
	ts.meta.Pending = true
	ts.meta.Processing = true
	r.logger.Info("pending thread created",
		"thread_id", ts.meta.ID,
		"workspace_id", workspaceID,
		"engine", engine,
	)
	return ts.meta
}

// solePendingCandidate returns the id of the only pending, still-processing
// placeholder for the engine and workspace. More than one candidate is
// ambiguous and reports false.
func (r *Registry) solePendingCandidate(engine schema.Engine, workspaceID string) (string, bool) {
	var found string
	count := 0
	for _, id := range r.order {
		ts := r.threads[id]
		if ts.meta.Pending && ts.meta.Processing && ts.meta.Engine == engine && ts.meta.WorkspaceID == workspaceID {
			found = id
			count++
		}
	}
	if count != 1 {
		if count > 1 {
			r.logger.Warn("pending thread merge is ambiguous",
				"workspace_id", workspaceID,
				"engine", engine,
				"candidates", count,
			)
		}
		return "", false
	}
	return found, true
}

func (r *Registry) createLocked(engine schema.Engine, workspaceID, id string) *threadState {
	now := r.nowMs()
	ts := &threadState{
		meta: Thread{
			ID:          id,
			WorkspaceID: workspaceID,
			Engine:      engine,
			Name:        DefaultThreadName,
			CreatedAtMs: now,
			UpdatedAtMs: now,
		},
		segments:        make(map[string]int),
		pendingBoundary: make(map[string]bool),
	}
	r.threads[id] = ts
	r.order = append(r.order, id)
	r.active[workspaceID] = id
	return ts
}

// RenameThread moves a thread onto a new id. When the new id is unused this
// is a pure rename; when it already names a thread the two merge: the
// renamed thread's items append after the existing thread's items, status
// flags keep the more active value, and the earlier creation time wins.
// Either way the thread sheds any pending mark, since a rename is how a
// placeholder learns its confirmed id.
func (r *Registry) RenameThread(oldID, newID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renameLocked(oldID, newID)
}

func (r *Registry) renameLocked(oldID, newID string) error {
	if oldID == newID {
		return nil
	}
	src, ok := r.threads[oldID]
	if !ok {
		return fmt.Errorf("rename %s: %w", oldID, ErrThreadNotFound)
	}

	dst, exists := r.threads[newID]
	if !exists {
		delete(r.threads, oldID)
		src.meta.ID = newID
		src.meta.Pending = false
		r.threads[newID] = src
		r.replaceOrder(oldID, newID)
		r.retargetActive(oldID, newID)
		return nil
	}

	if dst.meta.Engine != src.meta.Engine {
		return fmt.Errorf("rename %s -> %s: engine mismatch", oldID, newID)
	}
	if dst.meta.WorkspaceID != src.meta.WorkspaceID {
		return fmt.Errorf("rename %s -> %s: workspace mismatch", oldID, newID)
	}

	// Merge: the confirmed thread's history comes first, the placeholder's
	// items follow it.
	dst.items = append(dst.items, src.items...)
	dst.meta.Processing = dst.meta.Processing || src.meta.Processing
	dst.meta.Unread = dst.meta.Unread || src.meta.Unread
	dst.meta.Pending = false
	if dst.meta.Name == DefaultThreadName && src.meta.Name != DefaultThreadName {
		dst.meta.Name = src.meta.Name
	}
	if src.meta.CreatedAtMs < dst.meta.CreatedAtMs {
		dst.meta.CreatedAtMs = src.meta.CreatedAtMs
	}
	if src.meta.UpdatedAtMs > dst.meta.UpdatedAtMs {
		dst.meta.UpdatedAtMs = src.meta.UpdatedAtMs
	}
	if dst.plan == nil {
		dst.plan = src.plan
	}
	for id, n := range src.segments {
		if _, taken := dst.segments[id]; !taken {
			dst.segments[id] = n
		}
	}
	for id := range src.pendingBoundary {
		dst.pendingBoundary[id] = true
	}
	if src.lastCompletedAtMs > dst.lastCompletedAtMs {
		dst.lastCompletedAtMs = src.lastCompletedAtMs
	}

	delete(r.threads, oldID)
	r.dropOrder(oldID)
	r.retargetActive(oldID, newID)
	return nil
}

func (r *Registry) replaceOrder(oldID, newID string) {
	for i, id := range r.order {
		if id == oldID {
			r.order[i] = newID
			return
		}
	}
}

func (r *Registry) dropOrder(id string) {
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

func (r *Registry) retargetActive(oldID, newID string) {
	for ws, id := range r.active {
		if id == oldID {
			r.active[ws] = newID
		}
	}
}

// Len reports the number of live threads across all workspaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.threads)
}

// Thread returns a copy of the thread's metadata.
func (r *Registry) Thread(id string) (Thread, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ts, ok := r.threads[id]
	if !ok {
		return Thread{}, false
	}
	return ts.meta, true
}

// ThreadsForWorkspace lists the workspace's threads in creation order.
func (r *Registry) ThreadsForWorkspace(workspaceID string) []Thread {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var threads []Thread
	for _, id := range r.order {
		ts := r.threads[id]
		if ts.meta.WorkspaceID == workspaceID {
			threads = append(threads, ts.meta)
		}
	}
	return threads
}

// RemoveThread deletes a thread and everything the registry holds for it.
// Reports whether the thread existed.
func (r *Registry) RemoveThread(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.threads[id]
	if !ok {
		return false
	}
	delete(r.threads, id)
	r.dropOrder(id)
	for ws, activeID := range r.active {
		if activeID == id {
			delete(r.active, ws)
		}
	}
	r.logger.Info("thread removed",
		"thread_id", id,
		"workspace_id", ts.meta.WorkspaceID,
	)
	return true
}

// SetProcessing flips the thread's processing flag.
func (r *Registry) SetProcessing(id string, processing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.threads[id]
	if !ok {
		return fmt.Errorf("set processing %s: %w", id, ErrThreadNotFound)
	}
	ts.meta.Processing = processing
	r.touch(ts)
	return nil
}

// MarkUnread flags the thread as holding content the user has not seen.
func (r *Registry) MarkUnread(id string) error {
	return r.setUnread(id, true)
}

// MarkRead clears the thread's unread flag.
func (r *Registry) MarkRead(id string) error {
	return r.setUnread(id, false)
}

func (r *Registry) setUnread(id string, unread bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.threads[id]
	if !ok {
		return fmt.Errorf("mark thread %s: %w", id, ErrThreadNotFound)
	}
	ts.meta.Unread = unread
	return nil
}

// ActiveThread reports the workspace's active thread id.
func (r *Registry) ActiveThread(workspaceID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[workspaceID]
	return id, ok
}

// SetActiveThread points the workspace at the given thread.
func (r *Registry) SetActiveThread(workspaceID, threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts, ok := r.threads[threadID]
	if !ok {
		return fmt.Errorf("activate %s: %w", threadID, ErrThreadNotFound)
	}
	if ts.meta.WorkspaceID != workspaceID {
		return fmt.Errorf("activate %s: thread belongs to workspace %s", threadID, ts.meta.WorkspaceID)
	}
	r.active[workspaceID] = threadID
	return nil
}

// QueueUserInput adds a pending user-input request. Requests are keyed by
// workspace and request id; a duplicate is dropped, though it may backfill a
// turn id the first arrival lacked. Reports whether the request was new.
func (r *Registry) QueueUserInput(req schema.UserInputRequest) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := req.Key()
	for i := range r.queue {
		if r.queue[i].Key() != key {
			continue
		}
		if r.queue[i].Params.TurnID == "" && req.Params.TurnID != "" {
			r.queue[i].Params.TurnID = req.Params.TurnID
		}
		return false
	}
	r.queue = append(r.queue, req.Clone())
	r.logger.Debug("user input queued",
		"workspace_id", req.WorkspaceID,
		"request_id", req.RequestID,
		"thread_id", req.Params.ThreadID,
	)
	return true
}

// ResolveUserInput removes a pending request once the user has answered it.
func (r *Registry) ResolveUserInput(workspaceID, requestID string) (schema.UserInputRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.queue {
		if r.queue[i].WorkspaceID == workspaceID && r.queue[i].RequestID == requestID {
			req := r.queue[i]
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return req, true
		}
	}
	return schema.UserInputRequest{}, false
}

// PendingUserInput lists queued requests for a workspace in arrival order.
// An empty workspace id lists every workspace's requests.
func (r *Registry) PendingUserInput(workspaceID string) []schema.UserInputRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var reqs []schema.UserInputRequest
	for i := range r.queue {
		if workspaceID != "" && r.queue[i].WorkspaceID != workspaceID {
			continue
		}
		reqs = append(reqs, r.queue[i].Clone())
	}
	return reqs
}

// CompletedWithin reports whether the thread's most recent assistant
// completion happened within the last windowMs milliseconds. Callers use it
// to correlate independently delivered signals, such as an input capture
// that raced an assistant turn finishing.
func (r *Registry) CompletedWithin(threadID string, windowMs int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ts, ok := r.threads[threadID]
	if !ok || ts.lastCompletedAtMs == 0 {
		return false
	}
	return r.nowMs()-ts.lastCompletedAtMs <= windowMs
}

// touch refreshes the thread's updated timestamp. Callers hold the lock.
func (r *Registry) touch(ts *threadState) {
	ts.meta.UpdatedAtMs = r.nowMs()
}
