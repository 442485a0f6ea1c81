// ABOUTME: Central ingest pipeline: dedupe, adapt, reduce, persist, broadcast
// ABOUTME: Owns the realtime surface; history restores arrive through the same door

package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/chorus/internal/adapter"
	"github.com/2389/chorus/internal/conversation"
	"github.com/2389/chorus/internal/dedupe"
	"github.com/2389/chorus/internal/history"
	"github.com/2389/chorus/internal/schema"
	"github.com/2389/chorus/internal/session"
	"github.com/2389/chorus/internal/store"
)

// saveTimeout bounds archive writes so a wedged disk cannot stall ingest.
// Writes use their own context; a cancelled request must not lose the row.
const saveTimeout = 5 * time.Second

// ErrUnknownEngine is returned for payloads addressed to an engine no
// adapter speaks for.
var ErrUnknownEngine = errors.New("unknown engine")

// ErrHistoryDisabled is returned by RestoreHistory when no session backend
// is configured for the requested engine.
var ErrHistoryDisabled = errors.New("history restores are disabled")

// ArchiveStore defines what the hub needs from persistence.
type ArchiveStore interface {
	SaveThread(ctx context.Context, rec store.ThreadRecord) error
	AppendEvent(ctx context.Context, rec store.EventRecord) (int64, error)
	SaveParityReport(ctx context.Context, report store.ParityReport) error
}

// Config carries the hub's collaborators and tuning. Archive is required;
// everything else has a usable zero value.
type Config struct {
	Archive ArchiveStore

	// Backends maps each engine to the session backend that serves its
	// resume payloads. Engines absent from the map cannot restore; a nil
	// map disables RestoreHistory entirely.
	Backends map[schema.Engine]history.SessionBackend

	// EngineAliases maps alternate wire names accepted on ingest to the
	// canonical engine that processes them.
	EngineAliases map[schema.Engine]schema.Engine

	// DedupeTTL and DedupeMaxSize bound the fingerprint cache. Zero values
	// use 5 minutes and 100k entries.
	DedupeTTL     time.Duration
	DedupeMaxSize int

	// CompletionWindow is how long after an assistant completion an
	// unattributed user-input request still counts as belonging to that
	// turn. Zero uses 2 seconds.
	CompletionWindow time.Duration

	// ParityDisabled skips the structural comparison on history restores.
	ParityDisabled bool

	Logger *slog.Logger
}

// threadMeta is the wire-level bookkeeping the session registry does not
// carry: turn tracking, the thinking flag, and the volatile counters.
type threadMeta struct {
	activeTurnID string
	isThinking   bool
	pulse        int64
	restoredAtMs int64

	// turnMessages lists assistant message ids that streamed during the
	// active turn. They advance to fresh segments when the turn changes.
	turnMessages map[string]bool
}

// Hub coordinates everything between raw engine payloads and subscribers.
type Hub struct {
	sessions *session.Registry
	archive  ArchiveStore
	cache    *dedupe.Cache
	caster   *Broadcaster
	backends map[schema.Engine]history.SessionBackend
	aliases  map[schema.Engine]schema.Engine
	logger   *slog.Logger

	completionWindow time.Duration
	parityDisabled   bool

	mu    sync.RWMutex
	metas map[string]*threadMeta

	nowMs func() int64
}

// New creates a Hub around the given archive. The session registry,
// fingerprint cache, and broadcaster are constructed internally.
func New(cfg Config) (*Hub, error) {
	if cfg.Archive == nil {
		return nil, errors.New("hub: archive store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ttl := cfg.DedupeTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	maxSize := cfg.DedupeMaxSize
	if maxSize <= 0 {
		maxSize = 100_000
	}
	window := cfg.CompletionWindow
	if window <= 0 {
		window = 2 * time.Second
	}

	return &Hub{
		sessions:         session.NewRegistry(logger),
		archive:          cfg.Archive,
		cache:            dedupe.New(ttl, maxSize),
		caster:           NewBroadcaster(logger),
		backends:         cfg.Backends,
		aliases:          cfg.EngineAliases,
		logger:           logger.With("component", "hub"),
		completionWindow: window,
		parityDisabled:   cfg.ParityDisabled,
		metas:            make(map[string]*threadMeta),
		nowMs:            func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Close stops the fingerprint sweeper and closes every subscriber channel.
func (h *Hub) Close() {
	h.cache.Close()
	h.caster.Close()
}

// Ingest runs one raw engine payload through the pipeline. The workspace id
// attributes connection-level signals, which carry no payload of their own;
// mapped events carry their own workspace. Configured alias names resolve to
// their canonical engine before anything else. Reports whether the payload
// survived mapping and entered a thread's conversation. Heartbeats,
// redeliveries, and unrecognized payloads drop without error.
func (h *Hub) Ingest(engine schema.Engine, workspaceID string, raw json.RawMessage) (bool, error) {
	if canonical, ok := h.aliases[engine]; ok {
		engine = canonical
	}
	ad, ok := adapter.ForEngine(engine)
	if !ok {
		return false, fmt.Errorf("ingest %q: %w", engine, ErrUnknownEngine)
	}

	if ad.IsHeartbeat(raw) {
		h.bumpPulse(engine, workspaceID)
		return false, nil
	}

	fp := dedupe.Fingerprint(string(engine), raw)
	if h.cache.Observe(fp) {
		h.logger.Debug("duplicate payload dropped",
			"engine", engine,
			"fingerprint", fp)
		return false, nil
	}

	ev := ad.MapEvent(raw)
	if ev == nil {
		h.logger.Debug("unmapped payload dropped", "engine", engine)
		return false, nil
	}

	th := h.sessions.EnsureThread(ev.Engine, ev.WorkspaceID, ev.ThreadID)
	h.advanceTurn(th.ID, ev.TurnID)

	if err := h.applyToSession(th.ID, ev); err != nil {
		h.logger.Error("failed to apply event",
			"error", err,
			"thread_id", th.ID,
			"op", ev.Op)
		return false, nil
	}
	h.noteActivity(th.ID, ev)

	if active, ok := h.sessions.ActiveThread(th.WorkspaceID); !ok || active != th.ID {
		if err := h.sessions.MarkUnread(th.ID); err != nil {
			h.logger.Error("failed to mark thread unread", "error", err, "thread_id", th.ID)
		}
	}

	h.persistEvent(th.ID, ev, raw)
	h.persistThread(th.ID)
	h.broadcast(UpdateState, th.ID)
	return true, nil
}

// advanceTurn records a turn change and closes out the previous turn:
// assistant messages that streamed during it move to fresh segments, and
// tools it left non-terminal are finalized.
func (h *Hub) advanceTurn(threadID, turnID string) {
	if turnID == "" {
		return
	}

	var previousTurn string
	var closing []string
	h.mu.Lock()
	m := h.metaLocked(threadID)
	if turnID != m.activeTurnID {
		previousTurn = m.activeTurnID
		m.activeTurnID = turnID
		if previousTurn != "" {
			for id := range m.turnMessages {
				closing = append(closing, id)
			}
			m.turnMessages = make(map[string]bool)
		}
	}
	h.mu.Unlock()

	if previousTurn == "" {
		return
	}
	for _, id := range closing {
		if err := h.sessions.AdvanceMessageSegment(threadID, id); err != nil {
			h.logger.Error("failed to advance segment", "error", err, "thread_id", threadID, "message_id", id)
		}
	}
	h.sessions.FinalizePendingToolStatuses(threadID, schema.ToolCompleted)
	h.logger.Debug("turn advanced",
		"thread_id", threadID,
		"previous_turn", previousTurn,
		"turn_id", turnID)
}

// applyToSession routes one normalized event to the session registry.
func (h *Hub) applyToSession(threadID string, ev *schema.ThreadEvent) error {
	switch ev.Op {
	case schema.OpItemStarted, schema.OpItemUpdated, schema.OpItemCompleted:
		if ev.Item == nil {
			return nil
		}
		return h.sessions.UpsertItem(threadID, *ev.Item)

	case schema.OpAppendAgentMessageDelta:
		return h.sessions.AppendAssistantDelta(threadID, ev.TargetItemID(), ev.Delta)

	case schema.OpCompleteAgentMessage:
		return h.sessions.CompleteAssistantMessage(threadID, ev.TargetItemID(), completionText(ev))

	case schema.OpAppendReasoningSummaryDelta:
		return h.sessions.AppendReasoningSummary(threadID, ev.TargetItemID(), ev.Delta)

	case schema.OpAppendReasoningSummaryBoundary:
		return h.sessions.NoteReasoningBoundary(threadID, ev.TargetItemID())

	case schema.OpAppendReasoningContentDelta:
		return h.sessions.AppendReasoningContent(threadID, ev.TargetItemID(), ev.Delta)

	case schema.OpAppendToolOutputDelta:
		return h.sessions.AppendToolOutput(threadID, ev.TargetItemID(), ev.Delta)
	}
	return nil
}

// noteActivity updates the thread's thinking flag and turn-message tracking
// after an event applied. The processing flag follows the thinking flag so
// sidebar listings reflect engine activity.
func (h *Hub) noteActivity(threadID string, ev *schema.ThreadEvent) {
	h.mu.Lock()
	m := h.metaLocked(threadID)
	before := m.isThinking
	switch ev.Op {
	case schema.OpItemStarted,
		schema.OpAppendAgentMessageDelta,
		schema.OpAppendReasoningSummaryDelta,
		schema.OpAppendReasoningContentDelta,
		schema.OpAppendToolOutputDelta:
		m.isThinking = true
	case schema.OpItemCompleted, schema.OpCompleteAgentMessage:
		m.isThinking = false
	}
	thinking := m.isThinking

	switch ev.Op {
	case schema.OpAppendAgentMessageDelta, schema.OpCompleteAgentMessage:
		m.turnMessages[ev.TargetItemID()] = true
	}
	h.mu.Unlock()

	if thinking != before {
		if err := h.sessions.SetProcessing(threadID, thinking); err != nil {
			h.logger.Error("failed to set processing flag", "error", err, "thread_id", threadID)
		}
	}
}

// bumpPulse advances the heartbeat counter of the workspace's active thread
// when it belongs to the pulsing engine. Pulses are presentation-only and
// never enter the item pipeline.
func (h *Hub) bumpPulse(engine schema.Engine, workspaceID string) {
	threadID, ok := h.sessions.ActiveThread(workspaceID)
	if !ok {
		return
	}
	th, ok := h.sessions.Thread(threadID)
	if !ok || th.Engine != engine {
		return
	}

	h.mu.Lock()
	h.metaLocked(threadID).pulse++
	h.mu.Unlock()

	h.broadcast(UpdateHeartbeat, threadID)
}

// State assembles the thread's current reconciled state: items and plan
// from the session registry, the thread's share of the user-input queue,
// and the hub's wire-level meta.
func (h *Hub) State(threadID string) (schema.State, bool) {
	th, ok := h.sessions.Thread(threadID)
	if !ok {
		return schema.State{}, false
	}

	state := schema.NewState(th.Engine, th.WorkspaceID, th.ID)
	state.Items = h.sessions.Items(th.ID)
	state.Plan = h.sessions.Plan(th.ID)
	for _, req := range h.sessions.PendingUserInput(th.WorkspaceID) {
		if req.Params.ThreadID == th.ID {
			state.UserInputQueue = append(state.UserInputQueue, req)
		}
	}

	h.mu.RLock()
	if m, ok := h.metas[th.ID]; ok {
		state.Meta.ActiveTurnID = m.activeTurnID
		state.Meta.IsThinking = m.isThinking
		state.Meta.HeartbeatPulse = m.pulse
		state.Meta.HistoryRestoredAtMs = m.restoredAtMs
	}
	h.mu.RUnlock()
	return state, true
}

// RestoreResult reports what a history restore produced.
type RestoreResult struct {
	Snapshot schema.HistorySnapshot

	// Installed is true when the snapshot became the thread's live state.
	// A thread that already had realtime content is compared, not
	// overwritten.
	Installed bool

	// Diffs names the sections where the live surface diverged from the
	// history surface. Empty means parity held (or the check was skipped).
	Diffs []string
}

// RestoreHistory loads the thread from the engine's persisted session. A
// thread with no live content installs the snapshot and broadcasts it; a
// live thread is structurally compared against the snapshot instead, and
// the resulting parity report is archived.
func (h *Hub) RestoreHistory(ctx context.Context, engine schema.Engine, workspaceID, threadID string) (RestoreResult, error) {
	backend := h.backends[engine]
	if backend == nil {
		return RestoreResult{}, ErrHistoryDisabled
	}
	ld, ok := history.ForEngine(engine, backend)
	if !ok {
		return RestoreResult{}, fmt.Errorf("restore %q: %w", engine, ErrUnknownEngine)
	}

	canonical := session.ThreadID(engine, threadID)
	rawID := session.SessionID(canonical)
	snap, err := ld.Load(ctx, workspaceID, rawID)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("loading history for %s: %w", canonical, err)
	}

	// Loaders speak raw session ids; everything above the registry speaks
	// canonical thread ids.
	snap.ThreadID = canonical
	snap.Meta.ThreadID = canonical
	for i := range snap.UserInputQueue {
		p := &snap.UserInputQueue[i].Params
		if p.ThreadID == "" || p.ThreadID == rawID {
			p.ThreadID = canonical
		}
	}

	for _, w := range snap.Warnings {
		h.logger.Warn("history loader fell back",
			"thread_id", canonical,
			"field", w.Field,
			"detail", w.Detail)
	}

	if _, live := h.sessions.Thread(canonical); live && len(h.sessions.Items(canonical)) > 0 {
		return h.checkParity(canonical, snap), nil
	}
	return h.installSnapshot(engine, workspaceID, snap), nil
}

// checkParity compares the live surface against the history surface and
// archives the result. The live thread is left untouched.
func (h *Hub) checkParity(threadID string, snap schema.HistorySnapshot) RestoreResult {
	result := RestoreResult{Snapshot: snap}
	if h.parityDisabled {
		return result
	}

	restored := conversation.HydrateHistory(snap)
	restored.Meta.HistoryRestoredAtMs = h.nowMs()
	liveState, _ := h.State(threadID)
	result.Diffs = conversation.FindStateDiffs(liveState, restored)

	saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := h.archive.SaveParityReport(saveCtx, store.ParityReport{
		ThreadID:    threadID,
		CheckedAtMs: h.nowMs(),
		Diffs:       result.Diffs,
	}); err != nil {
		h.logger.Error("failed to save parity report", "error", err, "thread_id", threadID)
	}

	if len(result.Diffs) > 0 {
		h.logger.Warn("realtime and history surfaces diverged",
			"thread_id", threadID,
			"sections", result.Diffs)
	} else {
		h.logger.Debug("parity check clean", "thread_id", threadID)
	}
	return result
}

// installSnapshot makes the snapshot the thread's live state. Reopening an
// archived conversation is not a backend confirmation, so the thread is
// opened rather than ensured and no pending placeholder can merge into it.
func (h *Hub) installSnapshot(engine schema.Engine, workspaceID string, snap schema.HistorySnapshot) RestoreResult {
	th := h.sessions.OpenThread(engine, workspaceID, snap.ThreadID)
	for _, it := range snap.Items {
		if err := h.sessions.UpsertItem(th.ID, it); err != nil {
			h.logger.Error("failed to install item", "error", err, "thread_id", th.ID, "item_id", it.ID)
		}
	}
	if snap.Plan != nil {
		if err := h.sessions.SetPlan(th.ID, snap.Plan); err != nil {
			h.logger.Error("failed to install plan", "error", err, "thread_id", th.ID)
		}
	}
	for _, req := range snap.UserInputQueue {
		h.sessions.QueueUserInput(req)
	}

	h.mu.Lock()
	m := h.metaLocked(th.ID)
	m.activeTurnID = snap.Meta.ActiveTurnID
	m.isThinking = snap.Meta.IsThinking
	m.restoredAtMs = h.nowMs()
	h.mu.Unlock()

	h.persistThread(th.ID)
	h.broadcast(UpdateHistory, th.ID)
	h.logger.Info("history restored",
		"thread_id", th.ID,
		"items", len(snap.Items),
		"warnings", len(snap.Warnings))
	return RestoreResult{Snapshot: snap, Installed: true}
}

// QueueUserInput adds a pending user-input request. A request that names
// its thread but not its turn, arriving inside the completion window of
// that thread's last assistant completion, is treated as belonging to the
// turn that just finished. Reports whether the request was new.
func (h *Hub) QueueUserInput(req schema.UserInputRequest) bool {
	threadID := req.Params.ThreadID
	if threadID != "" && req.Params.TurnID == "" &&
		h.sessions.CompletedWithin(threadID, h.completionWindow.Milliseconds()) {
		h.mu.RLock()
		if m, ok := h.metas[threadID]; ok {
			req.Params.TurnID = m.activeTurnID
		}
		h.mu.RUnlock()
	}

	queued := h.sessions.QueueUserInput(req)
	if queued && threadID != "" {
		h.broadcast(UpdateUserInput, threadID)
	}
	return queued
}

// ResolveUserInput removes a pending request once the user has answered it.
func (h *Hub) ResolveUserInput(workspaceID, requestID string) (schema.UserInputRequest, bool) {
	req, ok := h.sessions.ResolveUserInput(workspaceID, requestID)
	if ok && req.Params.ThreadID != "" {
		h.broadcast(UpdateUserInput, req.Params.ThreadID)
	}
	return req, ok
}

// PendingUserInput lists queued requests for a workspace in arrival order.
func (h *Hub) PendingUserInput(workspaceID string) []schema.UserInputRequest {
	return h.sessions.PendingUserInput(workspaceID)
}

// SetPlan replaces the thread's plan and broadcasts the resulting state.
func (h *Hub) SetPlan(threadID string, plan *schema.TurnPlan) error {
	if err := h.sessions.SetPlan(threadID, plan); err != nil {
		return err
	}
	h.persistThread(threadID)
	h.broadcast(UpdatePlan, threadID)
	return nil
}

// CreatePendingThread starts a placeholder thread for a conversation whose
// backend session id has not been assigned yet.
func (h *Hub) CreatePendingThread(engine schema.Engine, workspaceID string) session.Thread {
	return h.sessions.CreatePendingThread(engine, workspaceID)
}

// Thread returns a copy of the thread's metadata.
func (h *Hub) Thread(id string) (session.Thread, bool) {
	return h.sessions.Thread(id)
}

// ThreadsForWorkspace lists the workspace's threads in creation order.
func (h *Hub) ThreadsForWorkspace(workspaceID string) []session.Thread {
	return h.sessions.ThreadsForWorkspace(workspaceID)
}

// SetActiveThread points the workspace at the given thread and clears its
// unread flag, since activating a thread means the user is looking at it.
func (h *Hub) SetActiveThread(workspaceID, threadID string) error {
	if err := h.sessions.SetActiveThread(workspaceID, threadID); err != nil {
		return err
	}
	return h.sessions.MarkRead(threadID)
}

// MarkRead clears the thread's unread flag.
func (h *Hub) MarkRead(threadID string) error {
	return h.sessions.MarkRead(threadID)
}

// Subscribe registers for the thread's updates until ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context, threadID string) (<-chan Update, string) {
	return h.caster.Subscribe(ctx, threadID)
}

// Unsubscribe removes a subscription before its context ends.
func (h *Hub) Unsubscribe(threadID, subID string) {
	h.caster.Unsubscribe(threadID, subID)
}

// Stats is a point-in-time operational summary.
type Stats struct {
	Threads       int `json:"threads"`
	Subscribers   int `json:"subscribers"`
	DedupeEntries int `json:"dedupeEntries"`
}

// Stats reports live counters for the stats endpoint.
func (h *Hub) Stats() Stats {
	return Stats{
		Threads:       h.sessions.Len(),
		Subscribers:   h.caster.SubscriberCount(),
		DedupeEntries: h.cache.Len(),
	}
}

// broadcast publishes the thread's current state under the given kind.
func (h *Hub) broadcast(kind UpdateKind, threadID string) {
	th, ok := h.sessions.Thread(threadID)
	if !ok {
		return
	}
	state, _ := h.State(threadID)
	h.caster.Publish(Update{Kind: kind, Thread: th, State: state})
}

// persistEvent appends the raw payload to the thread's ledger with its own
// timeout context, so persistence survives a cancelled request.
func (h *Hub) persistEvent(threadID string, ev *schema.ThreadEvent, raw json.RawMessage) {
	tsMs := ev.TimestampMs
	if tsMs == 0 {
		tsMs = h.nowMs()
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	_, err := h.archive.AppendEvent(saveCtx, store.EventRecord{
		ThreadID: threadID,
		Engine:   string(ev.Engine),
		Op:       string(ev.Op),
		EventID:  ev.EventID,
		TurnID:   ev.TurnID,
		TsMs:     tsMs,
		Payload:  raw,
	})
	if err != nil {
		h.logger.Error("failed to append event",
			"error", err,
			"thread_id", threadID,
			"op", ev.Op)
	}
}

// persistThread writes the thread's current snapshot.
func (h *Hub) persistThread(threadID string) {
	th, ok := h.sessions.Thread(threadID)
	if !ok {
		return
	}
	state, _ := h.State(threadID)

	saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	err := h.archive.SaveThread(saveCtx, store.ThreadRecord{
		ID:          th.ID,
		WorkspaceID: th.WorkspaceID,
		Engine:      string(th.Engine),
		Name:        th.Name,
		State:       state,
		CreatedAtMs: th.CreatedAtMs,
		UpdatedAtMs: th.UpdatedAtMs,
	})
	if err != nil {
		h.logger.Error("failed to save thread snapshot",
			"error", err,
			"thread_id", th.ID)
	}
}

// metaLocked returns the thread's wire meta, creating it on first touch.
// Callers hold mu.
func (h *Hub) metaLocked(threadID string) *threadMeta {
	m, ok := h.metas[threadID]
	if !ok {
		m = &threadMeta{turnMessages: make(map[string]bool)}
		h.metas[threadID] = m
	}
	return m
}

// completionText resolves the final message text a completion event
// carries: the delta field when set, otherwise the candidate item's text.
func completionText(ev *schema.ThreadEvent) string {
	if ev.Delta != "" {
		return ev.Delta
	}
	if ev.Item != nil && ev.Item.Message != nil {
		return ev.Item.Message.Text
	}
	return ""
}
