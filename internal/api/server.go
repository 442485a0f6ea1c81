// ABOUTME: HTTP API for the reconciliation hub with SSE state streaming.
// ABOUTME: Serves thread state, transcripts, ledger history, and event ingest.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/2389/chorus/internal/hub"
	"github.com/2389/chorus/internal/schema"
	"github.com/2389/chorus/internal/session"
	"github.com/2389/chorus/internal/store"
	"github.com/2389/chorus/internal/transcript"
)

// ThreadArchive is the read surface of the archive the API serves from.
type ThreadArchive interface {
	ListThreads(ctx context.Context, workspaceID string) ([]store.ThreadRecord, error)
	GetThread(ctx context.Context, id string) (store.ThreadRecord, error)
	EventsForThread(ctx context.Context, threadID string, afterSeq int64, limit int) ([]store.EventRecord, error)
	LatestParityReport(ctx context.Context, threadID string) (store.ParityReport, error)
}

// Server exposes the hub over HTTP.
type Server struct {
	hub      *hub.Hub
	archive  ThreadArchive
	verifier TokenVerifier
	logger   *slog.Logger
}

// NewServer creates the API server. All endpoints under /api require a
// bearer token signed by the verifier's secret; a nil verifier disables
// authentication.
func NewServer(h *hub.Hub, archive ThreadArchive, verifier TokenVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:      h,
		archive:  archive,
		verifier: verifier,
		logger:   logger.With("component", "api"),
	}
}

// Routes builds the HTTP handler with all API endpoints registered.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/threads", s.requireAuth(s.handleListThreads))
	mux.HandleFunc("POST /api/threads", s.requireAuth(s.handleCreateThread))
	mux.HandleFunc("GET /api/threads/{id}/state", s.requireAuth(s.handleThreadState))
	mux.HandleFunc("GET /api/threads/{id}/events", s.requireAuth(s.handleThreadEvents))
	mux.HandleFunc("GET /api/threads/{id}/transcript", s.requireAuth(s.handleThreadTranscript))
	mux.HandleFunc("GET /api/threads/{id}/parity", s.requireAuth(s.handleThreadParity))
	mux.HandleFunc("GET /api/threads/{id}/stream", s.requireAuth(s.handleThreadStream))
	mux.HandleFunc("POST /api/threads/{id}/restore", s.requireAuth(s.handleRestoreHistory))
	mux.HandleFunc("POST /api/threads/{id}/activate", s.requireAuth(s.handleActivateThread))

	mux.HandleFunc("GET /api/userinput", s.requireAuth(s.handleListUserInput))
	mux.HandleFunc("POST /api/userinput/resolve", s.requireAuth(s.handleResolveUserInput))

	mux.HandleFunc("POST /api/ingest/{engine}", s.requireAuth(s.handleIngest))
	mux.HandleFunc("GET /api/stats", s.requireAuth(s.handleStats))

	return mux
}

// CreateThreadRequest is the JSON request body for POST /api/threads.
type CreateThreadRequest struct {
	Engine      string `json:"engine"`
	WorkspaceID string `json:"workspace_id"`
}

// ListThreadsResponse is the JSON response for GET /api/threads.
type ListThreadsResponse struct {
	Threads []session.Thread `json:"threads"`
}

// ThreadStateResponse is the JSON response for GET /api/threads/{id}/state.
type ThreadStateResponse struct {
	Thread session.Thread `json:"thread"`
	State  schema.State   `json:"state"`
}

// EventResponse is one ledger entry in GET /api/threads/{id}/events.
type EventResponse struct {
	Seq     int64           `json:"seq"`
	Engine  string          `json:"engine"`
	Op      string          `json:"op"`
	EventID string          `json:"event_id,omitempty"`
	TurnID  string          `json:"turn_id,omitempty"`
	TsMs    int64           `json:"ts_ms,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// ThreadEventsResponse is the JSON response for GET /api/threads/{id}/events.
type ThreadEventsResponse struct {
	ThreadID string          `json:"thread_id"`
	Events   []EventResponse `json:"events"`
}

// ParityResponse is the JSON response for GET /api/threads/{id}/parity.
type ParityResponse struct {
	ThreadID    string   `json:"thread_id"`
	CheckedAtMs int64    `json:"checked_at_ms"`
	Diffs       []string `json:"diffs"`
}

// RestoreRequest is the JSON request body for POST /api/threads/{id}/restore.
// Engine and workspace are only needed when the hub has no live thread to
// read them from.
type RestoreRequest struct {
	Engine      string `json:"engine,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// RestoreResponse is the JSON response for POST /api/threads/{id}/restore.
type RestoreResponse struct {
	Installed bool                     `json:"installed"`
	Diffs     []string                 `json:"diffs"`
	Warnings  []schema.FallbackWarning `json:"warnings,omitempty"`
}

// UserInputListResponse is the JSON response for GET /api/userinput.
type UserInputListResponse struct {
	Requests []schema.UserInputRequest `json:"requests"`
}

// ResolveUserInputRequest is the JSON request body for POST /api/userinput/resolve.
type ResolveUserInputRequest struct {
	WorkspaceID string `json:"workspace_id"`
	RequestID   string `json:"request_id"`
}

// ResolveUserInputResponse is the JSON response for POST /api/userinput/resolve.
type ResolveUserInputResponse struct {
	Request schema.UserInputRequest `json:"request"`
}

// IngestResponse is the JSON response for POST /api/ingest/{engine}.
type IngestResponse struct {
	Applied bool `json:"applied"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleListThreads handles GET /api/threads?workspace=X.
// Archived threads are overlaid with the hub's live view so pending and
// unread flags reflect the current session.
func (s *Server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace")
	if workspaceID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "workspace query param required")
		return
	}

	records, err := s.archive.ListThreads(r.Context(), workspaceID)
	if err != nil {
		s.logger.Error("failed to list threads", "workspace", workspaceID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	live := s.hub.ThreadsForWorkspace(workspaceID)
	liveByID := make(map[string]session.Thread, len(live))
	for _, th := range live {
		liveByID[th.ID] = th
	}

	threads := make([]session.Thread, 0, len(records)+len(live))
	for _, rec := range records {
		if th, ok := liveByID[rec.ID]; ok {
			threads = append(threads, th)
			delete(liveByID, rec.ID)
			continue
		}
		threads = append(threads, session.Thread{
			ID:          rec.ID,
			WorkspaceID: rec.WorkspaceID,
			Engine:      schema.Engine(rec.Engine),
			Name:        rec.Name,
			CreatedAtMs: rec.CreatedAtMs,
			UpdatedAtMs: rec.UpdatedAtMs,
		})
	}
	// Live-only threads have not been persisted yet (pending placeholders)
	for _, th := range live {
		if _, ok := liveByID[th.ID]; ok {
			threads = append(threads, th)
		}
	}

	sort.Slice(threads, func(i, j int) bool {
		return threads[i].UpdatedAtMs > threads[j].UpdatedAtMs
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ListThreadsResponse{Threads: threads})
}

// handleCreateThread handles POST /api/threads.
// Creates a pending placeholder that adopts the engine's first real event.
func (s *Server) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req CreateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	engine := schema.Engine(req.Engine)
	if !engine.Valid() {
		s.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown engine %q", req.Engine))
		return
	}
	if req.WorkspaceID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "workspace_id is required")
		return
	}

	thread := s.hub.CreatePendingThread(engine, req.WorkspaceID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(thread)
}

// handleThreadState handles GET /api/threads/{id}/state.
// Falls back to the archived snapshot when the hub has no live session.
func (s *Server) handleThreadState(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if state, ok := s.hub.State(id); ok {
		thread, _ := s.hub.Thread(id)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ThreadStateResponse{Thread: thread, State: state})
		return
	}

	rec, err := s.archive.GetThread(r.Context(), id)
	if errors.Is(err, store.ErrThreadNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "thread not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to get thread", "thread", id, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ThreadStateResponse{
		Thread: session.Thread{
			ID:          rec.ID,
			WorkspaceID: rec.WorkspaceID,
			Engine:      schema.Engine(rec.Engine),
			Name:        rec.Name,
			CreatedAtMs: rec.CreatedAtMs,
			UpdatedAtMs: rec.UpdatedAtMs,
		},
		State: rec.State,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleThreadEvents handles GET /api/threads/{id}/events requests.
// Returns the raw event ledger for a thread, optionally paged with
// ?after=N and limited by ?limit=N.
func (s *Server) handleThreadEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if !s.threadExists(r.Context(), id) {
		s.sendJSONError(w, http.StatusNotFound, "thread not found")
		return
	}

	// Parse optional limit parameter (default 100, max 500)
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			s.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
		if limit > 500 {
			limit = 500
		}
	}

	var afterSeq int64
	if afterStr := r.URL.Query().Get("after"); afterStr != "" {
		parsed, err := strconv.ParseInt(afterStr, 10, 64)
		if err != nil || parsed < 0 {
			s.sendJSONError(w, http.StatusBadRequest, "after must be a non-negative integer")
			return
		}
		afterSeq = parsed
	}

	records, err := s.archive.EventsForThread(r.Context(), id, afterSeq, limit)
	if err != nil {
		s.logger.Error("failed to list events", "thread", id, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := ThreadEventsResponse{
		ThreadID: id,
		Events:   make([]EventResponse, len(records)),
	}
	for i, rec := range records {
		response.Events[i] = EventResponse{
			Seq:     rec.Seq,
			Engine:  rec.Engine,
			Op:      rec.Op,
			EventID: rec.EventID,
			TurnID:  rec.TurnID,
			TsMs:    rec.TsMs,
			Payload: json.RawMessage(rec.Payload),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleThreadTranscript handles GET /api/threads/{id}/transcript.
// Renders the reconciled state as HTML, or plain text with ?format=text.
func (s *Server) handleThreadTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	state, ok := s.hub.State(id)
	if !ok {
		rec, err := s.archive.GetThread(r.Context(), id)
		if errors.Is(err, store.ErrThreadNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "thread not found")
			return
		}
		if err != nil {
			s.logger.Error("failed to get thread", "thread", id, "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		state = rec.State
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, transcript.RenderText(state))
		return
	}

	html, err := transcript.RenderHTML(state)
	if err != nil {
		s.logger.Error("failed to render transcript", "thread", id, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, html)
}

// handleThreadParity handles GET /api/threads/{id}/parity.
// Returns the latest realtime-versus-history comparison for the thread.
func (s *Server) handleThreadParity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	report, err := s.archive.LatestParityReport(r.Context(), id)
	if errors.Is(err, store.ErrReportNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "no parity report for this thread")
		return
	}
	if err != nil {
		s.logger.Error("failed to get parity report", "thread", id, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ParityResponse{
		ThreadID:    report.ThreadID,
		CheckedAtMs: report.CheckedAtMs,
		Diffs:       report.Diffs,
	})
}

// handleThreadStream handles SSE streaming of thread updates.
func (s *Server) handleThreadStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, ok := s.hub.Thread(id); !ok {
		s.sendJSONError(w, http.StatusNotFound, "thread not found")
		return
	}

	// Check streaming support before sending (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch, subID := s.hub.Subscribe(r.Context(), id)
	defer s.hub.Unsubscribe(id, subID)

	// Send initial connection event with the thread's current state
	if state, ok := s.hub.State(id); ok {
		thread, _ := s.hub.Thread(id)
		s.writeSSEEvent(w, "connected", ThreadStateResponse{Thread: thread, State: state})
	} else {
		s.writeSSEEvent(w, "connected", map[string]string{"thread_id": id})
	}
	flusher.Flush()

	// Create heartbeat ticker to keep connection alive
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-heartbeat.C:
			// Send SSE comment as heartbeat to detect dead connections
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case update, ok := <-ch:
			if !ok {
				// Hub shut down
				return
			}
			s.writeSSEEvent(w, string(update.Kind), update)
			flusher.Flush()
		}
	}
}

// handleRestoreHistory handles POST /api/threads/{id}/restore.
// Reconstructs the thread from the engine's persisted session and either
// installs it or reports divergence from the live state.
func (s *Server) handleRestoreHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	engine := schema.Engine(req.Engine)
	workspaceID := req.WorkspaceID
	if th, ok := s.hub.Thread(id); ok {
		engine = th.Engine
		workspaceID = th.WorkspaceID
	}
	if !engine.Valid() || workspaceID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "engine and workspace_id are required for unknown threads")
		return
	}

	result, err := s.hub.RestoreHistory(r.Context(), engine, workspaceID, id)
	if err != nil {
		switch {
		case errors.Is(err, hub.ErrHistoryDisabled):
			s.sendJSONError(w, http.StatusServiceUnavailable, "history restores are disabled")
		case errors.Is(err, hub.ErrUnknownEngine):
			s.sendJSONError(w, http.StatusBadRequest, "unknown engine")
		default:
			s.logger.Error("history restore failed", "thread", id, "error", err)
			s.sendJSONError(w, http.StatusBadGateway, "history backend error")
		}
		return
	}

	resp := RestoreResponse{
		Installed: result.Installed,
		Diffs:     result.Diffs,
		Warnings:  result.Snapshot.Warnings,
	}
	if resp.Diffs == nil {
		resp.Diffs = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleActivateThread handles POST /api/threads/{id}/activate.
// Marks the thread as the workspace's focused conversation and clears its
// unread flag.
func (s *Server) handleActivateThread(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	th, ok := s.hub.Thread(id)
	if !ok {
		s.sendJSONError(w, http.StatusNotFound, "thread not found")
		return
	}

	if err := s.hub.SetActiveThread(th.WorkspaceID, id); err != nil {
		s.logger.Error("failed to activate thread", "thread", id, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListUserInput handles GET /api/userinput?workspace=X.
// Omitting the workspace returns every pending request across workspaces.
func (s *Server) handleListUserInput(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace")

	requests := s.hub.PendingUserInput(workspaceID)
	if requests == nil {
		requests = []schema.UserInputRequest{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UserInputListResponse{Requests: requests})
}

// handleResolveUserInput handles POST /api/userinput/resolve.
func (s *Server) handleResolveUserInput(w http.ResponseWriter, r *http.Request) {
	var req ResolveUserInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.WorkspaceID == "" || req.RequestID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "workspace_id and request_id are required")
		return
	}

	resolved, ok := s.hub.ResolveUserInput(req.WorkspaceID, req.RequestID)
	if !ok {
		s.sendJSONError(w, http.StatusNotFound, "user input request not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ResolveUserInputResponse{Request: resolved})
}

// handleIngest handles POST /api/ingest/{engine}?workspace=X.
// The body is one raw engine event, exactly as the engine emitted it.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	engine := schema.Engine(r.PathValue("engine"))
	workspaceID := r.URL.Query().Get("workspace")
	if workspaceID == "" {
		s.sendJSONError(w, http.StatusBadRequest, "workspace query param required")
		return
	}

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(raw) == 0 {
		s.sendJSONError(w, http.StatusBadRequest, "request body required")
		return
	}

	applied, err := s.hub.Ingest(engine, workspaceID, raw)
	if err != nil {
		if errors.Is(err, hub.ErrUnknownEngine) {
			s.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown engine %q", string(engine)))
			return
		}
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Debug("event ingested",
		"engine", engine,
		"workspace", workspaceID,
		"subject", SubjectFromContext(r.Context()),
		"applied", applied)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(IngestResponse{Applied: applied})
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.hub.Stats())
}

// threadExists reports whether the hub or the archive knows the thread.
func (s *Server) threadExists(ctx context.Context, id string) bool {
	if _, ok := s.hub.Thread(id); ok {
		return true
	}
	_, err := s.archive.GetThread(ctx, id)
	return err == nil
}

// writeSSEEvent writes a single SSE event to the response writer.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
