// ABOUTME: Loader contract plus the extraction rules shared by all engines
// ABOUTME: Plan scan, user-input queue merge, and fallback warning helpers

package history

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/2389/chorus/internal/schema"
)

// ErrEmptyResponse is returned when a backend hands back no payload at all.
// Anything short of that degrades into fallback warnings instead.
var ErrEmptyResponse = errors.New("history: empty resume response")

// Loader resolves one engine's persisted thread into a normalized snapshot.
type Loader interface {
	Engine() schema.Engine
	Load(ctx context.Context, workspaceID, threadID string) (schema.HistorySnapshot, error)
}

// SessionBackend fetches raw resume payloads for one engine. Implementations
// own transport; loaders own shape.
type SessionBackend interface {
	FetchThread(ctx context.Context, workspaceID, threadID string) (json.RawMessage, error)
}

// turnRecord is the engine-neutral view of one turn. Loaders parse their raw
// turn shapes into this so plan and queue extraction stay shared.
type turnRecord struct {
	id       string
	plan     *schema.TurnPlan
	requests []schema.UserInputRequest
}

// extractPlan scans turns from most recent to oldest and returns the first
// non-empty plan, stamped with its owning turn's id when the plan itself
// omits one. Returns nil when no turn carries a plan.
func extractPlan(turns []turnRecord) *schema.TurnPlan {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].plan.Empty() {
			continue
		}
		plan := turns[i].plan.Clone()
		if plan.TurnID == "" {
			plan.TurnID = turns[i].id
		}
		return plan
	}
	return nil
}

// mergeUserInputQueue merges thread-level requests with the ones recorded
// inside each turn. Requests deduplicate by (workspace id, request id),
// keeping the first occurrence's position. A request that omits its turn id
// inherits the owning turn's id, including when a later duplicate is the
// first to know it.
func mergeUserInputQueue(threadLevel []schema.UserInputRequest, turns []turnRecord) []schema.UserInputRequest {
	var out []schema.UserInputRequest
	position := map[string]int{}

	add := func(req schema.UserInputRequest, owningTurn string) {
		if req.RequestID == "" {
			return
		}
		if req.Params.TurnID == "" {
			req.Params.TurnID = owningTurn
		}
		if idx, ok := position[req.Key()]; ok {
			if out[idx].Params.TurnID == "" && req.Params.TurnID != "" {
				out[idx].Params.TurnID = req.Params.TurnID
			}
			return
		}
		position[req.Key()] = len(out)
		out = append(out, req.Clone())
	}

	for _, req := range threadLevel {
		add(req, "")
	}
	for _, turn := range turns {
		for _, req := range turn.requests {
			add(req, turn.id)
		}
	}
	return out
}

// warnMissing appends one typed fallback warning.
func warnMissing(warnings []schema.FallbackWarning, field schema.FallbackField, detail string) []schema.FallbackWarning {
	return append(warnings, schema.FallbackWarning{Field: field, Detail: detail})
}

// fallbackMeta generates the meta an engine failed to store.
func fallbackMeta(engine schema.Engine, workspaceID, threadID string) schema.Meta {
	return schema.Meta{
		WorkspaceID: workspaceID,
		ThreadID:    threadID,
		Engine:      engine,
	}
}

// ForEngine returns the loader for a supported engine, wired to the given
// backend.
func ForEngine(engine schema.Engine, backend SessionBackend) (Loader, bool) {
	switch engine {
	case schema.EngineCodex:
		return NewCodex(backend), true
	case schema.EngineClaude:
		return NewClaude(backend), true
	case schema.EngineGemini:
		return NewGemini(backend), true
	}
	return nil, false
}
