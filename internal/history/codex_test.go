// ABOUTME: Tests for the codex history loader
// ABOUTME: Full resume parsing, degraded loads with typed warnings, transport errors

package history

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chorus/internal/schema"
)

type stubBackend struct {
	payload json.RawMessage
	err     error
}

func (s *stubBackend) FetchThread(ctx context.Context, workspaceID, threadID string) (json.RawMessage, error) {
	return s.payload, s.err
}

func TestCodexLoader_Load_FullResume(t *testing.T) {
	payload := []byte(`{
		"items": [
			{"id": "u1", "item_type": "user_message", "text": "add retry logic"},
			{"id": "a1", "item_type": "agent_message", "text": "Adding a retry wrapper."},
			{"id": "t1", "item_type": "command_execution", "command": "go test ./...", "aggregated_output": "ok\n", "status": "completed"}
		],
		"turns": [
			{"id": "turn-1"},
			{
				"id": "turn-2",
				"plan": {"explanation": "wrap the client", "steps": [{"step": "add backoff", "status": "in_progress"}]},
				"user_input_requests": [
					{"request_id": "req-1", "questions": [{"header": "Scope", "question": "Retry all verbs?", "free_form": false, "options": [{"label": "GET only"}, {"label": "All"}]}]}
				]
			}
		],
		"user_input_requests": [
			{"request_id": "req-1", "questions": [{"header": "Scope", "question": "Retry all verbs?"}]}
		],
		"meta": {"workspace_id": "ws-1", "thread_id": "th-1", "active_turn_id": "turn-2"}
	}`)

	loader := NewCodex(&stubBackend{payload: payload})
	snap, err := loader.Load(context.Background(), "ws-1", "th-1")

	require.NoError(t, err)
	assert.Empty(t, snap.Warnings)

	require.Len(t, snap.Items, 3)
	assert.Equal(t, schema.RoleUser, snap.Items[0].Message.Role)
	assert.Equal(t, schema.ToolCompleted, snap.Items[2].Tool.Status)

	require.NotNil(t, snap.Plan)
	assert.Equal(t, "turn-2", snap.Plan.TurnID)
	assert.Equal(t, schema.StepInProgress, snap.Plan.Steps[0].Status)

	require.Len(t, snap.UserInputQueue, 1, "thread-level and turn-level copies dedup")
	assert.Equal(t, "req-1", snap.UserInputQueue[0].RequestID)
	assert.Equal(t, "turn-2", snap.UserInputQueue[0].Params.TurnID, "turn id backfilled from owning turn")
	assert.Equal(t, "th-1", snap.UserInputQueue[0].Params.ThreadID)

	assert.Equal(t, "turn-2", snap.Meta.ActiveTurnID)
	assert.Equal(t, schema.EngineCodex, snap.Meta.Engine)
}

func TestCodexLoader_Load_MissingSectionsDegrade(t *testing.T) {
	loader := NewCodex(&stubBackend{payload: []byte(`{}`)})

	snap, err := loader.Load(context.Background(), "ws-1", "th-1")

	require.NoError(t, err, "missing sections degrade, they do not fail")
	assert.Empty(t, snap.Items)
	assert.Nil(t, snap.Plan)
	assert.Empty(t, snap.UserInputQueue)
	assert.Equal(t, fallbackMeta(schema.EngineCodex, "ws-1", "th-1"), snap.Meta)

	fields := make([]schema.FallbackField, 0, len(snap.Warnings))
	for _, w := range snap.Warnings {
		fields = append(fields, w.Field)
	}
	assert.ElementsMatch(t, []schema.FallbackField{
		schema.FallbackMissingItems,
		schema.FallbackMissingPlan,
		schema.FallbackMissingUserInputQueue,
		schema.FallbackMissingMeta,
	}, fields)
}

func TestCodexLoader_Load_EmptySectionsAreNotMissing(t *testing.T) {
	loader := NewCodex(&stubBackend{payload: []byte(`{
		"items": [],
		"turns": [],
		"user_input_requests": [],
		"meta": {"workspace_id": "ws-1", "thread_id": "th-1"}
	}`)})

	snap, err := loader.Load(context.Background(), "ws-1", "th-1")

	require.NoError(t, err)
	assert.Empty(t, snap.Warnings, "present-but-empty sections are valid data")
}

func TestCodexLoader_Load_BackendError(t *testing.T) {
	backendErr := errors.New("connection refused")
	loader := NewCodex(&stubBackend{err: backendErr})

	_, err := loader.Load(context.Background(), "ws-1", "th-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, backendErr)
}

func TestCodexLoader_Load_EmptyPayload(t *testing.T) {
	loader := NewCodex(&stubBackend{payload: nil})

	_, err := loader.Load(context.Background(), "ws-1", "th-1")

	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestCodexLoader_Load_UnrecognizedItemsSkipped(t *testing.T) {
	loader := NewCodex(&stubBackend{payload: []byte(`{
		"items": [
			{"id": "x1", "item_type": "hologram"},
			{"id": "a1", "item_type": "agent_message", "text": "hi"}
		],
		"turns": [],
		"user_input_requests": [],
		"meta": {"workspace_id": "ws-1", "thread_id": "th-1"}
	}`)})

	snap, err := loader.Load(context.Background(), "ws-1", "th-1")

	require.NoError(t, err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "a1", snap.Items[0].ID)
}
