// ABOUTME: Tests for the codex adapter's payload mapping
// ABOUTME: Required-field drops, heartbeat drops, item and usage translation

package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chorus/internal/schema"
)

func TestCodex_MapEvent_AgentMessageDelta(t *testing.T) {
	raw := []byte(`{
		"method": "agent_message/delta",
		"params": {
			"workspace_id": "ws-1",
			"thread_id": "th-1",
			"event_id": "msg-1",
			"turn_id": "turn-1",
			"ts_ms": 1700000000000,
			"delta": "Hello "
		}
	}`)

	ev := NewCodex().MapEvent(raw)

	require.NotNil(t, ev)
	assert.Equal(t, schema.EngineCodex, ev.Engine)
	assert.Equal(t, "ws-1", ev.WorkspaceID)
	assert.Equal(t, "th-1", ev.ThreadID)
	assert.Equal(t, "msg-1", ev.EventID)
	assert.Equal(t, "turn-1", ev.TurnID)
	assert.Equal(t, schema.OpAppendAgentMessageDelta, ev.Op)
	assert.Equal(t, "Hello ", ev.Delta)
	assert.Equal(t, schema.ItemKindMessage, ev.ItemKind)
	assert.JSONEq(t, string(raw), string(ev.Raw), "raw payload preserved for audit")
}

func TestCodex_MapEvent_CommandExecutionItem(t *testing.T) {
	raw := []byte(`{
		"method": "item/completed",
		"params": {
			"workspace_id": "ws-1",
			"thread_id": "th-1",
			"event_id": "evt-9",
			"item": {
				"id": "call-1",
				"item_type": "command_execution",
				"command": "go test ./...",
				"aggregated_output": "ok\n",
				"status": "completed",
				"duration_ms": 840
			}
		}
	}`)

	ev := NewCodex().MapEvent(raw)

	require.NotNil(t, ev)
	assert.Equal(t, schema.OpItemCompleted, ev.Op)
	require.NotNil(t, ev.Item)
	assert.Equal(t, "call-1", ev.Item.ID)
	require.NotNil(t, ev.Item.Tool)
	assert.Equal(t, "command", ev.Item.Tool.ToolType)
	assert.Equal(t, "go test ./...", ev.Item.Tool.Title)
	assert.Equal(t, schema.ToolCompleted, ev.Item.Tool.Status)
	assert.Equal(t, int64(840), ev.Item.Tool.DurationMs)
}

func TestCodex_MapEvent_InProgressStatus(t *testing.T) {
	raw := []byte(`{
		"method": "item/started",
		"params": {
			"workspace_id": "ws-1",
			"thread_id": "th-1",
			"item": {"id": "call-2", "item_type": "command_execution", "command": "ls", "status": "in_progress"}
		}
	}`)

	ev := NewCodex().MapEvent(raw)

	require.NotNil(t, ev)
	assert.Equal(t, schema.ToolRunning, ev.Item.Tool.Status)
}

func TestCodex_MapEvent_UsageTranslation(t *testing.T) {
	raw := []byte(`{
		"method": "agent_message/complete",
		"params": {
			"workspace_id": "ws-1",
			"thread_id": "th-1",
			"event_id": "msg-1",
			"delta": "Done.",
			"usage": {"input_tokens": 1200, "output_tokens": 300, "cached_input_tokens": 800, "reasoning_output_tokens": 50}
		}
	}`)

	ev := NewCodex().MapEvent(raw)

	require.NotNil(t, ev)
	require.NotNil(t, ev.Usage)
	assert.Equal(t, int64(1200), ev.Usage.Input)
	assert.Equal(t, int64(300), ev.Usage.Output)
	assert.Equal(t, int64(800), ev.Usage.CacheRead)
	assert.Equal(t, int64(50), ev.Usage.Reasoning)
}

func TestCodex_MapEvent_DropsHeartbeat(t *testing.T) {
	raw := []byte(`{"method": "session/heartbeat", "params": {"workspace_id": "ws-1", "thread_id": "th-1"}}`)

	a := NewCodex()
	assert.Nil(t, a.MapEvent(raw), "heartbeats never become conversation items")
	assert.True(t, a.IsHeartbeat(raw))
}

func TestCodex_MapEvent_DropsMissingRequiredFields(t *testing.T) {
	a := NewCodex()

	tests := []struct {
		name string
		raw  string
	}{
		{"missing workspace", `{"method": "agent_message/delta", "params": {"thread_id": "th-1", "delta": "x"}}`},
		{"missing thread", `{"method": "agent_message/delta", "params": {"workspace_id": "ws-1", "delta": "x"}}`},
		{"missing params", `{"method": "agent_message/delta"}`},
		{"unknown method", `{"method": "turn/archived", "params": {"workspace_id": "ws-1", "thread_id": "th-1"}}`},
		{"malformed json", `{"method": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, a.MapEvent([]byte(tt.raw)))
		})
	}
}

func TestCodex_MapEvent_DropsGenericTextDelta(t *testing.T) {
	// text/delta is an alias only for engines that opt in; codex does not.
	raw := []byte(`{"method": "text/delta", "params": {"workspace_id": "ws-1", "thread_id": "th-1", "delta": "x"}}`)

	assert.Nil(t, NewCodex().MapEvent(raw))
}

func TestCodex_MapEvent_DropsUntranslatableItemSnapshot(t *testing.T) {
	raw := []byte(`{
		"method": "item/started",
		"params": {
			"workspace_id": "ws-1",
			"thread_id": "th-1",
			"item": {"id": "x-1", "item_type": "hologram"}
		}
	}`)

	assert.Nil(t, NewCodex().MapEvent(raw))
}

func TestCodex_IsHeartbeat_FalseForContent(t *testing.T) {
	raw := []byte(`{"method": "agent_message/delta", "params": {"workspace_id": "ws-1", "thread_id": "th-1", "delta": "x"}}`)

	assert.False(t, NewCodex().IsHeartbeat(raw))
}
