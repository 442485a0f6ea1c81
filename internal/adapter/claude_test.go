// ABOUTME: Tests for the claude adapter's payload mapping
// ABOUTME: Flat envelope parsing, session id as thread id, item kind translation

package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chorus/internal/schema"
)

func TestClaude_MapEvent_UserMessageStarted(t *testing.T) {
	raw := []byte(`{
		"type": "item/started",
		"workspace_id": "ws-1",
		"session_id": "sess-abc",
		"event_id": "evt-1",
		"timestamp_ms": 1700000000500,
		"item": {"id": "m1", "kind": "message", "role": "user", "text": "fix the flaky test"}
	}`)

	ev := NewClaude().MapEvent(raw)

	require.NotNil(t, ev)
	assert.Equal(t, schema.EngineClaude, ev.Engine)
	assert.Equal(t, "sess-abc", ev.ThreadID, "session id is the thread id")
	assert.Equal(t, schema.OpItemStarted, ev.Op)
	require.NotNil(t, ev.Item)
	assert.Equal(t, schema.RoleUser, ev.Item.Message.Role)
	assert.Equal(t, "fix the flaky test", ev.Item.Message.Text)
}

func TestClaude_MapEvent_TextFieldIsDelta(t *testing.T) {
	raw := []byte(`{
		"type": "agent_message/delta",
		"workspace_id": "ws-1",
		"session_id": "sess-abc",
		"event_id": "m2",
		"text": "Looking at the test now"
	}`)

	ev := NewClaude().MapEvent(raw)

	require.NotNil(t, ev)
	assert.Equal(t, schema.OpAppendAgentMessageDelta, ev.Op)
	assert.Equal(t, "Looking at the test now", ev.Delta)
	assert.Equal(t, schema.ItemKindMessage, ev.ItemKind)
}

func TestClaude_MapEvent_ThinkingItem(t *testing.T) {
	raw := []byte(`{
		"type": "item/updated",
		"workspace_id": "ws-1",
		"session_id": "sess-abc",
		"item": {"id": "r1", "kind": "thinking", "thinking_summary": "Tracing the race", "thinking": "The channel closes before"}
	}`)

	ev := NewClaude().MapEvent(raw)

	require.NotNil(t, ev)
	require.NotNil(t, ev.Item.Reasoning)
	assert.Equal(t, "Tracing the race", ev.Item.Reasoning.Summary)
	assert.Equal(t, "The channel closes before", ev.Item.Reasoning.Content)
}

func TestClaude_MapEvent_ToolUseWithFileChanges(t *testing.T) {
	raw := []byte(`{
		"type": "item/completed",
		"workspace_id": "ws-1",
		"session_id": "sess-abc",
		"item": {
			"id": "tool-1",
			"kind": "tool_use",
			"name": "edit",
			"title": "Edit watcher.go",
			"input_preview": "watcher.go:42",
			"status": "completed",
			"duration_ms": 120,
			"file_changes": [{"path": "internal/watcher.go", "added": 5, "removed": 2}]
		}
	}`)

	ev := NewClaude().MapEvent(raw)

	require.NotNil(t, ev)
	tool := ev.Item.Tool
	require.NotNil(t, tool)
	assert.Equal(t, "edit", tool.ToolType)
	assert.Equal(t, "Edit watcher.go", tool.Title)
	assert.Equal(t, "watcher.go:42", tool.Detail)
	assert.Equal(t, schema.ToolCompleted, tool.Status)
	require.Len(t, tool.FileChanges, 1)
	assert.Equal(t, "internal/watcher.go", tool.FileChanges[0].Path)
	assert.Equal(t, 5, tool.FileChanges[0].Added)
	assert.Equal(t, 2, tool.FileChanges[0].Removed)
}

func TestClaude_MapEvent_ExploreItem(t *testing.T) {
	raw := []byte(`{
		"type": "item/updated",
		"workspace_id": "ws-1",
		"session_id": "sess-abc",
		"item": {
			"id": "ex-1",
			"kind": "explore",
			"status": "exploring",
			"entries": [
				{"kind": "read", "label": "internal/watcher.go"},
				{"kind": "search", "label": "close("},
				{"kind": "run", "label": "go test -run TestWatcher"}
			]
		}
	}`)

	ev := NewClaude().MapEvent(raw)

	require.NotNil(t, ev)
	explore := ev.Item.Explore
	require.NotNil(t, explore)
	assert.Equal(t, schema.ExploreExploring, explore.Status)
	require.Len(t, explore.Entries, 3)
	assert.Equal(t, schema.ExploreRead, explore.Entries[0].Kind)
	assert.Equal(t, schema.ExploreSearch, explore.Entries[1].Kind)
	assert.Equal(t, schema.ExploreRun, explore.Entries[2].Kind)
}

func TestClaude_MapEvent_DropsHeartbeat(t *testing.T) {
	raw := []byte(`{"type": "session/pulse", "workspace_id": "ws-1", "session_id": "sess-abc"}`)

	a := NewClaude()
	assert.Nil(t, a.MapEvent(raw))
	assert.True(t, a.IsHeartbeat(raw))
}

func TestClaude_MapEvent_DropsMissingSession(t *testing.T) {
	raw := []byte(`{"type": "agent_message/delta", "workspace_id": "ws-1", "text": "x"}`)

	assert.Nil(t, NewClaude().MapEvent(raw))
}
