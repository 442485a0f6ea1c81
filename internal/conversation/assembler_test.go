// ABOUTME: Tests for the conversation assembler reducer
// ABOUTME: Covers upsert discipline, delta accumulation, completion idempotence, hydration

package conversation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chorus/internal/schema"
)

func newTestState() schema.State {
	return schema.NewState(schema.EngineCodex, "ws-1", "thread-1")
}

func messageItem(id, text string, role schema.Role) *schema.Item {
	return &schema.Item{
		ID:      id,
		Kind:    schema.ItemKindMessage,
		Message: &schema.MessageItem{Role: role, Text: text},
	}
}

func toolItem(id, title string, status schema.ToolStatus) *schema.Item {
	return &schema.Item{
		ID:   id,
		Kind: schema.ItemKindTool,
		Tool: &schema.ToolItem{ToolType: "shell", Title: title, Status: status},
	}
}

func TestAppendEvent_ItemStarted_Appends(t *testing.T) {
	state := newTestState()

	state = AppendEvent(state, schema.ThreadEvent{
		Op:   schema.OpItemStarted,
		Item: messageItem("m1", "hi", schema.RoleUser),
	})

	require.Len(t, state.Items, 1)
	assert.Equal(t, "m1", state.Items[0].ID)
	assert.Equal(t, "hi", state.Items[0].Message.Text)
	assert.True(t, state.Meta.IsThinking)
}

func TestAppendEvent_ItemUpdated_ReplacesInPlace(t *testing.T) {
	state := newTestState()
	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpItemStarted, Item: toolItem("t1", "ls", schema.ToolRunning)})
	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpItemStarted, Item: messageItem("m1", "hi", schema.RoleUser)})

	// Updating t1 must keep its first-appearance position.
	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpItemUpdated, Item: toolItem("t1", "ls -la", schema.ToolRunning)})

	require.Len(t, state.Items, 2)
	assert.Equal(t, "t1", state.Items[0].ID)
	assert.Equal(t, "ls -la", state.Items[0].Tool.Title)
	assert.Equal(t, "m1", state.Items[1].ID)
}

func TestAppendEvent_DoesNotMutateInput(t *testing.T) {
	state := newTestState()
	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpItemStarted, Item: messageItem("m1", "before", schema.RoleAssistant)})

	snapshot := state
	_ = AppendEvent(state, schema.ThreadEvent{
		Op:      schema.OpAppendAgentMessageDelta,
		EventID: "m1",
		Delta:   " after",
	})

	if diff := cmp.Diff(snapshot, state); diff != "" {
		t.Errorf("input state mutated by AppendEvent (-before +after):\n%s", diff)
	}
	assert.Equal(t, "before", state.Items[0].Message.Text)
}

func TestAppendEvent_MessageDelta_CreatesAssistantMessage(t *testing.T) {
	state := newTestState()

	state = AppendEvent(state, schema.ThreadEvent{
		Op:      schema.OpAppendAgentMessageDelta,
		EventID: "m1",
		Delta:   "Hello ",
	})

	require.Len(t, state.Items, 1)
	assert.Equal(t, schema.ItemKindMessage, state.Items[0].Kind)
	assert.Equal(t, schema.RoleAssistant, state.Items[0].Message.Role)
	assert.Equal(t, "Hello ", state.Items[0].Message.Text)
}

func TestAppendEvent_MessageDelta_Accumulates(t *testing.T) {
	state := newTestState()
	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpAppendAgentMessageDelta, EventID: "m1", Delta: "Hello "})
	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpAppendAgentMessageDelta, EventID: "m1", Delta: "world"})

	require.Len(t, state.Items, 1)
	assert.Equal(t, "Hello world", state.Items[0].Message.Text)
}

func TestAppendEvent_CompleteAgentMessage_Idempotent(t *testing.T) {
	state := newTestState()
	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpAppendAgentMessageDelta, EventID: "m1", Delta: "Hello "})

	complete := schema.ThreadEvent{Op: schema.OpCompleteAgentMessage, EventID: "m1", Delta: "Hello world"}
	once := AppendEvent(state, complete)
	twice := AppendEvent(once, complete)

	assert.Equal(t, "Hello world", once.Items[0].Message.Text)
	if diff := cmp.Diff(once.Items, twice.Items); diff != "" {
		t.Errorf("completion not idempotent (-once +twice):\n%s", diff)
	}
	assert.False(t, once.Meta.IsThinking, "completion clears the thinking flag")
}

func TestAppendEvent_CompleteAgentMessage_DedupesEcho(t *testing.T) {
	state := newTestState()
	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpAppendAgentMessageDelta, EventID: "m1", Delta: "你好，我在。"})

	// Engine repeats the whole message in the completion payload.
	state = AppendEvent(state, schema.ThreadEvent{
		Op:      schema.OpCompleteAgentMessage,
		EventID: "m1",
		Delta:   "你好，我在。 你好，我在。",
	})

	assert.Equal(t, "你好，我在。", state.Items[0].Message.Text)
}

func TestAppendEvent_ToolLifecycle_OnePerID(t *testing.T) {
	state := newTestState()

	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpItemStarted, Item: toolItem("t1", "go test", schema.ToolRunning)})
	for _, chunk := range []string{"ok\n", "pkg one\n", "pkg two\n"} {
		state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpAppendToolOutputDelta, EventID: "t1", Delta: chunk})
	}
	done := toolItem("t1", "go test", schema.ToolCompleted)
	done.Tool.Output = "ok\npkg one\npkg two\n"
	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpItemCompleted, Item: done})

	require.Len(t, state.Items, 1, "one entry per tool id across its lifecycle")
	assert.Equal(t, schema.ToolCompleted, state.Items[0].Tool.Status)
	assert.Equal(t, "ok\npkg one\npkg two\n", state.Items[0].Tool.Output)
}

func TestAppendEvent_ToolOutputDelta_CreatesRunningTool(t *testing.T) {
	state := newTestState()

	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpAppendToolOutputDelta, EventID: "t9", Delta: "partial"})

	require.Len(t, state.Items, 1)
	assert.Equal(t, schema.ItemKindTool, state.Items[0].Kind)
	assert.Equal(t, schema.ToolRunning, state.Items[0].Tool.Status)
	assert.Equal(t, "partial", state.Items[0].Tool.Output)
}

func TestAppendEvent_ReasoningChannels_AccumulateIndependently(t *testing.T) {
	state := newTestState()

	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpAppendReasoningSummaryDelta, EventID: "r1", Delta: "Reading the bug report"})
	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpAppendReasoningContentDelta, EventID: "r1", Delta: "The stack trace points at "})
	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpAppendReasoningContentDelta, EventID: "r1", Delta: "the parser."})

	require.Len(t, state.Items, 1)
	assert.Equal(t, "Reading the bug report", state.Items[0].Reasoning.Summary)
	assert.Equal(t, "The stack trace points at the parser.", state.Items[0].Reasoning.Content)
}

func TestAppendEvent_SummaryBoundary_NoItemMutation(t *testing.T) {
	state := newTestState()
	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpAppendReasoningSummaryDelta, EventID: "r1", Delta: "first burst"})

	before := state.Items
	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpAppendReasoningSummaryBoundary, EventID: "r1"})

	if diff := cmp.Diff(before, state.Items); diff != "" {
		t.Errorf("boundary must not mutate items (-before +after):\n%s", diff)
	}
}

func TestAppendEvent_TurnID_UpdatesActiveTurn(t *testing.T) {
	state := newTestState()

	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpAppendAgentMessageDelta, EventID: "m1", Delta: "a", TurnID: "turn-1"})
	assert.Equal(t, "turn-1", state.Meta.ActiveTurnID)

	// An event without a turn id leaves the active turn unchanged.
	state = AppendEvent(state, schema.ThreadEvent{Op: schema.OpAppendAgentMessageDelta, EventID: "m1", Delta: "b"})
	assert.Equal(t, "turn-1", state.Meta.ActiveTurnID)
}

func TestHydrateHistory_LastWriteWinsPerID(t *testing.T) {
	explanation := "ship the fix"
	snap := schema.HistorySnapshot{
		Engine:      schema.EngineClaude,
		WorkspaceID: "ws-1",
		ThreadID:    "thread-1",
		Items: []schema.Item{
			*messageItem("m1", "draft", schema.RoleAssistant),
			*toolItem("t1", "ls", schema.ToolCompleted),
			*messageItem("m1", "final", schema.RoleAssistant),
		},
		Plan: &schema.TurnPlan{
			TurnID:      "turn-3",
			Explanation: &explanation,
			Steps:       []schema.PlanStep{{Text: "fix", Status: schema.StepCompleted}},
		},
		Meta: schema.Meta{
			WorkspaceID: "ws-1",
			ThreadID:    "thread-1",
			Engine:      schema.EngineClaude,
		},
	}

	state := HydrateHistory(snap)

	require.Len(t, state.Items, 2)
	assert.Equal(t, "m1", state.Items[0].ID)
	assert.Equal(t, "final", state.Items[0].Message.Text, "last write for a given id wins")
	assert.Equal(t, "t1", state.Items[1].ID)
	require.NotNil(t, state.Plan)
	assert.Equal(t, "turn-3", state.Plan.TurnID)
	assert.Equal(t, schema.EngineClaude, state.Meta.Engine)
}

func TestHydrateHistory_IndependentOfSnapshot(t *testing.T) {
	snap := schema.HistorySnapshot{
		Engine:      schema.EngineCodex,
		WorkspaceID: "ws-1",
		ThreadID:    "thread-1",
		Items:       []schema.Item{*messageItem("m1", "hi", schema.RoleUser)},
		Meta:        schema.Meta{WorkspaceID: "ws-1", ThreadID: "thread-1", Engine: schema.EngineCodex},
	}

	state := HydrateHistory(snap)
	state.Items[0].Message.Text = "changed"

	assert.Equal(t, "hi", snap.Items[0].Message.Text, "hydrated state must not alias snapshot items")
}

func TestUpsertItem_PreservesPosition(t *testing.T) {
	items := []schema.Item{
		*messageItem("a", "one", schema.RoleUser),
		*messageItem("b", "two", schema.RoleAssistant),
		*messageItem("c", "three", schema.RoleUser),
	}

	out := UpsertItem(items, *messageItem("b", "two, edited", schema.RoleAssistant))

	require.Len(t, out, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{out[0].ID, out[1].ID, out[2].ID})
	assert.Equal(t, "two, edited", out[1].Message.Text)
	assert.Equal(t, "two", items[1].Message.Text, "input slice untouched")
}
