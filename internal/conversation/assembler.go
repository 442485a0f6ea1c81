// ABOUTME: The conversation assembler - a pure reducer over normalized events
// ABOUTME: Every transition builds a new state from the old one plus a patch

package conversation

import (
	"github.com/2389/chorus/internal/schema"
)

// AppendEvent applies one normalized event to a conversation state and
// returns the resulting state. The input state is never mutated: item
// slices are copied before patching so prior states stay comparable by
// equality in tests.
func AppendEvent(state schema.State, ev schema.ThreadEvent) schema.State {
	next := state
	if ev.TurnID != "" {
		next.Meta.ActiveTurnID = ev.TurnID
	}

	switch ev.Op {
	case schema.OpItemStarted, schema.OpItemUpdated, schema.OpItemCompleted:
		if ev.Item != nil {
			next.Items = UpsertItem(state.Items, *ev.Item)
		}
		switch ev.Op {
		case schema.OpItemStarted:
			next.Meta.IsThinking = true
		case schema.OpItemCompleted:
			next.Meta.IsThinking = false
		}

	case schema.OpAppendAgentMessageDelta:
		next.Items = applyMessageDelta(state.Items, ev.TargetItemID(), ev.Delta)
		next.Meta.IsThinking = true

	case schema.OpCompleteAgentMessage:
		next.Items = applyMessageCompletion(state.Items, ev.TargetItemID(), completionText(ev))
		next.Meta.IsThinking = false

	case schema.OpAppendReasoningSummaryDelta:
		next.Items = applyReasoningDelta(state.Items, ev.TargetItemID(), ev.Delta, false)
		next.Meta.IsThinking = true

	case schema.OpAppendReasoningContentDelta:
		next.Items = applyReasoningDelta(state.Items, ev.TargetItemID(), ev.Delta, true)
		next.Meta.IsThinking = true

	case schema.OpAppendReasoningSummaryBoundary:
		// Structural marker only. The session reducer decides whether it
		// becomes a paragraph break; the assembler records nothing.

	case schema.OpAppendToolOutputDelta:
		next.Items = applyToolOutputDelta(state.Items, ev.TargetItemID(), ev.Delta)
		next.Meta.IsThinking = true
	}

	return next
}

// HydrateHistory builds a conversation state from a history snapshot. Items
// follow the same per-id upsert discipline as the realtime path, so a
// snapshot that lists an id twice resolves to the last write. Plan, queue,
// and meta copy over verbatim.
func HydrateHistory(snap schema.HistorySnapshot) schema.State {
	state := schema.NewState(snap.Engine, snap.WorkspaceID, snap.ThreadID)
	for _, it := range snap.Items {
		state.Items = UpsertItem(state.Items, it)
	}
	state.Plan = snap.Plan.Clone()
	if len(snap.UserInputQueue) > 0 {
		queue := make([]schema.UserInputRequest, 0, len(snap.UserInputQueue))
		for _, req := range snap.UserInputQueue {
			queue = append(queue, req.Clone())
		}
		state.UserInputQueue = queue
	}
	state.Meta = snap.Meta
	return state
}

// UpsertItem places an item into the list by id: replaced in place when
// present, appended when absent. First-appearance position is preserved on
// update. The input slice is not modified.
func UpsertItem(items []schema.Item, item schema.Item) []schema.Item {
	for i := range items {
		if items[i].ID == item.ID {
			out := append([]schema.Item(nil), items...)
			out[i] = item.Clone()
			return out
		}
	}
	out := make([]schema.Item, 0, len(items)+1)
	out = append(out, items...)
	return append(out, item.Clone())
}

// completionText resolves the final message text a completion event carries:
// the delta field when set, otherwise the candidate item's message text.
func completionText(ev schema.ThreadEvent) string {
	if ev.Delta != "" {
		return ev.Delta
	}
	if ev.Item != nil && ev.Item.Message != nil {
		return ev.Item.Message.Text
	}
	return ""
}

func applyMessageDelta(items []schema.Item, id, delta string) []schema.Item {
	idx := indexOf(items, id)
	if idx < 0 {
		return append(snapshotItems(items), schema.Item{
			ID:      id,
			Kind:    schema.ItemKindMessage,
			Message: &schema.MessageItem{Role: schema.RoleAssistant, Text: delta},
		})
	}
	if items[idx].Message == nil {
		return items
	}
	out := snapshotItems(items)
	patched := out[idx].Clone()
	patched.Message.Text = MergeDelta(patched.Message.Text, delta)
	out[idx] = patched
	return out
}

func applyMessageCompletion(items []schema.Item, id, final string) []schema.Item {
	idx := indexOf(items, id)
	if idx < 0 {
		return append(snapshotItems(items), schema.Item{
			ID:      id,
			Kind:    schema.ItemKindMessage,
			Message: &schema.MessageItem{Role: schema.RoleAssistant, Text: final},
		})
	}
	if items[idx].Message == nil {
		return items
	}
	out := snapshotItems(items)
	patched := out[idx].Clone()
	patched.Message.Text = MergeCompletion(patched.Message.Text, final)
	out[idx] = patched
	return out
}

func applyReasoningDelta(items []schema.Item, id, delta string, content bool) []schema.Item {
	idx := indexOf(items, id)
	if idx < 0 {
		reasoning := &schema.ReasoningItem{}
		if content {
			reasoning.Content = delta
		} else {
			reasoning.Summary = delta
		}
		return append(snapshotItems(items), schema.Item{
			ID:        id,
			Kind:      schema.ItemKindReasoning,
			Reasoning: reasoning,
		})
	}
	if items[idx].Reasoning == nil {
		return items
	}
	out := snapshotItems(items)
	patched := out[idx].Clone()
	if content {
		patched.Reasoning.Content = MergeDelta(patched.Reasoning.Content, delta)
	} else {
		patched.Reasoning.Summary = MergeDelta(patched.Reasoning.Summary, delta)
	}
	out[idx] = patched
	return out
}

func applyToolOutputDelta(items []schema.Item, id, delta string) []schema.Item {
	idx := indexOf(items, id)
	if idx < 0 {
		return append(snapshotItems(items), schema.Item{
			ID:   id,
			Kind: schema.ItemKindTool,
			Tool: &schema.ToolItem{Status: schema.ToolRunning, Output: delta},
		})
	}
	if items[idx].Tool == nil {
		return items
	}
	out := snapshotItems(items)
	patched := out[idx].Clone()
	patched.Tool.Output = MergeDelta(patched.Tool.Output, delta)
	out[idx] = patched
	return out
}

func indexOf(items []schema.Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func snapshotItems(items []schema.Item) []schema.Item {
	return append([]schema.Item(nil), items...)
}
