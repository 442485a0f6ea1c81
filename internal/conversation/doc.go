// Package conversation reconciles heterogeneous agent event streams into one
// canonical conversation model.
//
// # Overview
//
// Each supported engine emits its own realtime event shapes and its own bulk
// "resume thread" history shape. Adapters and loaders normalize those into
// schema.ThreadEvent and schema.HistorySnapshot; this package turns either
// source into the same schema.State and proves the two paths agree.
//
// # Assembler
//
// The assembler is a pure reducer. Realtime events fold in one at a time:
//
//	state = conversation.AppendEvent(state, event)
//
// and a history snapshot hydrates in one step:
//
//	state = conversation.HydrateHistory(snapshot)
//
// Transitions never mutate their input; every call returns a new state built
// from the old one plus a patch. That keeps states comparable by equality
// and makes replay deterministic.
//
// Items upsert by id: first appearance fixes an item's position, later
// writes replace it in place. Delta operations merge streamed text into the
// item's accumulating field and create the item when it does not exist yet.
//
// # Merge laws
//
// Engines stream text as incremental fragments, as growing cumulative
// snapshots, and sometimes as a full repeat of the message at completion.
// MergeDelta and MergeCompletion are ordered rule lists that reconcile all
// three. Both are total functions: every input pair has a defined output,
// and applying the same completion twice is a no-op.
//
// # Parity
//
// FindStateDiffs structurally compares a realtime-accumulated state against
// a history-hydrated one and reports diverging section names. A short
// whitelist of presentation-only fields (heartbeat pulse, history-restored
// timestamp) never counts as divergence. An empty diff is the contract that
// "replay the events" and "load the history" told the same story.
package conversation
