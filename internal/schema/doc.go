// Package schema defines the normalized conversation model shared by every
// engine adapter, history loader, and consumer.
//
// # Overview
//
// Each supported engine (codex, claude, gemini) speaks its own wire format
// for realtime events and for bulk "resume thread" history. The schema
// package is the meeting point: adapters and loaders translate raw payloads
// into these types, and everything downstream (the conversation assembler,
// the session registry, the archive store, the read API) consumes only
// these types. Raw engine shapes never leak past the adapter boundary.
//
// # Conversation items
//
// Item is a tagged union: a Kind plus exactly one non-nil payload pointer.
// Supported kinds:
//
//   - message:   user or assistant text, optional image attachments
//   - reasoning: two independently accumulating channels (summary, content)
//   - diff:      a unified diff
//   - review:    a review pass (started/completed) with its findings text
//   - explore:   an exploration trail (read/search/list/run entries)
//   - tool:      a tool invocation with status, output, and file changes
//
// Item identity is the ID field, unique within one thread's item list. The
// first-appearance position of an ID is preserved on later updates: items
// are upserted in place, never re-appended.
//
// # Events and snapshots
//
// ThreadEvent is one normalized wire occurrence: which thread it belongs
// to, the operation to apply, and the candidate item or delta payload.
// HistorySnapshot is the bulk equivalent: the full item list, plan, and
// pending user-input queue for a thread, plus typed fallback warnings for
// fields the engine's history response omitted.
//
// # State
//
// State is the reconciled read model for one thread: items, the active
// plan, the pending user-input queue, and Meta. It is a value; reducers
// return new States and never splice the collections of an old one.
// Meta.HeartbeatPulse and Meta.HistoryRestoredAtMs are presentation-only
// and excluded from cross-source parity comparison.
package schema
