// Package session tracks every live thread across workspaces and engines.
//
// # Overview
//
// The conversation assembler reconciles one thread at a time; this package
// layers thread lifecycle on top: creation, pending-placeholder merges,
// naming, per-thread items and plans, status flags, and the queue of
// pending user-input requests.
//
// # Registry
//
//	reg := session.NewRegistry(logger)
//	thread := reg.EnsureThread(schema.EngineCodex, "ws-1", "abc-123")
//
// Thread ids are engine-prefixed ("codex:abc-123") so the same backend
// session id can never collide across engines.
//
// # Pending threads
//
// A thread can be created before the backend assigns a real session id. When
// the confirmed id arrives, EnsureThread merges exactly one matching pending
// placeholder into it: the placeholder's items append after the confirmed
// thread's items and the status flags keep the more active value. With more
// than one same-engine placeholder still processing the merge would be a
// guess, so the registry refuses and keeps all threads distinct.
//
// # Item discipline
//
// Items upsert in place like the assembler's, with two session-level
// refinements: assistant messages can advance to fresh segments at turn
// boundaries, and review items use content-based dedup because review state
// transitions are history, not corrections.
//
// # Time
//
// The registry never schedules anything. The one temporal judgment it makes
// is CompletedWithin: whether a thread's last assistant completion landed
// inside a caller-supplied window, which is how independently-timestamped
// signals are correlated.
package session
