// Package history resolves a thread's persisted session storage into a
// normalized snapshot.
//
// # Overview
//
// Each engine stores sessions in its own backend with its own resume
// response shape. One loader per engine fetches the raw response through an
// injected SessionBackend and produces schema.HistorySnapshot - the same
// target shape the realtime path reaches after replaying the equivalent
// events. That equivalence is what the parity verifier checks.
//
// # Degradation
//
// Loads degrade instead of failing. A missing optional section (items,
// plan, user input queue, meta) substitutes a safe default and records a
// typed FallbackWarning on the snapshot. The only hard errors are transport
// ones: the backend could not be reached or returned something unparseable.
//
// # Extraction rules
//
// Plan extraction scans turns from most recent to oldest and takes the
// first non-empty plan; turns without steps or explanation are skipped.
// User-input requests merge from the thread level and from each turn,
// deduplicated by (workspace id, request id); a request that omits its turn
// id inherits it from the owning turn.
package history
