// Package hub is the ingest pipeline that turns raw engine notifications
// into broadcastable conversation state.
//
// # Pipeline
//
// Every payload a transport receives lands in Ingest and moves through a
// fixed sequence: heartbeat check, duplicate fingerprint check, adapter
// mapping, turn-boundary handling, session reduction, archive write,
// broadcast. A payload can fall out at any stage without an error; ingest
// treats unmappable and redelivered payloads as normal traffic, not
// failures.
//
// # Two surfaces
//
// The hub serves the realtime surface: conversation state accumulated from
// ingested events. RestoreHistory builds the second surface on demand from
// the engine's own persisted session. A thread that is already live gets a
// structural comparison between the two instead of an overwrite, and any
// non-volatile divergence is archived as a parity report.
//
// # Subscriptions
//
// Subscribe registers interest in one thread and returns a channel of
// updates, each carrying the full reconciled state after a change.
// Publishing never blocks: a subscriber that stops draining loses updates
// rather than stalling ingest.
package hub
