// Package adapter converts raw engine wire payloads into normalized thread
// events.
//
// # Overview
//
// Each engine speaks its own protocol: different envelope nesting, different
// field spellings, different item vocabularies. One adapter per engine owns
// that engine's raw shape end to end; nothing outside the adapter ever sees
// an engine payload. The adapter's sole output is schema.ThreadEvent.
//
// # Contract
//
// MapEvent(raw) returns the normalized event, or nil. Nil is not an error:
// it means the payload was unrecognized, was missing a required field
// (workspace id, method, thread id), or was a presentation-only signal.
// Callers drop nil events silently.
//
// A shared method dictionary keeps the three adapters behaviorally aligned:
// the same wire verb maps to the same operation everywhere. Engines that
// emit a generic text notification instead of the agent-message-specific one
// opt into the alias at construction.
//
// # Heartbeats
//
// Liveness pulses translate to nil - they must never become conversation
// items. IsHeartbeat exposes them separately so the hub can bump the
// volatile pulse counter. Dropping is unconditional for every engine; see
// the note on heartbeatMethods for the precondition this places on future
// engine wiring.
package adapter
