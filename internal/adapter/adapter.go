// ABOUTME: The Adapter contract and the per-engine registry
// ABOUTME: Raw payloads in, normalized events or nil out - nil is a drop, not an error

package adapter

import (
	"encoding/json"

	"github.com/2389/chorus/internal/schema"
)

// Adapter converts one engine's raw wire payloads into normalized events.
// Implementations are stateless and safe for concurrent use.
type Adapter interface {
	// Engine identifies which backend this adapter speaks for.
	Engine() schema.Engine

	// MapEvent returns the normalized event for a raw payload, or nil when
	// the payload is unrecognized, missing required fields, or
	// presentation-only. A nil return drops the payload silently.
	MapEvent(raw json.RawMessage) *schema.ThreadEvent

	// IsHeartbeat reports whether the payload is a liveness pulse. Pulses
	// always map to nil; this is how the caller tells a pulse apart from a
	// genuinely unrecognized payload.
	IsHeartbeat(raw json.RawMessage) bool

	// MapItem translates one raw engine item payload into the normalized
	// item, or nil when the payload is unrecognized. Engines serialize
	// items the same way in realtime events and in resume responses, so
	// history loaders share this translation.
	MapItem(raw json.RawMessage) *schema.Item
}

// ForEngine returns the adapter for a supported engine.
func ForEngine(engine schema.Engine) (Adapter, bool) {
	switch engine {
	case schema.EngineCodex:
		return NewCodex(), true
	case schema.EngineClaude:
		return NewClaude(), true
	case schema.EngineGemini:
		return NewGemini(), true
	}
	return nil, false
}

// All returns one adapter per supported engine, in stable order.
func All() []Adapter {
	return []Adapter{NewCodex(), NewClaude(), NewGemini()}
}
