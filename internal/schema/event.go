// ABOUTME: Normalized realtime event shape and the operation vocabulary
// ABOUTME: Produced by engine adapters, consumed by the conversation assembler

package schema

import "encoding/json"

// Engine identifies one of the supported coding-agent backends.
type Engine string

const (
	EngineCodex  Engine = "codex"
	EngineClaude Engine = "claude"
	EngineGemini Engine = "gemini"
)

// Valid reports whether e is a supported engine.
func (e Engine) Valid() bool {
	switch e {
	case EngineCodex, EngineClaude, EngineGemini:
		return true
	}
	return false
}

// Engines lists the supported engines in stable order.
func Engines() []Engine {
	return []Engine{EngineCodex, EngineClaude, EngineGemini}
}

// Operation is the normalized verb the assembler applies for one event.
type Operation string

const (
	OpItemStarted   Operation = "itemStarted"
	OpItemUpdated   Operation = "itemUpdated"
	OpItemCompleted Operation = "itemCompleted"

	OpAppendAgentMessageDelta Operation = "appendAgentMessageDelta"
	OpCompleteAgentMessage    Operation = "completeAgentMessage"

	OpAppendReasoningSummaryDelta    Operation = "appendReasoningSummaryDelta"
	OpAppendReasoningSummaryBoundary Operation = "appendReasoningSummaryBoundary"
	OpAppendReasoningContentDelta    Operation = "appendReasoningContentDelta"

	OpAppendToolOutputDelta Operation = "appendToolOutputDelta"
)

// TokenUsage is raw token accounting attached to an event by the engine.
type TokenUsage struct {
	Input      int64 `json:"input"`
	Output     int64 `json:"output"`
	CacheRead  int64 `json:"cacheRead,omitempty"`
	CacheWrite int64 `json:"cacheWrite,omitempty"`
	Reasoning  int64 `json:"reasoning,omitempty"`
}

// ThreadEvent is one normalized wire occurrence. Instances are transient:
// produced by an adapter, applied by the assembler, then discarded.
type ThreadEvent struct {
	Engine      Engine   `json:"engine"`
	WorkspaceID string   `json:"workspaceId"`
	ThreadID    string   `json:"threadId"`
	EventID     string   `json:"eventId,omitempty"`
	ItemKind    ItemKind `json:"itemKind,omitempty"`
	TimestampMs int64    `json:"timestampMs,omitempty"`

	Op    Operation `json:"op"`
	Item  *Item     `json:"item,omitempty"`
	Delta string    `json:"delta,omitempty"`

	// Raw preserves the engine payload for audit; never interpreted
	// downstream of the adapter.
	Raw   json.RawMessage `json:"raw,omitempty"`
	Usage *TokenUsage     `json:"usage,omitempty"`

	TurnID string `json:"turnId,omitempty"`
}

// TargetItemID returns the id of the item this event mutates: the candidate
// item's id when a payload is attached, otherwise the event id. Delta events
// carry no item payload, so their event id doubles as the item id.
func (ev ThreadEvent) TargetItemID() string {
	if ev.Item != nil && ev.Item.ID != "" {
		return ev.Item.ID
	}
	return ev.EventID
}
