// ABOUTME: Shared wire-method dictionary mapping engine verbs to operations
// ABOUTME: One vocabulary for all engines keeps the adapters behaviorally aligned

package adapter

import "github.com/2389/chorus/internal/schema"

// operationByMethod is the wire vocabulary every engine adapter resolves
// against. Engines spell their envelopes differently but agree on verbs.
var operationByMethod = map[string]schema.Operation{
	"item/started":   schema.OpItemStarted,
	"item/updated":   schema.OpItemUpdated,
	"item/completed": schema.OpItemCompleted,

	"agent_message/delta":    schema.OpAppendAgentMessageDelta,
	"agent_message/complete": schema.OpCompleteAgentMessage,

	"reasoning/summary_delta":    schema.OpAppendReasoningSummaryDelta,
	"reasoning/summary_boundary": schema.OpAppendReasoningSummaryBoundary,
	"reasoning/content_delta":    schema.OpAppendReasoningContentDelta,

	"tool/output_delta": schema.OpAppendToolOutputDelta,
}

// methodGenericTextDelta is the engine-agnostic text notification some
// engines emit instead of agent_message/delta. Mapping it is opt-in per
// adapter because for other engines the same verb is ambient output that
// must not create message items.
const methodGenericTextDelta = "text/delta"

// heartbeatMethods are liveness pulses. They are dropped unconditionally
// for every engine and surface only through IsHeartbeat.
//
// Precondition on future engines: an engine must not reuse these verbs for
// notifications that carry conversation content. Today only one engine
// emits them during normal processing; an engine that overloads the names
// would have its content silently discarded and needs its own mapping
// before it can be wired in.
var heartbeatMethods = map[string]bool{
	"session/heartbeat": true,
	"session/pulse":     true,
}

// lookupOperation resolves a wire method, honoring the generic text alias
// when the adapter opted in.
func lookupOperation(method string, genericTextDelta bool) (schema.Operation, bool) {
	if genericTextDelta && method == methodGenericTextDelta {
		return schema.OpAppendAgentMessageDelta, true
	}
	op, ok := operationByMethod[method]
	return op, ok
}

// isUpsertOp reports whether the operation carries a full item snapshot.
func isUpsertOp(op schema.Operation) bool {
	switch op {
	case schema.OpItemStarted, schema.OpItemUpdated, schema.OpItemCompleted:
		return true
	}
	return false
}

// kindForOperation infers the item kind a delta operation targets. Upsert
// operations carry the kind on the item itself.
func kindForOperation(op schema.Operation) schema.ItemKind {
	switch op {
	case schema.OpAppendAgentMessageDelta, schema.OpCompleteAgentMessage:
		return schema.ItemKindMessage
	case schema.OpAppendReasoningSummaryDelta, schema.OpAppendReasoningSummaryBoundary, schema.OpAppendReasoningContentDelta:
		return schema.ItemKindReasoning
	case schema.OpAppendToolOutputDelta:
		return schema.ItemKindTool
	}
	return ""
}
