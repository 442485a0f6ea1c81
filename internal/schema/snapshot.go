// ABOUTME: HistorySnapshot, the output of history loaders, plus fallback warnings
// ABOUTME: Warnings record what a loader could not recover rather than failing the load

package schema

// FallbackField names a snapshot section a history loader had to leave empty.
type FallbackField string

const (
	FallbackMissingItems          FallbackField = "missing_items"
	FallbackMissingPlan           FallbackField = "missing_plan"
	FallbackMissingUserInputQueue FallbackField = "missing_user_input_queue"
	FallbackMissingMeta           FallbackField = "missing_meta"
)

// FallbackWarning records a section a loader populated with a fallback
// value instead of real data. Loads degrade, they do not fail.
type FallbackWarning struct {
	Field  FallbackField `json:"field"`
	Detail string        `json:"detail"`
}

// HistorySnapshot is a point-in-time conversation reconstruction read from
// an engine's persisted session storage. The assembler hydrates a State
// from it; the parity verifier compares that State against the one
// accumulated from realtime events.
type HistorySnapshot struct {
	Engine         Engine             `json:"engine"`
	WorkspaceID    string             `json:"workspaceId"`
	ThreadID       string             `json:"threadId"`
	Items          []Item             `json:"items"`
	Plan           *TurnPlan          `json:"plan"`
	UserInputQueue []UserInputRequest `json:"userInputQueue"`
	Meta           Meta               `json:"meta"`
	Warnings       []FallbackWarning  `json:"warnings,omitempty"`
}
