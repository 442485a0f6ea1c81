// ABOUTME: ConversationState and ConversationMeta, the per-thread read model
// ABOUTME: Value semantics: reducers return new States, collections copy on write

package schema

// Meta is per-thread bookkeeping. HeartbeatPulse and HistoryRestoredAtMs
// are presentation-only: they differ between a realtime-driven and a
// history-driven reconstruction of the same conversation and are
// whitelisted by the parity verifier.
type Meta struct {
	WorkspaceID         string `json:"workspaceId"`
	ThreadID            string `json:"threadId"`
	Engine              Engine `json:"engine"`
	ActiveTurnID        string `json:"activeTurnId,omitempty"`
	IsThinking          bool   `json:"isThinking"`
	HeartbeatPulse      int64  `json:"heartbeatPulse"`
	HistoryRestoredAtMs int64  `json:"historyRestoredAtMs,omitempty"`
}

// State is the reconciled conversation for one thread: the unit produced by
// the assembler and compared by the parity verifier.
type State struct {
	Items          []Item             `json:"items"`
	Plan           *TurnPlan          `json:"plan"`
	UserInputQueue []UserInputRequest `json:"userInputQueue"`
	Meta           Meta               `json:"meta"`
}

// NewState returns the empty state a thread starts from at first reference.
func NewState(engine Engine, workspaceID, threadID string) State {
	return State{
		Meta: Meta{
			WorkspaceID: workspaceID,
			ThreadID:    threadID,
			Engine:      engine,
		},
	}
}

// ItemIndex returns the position of the item with the given id, or -1.
func (s State) ItemIndex(id string) int {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return i
		}
	}
	return -1
}

// WithItems returns a copy of s with the given item slice installed.
func (s State) WithItems(items []Item) State {
	out := s
	out.Items = items
	return out
}

// CloneItems returns a fresh copy of the item slice so callers can patch
// one entry without touching the original state.
func (s State) CloneItems() []Item {
	return append([]Item(nil), s.Items...)
}
