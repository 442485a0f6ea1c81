// ABOUTME: Pending user-input request shapes shared with approval consumers
// ABOUTME: Requests are deduplicated by (workspaceId, requestId) across sources

package schema

// UserInputOption is one multiple-choice answer.
type UserInputOption struct {
	Label string `json:"label"`
	Value string `json:"value,omitempty"`
}

// UserInputQuestion is one question inside a request.
type UserInputQuestion struct {
	Header   string            `json:"header"`
	Prompt   string            `json:"prompt"`
	Secret   bool              `json:"secret,omitempty"`
	FreeForm bool              `json:"freeForm,omitempty"`
	Options  []UserInputOption `json:"options,omitempty"`
}

// UserInputParams addresses a request to a thread/turn/item.
type UserInputParams struct {
	ThreadID  string              `json:"threadId"`
	TurnID    string              `json:"turnId,omitempty"`
	ItemID    string              `json:"itemId,omitempty"`
	Questions []UserInputQuestion `json:"questions"`
}

// UserInputRequest is an engine's request for user input, surfaced to the
// approval UI collaborator.
type UserInputRequest struct {
	WorkspaceID string          `json:"workspaceId"`
	RequestID   string          `json:"requestId"`
	Params      UserInputParams `json:"params"`
}

// Key is the dedup identity for a request: the same request reported at the
// thread level and inside its owning turn must collapse to one entry.
func (r UserInputRequest) Key() string {
	return r.WorkspaceID + "/" + r.RequestID
}

// Clone returns a deep copy of the request.
func (r UserInputRequest) Clone() UserInputRequest {
	out := r
	if r.Params.Questions != nil {
		out.Params.Questions = make([]UserInputQuestion, len(r.Params.Questions))
		for i, q := range r.Params.Questions {
			cq := q
			cq.Options = append([]UserInputOption(nil), q.Options...)
			out.Params.Questions[i] = cq
		}
	}
	return out
}
