// ABOUTME: Gemini adapter - camelCase envelopes with a nested event object
// ABOUTME: Opts into the generic text/delta alias; gemini never sends agent_message/delta

package adapter

import (
	"encoding/json"

	"github.com/2389/chorus/internal/schema"
)

// Gemini maps gemini CLI notifications to normalized events.
type Gemini struct {
	// genericTextDelta aliases text/delta to the agent-message delta
	// operation. Always on for gemini; kept as a field so tests can pin
	// the opt-in behavior.
	genericTextDelta bool
}

// NewGemini returns the gemini adapter with the generic text alias enabled.
func NewGemini() *Gemini {
	return &Gemini{genericTextDelta: true}
}

func (*Gemini) Engine() schema.Engine {
	return schema.EngineGemini
}

type geminiEnvelope struct {
	Method string       `json:"method"`
	Event  *geminiEvent `json:"event"`
}

type geminiEvent struct {
	WorkspaceID string       `json:"workspaceId"`
	ThreadID    string       `json:"threadId"`
	EventID     string       `json:"eventId"`
	TurnID      string       `json:"turnId"`
	TimestampMs int64        `json:"timestampMs"`
	Delta       string       `json:"delta"`
	Item        *geminiItem  `json:"item"`
	Usage       *geminiUsage `json:"usage"`
}

type geminiItem struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`

	// userMessage / agentMessage
	Role   string   `json:"role"`
	Text   string   `json:"text"`
	Images []string `json:"images"`

	// thought
	Summary string `json:"summary"`
	Content string `json:"content"`

	// codeDiff
	Patch string `json:"patch"`

	// review
	State string `json:"state"`

	// toolCall
	ToolType    string             `json:"toolType"`
	Title       string             `json:"title"`
	Detail      string             `json:"detail"`
	Status      string             `json:"status"`
	Output      string             `json:"output"`
	DurationMs  int64              `json:"durationMs"`
	FileChanges []geminiFileChange `json:"fileChanges"`
}

type geminiFileChange struct {
	Path    string `json:"path"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

type geminiUsage struct {
	PromptTokens    int64 `json:"promptTokens"`
	CandidateTokens int64 `json:"candidateTokens"`
	CachedTokens    int64 `json:"cachedTokens"`
	ThoughtsTokens  int64 `json:"thoughtsTokens"`
}

func (a *Gemini) MapEvent(raw json.RawMessage) *schema.ThreadEvent {
	var env geminiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	if heartbeatMethods[env.Method] {
		return nil
	}
	op, ok := lookupOperation(env.Method, a.genericTextDelta)
	if !ok {
		return nil
	}
	e := env.Event
	if e == nil || e.WorkspaceID == "" || e.ThreadID == "" {
		return nil
	}

	ev := &schema.ThreadEvent{
		Engine:      schema.EngineGemini,
		WorkspaceID: e.WorkspaceID,
		ThreadID:    e.ThreadID,
		EventID:     e.EventID,
		TimestampMs: e.TimestampMs,
		Op:          op,
		Delta:       e.Delta,
		Raw:         raw,
		TurnID:      e.TurnID,
	}
	if e.Item != nil {
		ev.Item = a.mapItem(e.Item)
	}
	if ev.Item != nil {
		ev.ItemKind = ev.Item.Kind
	} else {
		if isUpsertOp(op) {
			return nil
		}
		ev.ItemKind = kindForOperation(op)
	}
	if e.Usage != nil {
		ev.Usage = &schema.TokenUsage{
			Input:     e.Usage.PromptTokens,
			Output:    e.Usage.CandidateTokens,
			CacheRead: e.Usage.CachedTokens,
			Reasoning: e.Usage.ThoughtsTokens,
		}
	}
	return ev
}

func (*Gemini) IsHeartbeat(raw json.RawMessage) bool {
	var env geminiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}
	return heartbeatMethods[env.Method]
}

func (a *Gemini) MapItem(raw json.RawMessage) *schema.Item {
	var gi geminiItem
	if err := json.Unmarshal(raw, &gi); err != nil {
		return nil
	}
	return a.mapItem(&gi)
}

func (a *Gemini) mapItem(gi *geminiItem) *schema.Item {
	switch gi.Kind {
	case "userMessage", "agentMessage":
		role := schema.RoleAssistant
		if gi.Kind == "userMessage" {
			role = schema.RoleUser
		}
		return &schema.Item{
			ID:      gi.ID,
			Kind:    schema.ItemKindMessage,
			Message: &schema.MessageItem{Role: role, Text: gi.Text, Images: gi.Images},
		}
	case "thought":
		return &schema.Item{
			ID:        gi.ID,
			Kind:      schema.ItemKindReasoning,
			Reasoning: &schema.ReasoningItem{Summary: gi.Summary, Content: gi.Content},
		}
	case "codeDiff":
		return &schema.Item{
			ID:   gi.ID,
			Kind: schema.ItemKindDiff,
			Diff: &schema.DiffItem{Patch: gi.Patch},
		}
	case "review":
		state := schema.ReviewStarted
		if gi.State == "completed" {
			state = schema.ReviewCompleted
		}
		return &schema.Item{
			ID:     gi.ID,
			Kind:   schema.ItemKindReview,
			Review: &schema.ReviewItem{State: state, Text: gi.Text},
		}
	case "toolCall":
		changes := make([]schema.FileChange, 0, len(gi.FileChanges))
		for _, c := range gi.FileChanges {
			changes = append(changes, schema.FileChange{Path: c.Path, Added: c.Added, Removed: c.Removed})
		}
		if len(changes) == 0 {
			changes = nil
		}
		return &schema.Item{
			ID:   gi.ID,
			Kind: schema.ItemKindTool,
			Tool: &schema.ToolItem{
				ToolType:    gi.ToolType,
				Title:       gi.Title,
				Detail:      gi.Detail,
				Status:      geminiToolStatus(gi.Status),
				Output:      gi.Output,
				DurationMs:  gi.DurationMs,
				FileChanges: changes,
			},
		}
	}
	return nil
}

func geminiToolStatus(s string) schema.ToolStatus {
	switch s {
	case "executing":
		return schema.ToolRunning
	case "succeeded":
		return schema.ToolCompleted
	case "failed":
		return schema.ToolFailed
	}
	return ""
}
