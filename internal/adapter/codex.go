// ABOUTME: Codex adapter - JSON-RPC style notifications with snake_case params
// ABOUTME: Owns the codex raw shape; nothing past MapEvent ever sees it

package adapter

import (
	"encoding/json"

	"github.com/2389/chorus/internal/schema"
)

// Codex maps codex app-server notifications to normalized events.
type Codex struct{}

// NewCodex returns the codex adapter.
func NewCodex() *Codex {
	return &Codex{}
}

func (*Codex) Engine() schema.Engine {
	return schema.EngineCodex
}

type codexEnvelope struct {
	Method string       `json:"method"`
	Params *codexParams `json:"params"`
}

type codexParams struct {
	WorkspaceID string      `json:"workspace_id"`
	ThreadID    string      `json:"thread_id"`
	EventID     string      `json:"event_id"`
	TurnID      string      `json:"turn_id"`
	TimestampMs int64       `json:"ts_ms"`
	Delta       string      `json:"delta"`
	Item        *codexItem  `json:"item"`
	Usage       *codexUsage `json:"usage"`
}

// codexItem is the union codex spells items in. item_type selects which
// fields are meaningful.
type codexItem struct {
	ID       string `json:"id"`
	ItemType string `json:"item_type"`

	// user_message / agent_message
	Text   string   `json:"text"`
	Images []string `json:"images"`

	// reasoning
	Summary string `json:"summary"`
	Content string `json:"content"`

	// diff
	Patch string `json:"patch"`

	// review
	State string `json:"state"`

	// command_execution / patch_apply / web_search
	Command          string            `json:"command"`
	AggregatedOutput string            `json:"aggregated_output"`
	Status           string            `json:"status"`
	DurationMs       int64             `json:"duration_ms"`
	Changes          []codexFileChange `json:"changes"`
	Query            string            `json:"query"`
}

type codexFileChange struct {
	Path    string `json:"path"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

type codexUsage struct {
	InputTokens           int64 `json:"input_tokens"`
	OutputTokens          int64 `json:"output_tokens"`
	CachedInputTokens     int64 `json:"cached_input_tokens"`
	ReasoningOutputTokens int64 `json:"reasoning_output_tokens"`
}

func (a *Codex) MapEvent(raw json.RawMessage) *schema.ThreadEvent {
	var env codexEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	if heartbeatMethods[env.Method] {
		return nil
	}
	op, ok := lookupOperation(env.Method, false)
	if !ok {
		return nil
	}
	p := env.Params
	if p == nil || p.WorkspaceID == "" || p.ThreadID == "" {
		return nil
	}

	ev := &schema.ThreadEvent{
		Engine:      schema.EngineCodex,
		WorkspaceID: p.WorkspaceID,
		ThreadID:    p.ThreadID,
		EventID:     p.EventID,
		TimestampMs: p.TimestampMs,
		Op:          op,
		Delta:       p.Delta,
		Raw:         raw,
		TurnID:      p.TurnID,
	}
	if p.Item != nil {
		ev.Item = a.mapItem(p.Item)
	}
	if ev.Item != nil {
		ev.ItemKind = ev.Item.Kind
	} else {
		if isUpsertOp(op) {
			// An item snapshot we cannot translate carries nothing usable.
			return nil
		}
		ev.ItemKind = kindForOperation(op)
	}
	if p.Usage != nil {
		ev.Usage = &schema.TokenUsage{
			Input:     p.Usage.InputTokens,
			Output:    p.Usage.OutputTokens,
			CacheRead: p.Usage.CachedInputTokens,
			Reasoning: p.Usage.ReasoningOutputTokens,
		}
	}
	return ev
}

func (*Codex) IsHeartbeat(raw json.RawMessage) bool {
	var env codexEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}
	return heartbeatMethods[env.Method]
}

func (a *Codex) MapItem(raw json.RawMessage) *schema.Item {
	var ci codexItem
	if err := json.Unmarshal(raw, &ci); err != nil {
		return nil
	}
	return a.mapItem(&ci)
}

func (a *Codex) mapItem(ci *codexItem) *schema.Item {
	switch ci.ItemType {
	case "user_message", "agent_message":
		role := schema.RoleAssistant
		if ci.ItemType == "user_message" {
			role = schema.RoleUser
		}
		return &schema.Item{
			ID:      ci.ID,
			Kind:    schema.ItemKindMessage,
			Message: &schema.MessageItem{Role: role, Text: ci.Text, Images: ci.Images},
		}
	case "reasoning":
		return &schema.Item{
			ID:        ci.ID,
			Kind:      schema.ItemKindReasoning,
			Reasoning: &schema.ReasoningItem{Summary: ci.Summary, Content: ci.Content},
		}
	case "diff":
		return &schema.Item{
			ID:   ci.ID,
			Kind: schema.ItemKindDiff,
			Diff: &schema.DiffItem{Patch: ci.Patch},
		}
	case "review":
		return &schema.Item{
			ID:     ci.ID,
			Kind:   schema.ItemKindReview,
			Review: &schema.ReviewItem{State: codexReviewState(ci.State), Text: ci.Text},
		}
	case "command_execution":
		return &schema.Item{
			ID:   ci.ID,
			Kind: schema.ItemKindTool,
			Tool: &schema.ToolItem{
				ToolType:   "command",
				Title:      ci.Command,
				Status:     codexToolStatus(ci.Status),
				Output:     ci.AggregatedOutput,
				DurationMs: ci.DurationMs,
			},
		}
	case "patch_apply":
		changes := make([]schema.FileChange, 0, len(ci.Changes))
		for _, c := range ci.Changes {
			changes = append(changes, schema.FileChange{Path: c.Path, Added: c.Added, Removed: c.Removed})
		}
		return &schema.Item{
			ID:   ci.ID,
			Kind: schema.ItemKindTool,
			Tool: &schema.ToolItem{
				ToolType:    "patch",
				Title:       "apply patch",
				Status:      codexToolStatus(ci.Status),
				FileChanges: changes,
			},
		}
	case "web_search":
		return &schema.Item{
			ID:   ci.ID,
			Kind: schema.ItemKindTool,
			Tool: &schema.ToolItem{ToolType: "webSearch", Title: ci.Query, Status: codexToolStatus(ci.Status)},
		}
	}
	return nil
}

func codexToolStatus(s string) schema.ToolStatus {
	switch s {
	case "in_progress":
		return schema.ToolRunning
	case "completed":
		return schema.ToolCompleted
	case "failed":
		return schema.ToolFailed
	}
	return ""
}

func codexReviewState(s string) schema.ReviewState {
	if s == "completed" {
		return schema.ReviewCompleted
	}
	return schema.ReviewStarted
}
