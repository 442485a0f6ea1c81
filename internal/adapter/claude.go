// ABOUTME: Claude adapter - flat stream-json envelopes, type field as the verb
// ABOUTME: Owns the claude raw shape; nothing past MapEvent ever sees it

package adapter

import (
	"encoding/json"

	"github.com/2389/chorus/internal/schema"
)

// Claude maps claude stream-json lines to normalized events.
type Claude struct{}

// NewClaude returns the claude adapter.
func NewClaude() *Claude {
	return &Claude{}
}

func (*Claude) Engine() schema.Engine {
	return schema.EngineClaude
}

// claudeEnvelope is flat: the verb rides in type, everything else beside it.
type claudeEnvelope struct {
	Type        string       `json:"type"`
	WorkspaceID string       `json:"workspace_id"`
	SessionID   string       `json:"session_id"`
	EventID     string       `json:"event_id"`
	TurnID      string       `json:"turn_id"`
	TimestampMs int64        `json:"timestamp_ms"`
	Text        string       `json:"text"`
	Item        *claudeItem  `json:"item"`
	Usage       *claudeUsage `json:"usage"`
}

type claudeItem struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`

	// message
	Role   string   `json:"role"`
	Text   string   `json:"text"`
	Images []string `json:"images"`

	// thinking
	ThinkingSummary string `json:"thinking_summary"`
	Thinking        string `json:"thinking"`

	// diff
	Patch string `json:"patch"`

	// review
	State string `json:"state"`

	// tool_use
	Name         string             `json:"name"`
	Title        string             `json:"title"`
	InputPreview string             `json:"input_preview"`
	Status       string             `json:"status"`
	Output       string             `json:"output"`
	DurationMs   int64              `json:"duration_ms"`
	FileChanges  []claudeFileChange `json:"file_changes"`

	// explore
	Entries []claudeExploreEntry `json:"entries"`
}

type claudeFileChange struct {
	Path    string `json:"path"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

type claudeExploreEntry struct {
	Kind  string `json:"kind"`
	Label string `json:"label"`
}

type claudeUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
}

func (a *Claude) MapEvent(raw json.RawMessage) *schema.ThreadEvent {
	var env claudeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	if heartbeatMethods[env.Type] {
		return nil
	}
	op, ok := lookupOperation(env.Type, false)
	if !ok {
		return nil
	}
	if env.WorkspaceID == "" || env.SessionID == "" {
		return nil
	}

	ev := &schema.ThreadEvent{
		Engine:      schema.EngineClaude,
		WorkspaceID: env.WorkspaceID,
		ThreadID:    env.SessionID,
		EventID:     env.EventID,
		TimestampMs: env.TimestampMs,
		Op:          op,
		Delta:       env.Text,
		Raw:         raw,
		TurnID:      env.TurnID,
	}
	if env.Item != nil {
		ev.Item = a.mapItem(env.Item)
	}
	if ev.Item != nil {
		ev.ItemKind = ev.Item.Kind
	} else {
		if isUpsertOp(op) {
			return nil
		}
		ev.ItemKind = kindForOperation(op)
	}
	if env.Usage != nil {
		ev.Usage = &schema.TokenUsage{
			Input:      env.Usage.InputTokens,
			Output:     env.Usage.OutputTokens,
			CacheRead:  env.Usage.CacheReadInputTokens,
			CacheWrite: env.Usage.CacheCreationInputTokens,
		}
	}
	return ev
}

func (*Claude) IsHeartbeat(raw json.RawMessage) bool {
	var env claudeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false
	}
	return heartbeatMethods[env.Type]
}

func (a *Claude) MapItem(raw json.RawMessage) *schema.Item {
	var ci claudeItem
	if err := json.Unmarshal(raw, &ci); err != nil {
		return nil
	}
	return a.mapItem(&ci)
}

func (a *Claude) mapItem(ci *claudeItem) *schema.Item {
	switch ci.Kind {
	case "message":
		role := schema.RoleAssistant
		if ci.Role == "user" {
			role = schema.RoleUser
		}
		return &schema.Item{
			ID:      ci.ID,
			Kind:    schema.ItemKindMessage,
			Message: &schema.MessageItem{Role: role, Text: ci.Text, Images: ci.Images},
		}
	case "thinking":
		return &schema.Item{
			ID:        ci.ID,
			Kind:      schema.ItemKindReasoning,
			Reasoning: &schema.ReasoningItem{Summary: ci.ThinkingSummary, Content: ci.Thinking},
		}
	case "diff":
		return &schema.Item{
			ID:   ci.ID,
			Kind: schema.ItemKindDiff,
			Diff: &schema.DiffItem{Patch: ci.Patch},
		}
	case "review":
		state := schema.ReviewStarted
		if ci.State == "completed" {
			state = schema.ReviewCompleted
		}
		return &schema.Item{
			ID:     ci.ID,
			Kind:   schema.ItemKindReview,
			Review: &schema.ReviewItem{State: state, Text: ci.Text},
		}
	case "tool_use":
		changes := make([]schema.FileChange, 0, len(ci.FileChanges))
		for _, c := range ci.FileChanges {
			changes = append(changes, schema.FileChange{Path: c.Path, Added: c.Added, Removed: c.Removed})
		}
		if len(changes) == 0 {
			changes = nil
		}
		return &schema.Item{
			ID:   ci.ID,
			Kind: schema.ItemKindTool,
			Tool: &schema.ToolItem{
				ToolType:    ci.Name,
				Title:       ci.Title,
				Detail:      ci.InputPreview,
				Status:      claudeToolStatus(ci.Status),
				Output:      ci.Output,
				DurationMs:  ci.DurationMs,
				FileChanges: changes,
			},
		}
	case "explore":
		entries := make([]schema.ExploreEntry, 0, len(ci.Entries))
		for _, e := range ci.Entries {
			entries = append(entries, schema.ExploreEntry{Kind: claudeExploreKind(e.Kind), Label: e.Label})
		}
		status := schema.ExploreExploring
		if ci.Status == "explored" {
			status = schema.ExploreExplored
		}
		return &schema.Item{
			ID:      ci.ID,
			Kind:    schema.ItemKindExplore,
			Explore: &schema.ExploreItem{Status: status, Entries: entries},
		}
	}
	return nil
}

func claudeToolStatus(s string) schema.ToolStatus {
	switch s {
	case "running":
		return schema.ToolRunning
	case "completed":
		return schema.ToolCompleted
	case "failed":
		return schema.ToolFailed
	}
	return ""
}

func claudeExploreKind(s string) schema.ExploreEntryKind {
	switch s {
	case "search":
		return schema.ExploreSearch
	case "list":
		return schema.ExploreList
	case "run":
		return schema.ExploreRun
	}
	return schema.ExploreRead
}
