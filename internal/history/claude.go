// ABOUTME: Claude history loader - resume responses keyed by session block
// ABOUTME: Pending inputs live both on the session and inside each turn

package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/chorus/internal/adapter"
	"github.com/2389/chorus/internal/schema"
)

// ClaudeLoader resolves claude sessions through the claude session backend.
type ClaudeLoader struct {
	backend SessionBackend
	items   *adapter.Claude
}

// NewClaude returns a claude loader reading from the given backend.
func NewClaude(backend SessionBackend) *ClaudeLoader {
	return &ClaudeLoader{backend: backend, items: adapter.NewClaude()}
}

func (*ClaudeLoader) Engine() schema.Engine {
	return schema.EngineClaude
}

type claudeResume struct {
	Items         *[]json.RawMessage    `json:"items"`
	Turns         *[]claudeTurn         `json:"turns"`
	PendingInputs *[]claudePendingInput `json:"pending_inputs"`
	Session       *claudeSession        `json:"session"`
}

type claudeTurn struct {
	TurnID        string               `json:"turn_id"`
	Plan          *claudePlan          `json:"plan"`
	PendingInputs []claudePendingInput `json:"pending_inputs"`
}

type claudePlan struct {
	Explanation *string          `json:"explanation"`
	Steps       []claudePlanStep `json:"steps"`
}

type claudePlanStep struct {
	Text   string `json:"text"`
	Status string `json:"status"`
}

type claudePendingInput struct {
	ID          string           `json:"id"`
	WorkspaceID string           `json:"workspace_id"`
	SessionID   string           `json:"session_id"`
	TurnID      string           `json:"turn_id"`
	ItemID      string           `json:"item_id"`
	Questions   []claudeQuestion `json:"questions"`
}

type claudeQuestion struct {
	Header   string         `json:"header"`
	Prompt   string         `json:"prompt"`
	Secret   bool           `json:"secret"`
	FreeForm bool           `json:"free_form"`
	Options  []claudeOption `json:"options"`
}

type claudeOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type claudeSession struct {
	WorkspaceID  string `json:"workspace_id"`
	SessionID    string `json:"session_id"`
	ActiveTurnID string `json:"active_turn_id"`
}

func (l *ClaudeLoader) Load(ctx context.Context, workspaceID, threadID string) (schema.HistorySnapshot, error) {
	snap := schema.HistorySnapshot{
		Engine:      schema.EngineClaude,
		WorkspaceID: workspaceID,
		ThreadID:    threadID,
	}

	raw, err := l.backend.FetchThread(ctx, workspaceID, threadID)
	if err != nil {
		return snap, fmt.Errorf("claude resume fetch: %w", err)
	}
	if len(raw) == 0 {
		return snap, ErrEmptyResponse
	}
	var resume claudeResume
	if err := json.Unmarshal(raw, &resume); err != nil {
		return snap, fmt.Errorf("claude resume parse: %w", err)
	}

	if resume.Items == nil {
		snap.Warnings = warnMissing(snap.Warnings, schema.FallbackMissingItems, "resume response carried no items section")
	} else {
		for _, rawItem := range *resume.Items {
			if item := l.items.MapItem(rawItem); item != nil {
				snap.Items = append(snap.Items, *item)
			}
		}
	}

	var turns []turnRecord
	if resume.Turns == nil {
		snap.Warnings = warnMissing(snap.Warnings, schema.FallbackMissingPlan, "resume response carried no turns section")
	} else {
		for _, t := range *resume.Turns {
			turns = append(turns, turnRecord{
				id:       t.TurnID,
				plan:     t.Plan.toPlan(),
				requests: mapClaudeRequests(t.PendingInputs, workspaceID, threadID),
			})
		}
		snap.Plan = extractPlan(turns)
	}

	var threadLevel []schema.UserInputRequest
	if resume.PendingInputs == nil {
		snap.Warnings = warnMissing(snap.Warnings, schema.FallbackMissingUserInputQueue, "resume response carried no pending inputs section")
	} else {
		threadLevel = mapClaudeRequests(*resume.PendingInputs, workspaceID, threadID)
	}
	snap.UserInputQueue = mergeUserInputQueue(threadLevel, turns)

	if resume.Session == nil {
		snap.Warnings = warnMissing(snap.Warnings, schema.FallbackMissingMeta, "resume response carried no session section")
		snap.Meta = fallbackMeta(schema.EngineClaude, workspaceID, threadID)
	} else {
		snap.Meta = schema.Meta{
			WorkspaceID:  orDefault(resume.Session.WorkspaceID, workspaceID),
			ThreadID:     orDefault(resume.Session.SessionID, threadID),
			Engine:       schema.EngineClaude,
			ActiveTurnID: resume.Session.ActiveTurnID,
		}
	}
	return snap, nil
}

func (p *claudePlan) toPlan() *schema.TurnPlan {
	if p == nil {
		return nil
	}
	out := &schema.TurnPlan{Explanation: p.Explanation}
	for _, s := range p.Steps {
		out.Steps = append(out.Steps, schema.PlanStep{Text: s.Text, Status: claudeStepStatus(s.Status)})
	}
	return out
}

func claudeStepStatus(s string) schema.StepStatus {
	switch s {
	case "in_progress":
		return schema.StepInProgress
	case "completed":
		return schema.StepCompleted
	}
	return schema.StepPending
}

func mapClaudeRequests(raw []claudePendingInput, workspaceID, threadID string) []schema.UserInputRequest {
	var out []schema.UserInputRequest
	for _, r := range raw {
		req := schema.UserInputRequest{
			WorkspaceID: orDefault(r.WorkspaceID, workspaceID),
			RequestID:   r.ID,
			Params: schema.UserInputParams{
				ThreadID: orDefault(r.SessionID, threadID),
				TurnID:   r.TurnID,
				ItemID:   r.ItemID,
			},
		}
		for _, q := range r.Questions {
			question := schema.UserInputQuestion{
				Header:   q.Header,
				Prompt:   q.Prompt,
				Secret:   q.Secret,
				FreeForm: q.FreeForm,
			}
			for _, o := range q.Options {
				question.Options = append(question.Options, schema.UserInputOption{Label: o.Label, Value: o.Value})
			}
			req.Params.Questions = append(req.Params.Questions, question)
		}
		out = append(out, req)
	}
	return out
}
