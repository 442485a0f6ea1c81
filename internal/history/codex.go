// ABOUTME: Codex history loader - snake_case resume responses with turns
// ABOUTME: Items reuse the codex adapter's translation so both paths agree

package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/chorus/internal/adapter"
	"github.com/2389/chorus/internal/schema"
)

// CodexLoader resolves codex threads through the codex session backend.
type CodexLoader struct {
	backend SessionBackend
	items   *adapter.Codex
}

// NewCodex returns a codex loader reading from the given backend.
func NewCodex(backend SessionBackend) *CodexLoader {
	return &CodexLoader{backend: backend, items: adapter.NewCodex()}
}

func (*CodexLoader) Engine() schema.Engine {
	return schema.EngineCodex
}

// codexResume is the codex resume response. Pointer fields distinguish an
// absent section from an empty one.
type codexResume struct {
	Items             *[]json.RawMessage       `json:"items"`
	Turns             *[]codexTurn             `json:"turns"`
	UserInputRequests *[]codexUserInputRequest `json:"user_input_requests"`
	Meta              *codexResumeMeta         `json:"meta"`
}

type codexTurn struct {
	ID                string                  `json:"id"`
	Plan              *codexPlan              `json:"plan"`
	UserInputRequests []codexUserInputRequest `json:"user_input_requests"`
}

type codexPlan struct {
	TurnID      string          `json:"turn_id"`
	Explanation *string         `json:"explanation"`
	Steps       []codexPlanStep `json:"steps"`
}

type codexPlanStep struct {
	Step   string `json:"step"`
	Status string `json:"status"`
}

type codexUserInputRequest struct {
	RequestID   string          `json:"request_id"`
	WorkspaceID string          `json:"workspace_id"`
	ThreadID    string          `json:"thread_id"`
	TurnID      string          `json:"turn_id"`
	ItemID      string          `json:"item_id"`
	Questions   []codexQuestion `json:"questions"`
}

type codexQuestion struct {
	Header   string        `json:"header"`
	Question string        `json:"question"`
	Secret   bool          `json:"secret"`
	FreeForm bool          `json:"free_form"`
	Options  []codexOption `json:"options"`
}

type codexOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type codexResumeMeta struct {
	WorkspaceID  string `json:"workspace_id"`
	ThreadID     string `json:"thread_id"`
	ActiveTurnID string `json:"active_turn_id"`
}

func (l *CodexLoader) Load(ctx context.Context, workspaceID, threadID string) (schema.HistorySnapshot, error) {
	snap := schema.HistorySnapshot{
		Engine:      schema.EngineCodex,
		WorkspaceID: workspaceID,
		ThreadID:    threadID,
	}

	raw, err := l.backend.FetchThread(ctx, workspaceID, threadID)
	if err != nil {
		return snap, fmt.Errorf("codex resume fetch: %w", err)
	}
	if len(raw) == 0 {
		return snap, ErrEmptyResponse
	}
	var resume codexResume
	if err := json.Unmarshal(raw, &resume); err != nil {
		return snap, fmt.Errorf("codex resume parse: %w", err)
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
				id:       t.ID,
				plan:     t.Plan.toPlan(),
				requests: mapCodexRequests(t.UserInputRequests, workspaceID, threadID),
			})
		}
		snap.Plan = extractPlan(turns)
	}

	var threadLevel []schema.UserInputRequest
	if resume.UserInputRequests == nil {
		snap.Warnings = warnMissing(snap.Warnings, schema.FallbackMissingUserInputQueue, "resume response carried no user input requests section")
	} else {
		threadLevel = mapCodexRequests(*resume.UserInputRequests, workspaceID, threadID)
	}
	snap.UserInputQueue = mergeUserInputQueue(threadLevel, turns)

	if resume.Meta == nil {
		snap.Warnings = warnMissing(snap.Warnings, schema.FallbackMissingMeta, "resume response carried no meta section")
		snap.Meta = fallbackMeta(schema.EngineCodex, workspaceID, threadID)
	} else {
		snap.Meta = schema.Meta{
			WorkspaceID:  orDefault(resume.Meta.WorkspaceID, workspaceID),
			ThreadID:     orDefault(resume.Meta.ThreadID, threadID),
			Engine:       schema.EngineCodex,
			ActiveTurnID: resume.Meta.ActiveTurnID,
		}
	}
	return snap, nil
}

func (p *codexPlan) toPlan() *schema.TurnPlan {
	if p == nil {
		return nil
	}
	out := &schema.TurnPlan{TurnID: p.TurnID, Explanation: p.Explanation}
	for _, s := range p.Steps {
		out.Steps = append(out.Steps, schema.PlanStep{Text: s.Step, Status: codexStepStatus(s.Status)})
	}
	return out
}

func codexStepStatus(s string) schema.StepStatus {
	switch s {
	case "in_progress":
		return schema.StepInProgress
	case "completed":
		return schema.StepCompleted
	}
	return schema.StepPending
}

func mapCodexRequests(raw []codexUserInputRequest, workspaceID, threadID string) []schema.UserInputRequest {
	var out []schema.UserInputRequest
	for _, r := range raw {
		req := schema.UserInputRequest{
			WorkspaceID: orDefault(r.WorkspaceID, workspaceID),
			RequestID:   r.RequestID,
			Params: schema.UserInputParams{
				ThreadID: orDefault(r.ThreadID, threadID),
				TurnID:   r.TurnID,
				ItemID:   r.ItemID,
			},
		}
		for _, q := range r.Questions {
			question := schema.UserInputQuestion{
				Header:   q.Header,
				Prompt:   q.Question,
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

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
