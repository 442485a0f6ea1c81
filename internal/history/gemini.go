// ABOUTME: Gemini history loader - camelCase resume responses
// ABOUTME: Same extraction rules as the other engines over a different spelling

package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/chorus/internal/adapter"
	"github.com/2389/chorus/internal/schema"
)

// GeminiLoader resolves gemini threads through the gemini session backend.
type GeminiLoader struct {
	backend SessionBackend
	items   *adapter.Gemini
}

// NewGemini returns a gemini loader reading from the given backend.
func NewGemini(backend SessionBackend) *GeminiLoader {
	return &GeminiLoader{backend: backend, items: adapter.NewGemini()}
}

func (*GeminiLoader) Engine() schema.Engine {
	return schema.EngineGemini
}

type geminiResume struct {
	Items             *[]json.RawMessage        `json:"items"`
	Turns             *[]geminiTurn             `json:"turns"`
	UserInputRequests *[]geminiUserInputRequest `json:"userInputRequests"`
	Meta              *geminiResumeMeta         `json:"meta"`
}

type geminiTurn struct {
	TurnID            string                   `json:"turnId"`
	Plan              *geminiPlan              `json:"plan"`
	UserInputRequests []geminiUserInputRequest `json:"userInputRequests"`
}

type geminiPlan struct {
	Explanation *string          `json:"explanation"`
	Steps       []geminiPlanStep `json:"steps"`
}

type geminiPlanStep struct {
	Text   string `json:"text"`
	Status string `json:"status"`
}

type geminiUserInputRequest struct {
	RequestID   string            `json:"requestId"`
	WorkspaceID string            `json:"workspaceId"`
	Params      geminiInputParams `json:"params"`
}

type geminiInputParams struct {
	ThreadID  string           `json:"threadId"`
	TurnID    string           `json:"turnId"`
	ItemID    string           `json:"itemId"`
	Questions []geminiQuestion `json:"questions"`
}

type geminiQuestion struct {
	Header   string         `json:"header"`
	Prompt   string         `json:"prompt"`
	Secret   bool           `json:"secret"`
	FreeForm bool           `json:"freeForm"`
	Options  []geminiOption `json:"options"`
}

type geminiOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type geminiResumeMeta struct {
	WorkspaceID  string `json:"workspaceId"`
	ThreadID     string `json:"threadId"`
	ActiveTurnID string `json:"activeTurnId"`
}

func (l *GeminiLoader) Load(ctx context.Context, workspaceID, threadID string) (schema.HistorySnapshot, error) {
	snap := schema.HistorySnapshot{
		Engine:      schema.EngineGemini,
		WorkspaceID: workspaceID,
		ThreadID:    threadID,
	}

	raw, err := l.backend.FetchThread(ctx, workspaceID, threadID)
	if err != nil {
		return snap, fmt.Errorf("gemini resume fetch: %w", err)
	}
	if len(raw) == 0 {
		return snap, ErrEmptyResponse
	}
	var resume geminiResume
	if err := json.Unmarshal(raw, &resume); err != nil {
		return snap, fmt.Errorf("gemini resume parse: %w", err)
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
				requests: mapGeminiRequests(t.UserInputRequests, workspaceID, threadID),
			})
		}
		snap.Plan = extractPlan(turns)
	}

	var threadLevel []schema.UserInputRequest
	if resume.UserInputRequests == nil {
		snap.Warnings = warnMissing(snap.Warnings, schema.FallbackMissingUserInputQueue, "resume response carried no user input requests section")
	} else {
		threadLevel = mapGeminiRequests(*resume.UserInputRequests, workspaceID, threadID)
	}
	snap.UserInputQueue = mergeUserInputQueue(threadLevel, turns)

	if resume.Meta == nil {
		snap.Warnings = warnMissing(snap.Warnings, schema.FallbackMissingMeta, "resume response carried no meta section")
		snap.Meta = fallbackMeta(schema.EngineGemini, workspaceID, threadID)
	} else {
		snap.Meta = schema.Meta{
			WorkspaceID:  orDefault(resume.Meta.WorkspaceID, workspaceID),
			ThreadID:     orDefault(resume.Meta.ThreadID, threadID),
			Engine:       schema.EngineGemini,
			ActiveTurnID: resume.Meta.ActiveTurnID,
		}
	}
	return snap, nil
}

func (p *geminiPlan) toPlan() *schema.TurnPlan {
	if p == nil {
		return nil
	}
	out := &schema.TurnPlan{Explanation: p.Explanation}
	for _, s := range p.Steps {
		out.Steps = append(out.Steps, schema.PlanStep{Text: s.Text, Status: geminiStepStatus(s.Status)})
	}
	return out
}

func geminiStepStatus(s string) schema.StepStatus {
	switch s {
	case "inProgress":
		return schema.StepInProgress
	case "completed":
		return schema.StepCompleted
	}
	return schema.StepPending
}

func mapGeminiRequests(raw []geminiUserInputRequest, workspaceID, threadID string) []schema.UserInputRequest {
	var out []schema.UserInputRequest
	for _, r := range raw {
		req := schema.UserInputRequest{
			WorkspaceID: orDefault(r.WorkspaceID, workspaceID),
			RequestID:   r.RequestID,
			Params: schema.UserInputParams{
				ThreadID: orDefault(r.Params.ThreadID, threadID),
				TurnID:   r.Params.TurnID,
				ItemID:   r.Params.ItemID,
			},
		}
		for _, q := range r.Params.Questions {
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
