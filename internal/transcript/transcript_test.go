// ABOUTME: Tests for HTML and plain-text transcript rendering
// ABOUTME: Covers markdown conversion, escaping, and terminal formatting

package transcript

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chorus/internal/schema"
)

func sampleState() schema.State {
	explanation := "ship the watcher fix"
	st := schema.NewState(schema.EngineCodex, "ws-1", "codex:t-1")
	st.Items = []schema.Item{
		{
			ID:      "m-1",
			Kind:    schema.ItemKindMessage,
			Message: &schema.MessageItem{Role: schema.RoleUser, Text: "Fix the **race** in the watcher"},
		},
		{
			ID:   "r-1",
			Kind: schema.ItemKindReasoning,
			Reasoning: &schema.ReasoningItem{
				Summary: "Checking the init path",
				Content: "The watcher registers before the channel exists.",
			},
		},
		{
			ID:   "c-1",
			Kind: schema.ItemKindTool,
			Tool: &schema.ToolItem{
				ToolType:   "command",
				Title:      "go test ./...",
				Status:     schema.ToolCompleted,
				Output:     "ok  \tchorus\t0.21s",
				DurationMs: 1200,
			},
		},
		{
			ID:      "m-2",
			Kind:    schema.ItemKindMessage,
			Message: &schema.MessageItem{Role: schema.RoleAssistant, Text: "Done, tests pass."},
		},
	}
	st.Plan = &schema.TurnPlan{
		TurnID:      "turn-7",
		Explanation: &explanation,
		Steps: []schema.PlanStep{
			{Text: "read watcher.go", Status: schema.StepCompleted},
			{Text: "patch init order", Status: schema.StepInProgress},
			{Text: "run tests", Status: schema.StepPending},
		},
	}
	st.UserInputQueue = []schema.UserInputRequest{
		{
			WorkspaceID: "ws-1",
			RequestID:   "req-1",
			Params: schema.UserInputParams{
				ThreadID: "codex:t-1",
				Questions: []schema.UserInputQuestion{
					{Header: "Proceed?", Prompt: "Apply the patch?", Options: []schema.UserInputOption{
						{Label: "Yes", Value: "yes"},
						{Label: "No", Value: "no"},
					}},
				},
			},
		},
	}
	return st
}

func TestRenderHTML_ConvertsMarkdown(t *testing.T) {
	out, err := RenderHTML(sampleState())
	require.NoError(t, err)

	assert.Contains(t, out, `<section class="item message message-user">`)
	assert.Contains(t, out, "<strong>race</strong>")
	assert.Contains(t, out, `<section class="item message message-assistant">`)
	assert.Contains(t, out, `<div class="reasoning-summary">`)
	assert.Contains(t, out, "The watcher registers before the channel exists.")
}

func TestRenderHTML_ToolHeadingAndOutput(t *testing.T) {
	out, err := RenderHTML(sampleState())
	require.NoError(t, err)

	assert.Contains(t, out, "<header>go test ./... (completed, 1.2s)</header>")
	assert.Contains(t, out, "<pre>ok  \tchorus\t0.21s</pre>")
}

func TestRenderHTML_EscapesRawOutput(t *testing.T) {
	st := schema.NewState(schema.EngineCodex, "ws-1", "codex:t-1")
	st.Items = []schema.Item{
		{
			ID:   "c-1",
			Kind: schema.ItemKindTool,
			Tool: &schema.ToolItem{ToolType: "command", Title: "cat index.html", Output: "<script>alert(1)</script>"},
		},
		{
			ID:   "d-1",
			Kind: schema.ItemKindDiff,
			Diff: &schema.DiffItem{Patch: "--- a/x\n+++ b/x\n-<old>\n+<new>"},
		},
	}

	out, err := RenderHTML(st)
	require.NoError(t, err)

	assert.Contains(t, out, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.Contains(t, out, "-&lt;old&gt;")
	assert.NotContains(t, out, "<script>")
}

func TestRenderHTML_PlanAndQueue(t *testing.T) {
	out, err := RenderHTML(sampleState())
	require.NoError(t, err)

	assert.Contains(t, out, "<p>ship the watcher fix</p>")
	assert.Contains(t, out, `<li class="step-completed">read watcher.go</li>`)
	assert.Contains(t, out, `<li class="step-inProgress">patch init order</li>`)
	assert.Contains(t, out, "<h4>Proceed?</h4>")
	assert.Contains(t, out, "<p>Apply the patch?</p>")
	assert.Contains(t, out, "<li>Yes</li>")
}

func TestRenderHTML_SkipsEmptyPayloads(t *testing.T) {
	st := schema.NewState(schema.EngineCodex, "ws-1", "codex:t-1")
	st.Items = []schema.Item{
		{ID: "m-1", Kind: schema.ItemKindMessage},
		{ID: "r-1", Kind: schema.ItemKindReasoning},
	}

	out, err := RenderHTML(st)
	require.NoError(t, err)
	assert.NotContains(t, out, "<section")
}

func TestRenderText_RolePrefixes(t *testing.T) {
	out := RenderText(sampleState())

	assert.Contains(t, out, "user> Fix the **race** in the watcher\n")
	assert.Contains(t, out, "assistant> Done, tests pass.\n")
}

func TestRenderText_ToolBlock(t *testing.T) {
	out := RenderText(sampleState())

	assert.Contains(t, out, "[tool command] go test ./... (completed, 1.2s)\n")
	assert.Contains(t, out, "  | ok  \tchorus\t0.21s\n")
}

func TestRenderText_PlanMarkers(t *testing.T) {
	out := RenderText(sampleState())

	assert.Contains(t, out, "plan (turn-7):\n")
	assert.Contains(t, out, "  [x] read watcher.go\n")
	assert.Contains(t, out, "  [>] patch init order\n")
	assert.Contains(t, out, "  [ ] run tests\n")
}

func TestRenderText_PendingInput(t *testing.T) {
	out := RenderText(sampleState())

	assert.Contains(t, out, "pending input:\n")
	assert.Contains(t, out, "  Proceed?: Apply the patch?\n")
}

func TestRenderText_ReviewAndExplore(t *testing.T) {
	st := schema.NewState(schema.EngineCodex, "ws-1", "codex:t-1")
	st.Items = []schema.Item{
		{
			ID:     "v-1",
			Kind:   schema.ItemKindReview,
			Review: &schema.ReviewItem{State: schema.ReviewCompleted, Text: "Looks correct."},
		},
		{
			ID:   "e-1",
			Kind: schema.ItemKindExplore,
			Explore: &schema.ExploreItem{
				Status: schema.ExploreExplored,
				Entries: []schema.ExploreEntry{
					{Kind: schema.ExploreRead, Label: "watcher.go"},
					{Kind: schema.ExploreSearch, Label: "initOnce"},
				},
			},
		},
	}

	out := RenderText(st)

	assert.Contains(t, out, "[review completed]\n  | Looks correct.\n")
	assert.Contains(t, out, "[explore explored]\n")
	assert.Contains(t, out, "  read watcher.go\n")
	assert.Contains(t, out, "  search initOnce\n")
}

func TestRenderText_Empty(t *testing.T) {
	st := schema.NewState(schema.EngineCodex, "ws-1", "codex:t-1")
	assert.Empty(t, RenderText(st))
}
