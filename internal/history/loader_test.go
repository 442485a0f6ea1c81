// ABOUTME: Tests for the shared extraction rules behind every loader
// ABOUTME: Plan scan order, queue dedup, and turn-id backfill

package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chorus/internal/schema"
)

func planWithSteps(turnID string, steps ...string) *schema.TurnPlan {
	p := &schema.TurnPlan{TurnID: turnID}
	for _, s := range steps {
		p.Steps = append(p.Steps, schema.PlanStep{Text: s, Status: schema.StepPending})
	}
	return p
}

func TestExtractPlan_MostRecentWins(t *testing.T) {
	turns := []turnRecord{
		{id: "turn-1", plan: planWithSteps("turn-1", "old step")},
		{id: "turn-2", plan: planWithSteps("turn-2", "new step")},
	}

	plan := extractPlan(turns)

	require.NotNil(t, plan)
	assert.Equal(t, "turn-2", plan.TurnID)
	assert.Equal(t, "new step", plan.Steps[0].Text)
}

func TestExtractPlan_SkipsEmptyPlans(t *testing.T) {
	empty := ""
	turns := []turnRecord{
		{id: "turn-1", plan: planWithSteps("turn-1", "real step")},
		{id: "turn-2", plan: &schema.TurnPlan{Explanation: &empty}},
		{id: "turn-3", plan: nil},
	}

	plan := extractPlan(turns)

	require.NotNil(t, plan)
	assert.Equal(t, "turn-1", plan.TurnID, "turns without steps or explanation are skipped")
}

func TestExtractPlan_ExplanationAloneCounts(t *testing.T) {
	explanation := "single-file change, no steps needed"
	turns := []turnRecord{
		{id: "turn-1", plan: &schema.TurnPlan{Explanation: &explanation}},
	}

	plan := extractPlan(turns)

	require.NotNil(t, plan)
	assert.Equal(t, "turn-1", plan.TurnID, "plan without its own turn id inherits the owning turn's")
	assert.Equal(t, explanation, *plan.Explanation)
}

func TestExtractPlan_NoPlans(t *testing.T) {
	assert.Nil(t, extractPlan([]turnRecord{{id: "turn-1"}, {id: "turn-2"}}))
	assert.Nil(t, extractPlan(nil))
}

func TestMergeUserInputQueue_DedupByWorkspaceAndRequest(t *testing.T) {
	req := schema.UserInputRequest{
		WorkspaceID: "ws-1",
		RequestID:   "req-1",
		Params:      schema.UserInputParams{ThreadID: "th-1", TurnID: "turn-1"},
	}
	turns := []turnRecord{
		{id: "turn-1", requests: []schema.UserInputRequest{req}},
	}

	queue := mergeUserInputQueue([]schema.UserInputRequest{req}, turns)

	require.Len(t, queue, 1, "same (workspace, request) collapses to one entry")
	assert.Equal(t, "req-1", queue[0].RequestID)
}

func TestMergeUserInputQueue_BackfillsTurnID(t *testing.T) {
	req := schema.UserInputRequest{
		WorkspaceID: "ws-1",
		RequestID:   "req-1",
		Params:      schema.UserInputParams{ThreadID: "th-1"},
	}
	turns := []turnRecord{
		{id: "turn-7", requests: []schema.UserInputRequest{req}},
	}

	queue := mergeUserInputQueue(nil, turns)

	require.Len(t, queue, 1)
	assert.Equal(t, "turn-7", queue[0].Params.TurnID, "owning turn backfills a missing turn id")
}

func TestMergeUserInputQueue_LateDuplicateBackfills(t *testing.T) {
	// The thread-level copy arrives first without a turn id; the turn-level
	// duplicate knows the owner. The kept entry picks up the turn id.
	threadLevel := []schema.UserInputRequest{
		{WorkspaceID: "ws-1", RequestID: "req-1", Params: schema.UserInputParams{ThreadID: "th-1"}},
	}
	turns := []turnRecord{
		{id: "turn-3", requests: []schema.UserInputRequest{
			{WorkspaceID: "ws-1", RequestID: "req-1", Params: schema.UserInputParams{ThreadID: "th-1"}},
		}},
	}

	queue := mergeUserInputQueue(threadLevel, turns)

	require.Len(t, queue, 1)
	assert.Equal(t, "turn-3", queue[0].Params.TurnID)
}

func TestMergeUserInputQueue_DistinctWorkspacesKept(t *testing.T) {
	threadLevel := []schema.UserInputRequest{
		{WorkspaceID: "ws-1", RequestID: "req-1"},
		{WorkspaceID: "ws-2", RequestID: "req-1"},
	}

	queue := mergeUserInputQueue(threadLevel, nil)

	assert.Len(t, queue, 2, "same request id under different workspaces stays distinct")
}

func TestMergeUserInputQueue_SkipsEmptyRequestID(t *testing.T) {
	threadLevel := []schema.UserInputRequest{{WorkspaceID: "ws-1"}}

	assert.Empty(t, mergeUserInputQueue(threadLevel, nil))
}
