// ABOUTME: TurnPlan and plan step types shared with plan-display consumers
// ABOUTME: One current plan per thread; setting a new plan replaces the old

package schema

// StepStatus tracks one plan step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "inProgress"
	StepCompleted  StepStatus = "completed"
)

// PlanStep is one entry of a turn's plan.
type PlanStep struct {
	Text   string     `json:"text"`
	Status StepStatus `json:"status"`
}

// TurnPlan is the plan an engine attached to a turn.
type TurnPlan struct {
	TurnID      string     `json:"turnId"`
	Explanation *string    `json:"explanation"`
	Steps       []PlanStep `json:"steps"`
}

// Empty reports whether the plan carries neither steps nor explanation
// text. History extraction skips empty plans.
func (p *TurnPlan) Empty() bool {
	if p == nil {
		return true
	}
	if len(p.Steps) > 0 {
		return false
	}
	return p.Explanation == nil || *p.Explanation == ""
}

// Clone returns a deep copy, nil-safe.
func (p *TurnPlan) Clone() *TurnPlan {
	if p == nil {
		return nil
	}
	out := *p
	if p.Explanation != nil {
		e := *p.Explanation
		out.Explanation = &e
	}
	out.Steps = append([]PlanStep(nil), p.Steps...)
	return &out
}
