package roles

import (
	"context"
	"fmt"
	"strings"

	"taskforge/pkg/agent"
	"taskforge/pkg/proto"
)

// Planner turns a task into an ordered, non-empty plan of steps.
type Planner struct {
	base
}

// PlannerInput is the planner's typed input.
type PlannerInput struct {
	Task proto.Task
}

// NewPlanner creates a planner agent. A nil client selects the deterministic
// fallback plan.
func NewPlanner(client agent.LLMClient, stream StreamCallback, repairRetries int) *Planner {
	return &Planner{base: newBase("PlannerAgent", client, stream, repairRetries)}
}

const plannerSchemaHint = `{ "plan": [ {"title": "string", "summary": "string"} ],` +
	` "summaries": {"chat_summary": "string", "project_summary": "string", "project_keywords": []},` +
	` "clarification": {"needed": false, "question": ""} }`

// Run produces the plan for a task.
func (p *Planner) Run(ctx context.Context, in PlannerInput) (proto.Plan, error) {
	if p.client != nil {
		plan, err := p.planWithModel(ctx, in)
		if err == nil {
			return plan, nil
		}
		if IsParseExhausted(err) {
			return proto.Plan{}, err
		}
		p.logger.Warn("model planning unavailable, using fallback plan: %v", err)
	}

	return fallbackPlan(in.Task), nil
}

func (p *Planner) planWithModel(ctx context.Context, in PlannerInput) (proto.Plan, error) {
	userPrompt := fmt.Sprintf(
		"Create an ordered plan for this task.\nTask: %s\nSchema: %s",
		in.Task.Description, plannerSchemaHint)

	resp, err := p.generateJSON(ctx, "planner",
		buildPrompt("planner", userPrompt, in.Task.Language),
		plannerSchemaHint, []string{"plan"})
	if err != nil {
		return proto.Plan{}, err
	}

	var steps []proto.PlanStep
	for _, raw := range getObjectSlice(resp, "plan") {
		title := strings.TrimSpace(getString(raw, "title", ""))
		summary := strings.TrimSpace(getString(raw, "summary", ""))
		if title == "" && summary == "" {
			continue
		}
		if title == "" {
			title = summary
		}
		steps = append(steps, proto.NewPlanStep(title, summary))
	}
	if len(steps) == 0 {
		return proto.Plan{}, fmt.Errorf("model produced an empty plan")
	}

	return proto.NewPlan(in.Task.TaskID, steps), nil
}

// fallbackPlan is the deterministic four-step plan used without a model.
func fallbackPlan(task proto.Task) proto.Plan {
	steps := []proto.PlanStep{
		proto.NewPlanStep("Analyze task", "Understand the goal and constraints."),
		proto.NewPlanStep("Implementation", "Produce code, tools, and tests."),
		proto.NewPlanStep("Validation", "Run pytest and verify results."),
		proto.NewPlanStep("Review & wrap-up", "Review, fixes, and summary."),
	}
	return proto.NewPlan(task.TaskID, steps)
}
