package roles

import (
	"context"
	"errors"
	"fmt"

	"taskforge/pkg/agent"
	"taskforge/pkg/proto"
)

// ErrStepIndexOutOfRange is returned when the decomposer is asked for a step
// the plan does not contain. This is a programming-level invariant
// violation, not an expected runtime condition.
var ErrStepIndexOutOfRange = errors.New("step index out of range")

// Decomposer selects one plan step and concretizes it into an executable
// StepContext. It is fully deterministic.
type Decomposer struct {
	base
}

// DecomposerInput is the decomposer's typed input.
type DecomposerInput struct {
	Plan      proto.Plan
	StepIndex int
}

// NewDecomposer creates a decomposer agent.
func NewDecomposer(client agent.LLMClient, stream StreamCallback, repairRetries int) *Decomposer {
	return &Decomposer{base: newBase("DecomposerAgent", client, stream, repairRetries)}
}

// Run concretizes exactly one step. An out-of-range index is a programming
// error and fails the call.
func (d *Decomposer) Run(_ context.Context, in DecomposerInput) (proto.StepContext, error) {
	if in.StepIndex < 0 || in.StepIndex >= len(in.Plan.Steps) {
		return proto.StepContext{}, fmt.Errorf("%w: %d for plan with %d steps", ErrStepIndexOutOfRange, in.StepIndex, len(in.Plan.Steps))
	}

	step := in.Plan.Steps[in.StepIndex]
	return proto.StepContext{
		StepID:  step.StepID,
		PlanID:  in.Plan.PlanID,
		TaskID:  in.Plan.TaskID,
		Summary: step.Summary,
		Attempt: 1,
		Status:  proto.StepStatusPending,
	}, nil
}
