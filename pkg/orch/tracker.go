// Package orch composes the role agents, the execution runner, and the
// storage layers into the run() pipeline, and owns the state machine and
// the fix-retry budget.
package orch

import (
	"fmt"

	"taskforge/pkg/proto"
)

// ErrInvalidTransition is returned when a requested state change is not in
// the transition table.
var ErrInvalidTransition = fmt.Errorf("invalid state transition")

// Tracker holds the pipeline's current state, the active step, and the
// fix-attempt budget for that step. It is not safe for concurrent use; the
// pipeline is single-threaded per task.
type Tracker struct {
	current      proto.State
	fixAttempts  int
	maxFixes     int
	activeStepID string
}

// NewTracker creates a tracker in the INTAKE state.
func NewTracker(maxFixes int) *Tracker {
	return &Tracker{
		current:  proto.StateIntake,
		maxFixes: maxFixes,
	}
}

// Current returns the current pipeline state.
func (t *Tracker) Current() proto.State {
	return t.current
}

// Next transitions to the given state, validating against the transition
// table.
func (t *Tracker) Next(to proto.State) error {
	if !proto.IsValidTransition(t.current, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.current, to)
	}
	t.current = to
	return nil
}

// SetActiveStep records the step currently being processed.
func (t *Tracker) SetActiveStep(stepID string) {
	t.activeStepID = stepID
}

// ActiveStep returns the id of the step currently being processed.
func (t *Tracker) ActiveStep() string {
	return t.activeStepID
}

// IncrementFix consumes one fix attempt and returns the attempt number.
func (t *Tracker) IncrementFix() int {
	t.fixAttempts++
	return t.fixAttempts
}

// FixAttempts returns the number of fix attempts consumed for the active
// step.
func (t *Tracker) FixAttempts() int {
	return t.fixAttempts
}

// Exhausted reports whether the fix budget for the active step is spent.
func (t *Tracker) Exhausted() bool {
	return t.fixAttempts >= t.maxFixes
}

// ResetFix clears the fix counter at the start of a new step.
func (t *Tracker) ResetFix() {
	t.fixAttempts = 0
}
