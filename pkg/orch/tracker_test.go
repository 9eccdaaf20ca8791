package orch

import (
	"errors"
	"testing"

	"taskforge/pkg/proto"
)

func TestTrackerWalksNominalSequence(t *testing.T) {
	tr := NewTracker(5)
	if tr.Current() != proto.StateIntake {
		t.Fatalf("initial state = %s, want INTAKE", tr.Current())
	}

	sequence := []proto.State{
		proto.StatePlan,
		proto.StateDecompose,
		proto.StateResearch,
		proto.StatePromptBuild,
		proto.StateExecute,
		proto.StateRunCode,
		proto.StateReview,
		proto.StateSummarize,
		proto.StateFinalize,
	}
	for _, next := range sequence {
		if err := tr.Next(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
}

func TestTrackerRejectsInvalidTransition(t *testing.T) {
	tr := NewTracker(5)

	err := tr.Next(proto.StateReview)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}
	if tr.Current() != proto.StateIntake {
		t.Errorf("state changed on rejected transition: %s", tr.Current())
	}
}

func TestTrackerAllowsStepLoopAndFixReentry(t *testing.T) {
	tr := NewTracker(5)
	walk := []proto.State{
		proto.StatePlan, proto.StateDecompose, proto.StateResearch,
		proto.StatePromptBuild, proto.StateExecute, proto.StateRunCode,
		proto.StateReview, proto.StateFix, proto.StateExecute,
		proto.StateRunCode, proto.StateReview, proto.StateDecompose,
	}
	for _, next := range walk {
		if err := tr.Next(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
}

func TestTrackerFixBudget(t *testing.T) {
	tr := NewTracker(2)
	if tr.Exhausted() {
		t.Fatal("fresh tracker must not be exhausted")
	}

	if got := tr.IncrementFix(); got != 1 {
		t.Errorf("first attempt = %d, want 1", got)
	}
	if tr.Exhausted() {
		t.Error("exhausted after one of two attempts")
	}
	tr.IncrementFix()
	if !tr.Exhausted() {
		t.Error("not exhausted after two of two attempts")
	}

	tr.ResetFix()
	if tr.FixAttempts() != 0 || tr.Exhausted() {
		t.Error("reset must clear the budget")
	}
}
