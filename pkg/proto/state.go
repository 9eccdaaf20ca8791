package proto

// State is one phase of the orchestration pipeline.
type State string

// Pipeline states, in nominal order. FIX is the only state a step may
// re-enter; FINALIZE is terminal.
const (
	StateIntake      State = "INTAKE"
	StatePlan        State = "PLAN"
	StateDecompose   State = "DECOMPOSE"
	StateResearch    State = "RESEARCH"
	StatePromptBuild State = "PROMPT_BUILD"
	StateExecute     State = "EXECUTE"
	StateRunCode     State = "RUN_CODE"
	StateReview      State = "REVIEW"
	StateFix         State = "FIX"
	StateSummarize   State = "SUMMARIZE"
	StateFinalize    State = "FINALIZE"
)

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// ValidTransitions maps each state to the states reachable from it.
// REVIEW may loop back to DECOMPOSE (next step) or enter FIX; FIX may re-run
// EXECUTE under the loop policy, advance to the next step, or summarize.
var ValidTransitions = map[State][]State{
	StateIntake:      {StatePlan},
	StatePlan:        {StateDecompose, StateSummarize},
	StateDecompose:   {StateResearch},
	StateResearch:    {StatePromptBuild},
	StatePromptBuild: {StateExecute},
	StateExecute:     {StateRunCode},
	StateRunCode:     {StateReview},
	StateReview:      {StateFix, StateDecompose, StateSummarize},
	StateFix:         {StateExecute, StateDecompose, StateSummarize},
	StateSummarize:   {StateFinalize},
	StateFinalize:    {},
}

// IsValidTransition reports whether from may transition to to.
func IsValidTransition(from, to State) bool {
	for _, next := range ValidTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
