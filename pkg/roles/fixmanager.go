package roles

import (
	"context"
	"fmt"

	"taskforge/pkg/agent"
	"taskforge/pkg/proto"
)

// FixManager proposes a bounded corrective action after a rejected review.
// The retry flag always mirrors "review not approved"; a model may refine
// the change summary but never the decision.
type FixManager struct {
	base
}

// FixManagerInput is the fix manager's typed input.
type FixManagerInput struct {
	Review    proto.ReviewContext
	Execution proto.ExecutionContext
}

// NewFixManager creates a fix manager agent.
func NewFixManager(client agent.LLMClient, stream StreamCallback, repairRetries int) *FixManager {
	return &FixManager{base: newBase("FixManagerAgent", client, stream, repairRetries)}
}

const fixManagerSchemaHint = `{ "change_summary": ["string"], "retry": true }`

// Run produces the FixInstruction for one rejected (or approved) review.
func (f *FixManager) Run(ctx context.Context, in FixManagerInput) (proto.FixInstruction, error) {
	changeSummary := make([]string, 0, len(in.Review.Issues))
	for i := range in.Review.Issues {
		changeSummary = append(changeSummary, in.Review.Issues[i].Detail)
	}
	if len(changeSummary) == 0 {
		changeSummary = []string{"No issues detected, no changes."}
	}

	if f.client != nil && len(in.Review.Issues) > 0 {
		userPrompt := fmt.Sprintf(
			"Propose targeted fixes for these issues.\n"+
				"Issues: %v\n"+
				"Stderr:\n%s\n"+
				"Schema: %s",
			changeSummary, in.Execution.Result.Stderr, fixManagerSchemaHint)

		resp, err := f.generateJSON(ctx, "fix_manager",
			buildPrompt("fix_manager", userPrompt, in.Execution.Prompt.Language),
			fixManagerSchemaHint, []string{"change_summary"})
		switch {
		case err == nil:
			if summary := getStringSlice(resp, "change_summary"); len(summary) > 0 {
				changeSummary = summary
			}
		case IsParseExhausted(err):
			return proto.FixInstruction{}, err
		default:
			f.logger.Warn("fix manager model unavailable, using issue details: %v", err)
		}
	}

	return proto.FixInstruction{
		StepID:        in.Execution.StepID,
		PlanID:        in.Execution.PlanID,
		TaskID:        in.Execution.TaskID,
		ChangeSummary: changeSummary,
		Retry:         in.Review.Decision != proto.ReviewApproved,
	}, nil
}
