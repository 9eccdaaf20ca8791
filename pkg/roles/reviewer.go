package roles

import (
	"context"
	"fmt"

	"taskforge/pkg/agent"
	"taskforge/pkg/proto"
)

// Reviewer judges one execution attempt. The decision rule is deterministic:
// APPROVED if and only if the execution passed; anything else is
// CHANGES_REQUIRED with a critical issue carrying the failure evidence. A
// model, when attached, only contributes recommendations.
type Reviewer struct {
	base
}

// ReviewerInput is the reviewer's typed input.
type ReviewerInput struct {
	Execution proto.ExecutionContext
}

// NewReviewer creates a reviewer agent.
func NewReviewer(client agent.LLMClient, stream StreamCallback, repairRetries int) *Reviewer {
	return &Reviewer{base: newBase("ReviewerAgent", client, stream, repairRetries)}
}

const reviewerSchemaHint = `{ "recommendations": ["string"] }`

// Run produces the ReviewContext for one execution.
func (r *Reviewer) Run(ctx context.Context, in ReviewerInput) (proto.ReviewContext, error) {
	execution := in.Execution

	decision := proto.ReviewApproved
	var issues []proto.Issue
	if execution.Result.Status != proto.ExecutionPassed {
		decision = proto.ReviewChangesRequired
		detail := execution.Result.Stderr
		if detail == "" {
			detail = execution.Result.Stdout
		}
		issues = append(issues, proto.Issue{
			Title:    "Tests failed",
			Detail:   detail,
			Severity: proto.SeverityCritical,
		})
	}

	var recommendations []string
	if r.client != nil {
		recs, err := r.recommend(ctx, &execution)
		if err != nil {
			if IsParseExhausted(err) {
				return proto.ReviewContext{}, err
			}
			r.logger.Warn("reviewer model unavailable, no recommendations: %v", err)
		} else {
			recommendations = recs
		}
	}

	return proto.ReviewContext{
		StepID:          execution.StepID,
		PlanID:          execution.PlanID,
		TaskID:          execution.TaskID,
		Decision:        decision,
		Issues:          issues,
		Recommendations: recommendations,
		Evidence: map[string]string{
			"stdout": execution.Result.Stdout,
			"stderr": execution.Result.Stderr,
		},
	}, nil
}

func (r *Reviewer) recommend(ctx context.Context, execution *proto.ExecutionContext) ([]string, error) {
	userPrompt := fmt.Sprintf(
		"Review this execution and suggest improvements.\n"+
			"Status: %s\nExit code: %d\nStdout:\n%s\nStderr:\n%s\n"+
			"Schema: %s",
		execution.Result.Status, execution.Result.ExitCode,
		execution.Result.Stdout, execution.Result.Stderr,
		reviewerSchemaHint)

	resp, err := r.generateJSON(ctx, "reviewer",
		buildPrompt("reviewer", userPrompt, execution.Prompt.Language),
		reviewerSchemaHint, []string{"recommendations"})
	if err != nil {
		return nil, err
	}
	return getStringSlice(resp, "recommendations"), nil
}
