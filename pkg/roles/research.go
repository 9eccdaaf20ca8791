package roles

import (
	"context"
	"fmt"

	"taskforge/pkg/agent"
	"taskforge/pkg/proto"
)

// Research gathers missing information for the current step. Findings are
// strictly additive: prior findings are never discarded, only extended with
// new non-empty ones.
type Research struct {
	base
}

// ResearchInput is the researcher's typed input.
type ResearchInput struct {
	TaskDescription string
	StepSummary     string
	PlanTitles      []string
	Language        string
	PriorFindings   []proto.Finding
}

// NewResearch creates a research agent.
func NewResearch(client agent.LLMClient, stream StreamCallback, repairRetries int) *Research {
	return &Research{base: newBase("ResearchAgent", client, stream, repairRetries)}
}

const researchSchemaHint = `{ "findings": [ {"source": "string", "content": "string"} ] }`

// Run returns the possibly-extended list of findings. Without a model, or
// when the model fails, the prior findings pass through unchanged.
func (r *Research) Run(ctx context.Context, in ResearchInput) ([]proto.Finding, error) {
	findings := make([]proto.Finding, len(in.PriorFindings))
	copy(findings, in.PriorFindings)

	if r.client == nil {
		return findings, nil
	}

	prior := make([]string, 0, len(in.PriorFindings))
	for _, f := range in.PriorFindings {
		prior = append(prior, f.Content)
	}
	userPrompt := fmt.Sprintf(
		"Gather missing information for the current step.\n"+
			"Task: %s\n"+
			"Current step: %s\n"+
			"Plan titles: %v\n"+
			"Prior findings: %v\n"+
			"Return JSON in the schema: %s\n"+
			"If there is no new information, return an empty list.",
		in.TaskDescription, in.StepSummary, in.PlanTitles, prior, researchSchemaHint)

	resp, err := r.generateJSON(ctx, "research",
		buildPrompt("research", userPrompt, in.Language),
		researchSchemaHint, []string{"findings"})
	if err != nil {
		if IsParseExhausted(err) {
			return nil, err
		}
		r.logger.Warn("research model unavailable, keeping prior findings: %v", err)
		return findings, nil
	}

	for _, raw := range getObjectSlice(resp, "findings") {
		content := getString(raw, "content", "")
		if content == "" {
			continue
		}
		findings = append(findings, proto.Finding{
			Source:  getString(raw, "source", "unknown"),
			Content: content,
		})
	}
	return findings, nil
}
