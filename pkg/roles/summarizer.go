package roles

import (
	"context"
	"fmt"
	"strings"

	"taskforge/pkg/agent"
	"taskforge/pkg/proto"
)

// Summarizer compresses the run into a summary string and extends the
// project memory. TaskSummaries always gains exactly one entry per run.
type Summarizer struct {
	base
}

// SummarizerInput is the summarizer's typed input.
type SummarizerInput struct {
	Task    proto.Task
	Plan    proto.Plan
	Reviews []proto.ReviewContext
	Memory  proto.ProjectMemory
}

// SummarizerOutput is the summarizer's typed output.
type SummarizerOutput struct {
	Summary string
	Memory  proto.ProjectMemory
}

// NewSummarizer creates a summarizer agent.
func NewSummarizer(client agent.LLMClient, stream StreamCallback, repairRetries int) *Summarizer {
	return &Summarizer{base: newBase("SummarizerAgent", client, stream, repairRetries)}
}

const summarizerSchemaHint = `{ "summary": "string" }`

// Run summarizes the run and returns the extended memory.
func (s *Summarizer) Run(ctx context.Context, in SummarizerInput) (SummarizerOutput, error) {
	var issueDetails []string
	for i := range in.Reviews {
		for j := range in.Reviews[i].Issues {
			issueDetails = append(issueDetails, in.Reviews[i].Issues[j].Detail)
		}
	}

	summaryLines := []string{
		fmt.Sprintf("Task: %s", in.Task.Description),
		fmt.Sprintf("Plan steps: %v", in.Plan.Titles()),
		fmt.Sprintf("Issues: %v", issueDetails),
	}
	summary := strings.Join(summaryLines, "; ")

	if s.client != nil {
		userPrompt := fmt.Sprintf(
			"Summarize this run in one short paragraph.\n"+
				"Task: %s\nPlan: %v\nIssues: %v\n"+
				"Schema: %s",
			in.Task.Description, in.Plan.Titles(), issueDetails, summarizerSchemaHint)

		resp, err := s.generateJSON(ctx, "summarizer",
			buildPrompt("summarizer", userPrompt, in.Task.Language),
			summarizerSchemaHint, []string{"summary"})
		switch {
		case err == nil:
			summary = getString(resp, "summary", summary)
		case IsParseExhausted(err):
			return SummarizerOutput{}, err
		default:
			s.logger.Warn("summarizer model unavailable, using deterministic summary: %v", err)
		}
	}

	memory := proto.ProjectMemory{
		TaskSummaries:     append(append([]string{}, in.Memory.TaskSummaries...), fmt.Sprintf("%s: %s", in.Task.TaskID, summary)),
		CompressedContext: strings.Join(summaryLines, "; "),
	}

	return SummarizerOutput{Summary: summary, Memory: memory}, nil
}
