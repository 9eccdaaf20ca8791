package roles

import (
	"context"
	"fmt"
	"strings"

	"taskforge/pkg/agent"
	"taskforge/pkg/proto"
	"taskforge/pkg/utils"
)

// Prompter builds the minimal directive for the executor, with tool hints.
// Without a model it is deterministic given identical inputs.
type Prompter struct {
	base
}

// PrompterInput is the prompter's typed input.
type PrompterInput struct {
	Task     proto.Task
	Step     proto.StepContext
	Plan     proto.Plan
	Findings []proto.Finding
}

// NewPrompter creates a prompter agent.
func NewPrompter(client agent.LLMClient, stream StreamCallback, repairRetries int) *Prompter {
	return &Prompter{base: newBase("PrompterAgent", client, stream, repairRetries)}
}

const prompterSchemaHint = `{ "prompt": "string", "tool_hints": ["python"] }`

// defaultToolHints is used when the model suggests nothing.
var defaultToolHints = []string{"python"}

// findingsTokenBudget caps the research context included in a prompt.
const findingsTokenBudget = 1024

// tokenCounter is shared across prompter instances. A nil counter falls back
// to character-based estimation.
var tokenCounter, _ = utils.NewTokenCounter()

// Run produces the PromptContext for one step.
func (p *Prompter) Run(ctx context.Context, in PrompterInput) (proto.PromptContext, error) {
	prompt := fmt.Sprintf(
		"Step: %s\nPlan: %v\nGenerate deterministic code and pytest to fulfill this step.",
		in.Step.Summary, in.Plan.Titles())
	toolHints := defaultToolHints

	if p.client != nil {
		findings := strings.Join(findingContents(in.Findings), "\n")
		findings = tokenCounter.TruncateToTokenLimit(findings, findingsTokenBudget)
		userPrompt := fmt.Sprintf(
			"Produce JSON with a prompt and optional tool_hints for this step:\n%s\n"+
				"Plan: %v\n"+
				"Findings:\n%s\n"+
				"Schema: %s\nKeep prompts short and precise.",
			prompt, in.Plan.Titles(), findings, prompterSchemaHint)

		resp, err := p.generateJSON(ctx, "prompter",
			buildPrompt("prompter", userPrompt, in.Task.Language),
			prompterSchemaHint, []string{"prompt"})
		switch {
		case err == nil:
			prompt = getString(resp, "prompt", prompt)
			if hints := getStringSlice(resp, "tool_hints"); len(hints) > 0 {
				toolHints = hints
			}
		case IsParseExhausted(err):
			return proto.PromptContext{}, err
		default:
			p.logger.Warn("prompter model unavailable, using deterministic prompt: %v", err)
		}
	}

	return proto.PromptContext{
		StepID:    in.Step.StepID,
		PlanID:    in.Step.PlanID,
		TaskID:    in.Step.TaskID,
		Prompt:    prompt,
		ToolHints: toolHints,
		Language:  in.Task.Language,
	}, nil
}

func findingContents(findings []proto.Finding) []string {
	contents := make([]string, 0, len(findings))
	for i := range findings {
		contents = append(contents, findings[i].Content)
	}
	return contents
}
