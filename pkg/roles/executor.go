package roles

import (
	"context"
	"fmt"

	"taskforge/pkg/agent"
	"taskforge/pkg/proto"
)

// Executor generates the code and tests for one step. The output must be
// self-contained and runnable without network access.
type Executor struct {
	base
}

// ExecutorInput is the executor's typed input.
type ExecutorInput struct {
	Step     proto.StepContext
	Prompt   proto.PromptContext
	Findings []proto.Finding
}

// NewExecutor creates an executor agent.
func NewExecutor(client agent.LLMClient, stream StreamCallback, repairRetries int) *Executor {
	return &Executor{base: newBase("ExecutorAgent", client, stream, repairRetries)}
}

const executorSchemaHint = `{ "code": "python code", "tests": "pytest code", "expected_output": "string" }`

// Fallback module: write a marker file and verify its content. Keeps the
// whole pipeline runnable with no model attached.
const (
	fallbackCode = "def run_task(path: str = 'output.txt', content: str = 'ok'):\n" +
		"    \"\"\"Write content to a file and return path.\"\"\"\n" +
		"    with open(path, 'w', encoding='utf-8') as f:\n" +
		"        f.write(content)\n" +
		"    return path\n"

	fallbackTests = "from task_module import run_task\n\n" +
		"def test_run_task(tmp_path):\n" +
		"    target = tmp_path / 'output.txt'\n" +
		"    p = run_task(str(target), 'ok')\n" +
		"    assert target.read_text(encoding='utf-8') == 'ok'\n" +
		"    assert p.endswith('output.txt')\n"

	fallbackExpectedOutput = "output.txt"
)

// Run produces the ExecutionRequest for one step.
func (e *Executor) Run(ctx context.Context, in ExecutorInput) (proto.ExecutionRequest, error) {
	req := proto.ExecutionRequest{
		Code:           fallbackCode,
		Tests:          fallbackTests,
		ExpectedOutput: fallbackExpectedOutput,
	}

	if e.client == nil {
		return req, nil
	}

	userPrompt := fmt.Sprintf(
		"Produce Python code and pytest tests as JSON for this step.\n"+
			"Task:\n%s\n"+
			"Findings: %v\n"+
			"Schema: %s\n"+
			"Only compact, deterministic code, no comments.",
		in.Prompt.Prompt, findingContents(in.Findings), executorSchemaHint)

	resp, err := e.generateJSON(ctx, "executor",
		buildPrompt("executor", userPrompt, in.Prompt.Language),
		executorSchemaHint, []string{"code", "tests"})
	if err != nil {
		if IsParseExhausted(err) {
			return proto.ExecutionRequest{}, err
		}
		e.logger.Warn("executor model unavailable, using fallback module: %v", err)
		return req, nil
	}

	req.Code = getString(resp, "code", req.Code)
	req.Tests = getString(resp, "tests", req.Tests)
	req.ExpectedOutput = getString(resp, "expected_output", req.ExpectedOutput)
	return req, nil
}
