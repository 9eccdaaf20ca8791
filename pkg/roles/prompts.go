package roles

import "fmt"

// globalFlowPrompt describes the pipeline so every role understands its
// place in it. Shared prefix of all role prompts.
const globalFlowPrompt = `Pipeline flow (orchestrator):
1) A task is captured.
2) The planner produces an ordered plan of steps.
3) For each step: the decomposer concretizes the step.
4) Research gathers missing information (files, docs, tools).
5) The prompter builds a minimal executor prompt with tool hints.
6) The executor generates code and tests; the runner executes them.
7) The reviewer judges the result; the fix manager proposes fixes.
8) The summarizer compresses context; the next plan step follows.
All responses are strict JSON, deterministic, with no free text.`

// systemPrompts holds the per-role instruction, keyed by config role name.
var systemPrompts = map[string]string{
	"planner": "You are the planner. Produce an ordered plan of steps (title, summary). " +
		"No code, planning only. Respond exclusively with JSON.",
	"decomposer": "You are the decomposer. Select the current plan step and concretize it. " +
		"No re-planning, detail only. Keep the JSON as small as possible.",
	"research": "You are the researcher. Identify missing information for the current step, " +
		"use the existing context, and summarize findings. Respond as JSON with findings.",
	"prompter": "You are the prompter. Produce the minimal prompt and tool_hints for the executor. " +
		"Respond as JSON with 'prompt' and optionally 'tool_hints'.",
	"executor": "You are the executor. Produce deterministic Python code and pytest tests as JSON. " +
		"No comments, no placeholders. The code must run offline.",
	"reviewer": "You are the reviewer. Check the test results, deliver JSON issues and recommendations. " +
		"Be strict and precise.",
	"fix_manager": "You are the fix manager. Propose concrete fix steps (change_summary, retry) as JSON. " +
		"No full rewrites, targeted changes only.",
	"summarizer": "You are the summarizer. Briefly summarize the run and update memory as JSON. " +
		"No new plans, no code.",
}

// buildPrompt assembles the full prompt for a role: language directive,
// pipeline flow, role instruction, then the user content.
func buildPrompt(role, userPrompt, language string) string {
	return fmt.Sprintf("Language: %s\n%s\n%s\n\nUSER:\n%s",
		language, globalFlowPrompt, systemPrompts[role], userPrompt)
}
