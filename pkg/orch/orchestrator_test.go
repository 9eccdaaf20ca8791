package orch

import (
	"context"
	"strings"
	"testing"

	"taskforge/pkg/agent"
	"taskforge/pkg/config"
	"taskforge/pkg/proto"
	"taskforge/pkg/tools"
)

// stubHarness replays scripted results, repeating the last one when the
// script runs out.
type stubHarness struct {
	results  []proto.ExecutionResult
	err      error
	requests []proto.ExecutionRequest
}

func (s *stubHarness) Run(_ context.Context, req proto.ExecutionRequest) (proto.ExecutionResult, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return proto.ExecutionResult{}, s.err
	}
	idx := len(s.requests) - 1
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	return s.results[idx], nil
}

func passResult() proto.ExecutionResult {
	return proto.ExecutionResult{Status: proto.ExecutionPassed, Stdout: "1 passed", ExitCode: 0}
}

func failResult(stderr string) proto.ExecutionResult {
	return proto.ExecutionResult{Status: proto.ExecutionFailed, Stderr: stderr, ExitCode: 1}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Default(t.TempDir())
}

// newOffline builds an orchestrator with no model clients and the given
// harness; every role runs its deterministic fallback.
func newOffline(t *testing.T, cfg config.Config, h Harness, clients map[string]agent.LLMClient) *Orchestrator {
	t.Helper()
	o, err := New(cfg, WithHarness(h), WithClients(clients))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { o.Close() })
	return o
}

func eventTypes(t *testing.T, o *Orchestrator) []proto.EventType {
	t.Helper()
	records, err := o.Events().FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	types := make([]proto.EventType, 0, len(records))
	for _, r := range records {
		types = append(types, r.EventType)
	}
	return types
}

func countEvents(types []proto.EventType, want proto.EventType) int {
	n := 0
	for _, tp := range types {
		if tp == want {
			n++
		}
	}
	return n
}

func TestRunCompletesOffline(t *testing.T) {
	harness := &stubHarness{results: []proto.ExecutionResult{passResult()}}
	o := newOffline(t, testConfig(t), harness, nil)

	result, err := o.Run(context.Background(), "write ok to output.txt")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Task.Description != "write ok to output.txt" {
		t.Errorf("task description = %q", result.Task.Description)
	}
	if len(result.Plan.Steps) != 4 {
		t.Fatalf("fallback plan steps = %d, want 4", len(result.Plan.Steps))
	}
	if result.Plan.CurrentStepIndex != len(result.Plan.Steps) {
		t.Errorf("current_step_index = %d, want %d", result.Plan.CurrentStepIndex, len(result.Plan.Steps))
	}
	if len(result.Reviews) != 4 {
		t.Fatalf("reviews = %d, want 4", len(result.Reviews))
	}
	for i, review := range result.Reviews {
		if review.Decision != proto.ReviewApproved {
			t.Errorf("review %d decision = %s, want APPROVED", i, review.Decision)
		}
	}
	if result.Summary == "" {
		t.Error("summary must not be empty")
	}
	if len(o.Memory().TaskSummaries) != 1 {
		t.Errorf("memory summaries = %d, want 1", len(o.Memory().TaskSummaries))
	}
}

func TestRunEventOrdering(t *testing.T) {
	harness := &stubHarness{results: []proto.ExecutionResult{passResult()}}
	o := newOffline(t, testConfig(t), harness, nil)

	if _, err := o.Run(context.Background(), "write ok to output.txt"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	types := eventTypes(t, o)
	if len(types) < 3 {
		t.Fatalf("too few events: %v", types)
	}
	if types[0] != proto.EventTaskCreated {
		t.Errorf("first event = %s, want TASK_CREATED", types[0])
	}
	if types[1] != proto.EventPlanCreated {
		t.Errorf("second event = %s, want PLAN_CREATED", types[1])
	}
	if types[len(types)-1] != proto.EventRunCompleted {
		t.Errorf("last event = %s, want RUN_COMPLETED", types[len(types)-1])
	}
	if got := countEvents(types, proto.EventStepExecuted); got != 4 {
		t.Errorf("STEP_EXECUTED events = %d, want 4", got)
	}
}

func TestRunRecordsFixOnFailure(t *testing.T) {
	const stderr = "AssertionError: expected ok"
	harness := &stubHarness{results: []proto.ExecutionResult{failResult(stderr)}}
	o := newOffline(t, testConfig(t), harness, nil)

	result, err := o.Run(context.Background(), "write ok to output.txt")
	if err != nil {
		t.Fatalf("a failing test must not abort the run: %v", err)
	}

	for i, review := range result.Reviews {
		if review.Decision != proto.ReviewChangesRequired {
			t.Fatalf("review %d decision = %s, want CHANGES_REQUIRED", i, review.Decision)
		}
		if len(review.Issues) == 0 {
			t.Fatalf("review %d has no issues", i)
		}
		issue := review.Issues[0]
		if issue.Severity != proto.SeverityCritical {
			t.Errorf("issue severity = %q, want critical", issue.Severity)
		}
		if issue.Detail != stderr {
			t.Errorf("issue detail = %q, want harness stderr", issue.Detail)
		}
	}

	// A rejected step never blocks the run.
	if result.Plan.CurrentStepIndex != len(result.Plan.Steps) {
		t.Errorf("current_step_index = %d, want %d", result.Plan.CurrentStepIndex, len(result.Plan.Steps))
	}

	types := eventTypes(t, o)
	if got := countEvents(types, proto.EventTestFailed); got != 4 {
		t.Errorf("TEST_FAILED events = %d, want 4", got)
	}
	// Record policy: exactly one fix instruction per rejected step.
	if got := countEvents(types, proto.EventFixRecorded); got != 4 {
		t.Errorf("FIX_RECORDED events = %d, want 4", got)
	}
}

func singleStepPlannerClient() *agent.MockClient {
	return agent.NewMockClient("mock",
		`{"plan": [{"title": "Write file", "summary": "Write ok to output.txt"}], "summaries": {}, "clarification": {"needed": false, "question": ""}}`)
}

func TestLoopPolicyRetriesUntilApproved(t *testing.T) {
	cfg := testConfig(t)
	cfg.FixPolicy = config.FixPolicyLoop

	harness := &stubHarness{results: []proto.ExecutionResult{
		failResult("AssertionError: first attempt"),
		passResult(),
	}}
	clients := map[string]agent.LLMClient{config.RolePlanner: singleStepPlannerClient()}
	o := newOffline(t, cfg, harness, clients)

	result, err := o.Run(context.Background(), "write ok to output.txt")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(result.Reviews) != 1 {
		t.Fatalf("reviews = %d, want 1", len(result.Reviews))
	}
	if result.Reviews[0].Decision != proto.ReviewApproved {
		t.Errorf("final decision = %s, want APPROVED after retry", result.Reviews[0].Decision)
	}
	if len(harness.requests) != 2 {
		t.Errorf("harness invocations = %d, want 2", len(harness.requests))
	}

	types := eventTypes(t, o)
	if got := countEvents(types, proto.EventFixRecorded); got != 1 {
		t.Errorf("FIX_RECORDED events = %d, want 1", got)
	}
	if got := countEvents(types, proto.EventTestFailed); got != 1 {
		t.Errorf("TEST_FAILED events = %d, want 1", got)
	}
	if got := countEvents(types, proto.EventStepExecuted); got != 1 {
		t.Errorf("STEP_EXECUTED events = %d, want 1", got)
	}
}

func TestLoopPolicyExhaustsBudget(t *testing.T) {
	cfg := testConfig(t)
	cfg.FixPolicy = config.FixPolicyLoop
	cfg.MaxFixAttempts = 2

	harness := &stubHarness{results: []proto.ExecutionResult{failResult("AssertionError: still broken")}}
	clients := map[string]agent.LLMClient{config.RolePlanner: singleStepPlannerClient()}
	o := newOffline(t, cfg, harness, clients)

	result, err := o.Run(context.Background(), "write ok to output.txt")
	if err != nil {
		t.Fatalf("exhausting the fix budget must not abort the run: %v", err)
	}

	if result.Reviews[0].Decision != proto.ReviewChangesRequired {
		t.Errorf("final decision = %s, want CHANGES_REQUIRED", result.Reviews[0].Decision)
	}
	// Initial attempt plus one retry per fix attempt.
	if len(harness.requests) != 3 {
		t.Errorf("harness invocations = %d, want 3", len(harness.requests))
	}

	records, err := o.Events().FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	var fixPayloads []map[string]any
	for _, r := range records {
		if r.EventType == proto.EventFixRecorded {
			fixPayloads = append(fixPayloads, r.Payload)
		}
	}
	if len(fixPayloads) != 2 {
		t.Fatalf("FIX_RECORDED events = %d, want 2", len(fixPayloads))
	}
	if exhausted, _ := fixPayloads[1]["exhausted"].(bool); !exhausted {
		t.Error("last fix event must mark the budget exhausted")
	}
}

func TestLoopPolicyAccumulatesFixSummaries(t *testing.T) {
	cfg := testConfig(t)
	cfg.FixPolicy = config.FixPolicyLoop
	cfg.MaxFixAttempts = 2

	harness := &stubHarness{results: []proto.ExecutionResult{
		failResult("AssertionError: first failure"),
		failResult("AssertionError: second failure"),
		failResult("AssertionError: third failure"),
	}}
	executor := agent.NewMockClient("mock")
	executor.Fallback = func(agent.CompletionRequest) (string, error) {
		return `{"code": "pass", "tests": "def test_ok():\n    assert True\n", "expected_output": ""}`, nil
	}
	clients := map[string]agent.LLMClient{
		config.RolePlanner:  singleStepPlannerClient(),
		config.RoleExecutor: executor,
	}
	o := newOffline(t, cfg, harness, clients)

	if _, err := o.Run(context.Background(), "write ok to output.txt"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Initial attempt plus one retry per fix attempt.
	if got := executor.CallCount(); got != 3 {
		t.Fatalf("executor calls = %d, want 3", got)
	}
	// The second retry must see both earlier change summaries.
	var lastPrompt strings.Builder
	for _, msg := range executor.Requests[2].Messages {
		lastPrompt.WriteString(msg.Content)
	}
	for _, want := range []string{"first failure", "second failure"} {
		if !strings.Contains(lastPrompt.String(), want) {
			t.Errorf("final retry prompt missing fix summary %q", want)
		}
	}
}

func TestRunWithScriptedExecutor(t *testing.T) {
	cfg := testConfig(t)
	harness := &stubHarness{results: []proto.ExecutionResult{passResult()}}
	clients := map[string]agent.LLMClient{
		config.RolePlanner: singleStepPlannerClient(),
		config.RoleExecutor: agent.NewMockClient("mock",
			`{"code": "def run_task():\n    with open('output.txt', 'w') as f:\n        f.write('ok')\n", "tests": "from task_module import run_task\n\ndef test_run_task():\n    run_task()\n    assert open('output.txt').read() == 'ok'\n", "expected_output": "output.txt"}`),
	}
	o := newOffline(t, cfg, harness, clients)

	result, err := o.Run(context.Background(), "write ok to output.txt")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Reviews[0].Decision != proto.ReviewApproved {
		t.Errorf("decision = %s, want APPROVED", result.Reviews[0].Decision)
	}
	if len(harness.requests) != 1 {
		t.Fatalf("harness invocations = %d, want 1", len(harness.requests))
	}
	if !strings.Contains(harness.requests[0].Code, "output.txt") {
		t.Errorf("generated code not forwarded to harness: %q", harness.requests[0].Code)
	}
	if harness.requests[0].ExpectedOutput != "output.txt" {
		t.Errorf("expected_output = %q", harness.requests[0].ExpectedOutput)
	}
}

func TestParseExhaustionAbortsRun(t *testing.T) {
	planner := agent.NewMockClient("mock")
	planner.Fallback = func(agent.CompletionRequest) (string, error) {
		return "no structured content here", nil
	}
	clients := map[string]agent.LLMClient{config.RolePlanner: planner}
	harness := &stubHarness{results: []proto.ExecutionResult{passResult()}}
	o := newOffline(t, testConfig(t), harness, clients)

	_, err := o.Run(context.Background(), "write ok to output.txt")
	if err == nil {
		t.Fatal("parse exhaustion must abort the run")
	}

	types := eventTypes(t, o)
	if types[len(types)-1] != proto.EventErrorAborted {
		t.Errorf("last event = %s, want ERROR_ABORTED", types[len(types)-1])
	}
}

func TestHarnessEnvironmentFaultAbortsRun(t *testing.T) {
	harness := &stubHarness{err: context.DeadlineExceeded}
	o := newOffline(t, testConfig(t), harness, nil)

	_, err := o.Run(context.Background(), "write ok to output.txt")
	if err == nil {
		t.Fatal("an environment fault must abort the run")
	}
	types := eventTypes(t, o)
	if got := countEvents(types, proto.EventErrorAborted); got != 1 {
		t.Errorf("ERROR_ABORTED events = %d, want 1", got)
	}
}

func TestRegisterToolEmitsEvent(t *testing.T) {
	harness := &stubHarness{results: []proto.ExecutionResult{passResult()}}
	o := newOffline(t, testConfig(t), harness, nil)

	manifest := &tools.Manifest{
		Name:         "file_writer",
		Version:      "1.0.0",
		Entrypoint:   "file_writer.py",
		InputSchema:  map[string]any{"path": "string"},
		OutputSchema: map[string]any{"ok": "bool"},
		Permissions:  []string{"python"},
	}
	if err := o.RegisterTool(context.Background(), manifest); err != nil {
		t.Fatalf("RegisterTool: %v", err)
	}

	if o.Registry().Get("file_writer") == nil {
		t.Fatal("manifest not registered")
	}
	types := eventTypes(t, o)
	if got := countEvents(types, proto.EventToolRegistered); got != 1 {
		t.Errorf("TOOL_REGISTERED events = %d, want 1", got)
	}
}

func TestFindingsAccumulateAcrossSteps(t *testing.T) {
	cfg := testConfig(t)
	harness := &stubHarness{results: []proto.ExecutionResult{passResult()}}
	research := agent.NewMockClient("mock",
		`{"findings": [{"source": "docs", "content": "use pathlib for file io"}]}`,
		`{"findings": [{"source": "docs", "content": "pytest tmp_path fixture isolates files"}]}`,
	)
	clients := map[string]agent.LLMClient{
		config.RolePlanner: agent.NewMockClient("mock",
			`{"plan": [{"title": "a", "summary": "first"}, {"title": "b", "summary": "second"}], "summaries": {}, "clarification": {"needed": false, "question": ""}}`),
		config.RoleResearch: research,
	}
	o := newOffline(t, cfg, harness, clients)

	if _, err := o.Run(context.Background(), "write ok to output.txt"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The second research call must have received the first step's finding.
	if got := research.CallCount(); got != 2 {
		t.Fatalf("research calls = %d, want 2", got)
	}
	second := research.Requests[1]
	var sawPrior bool
	for _, msg := range second.Messages {
		if strings.Contains(msg.Content, "use pathlib for file io") {
			sawPrior = true
		}
	}
	if !sawPrior {
		t.Error("prior findings not forwarded to the second research call")
	}
}
