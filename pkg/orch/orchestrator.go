package orch

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"taskforge/pkg/agent"
	"taskforge/pkg/config"
	"taskforge/pkg/eventlog"
	"taskforge/pkg/logx"
	"taskforge/pkg/metrics"
	"taskforge/pkg/proto"
	"taskforge/pkg/roles"
	"taskforge/pkg/runner"
	"taskforge/pkg/snapshot"
	"taskforge/pkg/tools"
)

// Harness runs one ExecutionRequest and reports the outcome as data.
// *runner.PytestRunner is the production implementation.
type Harness interface {
	Run(ctx context.Context, req proto.ExecutionRequest) (proto.ExecutionResult, error)
}

// Orchestrator drives a single task through the full pipeline. One instance
// processes one task at a time; Run is not safe for concurrent calls.
type Orchestrator struct {
	cfg      config.Config
	logger   *logx.Logger
	tracker  *Tracker
	events   *eventlog.Store
	snaps    *snapshot.Writer
	registry *tools.Registry
	harness  Harness
	recorder *metrics.Recorder
	memory   proto.ProjectMemory
	onStream roles.StreamCallback

	clients        map[string]agent.LLMClient
	clientsPinned  bool
	harnessPinned  bool
	registryPinned bool

	planner    *roles.Planner
	decomposer *roles.Decomposer
	research   *roles.Research
	prompter   *roles.Prompter
	executor   *roles.Executor
	reviewer   *roles.Reviewer
	fixer      *roles.FixManager
	summarizer *roles.Summarizer
}

// Option adjusts orchestrator construction.
type Option func(*Orchestrator)

// WithStreamCallback attaches a fire-and-forget observer for incremental
// model output. Chunks are user-facing feedback only.
func WithStreamCallback(cb roles.StreamCallback) Option {
	return func(o *Orchestrator) { o.onStream = cb }
}

// WithHarness overrides the execution harness, mainly for tests.
func WithHarness(h Harness) Option {
	return func(o *Orchestrator) {
		o.harness = h
		o.harnessPinned = true
	}
}

// WithRecorder attaches a metrics recorder. A nil recorder disables
// recording.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithClients pins the per-role model clients instead of building them from
// configuration. A missing or nil entry leaves that role on its
// deterministic fallback.
func WithClients(clients map[string]agent.LLMClient) Option {
	return func(o *Orchestrator) {
		o.clients = clients
		o.clientsPinned = true
	}
}

// WithRegistry overrides the tool registry, mainly for tests.
func WithRegistry(r *tools.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = r
		o.registryPinned = true
	}
}

// New creates an orchestrator with its storage, runner, and agents wired
// from the given configuration.
func New(cfg config.Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &Orchestrator{
		cfg:     cfg,
		logger:  logx.NewLogger("orchestrator"),
		tracker: NewTracker(cfg.MaxFixAttempts),
	}
	for _, opt := range opts {
		opt(o)
	}

	events, err := eventlog.New(filepath.Join(cfg.StorageDir, "events.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open event store: %w", err)
	}
	o.events = events

	snaps, err := snapshot.NewWriter(cfg.SnapshotDir)
	if err != nil {
		o.events.Close()
		return nil, fmt.Errorf("failed to create snapshot writer: %w", err)
	}
	o.snaps = snaps

	if !o.registryPinned {
		registry, err := tools.NewRegistry(cfg.ToolDir, cfg.AllowedPermissions)
		if err != nil {
			o.events.Close()
			return nil, fmt.Errorf("failed to create tool registry: %w", err)
		}
		o.registry = registry
	}

	if !o.harnessPinned {
		h, err := runner.NewPytestRunner(cfg.WorkspaceDir, runner.WithTimeout(cfg.HarnessTimeoutSeconds))
		if err != nil {
			o.events.Close()
			return nil, fmt.Errorf("failed to create runner: %w", err)
		}
		o.harness = h
	}

	if !o.clientsPinned {
		o.clients = o.buildClients()
	}
	o.buildAgents()

	return o, nil
}

// buildClients creates one model client per role from configuration. A role
// whose client cannot be created falls back to deterministic behavior.
func (o *Orchestrator) buildClients() map[string]agent.LLMClient {
	factory := agent.NewFactory(o.cfg.Backends)
	clients := make(map[string]agent.LLMClient)
	for _, role := range []string{
		config.RolePlanner, config.RoleDecomposer, config.RoleResearch,
		config.RolePrompter, config.RoleExecutor, config.RoleReviewer,
		config.RoleFixManager, config.RoleSummarizer,
	} {
		modelID := o.cfg.Models.ForRole(role)
		client, err := factory.CreateClient(modelID)
		if err != nil {
			o.logger.Warn("no model client for role %s (%s): %v; using deterministic fallback", role, modelID, err)
			continue
		}
		clients[role] = client
	}
	return clients
}

func (o *Orchestrator) buildAgents() {
	retries := o.cfg.MaxJSONRepairRetries
	o.planner = roles.NewPlanner(o.clientFor(config.RolePlanner), o.onStream, retries)
	o.decomposer = roles.NewDecomposer(o.clientFor(config.RoleDecomposer), o.onStream, retries)
	o.research = roles.NewResearch(o.clientFor(config.RoleResearch), o.onStream, retries)
	o.prompter = roles.NewPrompter(o.clientFor(config.RolePrompter), o.onStream, retries)
	o.executor = roles.NewExecutor(o.clientFor(config.RoleExecutor), o.onStream, retries)
	o.reviewer = roles.NewReviewer(o.clientFor(config.RoleReviewer), o.onStream, retries)
	o.fixer = roles.NewFixManager(o.clientFor(config.RoleFixManager), o.onStream, retries)
	o.summarizer = roles.NewSummarizer(o.clientFor(config.RoleSummarizer), o.onStream, retries)
}

// clientFor returns the instrumented client for a role, or nil when the role
// runs on its deterministic fallback.
func (o *Orchestrator) clientFor(role string) agent.LLMClient {
	client, ok := o.clients[role]
	if !ok || client == nil {
		return nil
	}
	if o.recorder == nil {
		return client
	}
	return metrics.Instrument(client, o.recorder, role)
}

// Close releases the event store handle.
func (o *Orchestrator) Close() error {
	return o.events.Close()
}

// Memory returns the project memory accumulated across runs.
func (o *Orchestrator) Memory() proto.ProjectMemory {
	return o.memory
}

// Events returns the append-only event log for inspection.
func (o *Orchestrator) Events() *eventlog.Store {
	return o.events
}

// Registry returns the tool registry owned by this orchestrator.
func (o *Orchestrator) Registry() *tools.Registry {
	return o.registry
}

// RegisterTool validates and persists a tool manifest, recording the
// registration in the event log.
func (o *Orchestrator) RegisterTool(ctx context.Context, manifest *tools.Manifest) error {
	if err := o.registry.Register(manifest); err != nil {
		return err
	}
	return o.logEvent(ctx, proto.EventToolRegistered, map[string]any{
		"name":    manifest.Name,
		"version": manifest.Version,
	})
}

// Run drives one task through the full pipeline and returns the run
// document. Model failures degrade to deterministic fallbacks; only
// unrecoverable faults (parse-repair exhaustion, storage failure, a broken
// execution environment) abort the run.
func (o *Orchestrator) Run(ctx context.Context, taskDescription string) (proto.RunResult, error) {
	task, err := o.intake(ctx, taskDescription)
	if err != nil {
		return proto.RunResult{}, o.abort(ctx, "", err)
	}

	plan, err := o.plan(ctx, task)
	if err != nil {
		return proto.RunResult{}, o.abort(ctx, task.TaskID, err)
	}

	var (
		reviews  []proto.ReviewContext
		findings []proto.Finding
	)
	for idx := range plan.Steps {
		review, err := o.processStep(ctx, task, &plan, idx, &findings)
		if err != nil {
			return proto.RunResult{}, o.abort(ctx, task.TaskID, err)
		}
		reviews = append(reviews, review)
		plan.CurrentStepIndex = idx + 1
		o.tracker.ResetFix()
	}

	summary, err := o.summarize(ctx, task, plan, reviews)
	if err != nil {
		return proto.RunResult{}, o.abort(ctx, task.TaskID, err)
	}

	if err := o.logEvent(ctx, proto.EventRunCompleted, map[string]any{"task_id": task.TaskID}); err != nil {
		return proto.RunResult{}, err
	}
	if err := o.tracker.Next(proto.StateFinalize); err != nil {
		return proto.RunResult{}, err
	}
	o.recorder.ObserveRun("completed")

	return proto.RunResult{
		Task:    task,
		Plan:    plan,
		Reviews: reviews,
		Summary: summary,
	}, nil
}

func (o *Orchestrator) intake(ctx context.Context, description string) (proto.Task, error) {
	task := proto.NewTask(description, o.cfg.Language)
	if err := o.logEvent(ctx, proto.EventTaskCreated, asPayload(task)); err != nil {
		return proto.Task{}, err
	}
	o.snaps.WriteBestEffort("task", task)
	return task, nil
}

func (o *Orchestrator) plan(ctx context.Context, task proto.Task) (proto.Plan, error) {
	if err := o.tracker.Next(proto.StatePlan); err != nil {
		return proto.Plan{}, err
	}
	plan, err := o.planner.Run(ctx, roles.PlannerInput{Task: task})
	if err != nil {
		return proto.Plan{}, fmt.Errorf("planner failed: %w", err)
	}
	if err := o.logEvent(ctx, proto.EventPlanCreated, asPayload(plan)); err != nil {
		return proto.Plan{}, err
	}
	o.snaps.WriteBestEffort("plan", plan)
	return plan, nil
}

// processStep runs the decompose/research/prompt/execute/run/review chain
// for one step, entering the fix phase when the review rejects. The caller
// advances the plan index afterwards regardless of the review outcome.
func (o *Orchestrator) processStep(ctx context.Context, task proto.Task, plan *proto.Plan, idx int, findings *[]proto.Finding) (proto.ReviewContext, error) {
	o.tracker.SetActiveStep(plan.Steps[idx].StepID)
	if err := o.tracker.Next(proto.StateDecompose); err != nil {
		return proto.ReviewContext{}, err
	}
	step, err := o.decomposer.Run(ctx, roles.DecomposerInput{Plan: *plan, StepIndex: idx})
	if err != nil {
		return proto.ReviewContext{}, fmt.Errorf("decomposer failed: %w", err)
	}

	if err := o.tracker.Next(proto.StateResearch); err != nil {
		return proto.ReviewContext{}, err
	}
	extended, err := o.research.Run(ctx, roles.ResearchInput{
		TaskDescription: task.Description,
		StepSummary:     step.Summary,
		PlanTitles:      plan.Titles(),
		Language:        task.Language,
		PriorFindings:   *findings,
	})
	if err != nil {
		return proto.ReviewContext{}, fmt.Errorf("research failed: %w", err)
	}
	*findings = extended

	if err := o.tracker.Next(proto.StatePromptBuild); err != nil {
		return proto.ReviewContext{}, err
	}
	prompt, err := o.prompter.Run(ctx, roles.PrompterInput{
		Task:     task,
		Step:     step,
		Plan:     *plan,
		Findings: *findings,
	})
	if err != nil {
		return proto.ReviewContext{}, fmt.Errorf("prompter failed: %w", err)
	}

	execution, err := o.attempt(ctx, step, *plan, prompt, *findings)
	if err != nil {
		return proto.ReviewContext{}, err
	}

	review, err := o.review(ctx, execution)
	if err != nil {
		return proto.ReviewContext{}, err
	}

	if review.Decision != proto.ReviewApproved {
		review, err = o.fixPhase(ctx, step, *plan, prompt, *findings, execution, review)
		if err != nil {
			return proto.ReviewContext{}, err
		}
	}
	return review, nil
}

// attempt generates code for the step and runs it through the harness,
// logging the outcome event and snapshot.
func (o *Orchestrator) attempt(ctx context.Context, step proto.StepContext, plan proto.Plan, prompt proto.PromptContext, findings []proto.Finding) (proto.ExecutionContext, error) {
	if err := o.tracker.Next(proto.StateExecute); err != nil {
		return proto.ExecutionContext{}, err
	}
	request, err := o.executor.Run(ctx, roles.ExecutorInput{
		Step:     step,
		Prompt:   prompt,
		Findings: findings,
	})
	if err != nil {
		return proto.ExecutionContext{}, fmt.Errorf("executor failed: %w", err)
	}

	if err := o.tracker.Next(proto.StateRunCode); err != nil {
		return proto.ExecutionContext{}, err
	}
	start := time.Now()
	result, err := o.harness.Run(ctx, request)
	if err != nil {
		return proto.ExecutionContext{}, fmt.Errorf("harness failed: %w", err)
	}
	o.recorder.ObserveExecution(time.Since(start))

	execution := proto.ExecutionContext{
		StepID:   step.StepID,
		PlanID:   plan.PlanID,
		TaskID:   plan.TaskID,
		Prompt:   prompt,
		Request:  request,
		Result:   result,
		Findings: findings,
	}

	eventType := proto.EventStepExecuted
	if result.Status != proto.ExecutionPassed {
		eventType = proto.EventTestFailed
	}
	payload := map[string]any{
		"step_id": step.StepID,
		"attempt": step.Attempt,
		"status":  string(result.Status),
		"stdout":  result.Stdout,
		"stderr":  result.Stderr,
	}
	if err := o.logEvent(ctx, eventType, payload); err != nil {
		return proto.ExecutionContext{}, err
	}
	o.snaps.WriteBestEffort("execution", execution)
	return execution, nil
}

func (o *Orchestrator) review(ctx context.Context, execution proto.ExecutionContext) (proto.ReviewContext, error) {
	if err := o.tracker.Next(proto.StateReview); err != nil {
		return proto.ReviewContext{}, err
	}
	review, err := o.reviewer.Run(ctx, roles.ReviewerInput{Execution: execution})
	if err != nil {
		return proto.ReviewContext{}, fmt.Errorf("reviewer failed: %w", err)
	}
	o.recorder.ObserveStep(string(review.Decision))
	return review, nil
}

// fixPhase handles a rejected review. Under the record policy the fix
// instruction is logged once and the step advances; under the loop policy
// the execute/run/review cycle repeats with the fix instruction folded into
// the findings, until approval or budget exhaustion.
func (o *Orchestrator) fixPhase(ctx context.Context, step proto.StepContext, plan proto.Plan, prompt proto.PromptContext, findings []proto.Finding, execution proto.ExecutionContext, review proto.ReviewContext) (proto.ReviewContext, error) {
	// Fix findings accumulate across retries so later attempts see every
	// earlier change summary, not just the latest.
	retryFindings := append([]proto.Finding(nil), findings...)
	for review.Decision != proto.ReviewApproved && !o.tracker.Exhausted() {
		if err := o.tracker.Next(proto.StateFix); err != nil {
			return proto.ReviewContext{}, err
		}
		attempt := o.tracker.IncrementFix()
		o.recorder.IncFixAttempt()

		fix, err := o.fixer.Run(ctx, roles.FixManagerInput{Review: review, Execution: execution})
		if err != nil {
			return proto.ReviewContext{}, fmt.Errorf("fix manager failed: %w", err)
		}
		payload := asPayload(fix)
		payload["attempt"] = attempt
		payload["exhausted"] = o.tracker.Exhausted()
		if err := o.logEvent(ctx, proto.EventFixRecorded, payload); err != nil {
			return proto.ReviewContext{}, err
		}
		o.snaps.WriteBestEffort("fix", fix)

		if o.cfg.FixPolicy != config.FixPolicyLoop {
			// Record-only policy: the instruction is logged and the
			// step advances without another attempt.
			return review, nil
		}

		step.Attempt++
		retryFindings = append(retryFindings, proto.Finding{
			Source:  "fix_manager",
			Content: strings.Join(fix.ChangeSummary, "; "),
		})
		execution, err = o.attempt(ctx, step, plan, prompt, retryFindings)
		if err != nil {
			return proto.ReviewContext{}, err
		}
		review, err = o.review(ctx, execution)
		if err != nil {
			return proto.ReviewContext{}, err
		}
	}

	if review.Decision != proto.ReviewApproved {
		o.logger.Warn("fix budget exhausted for step %s after %d attempts", step.StepID, o.tracker.FixAttempts())
	}
	return review, nil
}

func (o *Orchestrator) summarize(ctx context.Context, task proto.Task, plan proto.Plan, reviews []proto.ReviewContext) (string, error) {
	if err := o.tracker.Next(proto.StateSummarize); err != nil {
		return "", err
	}
	out, err := o.summarizer.Run(ctx, roles.SummarizerInput{
		Task:    task,
		Plan:    plan,
		Reviews: reviews,
		Memory:  o.memory,
	})
	if err != nil {
		return "", fmt.Errorf("summarizer failed: %w", err)
	}
	o.memory = out.Memory
	o.snaps.WriteBestEffort("summary", out)
	return out.Summary, nil
}

// abort records the fatal error in the event log before returning it.
func (o *Orchestrator) abort(ctx context.Context, taskID string, cause error) error {
	o.recorder.ObserveRun("aborted")
	payload := map[string]any{
		"task_id": taskID,
		"reason":  cause.Error(),
		"state":   o.tracker.Current().String(),
	}
	if err := o.logEvent(ctx, proto.EventErrorAborted, payload); err != nil {
		o.logger.Error("failed to record abort event: %v", err)
	}
	return cause
}

func (o *Orchestrator) logEvent(ctx context.Context, eventType proto.EventType, payload map[string]any) error {
	event := proto.NewEventRecord(eventType, payload)
	if err := o.events.Append(ctx, event); err != nil {
		return fmt.Errorf("failed to append %s event: %w", eventType, err)
	}
	return nil
}

// asPayload flattens a context record into an event payload via its JSON
// form.
func asPayload(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}
