// Package proto defines the context records passed between pipeline stages.
// Every record is a plain, JSON-serializable value; none holds behavior
// beyond derived read accessors. Components exchange copies, never shared
// mutable state.
package proto

import (
	"time"

	"github.com/google/uuid"
)

// StepStatus tracks the lifecycle of a single plan step.
type StepStatus string

// Step status constants.
const (
	StepStatusPending   StepStatus = "PENDING"
	StepStatusRunning   StepStatus = "RUNNING"
	StepStatusCompleted StepStatus = "COMPLETED"
	StepStatusFailed    StepStatus = "FAILED"
	StepStatusSkipped   StepStatus = "SKIPPED"
)

// ExecutionStatus tracks the outcome of a harness invocation.
type ExecutionStatus string

// Execution status constants.
const (
	ExecutionNotRun  ExecutionStatus = "NOT_RUN"
	ExecutionRunning ExecutionStatus = "RUNNING"
	ExecutionPassed  ExecutionStatus = "PASSED"
	ExecutionFailed  ExecutionStatus = "FAILED"
)

// ReviewDecision is the pass/fail judgment over an execution result.
type ReviewDecision string

// Review decision constants.
const (
	ReviewApproved        ReviewDecision = "APPROVED"
	ReviewChangesRequired ReviewDecision = "CHANGES_REQUIRED"
)

// Severity levels for review issues.
const (
	SeverityCritical = "critical"
	SeverityMajor    = "major"
	SeverityMinor    = "minor"
)

// Task is the top-level natural-language objective for one run.
// Created once at run start; immutable thereafter.
type Task struct {
	TaskID      string `json:"task_id"`
	Description string `json:"description"`
	Language    string `json:"language"`
}

// NewTask creates a Task with a fresh id.
func NewTask(description, language string) Task {
	return Task{
		TaskID:      uuid.New().String(),
		Description: description,
		Language:    language,
	}
}

// PlanStep is one unit of work within a Plan.
type PlanStep struct {
	StepID          string     `json:"step_id"`
	Title           string     `json:"title"`
	Summary         string     `json:"summary"`
	Status          StepStatus `json:"status"`
	Dependencies    []string   `json:"dependencies,omitempty"`
	ExpectedOutputs []string   `json:"expected_outputs,omitempty"`
}

// NewPlanStep creates a pending step with a fresh id.
func NewPlanStep(title, summary string) PlanStep {
	return PlanStep{
		StepID:  uuid.New().String(),
		Title:   title,
		Summary: summary,
		Status:  StepStatusPending,
	}
}

// Plan is the ordered list of steps produced once per Task.
// CurrentStepIndex increases monotonically by one after each processed step
// and never exceeds len(Steps).
type Plan struct {
	PlanID           string     `json:"plan_id"`
	TaskID           string     `json:"task_id"`
	Steps            []PlanStep `json:"steps"`
	CurrentStepIndex int        `json:"current_step_index"`
	Version          string     `json:"version"`
}

// NewPlan creates a Plan for the given task with a fresh id.
func NewPlan(taskID string, steps []PlanStep) Plan {
	return Plan{
		PlanID:  uuid.New().String(),
		TaskID:  taskID,
		Steps:   steps,
		Version: "0.1.0",
	}
}

// Titles returns the step titles in plan order.
func (p *Plan) Titles() []string {
	titles := make([]string, 0, len(p.Steps))
	for i := range p.Steps {
		titles = append(titles, p.Steps[i].Title)
	}
	return titles
}

// StepContext is the concretized, execution-ready form of one plan step.
// Attempt starts at 1.
type StepContext struct {
	StepID  string     `json:"step_id"`
	PlanID  string     `json:"plan_id"`
	TaskID  string     `json:"task_id"`
	Summary string     `json:"summary"`
	Attempt int        `json:"attempt"`
	Status  StepStatus `json:"status"`
}

// Finding is one piece of gathered information relevant to a step.
// Findings accumulate additively across the run; they are never removed.
type Finding struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// PromptContext carries the directive handed to the Executor for one step.
type PromptContext struct {
	StepID    string   `json:"step_id"`
	PlanID    string   `json:"plan_id"`
	TaskID    string   `json:"task_id"`
	Prompt    string   `json:"prompt"`
	ToolHints []string `json:"tool_hints,omitempty"`
	Language  string   `json:"language"`
}

// ExecutionRequest is the code and tests submitted to the execution runner.
// Generated fresh per attempt.
type ExecutionRequest struct {
	Code           string `json:"code"`
	Tests          string `json:"tests"`
	ExpectedOutput string `json:"expected_output,omitempty"`
	WorkingDir     string `json:"working_dir,omitempty"`
}

// ExecutionResult is the outcome reported by the execution runner.
// Immutable once returned.
type ExecutionResult struct {
	Status    ExecutionStatus `json:"status"`
	Stdout    string          `json:"stdout"`
	Stderr    string          `json:"stderr"`
	ExitCode  int             `json:"exit_code"`
	Traceback string          `json:"traceback,omitempty"`
}

// ExecutionContext aggregates everything the Reviewer needs to judge one
// attempt of one step.
type ExecutionContext struct {
	StepID   string           `json:"step_id"`
	PlanID   string           `json:"plan_id"`
	TaskID   string           `json:"task_id"`
	Prompt   PromptContext    `json:"prompt"`
	Request  ExecutionRequest `json:"request"`
	Result   ExecutionResult  `json:"result"`
	Findings []Finding        `json:"findings,omitempty"`
}

// Issue is one structured problem found during review.
type Issue struct {
	Title    string `json:"title"`
	Detail   string `json:"detail"`
	Severity string `json:"severity"`
}

// ReviewContext is the judgment over an ExecutionResult. The decision is
// APPROVED iff the execution status is PASSED; otherwise CHANGES_REQUIRED
// with at least one Issue recording the failure evidence.
type ReviewContext struct {
	StepID          string            `json:"step_id"`
	PlanID          string            `json:"plan_id"`
	TaskID          string            `json:"task_id"`
	Decision        ReviewDecision    `json:"decision"`
	Issues          []Issue           `json:"issues,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
	Evidence        map[string]string `json:"evidence,omitempty"`
}

// FixInstruction is a proposed, bounded corrective action following a
// rejected review. Retry is true whenever the triggering review was not
// approved.
type FixInstruction struct {
	StepID        string   `json:"step_id"`
	PlanID        string   `json:"plan_id"`
	TaskID        string   `json:"task_id"`
	ChangeSummary []string `json:"change_summary"`
	Retry         bool     `json:"retry"`
}

// ProjectMemory is the only cross-task persistent entity. TaskSummaries is
// append-only; the Summarizer adds exactly one entry per run.
type ProjectMemory struct {
	TaskSummaries     []string `json:"task_summaries"`
	CompressedContext string   `json:"compressed_context"`
}

// RunResult is the document returned by a completed orchestrator run.
type RunResult struct {
	Task    Task            `json:"task"`
	Plan    Plan            `json:"plan"`
	Reviews []ReviewContext `json:"reviews"`
	Summary string          `json:"summary"`
}

// EventType labels one kind of lifecycle event.
type EventType string

// Event type constants.
const (
	EventTaskCreated    EventType = "TASK_CREATED"
	EventPlanCreated    EventType = "PLAN_CREATED"
	EventStepExecuted   EventType = "STEP_EXECUTED"
	EventTestFailed     EventType = "TEST_FAILED"
	EventFixRecorded    EventType = "FIX_RECORDED"
	EventToolRegistered EventType = "TOOL_REGISTERED"
	EventErrorAborted   EventType = "ERROR_ABORTED"
	EventRunCompleted   EventType = "RUN_COMPLETED"
)

// EventRecord is one immutable, timestamped fact in the run's audit log.
// Ordering key is CreatedAt.
type EventRecord struct {
	EventID   string         `json:"event_id"`
	EventType EventType      `json:"event_type"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload"`
}

// NewEventRecord creates an event with a fresh id and the current UTC time.
func NewEventRecord(eventType EventType, payload map[string]any) EventRecord {
	return EventRecord{
		EventID:   uuid.New().String(),
		EventType: eventType,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
}
