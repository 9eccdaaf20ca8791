// Package config provides configuration loading, validation, and defaults
// for the orchestration pipeline.
package config

import (
	"fmt"
	"path/filepath"
)

// Role names used for per-role model selection.
const (
	RolePlanner    = "planner"
	RoleDecomposer = "decomposer"
	RoleResearch   = "research"
	RolePrompter   = "prompter"
	RoleExecutor   = "executor"
	RoleReviewer   = "reviewer"
	RoleFixManager = "fix_manager"
	RoleSummarizer = "summarizer"
)

// Fix policies. PolicyRecord records one FixInstruction per rejected review
// and advances; PolicyLoop re-runs the execute/run/review cycle with the fix
// instruction until approval or budget exhaustion.
const (
	FixPolicyRecord = "record"
	FixPolicyLoop   = "loop"
)

// Default budgets and timeouts.
const (
	DefaultMaxFixAttempts        = 5
	DefaultMaxJSONRepairRetries  = 2
	DefaultHarnessTimeoutSeconds = 120
	DefaultLanguage              = "en"
	DefaultModel                 = "ollama:llama3"
	DefaultOllamaHost            = "http://localhost:11434"
)

// Models selects a model identifier per agent role. Identifiers use a
// "backend:model" form, e.g. "ollama:llama3" or "anthropic:claude-sonnet-4".
type Models struct {
	Planner    string `json:"planner" yaml:"planner"`
	Decomposer string `json:"decomposer" yaml:"decomposer"`
	Research   string `json:"research" yaml:"research"`
	Prompter   string `json:"prompter" yaml:"prompter"`
	Executor   string `json:"executor" yaml:"executor"`
	Reviewer   string `json:"reviewer" yaml:"reviewer"`
	FixManager string `json:"fix_manager" yaml:"fix_manager"`
	Summarizer string `json:"summarizer" yaml:"summarizer"`
}

// ForRole returns the model identifier configured for the given role.
func (m *Models) ForRole(role string) string {
	switch role {
	case RolePlanner:
		return m.Planner
	case RoleDecomposer:
		return m.Decomposer
	case RoleResearch:
		return m.Research
	case RolePrompter:
		return m.Prompter
	case RoleExecutor:
		return m.Executor
	case RoleReviewer:
		return m.Reviewer
	case RoleFixManager:
		return m.FixManager
	case RoleSummarizer:
		return m.Summarizer
	default:
		return ""
	}
}

// Backends holds connection settings for the supported model backends.
// API keys come from the environment, never from config files.
type Backends struct {
	OllamaHost      string `json:"ollama_host" yaml:"ollama_host"`
	AnthropicAPIKey string `json:"-" yaml:"-"`
	OpenAIAPIKey    string `json:"-" yaml:"-"`
	GoogleAPIKey    string `json:"-" yaml:"-"`
}

// Config is the full configuration surface of the orchestrator.
type Config struct {
	Language              string   `json:"language" yaml:"language"`
	Models                Models   `json:"models" yaml:"models"`
	Backends              Backends `json:"backends" yaml:"backends"`
	MaxFixAttempts        int      `json:"max_fix_attempts" yaml:"max_fix_attempts"`
	FixPolicy             string   `json:"fix_policy" yaml:"fix_policy"`
	MaxJSONRepairRetries  int      `json:"max_json_repair_retries" yaml:"max_json_repair_retries"`
	HarnessTimeoutSeconds int      `json:"harness_timeout_seconds" yaml:"harness_timeout_seconds"`
	AllowedPermissions    []string `json:"allowed_tool_permissions" yaml:"allowed_tool_permissions"`
	StorageDir            string   `json:"storage_dir" yaml:"storage_dir"`
	SnapshotDir           string   `json:"snapshot_dir" yaml:"snapshot_dir"`
	ToolDir               string   `json:"tool_dir" yaml:"tool_dir"`
	WorkspaceDir          string   `json:"workspace_dir" yaml:"workspace_dir"`
}

// Default returns a configuration with all defaults applied, rooted at the
// given base directory.
func Default(baseDir string) Config {
	return Config{
		Language: DefaultLanguage,
		Models: Models{
			Planner:    DefaultModel,
			Decomposer: DefaultModel,
			Research:   DefaultModel,
			Prompter:   DefaultModel,
			Executor:   DefaultModel,
			Reviewer:   DefaultModel,
			FixManager: DefaultModel,
			Summarizer: DefaultModel,
		},
		Backends: Backends{
			OllamaHost: DefaultOllamaHost,
		},
		MaxFixAttempts:        DefaultMaxFixAttempts,
		FixPolicy:             FixPolicyRecord,
		MaxJSONRepairRetries:  DefaultMaxJSONRepairRetries,
		HarnessTimeoutSeconds: DefaultHarnessTimeoutSeconds,
		AllowedPermissions:    []string{"python", "shell"},
		StorageDir:            filepath.Join(baseDir, "storage"),
		SnapshotDir:           filepath.Join(baseDir, "context_snapshots"),
		ToolDir:               filepath.Join(baseDir, "tools"),
		WorkspaceDir:          filepath.Join(baseDir, "storage", "runs"),
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.MaxFixAttempts < 1 {
		return fmt.Errorf("max_fix_attempts must be at least 1, got %d", c.MaxFixAttempts)
	}
	if c.MaxJSONRepairRetries < 1 {
		return fmt.Errorf("max_json_repair_retries must be at least 1, got %d", c.MaxJSONRepairRetries)
	}
	if c.HarnessTimeoutSeconds < 1 {
		return fmt.Errorf("harness_timeout_seconds must be at least 1, got %d", c.HarnessTimeoutSeconds)
	}
	if c.FixPolicy != FixPolicyRecord && c.FixPolicy != FixPolicyLoop {
		return fmt.Errorf("fix_policy must be %q or %q, got %q", FixPolicyRecord, FixPolicyLoop, c.FixPolicy)
	}
	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir cannot be empty")
	}
	if c.WorkspaceDir == "" {
		return fmt.Errorf("workspace_dir cannot be empty")
	}
	roles := []string{
		RolePlanner, RoleDecomposer, RoleResearch, RolePrompter,
		RoleExecutor, RoleReviewer, RoleFixManager, RoleSummarizer,
	}
	for _, role := range roles {
		if c.Models.ForRole(role) == "" {
			return fmt.Errorf("no model configured for role %q", role)
		}
	}
	return nil
}
