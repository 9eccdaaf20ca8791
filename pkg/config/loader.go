package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config file names probed by Load, in order.
var configFilenames = []string{"taskforge.yaml", "taskforge.yml", "taskforge.json"}

// Load reads configuration from baseDir, applying defaults for anything the
// file does not set, then environment overrides on top. A missing config
// file is not an error; defaults apply.
func Load(baseDir string) (Config, error) {
	cfg := Default(baseDir)

	for _, name := range configFilenames {
		path := filepath.Join(baseDir, name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := unmarshalConfig(name, data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		break
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func unmarshalConfig(filename string, data []byte, cfg *Config) error {
	if strings.HasSuffix(filename, ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("json decode: %w", err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("yaml decode: %w", err)
	}
	return nil
}

// applyEnvOverrides layers environment variables over file values. API keys
// are only ever read from the environment.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TASKFORGE_LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv("TASKFORGE_OLLAMA_HOST"); v != "" {
		cfg.Backends.OllamaHost = v
	}
	if v := os.Getenv("TASKFORGE_FIX_POLICY"); v != "" {
		cfg.FixPolicy = v
	}
	if v := os.Getenv("TASKFORGE_MAX_FIX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxFixAttempts = n
		}
	}
	if v := os.Getenv("TASKFORGE_HARNESS_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HarnessTimeoutSeconds = n
		}
	}
	cfg.Backends.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.Backends.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Backends.GoogleAPIKey = os.Getenv("GOOGLE_API_KEY")
}

// EnsureDirs creates the directories the pipeline writes to.
func EnsureDirs(cfg *Config) error {
	for _, dir := range []string{cfg.StorageDir, cfg.SnapshotDir, cfg.ToolDir, cfg.WorkspaceDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
