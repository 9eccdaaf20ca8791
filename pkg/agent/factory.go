package agent

import (
	"fmt"
	"strings"

	"taskforge/pkg/agent/internal/llmimpl/anthropic"
	"taskforge/pkg/agent/internal/llmimpl/google"
	"taskforge/pkg/agent/internal/llmimpl/ollama"
	"taskforge/pkg/agent/internal/llmimpl/openai"
	"taskforge/pkg/config"
)

// Backend identifies an LLM provider.
type Backend string

const (
	// BackendOllama routes to a local Ollama server.
	BackendOllama Backend = "ollama"
	// BackendAnthropic routes to the Anthropic API.
	BackendAnthropic Backend = "anthropic"
	// BackendOpenAI routes to the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendGoogle routes to the Google Gemini API.
	BackendGoogle Backend = "google"
)

// ParseModelID splits a model identifier of the form "backend:model" into its
// parts. A bare model name with no separator defaults to the Ollama backend.
func ParseModelID(modelID string) (Backend, string, error) {
	if modelID == "" {
		return "", "", fmt.Errorf("model identifier cannot be empty")
	}

	backend, model, found := strings.Cut(modelID, ":")
	if !found {
		return BackendOllama, modelID, nil
	}
	if model == "" {
		return "", "", fmt.Errorf("model identifier %q has no model name after backend prefix", modelID)
	}

	switch Backend(backend) {
	case BackendOllama, BackendAnthropic, BackendOpenAI, BackendGoogle:
		return Backend(backend), model, nil
	default:
		return "", "", fmt.Errorf("unknown backend %q in model identifier %q", backend, modelID)
	}
}

// Factory creates LLM clients from model identifiers, wiring in credentials
// and retry behavior.
type Factory struct {
	backends config.Backends
	retry    RetryConfig
}

// NewFactory creates a client factory using the given backend configuration.
func NewFactory(backends config.Backends) *Factory {
	return &Factory{backends: backends, retry: DefaultRetryConfig}
}

// CreateClient builds a retry-wrapped client for a "backend:model" identifier.
// Hosted backends require their API key to be configured.
func (f *Factory) CreateClient(modelID string) (LLMClient, error) {
	backend, model, err := ParseModelID(modelID)
	if err != nil {
		return nil, err
	}

	var raw LLMClient
	switch backend {
	case BackendOllama:
		host := f.backends.OllamaHost
		if host == "" {
			host = config.DefaultOllamaHost
		}
		raw = ollama.NewClientWithModel(host, model)
	case BackendAnthropic:
		if f.backends.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("model %q requires ANTHROPIC_API_KEY to be set", modelID)
		}
		raw = anthropic.NewClaudeClientWithModel(f.backends.AnthropicAPIKey, model)
	case BackendOpenAI:
		if f.backends.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("model %q requires OPENAI_API_KEY to be set", modelID)
		}
		raw = openai.NewClientWithModel(f.backends.OpenAIAPIKey, model)
	case BackendGoogle:
		if f.backends.GoogleAPIKey == "" {
			return nil, fmt.Errorf("model %q requires GOOGLE_API_KEY to be set", modelID)
		}
		raw = google.NewGeminiClientWithModel(f.backends.GoogleAPIKey, model)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}

	return NewRetryableClient(raw, f.retry), nil
}
