// Package openai provides the OpenAI client implementation for the LLM
// interface, built on the official SDK's Responses API.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"taskforge/pkg/agent/llm"
	"taskforge/pkg/agent/llmerrors"
)

// Client wraps the official OpenAI SDK to implement llm.LLMClient.
type Client struct {
	client openai.Client
	model  string
}

// NewClientWithModel creates a new OpenAI client bound to a specific model.
func NewClientWithModel(apiKey, model string) llm.LLMClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{client: client, model: model}
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value matches interface
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	// The Responses API takes a single input string; fold the conversation
	// into one transcript.
	var input strings.Builder
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			fmt.Fprintf(&input, "System: %s\n\n", msg.Content)
		case llm.RoleAssistant:
			fmt.Fprintf(&input, "Assistant: %s\n\n", msg.Content)
		default:
			input.WriteString(msg.Content)
			input.WriteString("\n\n")
		}
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(strings.TrimSpace(input.String()))},
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	content := resp.OutputText()
	if content == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "response contained no output text")
	}

	return llm.CompletionResponse{Content: content}, nil
}

// Stream implements the llm.LLMClient interface by draining a synchronous
// completion into a single-chunk stream.
//
//nolint:gocritic // CompletionRequest passed by value matches interface
func (o *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := o.Complete(ctx, in)
		if err != nil {
			ch <- llm.StreamChunk{Error: err}
			return
		}
		ch <- llm.StreamChunk{Content: resp.Content}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "429"), strings.Contains(lower, "rate"), strings.Contains(lower, "quota"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "rate limit exceeded")
	case strings.Contains(lower, "401"), strings.Contains(lower, "403"), strings.Contains(lower, "auth"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "authentication failed")
	case strings.Contains(lower, "400"), strings.Contains(lower, "invalid"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "bad request")
	case strings.Contains(lower, "500"), strings.Contains(lower, "502"),
		strings.Contains(lower, "503"), strings.Contains(lower, "504"),
		strings.Contains(lower, "timeout"), strings.Contains(lower, "connection"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "server or network error")
	default:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "OpenAI API error")
	}
}
