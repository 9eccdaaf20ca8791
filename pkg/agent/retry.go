package agent

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"taskforge/pkg/agent/llmerrors"
)

// RetryConfig defines configuration for retry behavior.
type RetryConfig struct {
	MaxRetries    int           // Maximum number of retry attempts
	InitialDelay  time.Duration // Initial delay before first retry
	MaxDelay      time.Duration // Maximum delay between retries
	BackoffFactor float64       // Multiplier for exponential backoff
}

// DefaultRetryConfig provides reasonable defaults for retry behavior.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
}

// RetryableClient wraps an LLMClient with retry logic.
type RetryableClient struct {
	client LLMClient
	config RetryConfig
}

// NewRetryableClient creates a new retryable LLM client.
func NewRetryableClient(client LLMClient, config RetryConfig) *RetryableClient {
	return &RetryableClient{client: client, config: config}
}

// Complete implements LLMClient with retry logic.
func (r *RetryableClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			select {
			case <-ctx.Done():
				return CompletionResponse{}, ctx.Err() //nolint:wrapcheck // Context errors pass through
			case <-time.After(delay):
			}
		}

		resp, err := r.client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			break
		}
	}

	return CompletionResponse{}, fmt.Errorf("completion failed after %d retries: %w", r.config.MaxRetries, lastErr)
}

// Stream implements LLMClient with retry logic for stream establishment.
func (r *RetryableClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err() //nolint:wrapcheck // Context errors pass through
			case <-time.After(delay):
			}
		}

		ch, err := r.client.Stream(ctx, req)
		if err == nil {
			return ch, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			break
		}
	}

	return nil, fmt.Errorf("failed to establish stream after %d retries: %w", r.config.MaxRetries, lastErr)
}

// GetModelName returns the wrapped client's model name.
func (r *RetryableClient) GetModelName() string {
	return r.client.GetModelName()
}

func (r *RetryableClient) calculateDelay(attempt int) time.Duration {
	delay := time.Duration(float64(r.config.InitialDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-1)))
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	return delay
}

// shouldRetry determines if an error should be retried. Classified errors
// decide for themselves; unclassified errors are matched on common
// network/server patterns.
func shouldRetry(err error) bool {
	if llmerrors.IsRetryable(err) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "temporary") {
		return true
	}
	if strings.Contains(errStr, "rate") || strings.Contains(errStr, "429") {
		return true
	}
	if strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return true
	}
	if strings.Contains(errStr, "empty response") {
		return true
	}
	return false
}
