package providers

import (
	"context"
	"errors"
	"time"

	"github.com/sheetwise/modelmux/models"
)

// Adapter is the unified surface every AI provider implements. Adapters
// normalize vendor requests and responses so the routing layer never sees
// provider-specific shapes.
type Adapter interface {
	// Name returns the provider this adapter speaks for
	Name() models.Provider

	// ChatCompletion performs a chat completion request. Failures are
	// returned as *ProviderError so callers can inspect retryability.
	ChatCompletion(ctx context.Context, req *Request) (*Response, error)

	// HealthCheck verifies the provider is reachable with the configured
	// credentials
	HealthCheck(ctx context.Context) error
}

// Request represents a unified chat completion request
type Request struct {
	// Model identifier as the provider knows it (e.g., "gpt-4o")
	Model string `json:"model"`

	// Messages in the conversation
	Messages []Message `json:"messages"`

	// MaxTokens limits the response length. Zero means provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness
	Temperature float64 `json:"temperature,omitempty"`

	// User identifier for abuse monitoring
	User string `json:"user,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role"`

	// Content is the message text
	Content string `json:"content"`
}

// Response represents a unified chat completion response
type Response struct {
	// ID is the provider's identifier for this completion
	ID string `json:"id"`

	// Model that actually served the request
	Model string `json:"model"`

	// Content is the assistant's reply
	Content string `json:"content"`

	// FinishReason indicates why the completion finished
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage statistics as reported by the provider
	Usage Usage `json:"usage"`

	// Provider that handled the request
	Provider models.Provider `json:"provider"`

	// Latency of the request
	Latency time.Duration `json:"latency"`

	// Created timestamp
	Created time.Time `json:"created"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Cost computes the attempt cost from reported usage and the per-token
// rate configured for the model.
func (u Usage) Cost(costPerToken float64) float64 {
	return float64(u.PromptTokens+u.CompletionTokens) * costPerToken
}

// ProviderError represents an error from a provider
type ProviderError struct {
	// Provider that generated the error
	Provider models.Provider

	// Code is the provider's error code or type
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if a different attempt could succeed. Timeouts,
	// rate limits and 5xx responses are retryable; auth and validation
	// failures are not.
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(provider models.Provider, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// IsRetryable checks if an error could succeed on a different model or
// provider. Unknown errors count as retryable so fallback gets a chance.
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
