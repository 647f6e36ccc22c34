package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/sheetwise/modelmux/models"
	"github.com/sheetwise/modelmux/services/providers"
)

// Config holds the settings needed to talk to the OpenAI API.
type Config struct {
	// APIKey authenticates requests
	APIKey string

	// BaseURL overrides the default API endpoint when set (Azure,
	// proxies, self-hosted gateways)
	BaseURL string

	// Timeout bounds each HTTP request
	Timeout time.Duration
}

// Adapter implements providers.Adapter for the OpenAI chat completions API.
type Adapter struct {
	client *goopenai.Client
}

// New creates a new OpenAI adapter
func New(cfg Config) *Adapter {
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Adapter{
		client: goopenai.NewClientWithConfig(clientCfg),
	}
}

// Name returns the provider name
func (a *Adapter) Name() models.Provider {
	return models.ProviderOpenAI
}

// ChatCompletion performs a chat completion request
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	startTime := time.Now()

	messages := make([]goopenai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = goopenai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := a.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		User:        req.User,
	})
	if err != nil {
		return nil, a.wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, providers.NewProviderError(a.Name(), "EMPTY_RESPONSE", "response contained no choices", 0, true, nil)
	}

	return &providers.Response{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Provider: a.Name(),
		Latency:  time.Since(startTime),
		Created:  time.Unix(resp.Created, 0),
	}, nil
}

// HealthCheck verifies the API key works by listing models
func (a *Adapter) HealthCheck(ctx context.Context) error {
	if _, err := a.client.ListModels(ctx); err != nil {
		return a.wrapError(err)
	}
	return nil
}

// wrapError converts client errors into provider errors with retryability
func (a *Adapter) wrapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		retryable := apiErr.HTTPStatusCode >= 500 || apiErr.HTTPStatusCode == http.StatusTooManyRequests
		return providers.NewProviderError(a.Name(), apiErr.Type, apiErr.Message, apiErr.HTTPStatusCode, retryable, err)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		retryable := reqErr.HTTPStatusCode >= 500 || reqErr.HTTPStatusCode == http.StatusTooManyRequests
		return providers.NewProviderError(a.Name(), "REQUEST_ERROR", fmt.Sprintf("request failed with status %d", reqErr.HTTPStatusCode), reqErr.HTTPStatusCode, retryable, err)
	}

	if errors.Is(err, context.Canceled) {
		return providers.NewProviderError(a.Name(), "CANCELED", "request canceled", 0, false, err)
	}

	// Network errors and timeouts
	return providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, true, err)
}
