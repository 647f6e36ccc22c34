package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sheetwise/modelmux/models"
	"github.com/sheetwise/modelmux/services/providers"
)

const (
	defaultBaseURL    = "https://api.anthropic.com"
	defaultAPIVersion = "2023-06-01"

	// The messages API requires max_tokens; used when the model config
	// does not set one.
	defaultMaxTokens = 1024
)

// Config holds the settings needed to talk to the Anthropic API.
type Config struct {
	// APIKey authenticates requests
	APIKey string

	// BaseURL overrides the default API endpoint when set
	BaseURL string

	// APIVersion is sent as the anthropic-version header
	APIVersion string

	// Timeout bounds each HTTP request
	Timeout time.Duration
}

// Adapter implements providers.Adapter for the Anthropic messages API.
type Adapter struct {
	config     Config
	httpClient *http.Client
}

// New creates a new Anthropic adapter
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &Adapter{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider name
func (a *Adapter) Name() models.Provider {
	return models.ProviderAnthropic
}

// ChatCompletion performs a chat completion request
func (a *Adapter) ChatCompletion(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	startTime := time.Now()

	antReq := a.buildRequest(req)

	reqBody, err := json.Marshal(antReq)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "REQUEST_ERROR", "failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.config.APIKey)
	httpReq.Header.Set("anthropic-version", a.config.APIVersion)

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, providers.NewProviderError(a.Name(), "CANCELED", "request canceled", 0, false, err)
		}
		return nil, providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), "READ_ERROR", "failed to read response", httpResp.StatusCode, true, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var antResp messagesResponse
	if err := json.Unmarshal(respBody, &antResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, false, err)
	}

	return a.convertResponse(&antResp, time.Since(startTime)), nil
}

// HealthCheck verifies the API key by sending a minimal request
func (a *Adapter) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL+"/v1/models", nil)
	if err != nil {
		return providers.NewProviderError(a.Name(), "REQUEST_ERROR", "failed to create request", 0, false, err)
	}

	httpReq.Header.Set("x-api-key", a.config.APIKey)
	httpReq.Header.Set("anthropic-version", a.config.APIVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return providers.NewProviderError(a.Name(), "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return a.handleErrorResponse(resp.StatusCode, body)
	}

	return nil
}

// buildRequest converts the unified request to the messages API shape.
// System messages move to the top-level system field.
func (a *Adapter) buildRequest(req *providers.Request) *messagesRequest {
	antReq := &messagesRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	}
	if antReq.MaxTokens <= 0 {
		antReq.MaxTokens = defaultMaxTokens
	}
	if req.Temperature > 0 {
		antReq.Temperature = &req.Temperature
	}

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			if antReq.System != "" {
				antReq.System += "\n"
			}
			antReq.System += msg.Content
			continue
		}
		antReq.Messages = append(antReq.Messages, message{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return antReq
}

// convertResponse converts the messages API response to the unified shape
func (a *Adapter) convertResponse(antResp *messagesResponse, latency time.Duration) *providers.Response {
	var content string
	for _, block := range antResp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &providers.Response{
		ID:           antResp.ID,
		Model:        antResp.Model,
		Content:      content,
		FinishReason: antResp.StopReason,
		Usage: providers.Usage{
			PromptTokens:     antResp.Usage.InputTokens,
			CompletionTokens: antResp.Usage.OutputTokens,
			TotalTokens:      antResp.Usage.InputTokens + antResp.Usage.OutputTokens,
		},
		Provider: a.Name(),
		Latency:  latency,
		Created:  time.Now(),
	}
}

// handleErrorResponse converts API error payloads to provider errors.
// 429, 5xx and 529 (overloaded) are retryable.
func (a *Adapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return providers.NewProviderError(a.Name(), "UNKNOWN_ERROR", string(body), statusCode, statusCode >= 500, err)
	}

	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	return providers.NewProviderError(
		a.Name(),
		errResp.Error.Type,
		errResp.Error.Message,
		statusCode,
		retryable,
		fmt.Errorf("anthropic API error: %s", errResp.Error.Type),
	)
}

// Anthropic messages API request/response types

type messagesRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	System      string    `json:"system,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type errorResponse struct {
	Type  string      `json:"type"`
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
