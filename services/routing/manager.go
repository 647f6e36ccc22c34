// Package routing coordinates model selection and provider fallback for
// chat requests. One request walks an ordered candidate list until an
// attempt succeeds, a non-retryable failure short-circuits, or the list is
// exhausted. Every physical provider attempt leaves a usage log entry.
package routing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sheetwise/modelmux/models"
	"github.com/sheetwise/modelmux/services"
	"github.com/sheetwise/modelmux/services/providers"
	"github.com/sheetwise/modelmux/services/selection"
	"go.uber.org/zap"
)

// Registry is the model catalog surface the manager needs.
type Registry interface {
	ActiveModels(ctx context.Context, orgID uuid.UUID) ([]*models.ModelConfig, error)
}

// PolicyStore loads the active routing policy for a tenant.
type PolicyStore interface {
	GetActive(ctx context.Context, orgID uuid.UUID) (*models.RoutingPolicy, error)
}

// UsageSink accepts usage log entries without blocking.
type UsageSink interface {
	Record(entry *models.UsageLogEntry) error
}

// AdapterFactory builds a provider adapter for a model config.
type AdapterFactory func(cfg *models.ModelConfig) (providers.Adapter, error)

// ChatRequest is one routed chat completion.
type ChatRequest struct {
	OrgID  uuid.UUID
	UserID *uuid.UUID

	// TaskType tags the kind of work for selection and usage logging
	TaskType string

	// Complexity is a soft selection hint
	Complexity models.Complexity

	// PinnedModelID pins a model in manual selection mode
	PinnedModelID string

	Messages []providers.Message
}

// ChatResponse is the successful result of a routed request.
type ChatResponse struct {
	Content       string          `json:"content"`
	FinishReason  string          `json:"finish_reason,omitempty"`
	Model         string          `json:"model"`
	Provider      models.Provider `json:"provider"`
	ModelConfigID uuid.UUID       `json:"model_config_id"`
	Usage         providers.Usage `json:"usage"`
	Cost          float64         `json:"cost"`
	LatencyMs     int             `json:"latency_ms"`

	// Attempts counts provider calls made, including the successful one
	Attempts int `json:"attempts"`
}

// Attempt describes one failed provider call.
type Attempt struct {
	ModelConfigID uuid.UUID       `json:"model_config_id"`
	Provider      models.Provider `json:"provider"`
	Model         string          `json:"model"`
	Error         string          `json:"error"`
	Retryable     bool            `json:"retryable"`
	LatencyMs     int             `json:"latency_ms"`
}

// AllProvidersFailedError reports that every explored candidate failed.
type AllProvidersFailedError struct {
	Attempts []Attempt
}

// Error implements the error interface
func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s/%s: %s", a.Provider, a.Model, a.Error)
	}
	return fmt.Sprintf("all providers failed after %d attempts: %s", len(e.Attempts), strings.Join(parts, "; "))
}

// Manager routes chat requests across providers.
type Manager struct {
	registry   Registry
	policies   PolicyStore
	engine     *selection.Engine
	usage      UsageSink
	newAdapter AdapterFactory
	logger     *zap.Logger
}

// NewManager creates a routing manager
func NewManager(registry Registry, policies PolicyStore, usage UsageSink, newAdapter AdapterFactory, logger *zap.Logger) *Manager {
	return &Manager{
		registry:   registry,
		policies:   policies,
		engine:     selection.NewEngine(logger),
		usage:      usage,
		newAdapter: newAdapter,
		logger:     logger,
	}
}

// Chat routes one chat completion through the candidate list.
func (m *Manager) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, services.ErrEmptyPrompt
	}

	mode, rules, err := m.activeRules(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}

	candidates, err := m.candidates(ctx, req, mode, rules)
	if err != nil {
		return nil, err
	}

	// The selection engine already capped the list at the policy's
	// effective max retries
	attemptTimeout := time.Duration(rules.EffectiveTimeoutMs()) * time.Millisecond

	var attempts []Attempt
	for _, cfg := range candidates {
		resp, attempt, err := m.tryCandidate(ctx, req, cfg, attemptTimeout)
		if err == nil {
			resp.Attempts = len(attempts) + 1
			return resp, nil
		}

		// Caller gave up: do not burn the remaining candidates
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// A non-retryable failure would fail the same way everywhere, so
		// the original provider error surfaces instead of an exhausted
		// fallback chain
		if !providers.IsRetryable(err) {
			m.logger.Warn("non-retryable provider failure, aborting fallback",
				zap.String("org_id", req.OrgID.String()),
				zap.String("provider", string(cfg.Provider)),
				zap.String("model", cfg.ModelName),
				zap.Error(err),
			)
			return nil, services.NewDomainError(services.ErrorTypeExternal, "provider rejected the request", err)
		}

		attempts = append(attempts, attempt)

		m.logger.Info("provider attempt failed, falling back",
			zap.String("org_id", req.OrgID.String()),
			zap.String("provider", string(cfg.Provider)),
			zap.String("model", cfg.ModelName),
			zap.Int("attempt", len(attempts)),
			zap.Error(err),
		)
	}

	return nil, &AllProvidersFailedError{Attempts: attempts}
}

// Plan returns the candidate list a request would explore, without calling
// any provider. Used by routing diagnostics.
func (m *Manager) Plan(ctx context.Context, req *ChatRequest) ([]*models.ModelConfig, models.PolicyRules, error) {
	mode, rules, err := m.activeRules(ctx, req.OrgID)
	if err != nil {
		return nil, models.PolicyRules{}, err
	}

	candidates, err := m.candidates(ctx, req, mode, rules)
	if err != nil {
		return nil, models.PolicyRules{}, err
	}

	return candidates, rules, nil
}

// CheckModel performs a provider health check for one model config.
func (m *Manager) CheckModel(ctx context.Context, cfg *models.ModelConfig) error {
	adapter, err := m.newAdapter(cfg)
	if err != nil {
		return err
	}
	return adapter.HealthCheck(ctx)
}

// activeRules loads the active policy for the org, falling back to the
// built-in defaults when none is configured or the stored rules do not
// parse.
func (m *Manager) activeRules(ctx context.Context, orgID uuid.UUID) (models.SelectionMode, models.PolicyRules, error) {
	// An unreachable policy store means routing cannot run right now,
	// same as a registry outage
	policy, err := m.policies.GetActive(ctx, orgID)
	if err != nil {
		return "", models.PolicyRules{}, services.NewDomainError(services.ErrorTypeUnavailable, "routing policy store unavailable", err)
	}
	if policy == nil {
		return models.SelectionModeAutomatic, models.DefaultPolicyRules(), nil
	}

	rules, err := policy.ParseRules()
	if err != nil {
		m.logger.Warn("active policy has unparseable rules, using defaults",
			zap.String("org_id", orgID.String()),
			zap.String("policy_id", policy.ID.String()),
			zap.Error(err),
		)
		return policy.SelectionMode, models.DefaultPolicyRules(), nil
	}

	return policy.SelectionMode, rules, nil
}

func (m *Manager) candidates(ctx context.Context, req *ChatRequest, mode models.SelectionMode, rules models.PolicyRules) ([]*models.ModelConfig, error) {
	active, err := m.registry.ActiveModels(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}

	candidates := m.engine.Candidates(active, mode, rules, selection.Request{
		TaskType:      req.TaskType,
		Complexity:    req.Complexity,
		PinnedModelID: req.PinnedModelID,
	})
	if len(candidates) == 0 {
		return nil, services.ErrNoEligibleModel
	}

	return candidates, nil
}

// tryCandidate makes one provider call and records its usage entry,
// successful or not.
func (m *Manager) tryCandidate(ctx context.Context, req *ChatRequest, cfg *models.ModelConfig, timeout time.Duration) (*ChatResponse, Attempt, error) {
	entry := models.NewUsageLogEntry(req.OrgID, cfg.ID, req.TaskType)
	if req.UserID != nil {
		entry.SetUser(*req.UserID)
	}

	adapter, err := m.newAdapter(cfg)
	if err != nil {
		entry.MarkFailure(err.Error(), 0)
		m.record(entry)
		return nil, Attempt{
			ModelConfigID: cfg.ID,
			Provider:      cfg.Provider,
			Model:         cfg.ModelName,
			Error:         err.Error(),
			Retryable:     providers.IsRetryable(err),
		}, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := adapter.ChatCompletion(attemptCtx, &providers.Request{
		Model:       cfg.ModelName,
		Messages:    req.Messages,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		User:        userTag(req.UserID),
	})
	latency := time.Since(start)

	if err != nil {
		entry.MarkFailure(err.Error(), latency)
		m.record(entry)
		return nil, Attempt{
			ModelConfigID: cfg.ID,
			Provider:      cfg.Provider,
			Model:         cfg.ModelName,
			Error:         err.Error(),
			Retryable:     providers.IsRetryable(err),
			LatencyMs:     int(latency.Milliseconds()),
		}, err
	}

	cost := resp.Usage.Cost(cfg.CostPerToken)
	entry.MarkSuccess(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, cost, latency)
	m.record(entry)

	return &ChatResponse{
		Content:       resp.Content,
		FinishReason:  resp.FinishReason,
		Model:         resp.Model,
		Provider:      cfg.Provider,
		ModelConfigID: cfg.ID,
		Usage:         resp.Usage,
		Cost:          cost,
		LatencyMs:     int(latency.Milliseconds()),
	}, Attempt{}, nil
}

// record hands the entry to the usage sink. Recording failures never fail
// the request.
func (m *Manager) record(entry *models.UsageLogEntry) {
	if err := m.usage.Record(entry); err != nil {
		m.logger.Warn("usage entry not recorded",
			zap.String("org_id", entry.OrgID.String()),
			zap.Error(err),
		)
	}
}

func userTag(userID *uuid.UUID) string {
	if userID == nil {
		return ""
	}
	return userID.String()
}
