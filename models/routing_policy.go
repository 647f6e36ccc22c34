package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SelectionMode controls whether routing follows the policy rules
// automatically or an admin pins models by hand.
type SelectionMode string

const (
	SelectionModeManual    SelectionMode = "manual"
	SelectionModeAutomatic SelectionMode = "automatic"
)

// FallbackStrategy names how the fallback chain is built.
type FallbackStrategy string

const (
	// FallbackSameProvider retries within the failing model's provider
	// before crossing to another one.
	FallbackSameProvider FallbackStrategy = "same-provider"

	// FallbackAnyProvider walks the full candidate list regardless of
	// provider boundaries.
	FallbackAnyProvider FallbackStrategy = "any-provider"
)

// PolicyRules is the structured rule set stored in the routing_policies
// JSONB column. Policies are superseded rather than mutated when rules
// change materially, so the audit trail stays intact.
type PolicyRules struct {
	// PreferredProviders ranks providers for candidate ordering; earlier
	// entries win. Used when TaskMapping has no entry for the task type.
	PreferredProviders []string `json:"preferred_providers,omitempty"`

	// FallbackChain lists providers appended after PreferredProviders in
	// the effective ranking (duplicates ignored).
	FallbackChain []string `json:"fallback_chain,omitempty"`

	// TaskMapping maps a task type to an ordered provider list that
	// overrides PreferredProviders for that task type.
	TaskMapping map[string][]string `json:"task_mapping,omitempty"`

	// BlacklistedModels excludes models by config ID or model name.
	BlacklistedModels []string `json:"blacklisted_models,omitempty"`

	FallbackStrategy FallbackStrategy `json:"fallback_strategy,omitempty"`

	// MaxRetries bounds the candidate list explored per request.
	MaxRetries int `json:"max_retries,omitempty"`

	// TimeoutMs bounds each provider attempt. Zero or absent means the
	// built-in default (30000ms); zero never means "instant timeout".
	TimeoutMs int `json:"timeout_ms,omitempty"`

	// MaxCostPerRequest rejects candidates whose cost ceiling
	// (max_tokens * cost_per_token) exceeds the threshold. Zero disables.
	MaxCostPerRequest float64 `json:"max_cost_per_request,omitempty"`
}

// DefaultMaxRetries bounds the fallback chain when a policy does not set one.
const DefaultMaxRetries = 3

// DefaultTimeoutMs bounds a provider attempt when a policy does not set one.
const DefaultTimeoutMs = 30000

// DefaultPolicyRules returns the built-in rules used when no routing
// policy is active for a tenant.
func DefaultPolicyRules() PolicyRules {
	return PolicyRules{
		FallbackStrategy: FallbackSameProvider,
		MaxRetries:       DefaultMaxRetries,
		TimeoutMs:        DefaultTimeoutMs,
	}
}

// EffectiveMaxRetries returns MaxRetries or the default when unset.
func (r PolicyRules) EffectiveMaxRetries() int {
	if r.MaxRetries <= 0 {
		return DefaultMaxRetries
	}
	return r.MaxRetries
}

// EffectiveTimeoutMs returns TimeoutMs or the default when unset or zero.
func (r PolicyRules) EffectiveTimeoutMs() int {
	if r.TimeoutMs <= 0 {
		return DefaultTimeoutMs
	}
	return r.TimeoutMs
}

// ProviderRanking returns the ordered provider list governing candidate
// order for the given task type: the task mapping entry when present,
// otherwise preferred providers followed by the fallback chain.
func (r PolicyRules) ProviderRanking(taskType string) []string {
	if taskType != "" {
		if ranked, ok := r.TaskMapping[taskType]; ok && len(ranked) > 0 {
			return ranked
		}
	}

	ranking := make([]string, 0, len(r.PreferredProviders)+len(r.FallbackChain))
	seen := make(map[string]bool)
	for _, p := range r.PreferredProviders {
		if !seen[p] {
			ranking = append(ranking, p)
			seen[p] = true
		}
	}
	for _, p := range r.FallbackChain {
		if !seen[p] {
			ranking = append(ranking, p)
			seen[p] = true
		}
	}
	return ranking
}

// IsBlacklisted reports whether the given model config is excluded by the
// rules, matching either its ID or its model name.
func (r PolicyRules) IsBlacklisted(m *ModelConfig) bool {
	for _, entry := range r.BlacklistedModels {
		if entry == m.ID.String() || entry == m.ModelName {
			return true
		}
	}
	return false
}

// RoutingPolicy is the tenant-scoped configuration governing model
// selection. Exactly one policy is active per tenant at any time.
type RoutingPolicy struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	OrgID         uuid.UUID       `json:"org_id" db:"org_id"`
	Name          string          `json:"name" db:"name"`
	SelectionMode SelectionMode   `json:"selection_mode" db:"selection_mode"`
	Rules         json.RawMessage `json:"rules" db:"rules"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the RoutingPolicy model
func (RoutingPolicy) TableName() string {
	return "routing_policies"
}

// NewRoutingPolicy creates a new RoutingPolicy instance
func NewRoutingPolicy(orgID uuid.UUID, name string, rules PolicyRules) (*RoutingPolicy, error) {
	raw, err := json.Marshal(rules)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &RoutingPolicy{
		ID:            uuid.New(),
		OrgID:         orgID,
		Name:          name,
		SelectionMode: SelectionModeAutomatic,
		Rules:         raw,
		IsActive:      false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ParseRules decodes the JSONB rules column into a PolicyRules value.
func (p *RoutingPolicy) ParseRules() (PolicyRules, error) {
	var rules PolicyRules
	if len(p.Rules) == 0 {
		return DefaultPolicyRules(), nil
	}
	if err := json.Unmarshal(p.Rules, &rules); err != nil {
		return PolicyRules{}, err
	}
	return rules, nil
}
