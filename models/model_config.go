package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider identifies a supported AI vendor. The set is closed: adding a
// provider requires a new constant and a matching adapter in
// services/providers.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Complexity is a coarse hint describing how demanding a task is.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
)

// ModelConfig describes one deployable AI model: which provider serves it,
// what it costs, and which kinds of work it is vetted for.
type ModelConfig struct {
	ID          uuid.UUID `json:"id" db:"id"`
	OrgID       uuid.UUID `json:"org_id" db:"org_id"`
	Provider    Provider  `json:"provider" db:"provider"`
	ModelName   string    `json:"model_name" db:"model_name"`
	DisplayName string    `json:"display_name" db:"display_name"`

	// APIKeyEnc is the provider credential, encrypted at rest.
	// Never serialized to JSON.
	APIKeyEnc string `json:"-" db:"api_key_enc"`

	// Endpoint overrides the provider's default base URL when set.
	Endpoint string `json:"endpoint,omitempty" db:"endpoint"`

	MaxTokens    int     `json:"max_tokens" db:"max_tokens"`
	Temperature  float64 `json:"temperature" db:"temperature"`
	CostPerToken float64 `json:"cost_per_token" db:"cost_per_token"`

	// TaskTypes lists the task tags this model is vetted for. Empty means
	// the model is eligible for any task type.
	TaskTypes []string `json:"task_types" db:"task_types"`

	// Complexity lists the complexity levels this model handles.
	Complexity []Complexity `json:"complexity" db:"complexity"`

	// Priority breaks ties within a provider; higher wins.
	Priority  int  `json:"priority" db:"priority"`
	IsDefault bool `json:"is_default" db:"is_default"`
	IsActive  bool `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the ModelConfig model
func (ModelConfig) TableName() string {
	return "model_configs"
}

// NewModelConfig creates a new ModelConfig instance
func NewModelConfig(orgID uuid.UUID, provider Provider, modelName, displayName string) *ModelConfig {
	now := time.Now()
	return &ModelConfig{
		ID:          uuid.New(),
		OrgID:       orgID,
		Provider:    provider,
		ModelName:   modelName,
		DisplayName: displayName,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SupportsTaskType reports whether the config is vetted for the given task
// type. An empty TaskTypes list means the model takes any task, and an
// untyped request matches every model.
func (m *ModelConfig) SupportsTaskType(taskType string) bool {
	if taskType == "" || len(m.TaskTypes) == 0 {
		return true
	}
	for _, t := range m.TaskTypes {
		if t == taskType {
			return true
		}
	}
	return false
}

// SupportsComplexity reports whether the config handles the given
// complexity level. An empty Complexity list means any level.
func (m *ModelConfig) SupportsComplexity(c Complexity) bool {
	if len(m.Complexity) == 0 {
		return true
	}
	for _, mc := range m.Complexity {
		if mc == c {
			return true
		}
	}
	return false
}
