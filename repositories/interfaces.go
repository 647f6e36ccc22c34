package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sheetwise/modelmux/models"
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// ModelConfigRepository handles model config data operations
type ModelConfigRepository interface {
	// Create creates a new model config
	Create(ctx context.Context, cfg *models.ModelConfig) error

	// GetByID retrieves a model config by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.ModelConfig, error)

	// GetActive retrieves all active configs for an org, ordered by
	// priority desc then created_at desc
	GetActive(ctx context.Context, orgID uuid.UUID) ([]*models.ModelConfig, error)

	// GetByOrgID retrieves all configs for an org, active or not
	GetByOrgID(ctx context.Context, orgID uuid.UUID) ([]*models.ModelConfig, error)

	// Update updates a model config
	Update(ctx context.Context, cfg *models.ModelConfig) error

	// SetDefault marks the given config as the org default and clears the
	// flag on every other config for the org, in one transaction
	SetDefault(ctx context.Context, orgID, id uuid.UUID) error

	// SetActive toggles is_active. Configs with usage history are
	// deactivated this way rather than deleted
	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	// Delete removes a config. Callers must deactivate instead when the
	// config has usage history
	Delete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) ModelConfigRepository
}

// RoutingPolicyRepository handles routing policy data operations
type RoutingPolicyRepository interface {
	// Create creates a new routing policy (inactive until activated)
	Create(ctx context.Context, policy *models.RoutingPolicy) error

	// GetByID retrieves a policy by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.RoutingPolicy, error)

	// GetActive retrieves the single active policy for an org, or nil
	// when none is configured
	GetActive(ctx context.Context, orgID uuid.UUID) (*models.RoutingPolicy, error)

	// GetByOrgID retrieves all policies for an org, newest first
	GetByOrgID(ctx context.Context, orgID uuid.UUID) ([]*models.RoutingPolicy, error)

	// Activate marks the given policy active and deactivates the
	// previously active policy for the org, in one transaction
	Activate(ctx context.Context, orgID, id uuid.UUID) error

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) RoutingPolicyRepository
}

// UsageLogRepository handles usage log data operations. The table is
// append-only: there is no update or delete.
type UsageLogRepository interface {
	// Insert inserts a new usage log entry
	Insert(ctx context.Context, entry *models.UsageLogEntry) error

	// GetByModelConfigID retrieves entries for a model config with pagination
	GetByModelConfigID(ctx context.Context, modelConfigID uuid.UUID, limit, offset int) ([]*models.UsageLogEntry, error)

	// GetByOrgID retrieves entries for an org with pagination, newest first
	GetByOrgID(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*models.UsageLogEntry, error)

	// GetByDateRange retrieves entries within a time window
	GetByDateRange(ctx context.Context, orgID uuid.UUID, start, end time.Time, limit, offset int) ([]*models.UsageLogEntry, error)

	// GetMetrics aggregates tokens, cost and outcome counts for an org
	// within a time window
	GetMetrics(ctx context.Context, orgID uuid.UUID, start, end time.Time) (*UsageMetrics, error)

	// HasEntries reports whether any entry references the model config
	HasEntries(ctx context.Context, modelConfigID uuid.UUID) (bool, error)
}

// UsageMetrics represents aggregated usage metrics
type UsageMetrics struct {
	TotalCalls      int     `json:"total_calls"`
	SuccessfulCalls int     `json:"successful_calls"`
	FailedCalls     int     `json:"failed_calls"`
	TotalTokens     int     `json:"total_tokens"`
	TotalCost       float64 `json:"total_cost"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	ModelConfigs    ModelConfigRepository
	RoutingPolicies RoutingPolicyRepository
	UsageLogs       UsageLogRepository
}
