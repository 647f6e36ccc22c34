package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sheetwise/modelmux/models"
	"github.com/sheetwise/modelmux/repositories"
	"go.uber.org/zap"
)

// RoutingPolicyRepository implements repositories.RoutingPolicyRepository for PostgreSQL
type RoutingPolicyRepository struct {
	db     *DB
	tx     repositories.Transaction
	logger *zap.Logger
}

// NewRoutingPolicyRepository creates a new PostgreSQL routing policy repository
func NewRoutingPolicyRepository(db *DB, logger *zap.Logger) repositories.RoutingPolicyRepository {
	return &RoutingPolicyRepository{
		db:     db,
		logger: logger,
	}
}

// WithTx returns a new repository instance bound to the transaction
func (r *RoutingPolicyRepository) WithTx(tx repositories.Transaction) repositories.RoutingPolicyRepository {
	return &RoutingPolicyRepository{
		db:     r.db,
		tx:     tx,
		logger: r.logger,
	}
}

func (r *RoutingPolicyRepository) executor(ctx context.Context) Executor {
	if r.tx != nil {
		if pgTx, ok := r.tx.(*Transaction); ok {
			return pgTx.tx
		}
	}
	return GetExecutor(ctx, r.db)
}

const routingPolicyColumns = `id, org_id, name, selection_mode, rules, is_active, created_at, updated_at`

// Create creates a new routing policy (inactive until activated)
func (r *RoutingPolicyRepository) Create(ctx context.Context, policy *models.RoutingPolicy) error {
	query := `
		INSERT INTO routing_policies (` + routingPolicyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.executor(ctx).ExecContext(ctx, query,
		policy.ID, policy.OrgID, policy.Name, policy.SelectionMode,
		[]byte(policy.Rules), policy.IsActive, policy.CreatedAt, policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create routing policy: %w", err)
	}

	r.logger.Debug("routing policy created",
		zap.String("id", policy.ID.String()),
		zap.String("org_id", policy.OrgID.String()),
		zap.String("name", policy.Name),
	)

	return nil
}

// GetByID retrieves a policy by ID
func (r *RoutingPolicyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RoutingPolicy, error) {
	query := `SELECT ` + routingPolicyColumns + ` FROM routing_policies WHERE id = $1`

	policy, err := r.scanOne(r.executor(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("routing policy not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get routing policy: %w", err)
	}
	return policy, nil
}

// GetActive retrieves the single active policy for an org, or nil when none
// is configured
func (r *RoutingPolicyRepository) GetActive(ctx context.Context, orgID uuid.UUID) (*models.RoutingPolicy, error) {
	query := `SELECT ` + routingPolicyColumns + ` FROM routing_policies WHERE org_id = $1 AND is_active = true`

	policy, err := r.scanOne(r.executor(ctx).QueryRowContext(ctx, query, orgID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active routing policy: %w", err)
	}
	return policy, nil
}

// GetByOrgID retrieves all policies for an org, newest first
func (r *RoutingPolicyRepository) GetByOrgID(ctx context.Context, orgID uuid.UUID) ([]*models.RoutingPolicy, error) {
	query := `
		SELECT ` + routingPolicyColumns + `
		FROM routing_policies
		WHERE org_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.executor(ctx).QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get routing policies: %w", err)
	}
	defer rows.Close()

	var policies []*models.RoutingPolicy
	for rows.Next() {
		policy, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan routing policy: %w", err)
		}
		policies = append(policies, policy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating routing policies: %w", err)
	}
	return policies, nil
}

// Activate marks the given policy active and deactivates the previously
// active policy for the org, in one transaction
func (r *RoutingPolicyRepository) Activate(ctx context.Context, orgID, id uuid.UUID) error {
	tm := NewTransactionManager(r.db, r.logger)

	return tm.InTransaction(ctx, func(txCtx context.Context, tx repositories.Transaction) error {
		exec := GetExecutor(txCtx, r.db)

		deactivateQuery := `
			UPDATE routing_policies
			SET is_active = false, updated_at = CURRENT_TIMESTAMP
			WHERE org_id = $1 AND is_active = true AND id != $2
		`
		if _, err := exec.ExecContext(txCtx, deactivateQuery, orgID, id); err != nil {
			return fmt.Errorf("failed to deactivate previous policy: %w", err)
		}

		activateQuery := `
			UPDATE routing_policies
			SET is_active = true, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1 AND org_id = $2
		`
		result, err := exec.ExecContext(txCtx, activateQuery, id, orgID)
		if err != nil {
			return fmt.Errorf("failed to activate routing policy: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("routing policy not found: %s", id)
		}

		r.logger.Info("routing policy activated",
			zap.String("org_id", orgID.String()),
			zap.String("policy_id", id.String()),
		)

		return nil
	})
}

func (r *RoutingPolicyRepository) scanOne(row rowScanner) (*models.RoutingPolicy, error) {
	var policy models.RoutingPolicy
	var rules []byte

	err := row.Scan(
		&policy.ID, &policy.OrgID, &policy.Name, &policy.SelectionMode,
		&rules, &policy.IsActive, &policy.CreatedAt, &policy.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	policy.Rules = rules
	return &policy, nil
}
