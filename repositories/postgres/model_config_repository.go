package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sheetwise/modelmux/models"
	"github.com/sheetwise/modelmux/repositories"
	"go.uber.org/zap"
)

// ModelConfigRepository implements repositories.ModelConfigRepository for PostgreSQL
type ModelConfigRepository struct {
	db     *DB
	tx     repositories.Transaction
	logger *zap.Logger
}

// NewModelConfigRepository creates a new PostgreSQL model config repository
func NewModelConfigRepository(db *DB, logger *zap.Logger) repositories.ModelConfigRepository {
	return &ModelConfigRepository{
		db:     db,
		logger: logger,
	}
}

// WithTx returns a new repository instance bound to the transaction
func (r *ModelConfigRepository) WithTx(tx repositories.Transaction) repositories.ModelConfigRepository {
	return &ModelConfigRepository{
		db:     r.db,
		tx:     tx,
		logger: r.logger,
	}
}

// executor returns the transaction if bound, otherwise the context executor
func (r *ModelConfigRepository) executor(ctx context.Context) Executor {
	if r.tx != nil {
		if pgTx, ok := r.tx.(*Transaction); ok {
			return pgTx.tx
		}
	}
	return GetExecutor(ctx, r.db)
}

const modelConfigColumns = `id, org_id, provider, model_name, display_name, api_key_enc,
	endpoint, max_tokens, temperature, cost_per_token, task_types, complexity,
	priority, is_default, is_active, created_at, updated_at`

// Create creates a new model config
func (r *ModelConfigRepository) Create(ctx context.Context, cfg *models.ModelConfig) error {
	taskTypes, err := json.Marshal(cfg.TaskTypes)
	if err != nil {
		return fmt.Errorf("failed to marshal task types: %w", err)
	}
	complexity, err := json.Marshal(cfg.Complexity)
	if err != nil {
		return fmt.Errorf("failed to marshal complexity: %w", err)
	}

	query := `
		INSERT INTO model_configs (` + modelConfigColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = r.executor(ctx).ExecContext(ctx, query,
		cfg.ID, cfg.OrgID, cfg.Provider, cfg.ModelName, cfg.DisplayName, cfg.APIKeyEnc,
		cfg.Endpoint, cfg.MaxTokens, cfg.Temperature, cfg.CostPerToken, taskTypes, complexity,
		cfg.Priority, cfg.IsDefault, cfg.IsActive, cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create model config: %w", err)
	}

	r.logger.Debug("model config created",
		zap.String("id", cfg.ID.String()),
		zap.String("provider", string(cfg.Provider)),
		zap.String("model_name", cfg.ModelName),
	)

	return nil
}

// GetByID retrieves a model config by ID
func (r *ModelConfigRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ModelConfig, error) {
	query := `SELECT ` + modelConfigColumns + ` FROM model_configs WHERE id = $1`

	cfg, err := r.scanOne(r.executor(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("model config not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get model config: %w", err)
	}
	return cfg, nil
}

// GetActive retrieves all active configs for an org, ordered by priority
// desc then created_at desc
func (r *ModelConfigRepository) GetActive(ctx context.Context, orgID uuid.UUID) ([]*models.ModelConfig, error) {
	query := `
		SELECT ` + modelConfigColumns + `
		FROM model_configs
		WHERE org_id = $1 AND is_active = true
		ORDER BY priority DESC, created_at DESC
	`

	rows, err := r.executor(ctx).QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active model configs: %w", err)
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetByOrgID retrieves all configs for an org, active or not
func (r *ModelConfigRepository) GetByOrgID(ctx context.Context, orgID uuid.UUID) ([]*models.ModelConfig, error) {
	query := `
		SELECT ` + modelConfigColumns + `
		FROM model_configs
		WHERE org_id = $1
		ORDER BY priority DESC, created_at DESC
	`

	rows, err := r.executor(ctx).QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get model configs: %w", err)
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// Update updates a model config
func (r *ModelConfigRepository) Update(ctx context.Context, cfg *models.ModelConfig) error {
	taskTypes, err := json.Marshal(cfg.TaskTypes)
	if err != nil {
		return fmt.Errorf("failed to marshal task types: %w", err)
	}
	complexity, err := json.Marshal(cfg.Complexity)
	if err != nil {
		return fmt.Errorf("failed to marshal complexity: %w", err)
	}

	query := `
		UPDATE model_configs
		SET provider = $2, model_name = $3, display_name = $4, api_key_enc = $5,
			endpoint = $6, max_tokens = $7, temperature = $8, cost_per_token = $9,
			task_types = $10, complexity = $11, priority = $12,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.executor(ctx).ExecContext(ctx, query,
		cfg.ID, cfg.Provider, cfg.ModelName, cfg.DisplayName, cfg.APIKeyEnc,
		cfg.Endpoint, cfg.MaxTokens, cfg.Temperature, cfg.CostPerToken,
		taskTypes, complexity, cfg.Priority,
	)
	if err != nil {
		return fmt.Errorf("failed to update model config: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("model config not found: %s", cfg.ID)
	}

	return nil
}

// SetDefault marks the given config as the org default and clears the flag
// on every other config for the org, in one transaction
func (r *ModelConfigRepository) SetDefault(ctx context.Context, orgID, id uuid.UUID) error {
	tm := NewTransactionManager(r.db, r.logger)

	return tm.InTransaction(ctx, func(txCtx context.Context, tx repositories.Transaction) error {
		exec := GetExecutor(txCtx, r.db)

		clearQuery := `
			UPDATE model_configs
			SET is_default = false, updated_at = CURRENT_TIMESTAMP
			WHERE org_id = $1 AND is_default = true AND id != $2
		`
		if _, err := exec.ExecContext(txCtx, clearQuery, orgID, id); err != nil {
			return fmt.Errorf("failed to clear previous default: %w", err)
		}

		setQuery := `
			UPDATE model_configs
			SET is_default = true, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1 AND org_id = $2 AND is_active = true
		`
		result, err := exec.ExecContext(txCtx, setQuery, id, orgID)
		if err != nil {
			return fmt.Errorf("failed to set default model config: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return fmt.Errorf("active model config not found: %s", id)
		}

		r.logger.Info("default model config changed",
			zap.String("org_id", orgID.String()),
			zap.String("model_config_id", id.String()),
		)

		return nil
	})
}

// SetActive toggles is_active on a config
func (r *ModelConfigRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `
		UPDATE model_configs
		SET is_active = $2, is_default = (is_default AND $2), updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.executor(ctx).ExecContext(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("failed to set model config active state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("model config not found: %s", id)
	}

	return nil
}

// Delete removes a config
func (r *ModelConfigRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM model_configs WHERE id = $1`

	result, err := r.executor(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete model config: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("model config not found: %s", id)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *ModelConfigRepository) scanOne(row rowScanner) (*models.ModelConfig, error) {
	var cfg models.ModelConfig
	var taskTypes, complexity []byte

	err := row.Scan(
		&cfg.ID, &cfg.OrgID, &cfg.Provider, &cfg.ModelName, &cfg.DisplayName, &cfg.APIKeyEnc,
		&cfg.Endpoint, &cfg.MaxTokens, &cfg.Temperature, &cfg.CostPerToken, &taskTypes, &complexity,
		&cfg.Priority, &cfg.IsDefault, &cfg.IsActive, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(taskTypes) > 0 {
		if err := json.Unmarshal(taskTypes, &cfg.TaskTypes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task types: %w", err)
		}
	}
	if len(complexity) > 0 {
		if err := json.Unmarshal(complexity, &cfg.Complexity); err != nil {
			return nil, fmt.Errorf("failed to unmarshal complexity: %w", err)
		}
	}

	return &cfg, nil
}

func (r *ModelConfigRepository) scanRows(rows *sql.Rows) ([]*models.ModelConfig, error) {
	var configs []*models.ModelConfig
	for rows.Next() {
		cfg, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model config: %w", err)
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating model configs: %w", err)
	}
	return configs, nil
}
