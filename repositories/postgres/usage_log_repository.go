package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sheetwise/modelmux/models"
	"github.com/sheetwise/modelmux/repositories"
	"go.uber.org/zap"
)

// UsageLogRepository implements repositories.UsageLogRepository for
// PostgreSQL. Usage logs are append-only.
type UsageLogRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUsageLogRepository creates a new PostgreSQL usage log repository
func NewUsageLogRepository(db *DB, logger *zap.Logger) repositories.UsageLogRepository {
	return &UsageLogRepository{
		db:     db,
		logger: logger,
	}
}

const usageLogColumns = `id, org_id, model_config_id, user_id, task_type,
	prompt_tokens, completion_tokens, total_tokens, cost, latency_ms,
	success, error_message, created_at`

// Insert inserts a new usage log entry
func (r *UsageLogRepository) Insert(ctx context.Context, entry *models.UsageLogEntry) error {
	query := `
		INSERT INTO usage_logs (` + usageLogColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		entry.ID, entry.OrgID, entry.ModelConfigID, entry.UserID, entry.TaskType,
		entry.PromptTokens, entry.CompletionTokens, entry.TotalTokens, entry.Cost, entry.LatencyMs,
		entry.Success, entry.ErrorMessage, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage log entry: %w", err)
	}

	return nil
}

// GetByModelConfigID retrieves entries for a model config with pagination
func (r *UsageLogRepository) GetByModelConfigID(ctx context.Context, modelConfigID uuid.UUID, limit, offset int) ([]*models.UsageLogEntry, error) {
	query := `
		SELECT ` + usageLogColumns + `
		FROM usage_logs
		WHERE model_config_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, modelConfigID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage logs: %w", err)
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetByOrgID retrieves entries for an org with pagination, newest first
func (r *UsageLogRepository) GetByOrgID(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*models.UsageLogEntry, error) {
	query := `
		SELECT ` + usageLogColumns + `
		FROM usage_logs
		WHERE org_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage logs: %w", err)
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetByDateRange retrieves entries within a time window
func (r *UsageLogRepository) GetByDateRange(ctx context.Context, orgID uuid.UUID, start, end time.Time, limit, offset int) ([]*models.UsageLogEntry, error) {
	query := `
		SELECT ` + usageLogColumns + `
		FROM usage_logs
		WHERE org_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, orgID, start, end, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage logs by date range: %w", err)
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetMetrics aggregates tokens, cost and outcome counts for an org within a
// time window
func (r *UsageLogRepository) GetMetrics(ctx context.Context, orgID uuid.UUID, start, end time.Time) (*repositories.UsageMetrics, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE success),
			COUNT(*) FILTER (WHERE NOT success),
			COALESCE(SUM(total_tokens), 0),
			COALESCE(SUM(cost), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM usage_logs
		WHERE org_id = $1 AND created_at >= $2 AND created_at < $3
	`

	var m repositories.UsageMetrics
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, orgID, start, end).Scan(
		&m.TotalCalls, &m.SuccessfulCalls, &m.FailedCalls,
		&m.TotalTokens, &m.TotalCost, &m.AvgLatencyMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage metrics: %w", err)
	}

	return &m, nil
}

// HasEntries reports whether any entry references the model config
func (r *UsageLogRepository) HasEntries(ctx context.Context, modelConfigID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM usage_logs WHERE model_config_id = $1)`

	var exists bool
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, modelConfigID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check usage log existence: %w", err)
	}

	return exists, nil
}

func (r *UsageLogRepository) scanRows(rows *sql.Rows) ([]*models.UsageLogEntry, error) {
	var entries []*models.UsageLogEntry
	for rows.Next() {
		var e models.UsageLogEntry
		err := rows.Scan(
			&e.ID, &e.OrgID, &e.ModelConfigID, &e.UserID, &e.TaskType,
			&e.PromptTokens, &e.CompletionTokens, &e.TotalTokens, &e.Cost, &e.LatencyMs,
			&e.Success, &e.ErrorMessage, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage log entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage logs: %w", err)
	}
	return entries, nil
}
