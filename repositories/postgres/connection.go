package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sheetwise/modelmux/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Model configs table
		CREATE TABLE IF NOT EXISTS model_configs (
			id UUID PRIMARY KEY,
			org_id UUID NOT NULL,
			provider VARCHAR(50) NOT NULL,
			model_name VARCHAR(100) NOT NULL,
			display_name VARCHAR(255) NOT NULL,
			api_key_enc TEXT NOT NULL DEFAULT '',
			endpoint TEXT NOT NULL DEFAULT '',
			max_tokens INTEGER NOT NULL DEFAULT 0,
			temperature DOUBLE PRECISION NOT NULL DEFAULT 0,
			cost_per_token DECIMAL(12, 10) NOT NULL DEFAULT 0,
			task_types JSONB NOT NULL DEFAULT '[]',
			complexity JSONB NOT NULL DEFAULT '[]',
			priority INTEGER NOT NULL DEFAULT 0,
			is_default BOOLEAN NOT NULL DEFAULT false,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Routing policies table
		CREATE TABLE IF NOT EXISTS routing_policies (
			id UUID PRIMARY KEY,
			org_id UUID NOT NULL,
			name VARCHAR(255) NOT NULL,
			selection_mode VARCHAR(20) NOT NULL DEFAULT 'automatic',
			rules JSONB NOT NULL DEFAULT '{}',
			is_active BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Usage logs table (append-only)
		CREATE TABLE IF NOT EXISTS usage_logs (
			id UUID PRIMARY KEY,
			org_id UUID NOT NULL,
			model_config_id UUID NOT NULL REFERENCES model_configs(id),
			user_id UUID,
			task_type VARCHAR(100),
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			cost DECIMAL(12, 8) NOT NULL DEFAULT 0,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			success BOOLEAN NOT NULL,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- At most one active default config per org
		CREATE UNIQUE INDEX IF NOT EXISTS uq_model_configs_default
			ON model_configs(org_id) WHERE is_default AND is_active;

		-- Exactly one active policy per org (enforced at write time too)
		CREATE UNIQUE INDEX IF NOT EXISTS uq_routing_policies_active
			ON routing_policies(org_id) WHERE is_active;

		-- Indexes for performance
		CREATE INDEX IF NOT EXISTS idx_model_configs_org_id ON model_configs(org_id);
		CREATE INDEX IF NOT EXISTS idx_model_configs_provider ON model_configs(provider);
		CREATE INDEX IF NOT EXISTS idx_model_configs_is_active ON model_configs(is_active);

		CREATE INDEX IF NOT EXISTS idx_routing_policies_org_id ON routing_policies(org_id);

		CREATE INDEX IF NOT EXISTS idx_usage_logs_model_config_id ON usage_logs(model_config_id);
		CREATE INDEX IF NOT EXISTS idx_usage_logs_org_created ON usage_logs(org_id, created_at);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
