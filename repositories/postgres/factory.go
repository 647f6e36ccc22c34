package postgres

import (
	"fmt"

	"github.com/sheetwise/modelmux/config"
	"github.com/sheetwise/modelmux/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates repository instances backed by PostgreSQL
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}

	return &RepositoryFactory{
		db:     db,
		logger: logger,
	}, nil
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		ModelConfigs:    NewModelConfigRepository(f.db, f.logger),
		RoutingPolicies: NewRoutingPolicyRepository(f.db, f.logger),
		UsageLogs:       NewUsageLogRepository(f.db, f.logger),
	}
}

// GetTransactionManager returns a transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

// GetDB returns the underlying database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
