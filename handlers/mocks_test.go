package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sheetwise/modelmux/models"
	"github.com/sheetwise/modelmux/repositories"
	"github.com/stretchr/testify/mock"
)

// MockModelConfigRepository is a mock implementation of ModelConfigRepository
type MockModelConfigRepository struct {
	mock.Mock
}

func (m *MockModelConfigRepository) Create(ctx context.Context, cfg *models.ModelConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

func (m *MockModelConfigRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ModelConfig, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ModelConfig), args.Error(1)
}

func (m *MockModelConfigRepository) GetActive(ctx context.Context, orgID uuid.UUID) ([]*models.ModelConfig, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ModelConfig), args.Error(1)
}

func (m *MockModelConfigRepository) GetByOrgID(ctx context.Context, orgID uuid.UUID) ([]*models.ModelConfig, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ModelConfig), args.Error(1)
}

func (m *MockModelConfigRepository) Update(ctx context.Context, cfg *models.ModelConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

func (m *MockModelConfigRepository) SetDefault(ctx context.Context, orgID, id uuid.UUID) error {
	args := m.Called(ctx, orgID, id)
	return args.Error(0)
}

func (m *MockModelConfigRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

func (m *MockModelConfigRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockModelConfigRepository) WithTx(tx repositories.Transaction) repositories.ModelConfigRepository {
	args := m.Called(tx)
	return args.Get(0).(repositories.ModelConfigRepository)
}

// MockRoutingPolicyRepository is a mock implementation of RoutingPolicyRepository
type MockRoutingPolicyRepository struct {
	mock.Mock
}

func (m *MockRoutingPolicyRepository) Create(ctx context.Context, policy *models.RoutingPolicy) error {
	args := m.Called(ctx, policy)
	return args.Error(0)
}

func (m *MockRoutingPolicyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RoutingPolicy, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoutingPolicy), args.Error(1)
}

func (m *MockRoutingPolicyRepository) GetActive(ctx context.Context, orgID uuid.UUID) (*models.RoutingPolicy, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoutingPolicy), args.Error(1)
}

func (m *MockRoutingPolicyRepository) GetByOrgID(ctx context.Context, orgID uuid.UUID) ([]*models.RoutingPolicy, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RoutingPolicy), args.Error(1)
}

func (m *MockRoutingPolicyRepository) Activate(ctx context.Context, orgID, id uuid.UUID) error {
	args := m.Called(ctx, orgID, id)
	return args.Error(0)
}

func (m *MockRoutingPolicyRepository) WithTx(tx repositories.Transaction) repositories.RoutingPolicyRepository {
	args := m.Called(tx)
	return args.Get(0).(repositories.RoutingPolicyRepository)
}

// MockUsageLogRepository is a mock implementation of UsageLogRepository
type MockUsageLogRepository struct {
	mock.Mock
}

func (m *MockUsageLogRepository) Insert(ctx context.Context, entry *models.UsageLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockUsageLogRepository) GetByModelConfigID(ctx context.Context, modelConfigID uuid.UUID, limit, offset int) ([]*models.UsageLogEntry, error) {
	args := m.Called(ctx, modelConfigID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UsageLogEntry), args.Error(1)
}

func (m *MockUsageLogRepository) GetByOrgID(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*models.UsageLogEntry, error) {
	args := m.Called(ctx, orgID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UsageLogEntry), args.Error(1)
}

func (m *MockUsageLogRepository) GetByDateRange(ctx context.Context, orgID uuid.UUID, start, end time.Time, limit, offset int) ([]*models.UsageLogEntry, error) {
	args := m.Called(ctx, orgID, start, end, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.UsageLogEntry), args.Error(1)
}

func (m *MockUsageLogRepository) GetMetrics(ctx context.Context, orgID uuid.UUID, start, end time.Time) (*repositories.UsageMetrics, error) {
	args := m.Called(ctx, orgID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.UsageMetrics), args.Error(1)
}

func (m *MockUsageLogRepository) HasEntries(ctx context.Context, modelConfigID uuid.UUID) (bool, error) {
	args := m.Called(ctx, modelConfigID)
	return args.Bool(0), args.Error(1)
}

// MockRegistry is a mock implementation of ModelRegistry
type MockRegistry struct {
	mock.Mock
}

func (m *MockRegistry) Reinitialize(ctx context.Context, orgID uuid.UUID) error {
	args := m.Called(ctx, orgID)
	return args.Error(0)
}
