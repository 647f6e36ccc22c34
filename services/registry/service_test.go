package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sheetwise/modelmux/models"
	"github.com/sheetwise/modelmux/repositories"
	"github.com/sheetwise/modelmux/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
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
	if cfg := args.Get(0); cfg != nil {
		return cfg.(*models.ModelConfig), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockModelConfigRepository) GetActive(ctx context.Context, orgID uuid.UUID) ([]*models.ModelConfig, error) {
	args := m.Called(ctx, orgID)
	if configs := args.Get(0); configs != nil {
		return configs.([]*models.ModelConfig), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockModelConfigRepository) GetByOrgID(ctx context.Context, orgID uuid.UUID) ([]*models.ModelConfig, error) {
	args := m.Called(ctx, orgID)
	if configs := args.Get(0); configs != nil {
		return configs.([]*models.ModelConfig), args.Error(1)
	}
	return nil, args.Error(1)
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

func testConfigs(orgID uuid.UUID) []*models.ModelConfig {
	gpt := models.NewModelConfig(orgID, models.ProviderOpenAI, "gpt-4o", "GPT-4o")
	gpt.Priority = 10
	gpt.TaskTypes = []string{"formula-generation", "chat"}

	claude := models.NewModelConfig(orgID, models.ProviderAnthropic, "claude-sonnet-4-5", "Claude Sonnet")
	claude.Priority = 5
	claude.IsDefault = true

	return []*models.ModelConfig{gpt, claude}
}

func TestActiveModels(t *testing.T) {
	orgID := uuid.New()
	configs := testConfigs(orgID)

	t.Run("loads from repository on first access", func(t *testing.T) {
		repo := new(MockModelConfigRepository)
		repo.On("GetActive", mock.Anything, orgID).Return(configs, nil).Once()

		svc := NewService(repo, zap.NewNop())

		got, err := svc.ActiveModels(context.Background(), orgID)
		require.NoError(t, err)
		assert.Len(t, got, 2)
		repo.AssertExpectations(t)
	})

	t.Run("serves snapshot without re-querying inside TTL", func(t *testing.T) {
		repo := new(MockModelConfigRepository)
		repo.On("GetActive", mock.Anything, orgID).Return(configs, nil).Once()

		svc := NewService(repo, zap.NewNop())

		for i := 0; i < 5; i++ {
			_, err := svc.ActiveModels(context.Background(), orgID)
			require.NoError(t, err)
		}
		repo.AssertNumberOfCalls(t, "GetActive", 1)
	})

	t.Run("serves stale snapshot when refresh fails", func(t *testing.T) {
		repo := new(MockModelConfigRepository)
		repo.On("GetActive", mock.Anything, orgID).Return(configs, nil).Once()
		repo.On("GetActive", mock.Anything, orgID).Return(nil, errors.New("db down"))

		svc := NewService(repo, zap.NewNop()).WithTTL(time.Nanosecond)

		_, err := svc.ActiveModels(context.Background(), orgID)
		require.NoError(t, err)

		time.Sleep(time.Millisecond)

		got, err := svc.ActiveModels(context.Background(), orgID)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("unavailable when load fails with no snapshot", func(t *testing.T) {
		repo := new(MockModelConfigRepository)
		repo.On("GetActive", mock.Anything, orgID).Return(nil, errors.New("db down"))

		svc := NewService(repo, zap.NewNop())

		_, err := svc.ActiveModels(context.Background(), orgID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, services.ErrRegistryUnavailable))
	})
}

func TestDefaultModel(t *testing.T) {
	orgID := uuid.New()
	configs := testConfigs(orgID)

	repo := new(MockModelConfigRepository)
	repo.On("GetActive", mock.Anything, orgID).Return(configs, nil)

	svc := NewService(repo, zap.NewNop())

	def, err := svc.DefaultModel(context.Background(), orgID)
	require.NoError(t, err)
	require.NotNil(t, def)
	assert.Equal(t, "claude-sonnet-4-5", def.ModelName)

	t.Run("nil when no default set", func(t *testing.T) {
		otherOrg := uuid.New()
		noDefault := []*models.ModelConfig{
			models.NewModelConfig(otherOrg, models.ProviderOpenAI, "gpt-4o-mini", "Mini"),
		}
		repo.On("GetActive", mock.Anything, otherOrg).Return(noDefault, nil)

		def, err := svc.DefaultModel(context.Background(), otherOrg)
		require.NoError(t, err)
		assert.Nil(t, def)
	})
}

func TestByProvider(t *testing.T) {
	orgID := uuid.New()
	repo := new(MockModelConfigRepository)
	repo.On("GetActive", mock.Anything, orgID).Return(testConfigs(orgID), nil)

	svc := NewService(repo, zap.NewNop())

	got, err := svc.ByProvider(context.Background(), orgID, models.ProviderAnthropic)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "claude-sonnet-4-5", got[0].ModelName)
}

func TestByTaskType(t *testing.T) {
	orgID := uuid.New()
	repo := new(MockModelConfigRepository)
	repo.On("GetActive", mock.Anything, orgID).Return(testConfigs(orgID), nil)

	svc := NewService(repo, zap.NewNop())

	t.Run("matches tagged and untagged configs", func(t *testing.T) {
		got, err := svc.ByTaskType(context.Background(), orgID, "formula-generation")
		require.NoError(t, err)
		// claude has no task type list so it matches everything
		assert.Len(t, got, 2)
	})

	t.Run("untagged configs match unknown task types", func(t *testing.T) {
		got, err := svc.ByTaskType(context.Background(), orgID, "data-cleaning")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "claude-sonnet-4-5", got[0].ModelName)
	})
}

func TestGetByID(t *testing.T) {
	orgID := uuid.New()
	configs := testConfigs(orgID)
	repo := new(MockModelConfigRepository)
	repo.On("GetActive", mock.Anything, orgID).Return(configs, nil)

	svc := NewService(repo, zap.NewNop())

	got, err := svc.GetByID(context.Background(), orgID, configs[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, configs[0].ID, got.ID)

	missing, err := svc.GetByID(context.Background(), orgID, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReinitialize(t *testing.T) {
	orgID := uuid.New()

	t.Run("replaces snapshot immediately", func(t *testing.T) {
		initial := testConfigs(orgID)
		repo := new(MockModelConfigRepository)
		repo.On("GetActive", mock.Anything, orgID).Return(initial, nil).Once()

		svc := NewService(repo, zap.NewNop())

		got, err := svc.ActiveModels(context.Background(), orgID)
		require.NoError(t, err)
		assert.Len(t, got, 2)

		updated := initial[:1]
		repo.On("GetActive", mock.Anything, orgID).Return(updated, nil).Once()

		require.NoError(t, svc.Reinitialize(context.Background(), orgID))

		got, err = svc.ActiveModels(context.Background(), orgID)
		require.NoError(t, err)
		assert.Len(t, got, 1)
		repo.AssertExpectations(t)
	})

	t.Run("keeps old snapshot when reload fails", func(t *testing.T) {
		repo := new(MockModelConfigRepository)
		repo.On("GetActive", mock.Anything, orgID).Return(testConfigs(orgID), nil).Once()

		svc := NewService(repo, zap.NewNop())
		_, err := svc.ActiveModels(context.Background(), orgID)
		require.NoError(t, err)

		repo.On("GetActive", mock.Anything, orgID).Return(nil, errors.New("db down"))

		err = svc.Reinitialize(context.Background(), orgID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, services.ErrRegistryUnavailable))

		got, err := svc.ActiveModels(context.Background(), orgID)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}
