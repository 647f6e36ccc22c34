package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/sheetwise/modelmux/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return &DB{DB: sqlDB, logger: zap.NewNop()}, mock
}

func TestModelConfigRepository_Create(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewModelConfigRepository(db, zap.NewNop())

	cfg := models.NewModelConfig(uuid.New(), models.ProviderOpenAI, "gpt-4o", "GPT-4o")
	cfg.TaskTypes = []string{"formula-generation"}
	cfg.Priority = 10

	mock.ExpectExec("INSERT INTO model_configs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModelConfigRepository_GetByID(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewModelConfigRepository(db, zap.NewNop())

	id := uuid.New()
	orgID := uuid.New()
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"id", "org_id", "provider", "model_name", "display_name", "api_key_enc",
			"endpoint", "max_tokens", "temperature", "cost_per_token", "task_types", "complexity",
			"priority", "is_default", "is_active", "created_at", "updated_at",
		}).AddRow(
			id, orgID, "openai", "gpt-4o", "GPT-4o", "enc",
			"", 4096, 0.2, 0.00001, []byte(`["chat"]`), []byte(`["simple","complex"]`),
			5, true, true, now, now,
		)

		mock.ExpectQuery("SELECT (.+) FROM model_configs WHERE id").
			WithArgs(id).
			WillReturnRows(rows)

		cfg, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, cfg.ID)
		assert.Equal(t, models.ProviderOpenAI, cfg.Provider)
		assert.Equal(t, []string{"chat"}, cfg.TaskTypes)
		assert.Equal(t, []models.Complexity{models.ComplexitySimple, models.ComplexityComplex}, cfg.Complexity)
		assert.True(t, cfg.IsDefault)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM model_configs WHERE id").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.GetByID(context.Background(), id)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})
}

func TestModelConfigRepository_GetActive(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewModelConfigRepository(db, zap.NewNop())

	orgID := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "org_id", "provider", "model_name", "display_name", "api_key_enc",
		"endpoint", "max_tokens", "temperature", "cost_per_token", "task_types", "complexity",
		"priority", "is_default", "is_active", "created_at", "updated_at",
	}).
		AddRow(uuid.New(), orgID, "openai", "gpt-4o", "GPT-4o", "",
			"", 0, 0.0, 0.0, []byte(`[]`), []byte(`[]`),
			10, false, true, now, now).
		AddRow(uuid.New(), orgID, "anthropic", "claude-sonnet-4-5", "Claude Sonnet", "",
			"", 0, 0.0, 0.0, []byte(`[]`), []byte(`[]`),
			5, true, true, now, now)

	mock.ExpectQuery("SELECT (.+) FROM model_configs").
		WithArgs(orgID).
		WillReturnRows(rows)

	configs, err := repo.GetActive(context.Background(), orgID)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, 10, configs[0].Priority)
	assert.Equal(t, models.ProviderAnthropic, configs[1].Provider)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModelConfigRepository_SetDefault(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewModelConfigRepository(db, zap.NewNop())

	orgID := uuid.New()
	id := uuid.New()

	t.Run("clears previous default in same transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE model_configs").
			WithArgs(orgID, id).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE model_configs").
			WithArgs(id, orgID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := repo.SetDefault(context.Background(), orgID, id)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back when target config missing", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE model_configs").
			WithArgs(orgID, id).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("UPDATE model_configs").
			WithArgs(id, orgID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.SetDefault(context.Background(), orgID, id)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestModelConfigRepository_SetActive(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewModelConfigRepository(db, zap.NewNop())

	id := uuid.New()

	mock.ExpectExec("UPDATE model_configs").
		WithArgs(id, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SetActive(context.Background(), id, false)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestModelConfigRepository_Delete(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewModelConfigRepository(db, zap.NewNop())

	id := uuid.New()

	t.Run("deletes existing config", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM model_configs").
			WithArgs(id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Delete(context.Background(), id)
		require.NoError(t, err)
	})

	t.Run("errors when missing", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM model_configs").
			WithArgs(id).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Delete(context.Background(), id)
		assert.Error(t, err)
	})
}
