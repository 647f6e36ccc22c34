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

func TestUsageLogRepository_Insert(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewUsageLogRepository(db, zap.NewNop())

	entry := models.NewUsageLogEntry(uuid.New(), uuid.New(), "chat")
	entry.MarkSuccess(120, 80, 0.002, 350*time.Millisecond)

	mock.ExpectExec("INSERT INTO usage_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, 200, entry.TotalTokens)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageLogRepository_GetByOrgID(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewUsageLogRepository(db, zap.NewNop())

	orgID := uuid.New()
	errMsg := "rate limited"

	rows := sqlmock.NewRows([]string{
		"id", "org_id", "model_config_id", "user_id", "task_type",
		"prompt_tokens", "completion_tokens", "total_tokens", "cost", "latency_ms",
		"success", "error_message", "created_at",
	}).
		AddRow(uuid.New(), orgID, uuid.New(), nil, "chat",
			100, 50, 150, 0.0015, 420, true, nil, time.Now()).
		AddRow(uuid.New(), orgID, uuid.New(), nil, "chat",
			0, 0, 0, 0.0, 1200, false, errMsg, time.Now())

	mock.ExpectQuery("SELECT (.+) FROM usage_logs").
		WithArgs(orgID, 50, 0).
		WillReturnRows(rows)

	entries, err := repo.GetByOrgID(context.Background(), orgID, 50, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Success)
	assert.False(t, entries[1].Success)
	require.NotNil(t, entries[1].ErrorMessage)
	assert.Equal(t, "rate limited", *entries[1].ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageLogRepository_GetMetrics(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewUsageLogRepository(db, zap.NewNop())

	orgID := uuid.New()
	start := time.Now().Add(-24 * time.Hour)
	end := time.Now()

	rows := sqlmock.NewRows([]string{
		"count", "successful", "failed", "total_tokens", "total_cost", "avg_latency",
	}).AddRow(10, 8, 2, 15000, 0.45, 612.5)

	mock.ExpectQuery("SELECT (.+) FROM usage_logs").
		WithArgs(orgID, start, end).
		WillReturnRows(rows)

	metrics, err := repo.GetMetrics(context.Background(), orgID, start, end)
	require.NoError(t, err)
	assert.Equal(t, 10, metrics.TotalCalls)
	assert.Equal(t, 8, metrics.SuccessfulCalls)
	assert.Equal(t, 2, metrics.FailedCalls)
	assert.Equal(t, 15000, metrics.TotalTokens)
	assert.InDelta(t, 0.45, metrics.TotalCost, 1e-9)
	assert.InDelta(t, 612.5, metrics.AvgLatencyMs, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageLogRepository_HasEntries(t *testing.T) {
	db, mock := newTestDB(t)
	repo := NewUsageLogRepository(db, zap.NewNop())

	modelConfigID := uuid.New()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(modelConfigID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	has, err := repo.HasEntries(context.Background(), modelConfigID)
	require.NoError(t, err)
	assert.True(t, has)
	assert.NoError(t, mock.ExpectationsWereMet())
}
