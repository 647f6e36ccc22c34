// Package registry maintains the per-tenant catalog of active model
// configs. Reads are served from an in-memory snapshot refreshed from the
// database on a TTL; a stale snapshot is better than no answer, so reads
// fall back to the last good snapshot when the database is unreachable.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sheetwise/modelmux/models"
	"github.com/sheetwise/modelmux/repositories"
	"github.com/sheetwise/modelmux/services"
	"go.uber.org/zap"
)

// DefaultSnapshotTTL is how long a snapshot serves reads before the next
// access triggers a refresh.
const DefaultSnapshotTTL = 30 * time.Second

// Service is the model registry. It is injected into consumers rather
// than accessed through a package-level instance, so tests and reloads
// never fight over shared state.
type Service struct {
	repo   repositories.ModelConfigRepository
	logger *zap.Logger
	ttl    time.Duration

	mu        sync.RWMutex
	snapshots map[uuid.UUID]*snapshot
}

type snapshot struct {
	configs  []*models.ModelConfig
	loadedAt time.Time
}

// NewService creates a new registry service
func NewService(repo repositories.ModelConfigRepository, logger *zap.Logger) *Service {
	return &Service{
		repo:      repo,
		logger:    logger,
		ttl:       DefaultSnapshotTTL,
		snapshots: make(map[uuid.UUID]*snapshot),
	}
}

// WithTTL overrides the snapshot TTL. Mainly for tests.
func (s *Service) WithTTL(ttl time.Duration) *Service {
	s.ttl = ttl
	return s
}

// ActiveModels returns the active model configs for an org, ordered by
// priority desc then created_at desc. Returns ErrRegistryUnavailable only
// when the database is unreachable and no snapshot exists.
func (s *Service) ActiveModels(ctx context.Context, orgID uuid.UUID) ([]*models.ModelConfig, error) {
	snap, err := s.currentSnapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return snap.configs, nil
}

// DefaultModel returns the org's default model config, or nil when no
// default is set.
func (s *Service) DefaultModel(ctx context.Context, orgID uuid.UUID) (*models.ModelConfig, error) {
	snap, err := s.currentSnapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, cfg := range snap.configs {
		if cfg.IsDefault {
			return cfg, nil
		}
	}
	return nil, nil
}

// ByProvider returns active configs served by the given provider.
func (s *Service) ByProvider(ctx context.Context, orgID uuid.UUID, provider models.Provider) ([]*models.ModelConfig, error) {
	snap, err := s.currentSnapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}
	var out []*models.ModelConfig
	for _, cfg := range snap.configs {
		if cfg.Provider == provider {
			out = append(out, cfg)
		}
	}
	return out, nil
}

// ByTaskType returns active configs vetted for the given task type.
// Configs with an empty task type list match every task type.
func (s *Service) ByTaskType(ctx context.Context, orgID uuid.UUID, taskType string) ([]*models.ModelConfig, error) {
	snap, err := s.currentSnapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}
	var out []*models.ModelConfig
	for _, cfg := range snap.configs {
		if cfg.SupportsTaskType(taskType) {
			out = append(out, cfg)
		}
	}
	return out, nil
}

// GetByID returns the active config with the given ID, or nil when the ID
// is unknown or inactive for this org.
func (s *Service) GetByID(ctx context.Context, orgID, id uuid.UUID) (*models.ModelConfig, error) {
	snap, err := s.currentSnapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for _, cfg := range snap.configs {
		if cfg.ID == id {
			return cfg, nil
		}
	}
	return nil, nil
}

// Reinitialize discards the org's snapshot and reloads from the database.
// Admin mutations call this so routing sees changes immediately instead of
// waiting out the TTL.
func (s *Service) Reinitialize(ctx context.Context, orgID uuid.UUID) error {
	configs, err := s.repo.GetActive(ctx, orgID)
	if err != nil {
		s.logger.Error("registry reload failed",
			zap.String("org_id", orgID.String()),
			zap.Error(err),
		)
		return services.NewDomainError(services.ErrorTypeUnavailable, "model registry unavailable", err)
	}

	s.mu.Lock()
	s.snapshots[orgID] = &snapshot{configs: configs, loadedAt: time.Now()}
	s.mu.Unlock()

	s.logger.Info("registry snapshot reloaded",
		zap.String("org_id", orgID.String()),
		zap.Int("model_count", len(configs)),
	)

	return nil
}

// currentSnapshot returns a fresh-enough snapshot, refreshing from the
// database when the TTL has lapsed. A failed refresh degrades to the
// previous snapshot; with nothing cached it surfaces ErrRegistryUnavailable.
func (s *Service) currentSnapshot(ctx context.Context, orgID uuid.UUID) (*snapshot, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[orgID]
	s.mu.RUnlock()

	if ok && time.Since(snap.loadedAt) < s.ttl {
		return snap, nil
	}

	configs, err := s.repo.GetActive(ctx, orgID)
	if err != nil {
		if ok {
			s.logger.Warn("registry refresh failed, serving stale snapshot",
				zap.String("org_id", orgID.String()),
				zap.Duration("age", time.Since(snap.loadedAt)),
				zap.Error(err),
			)
			return snap, nil
		}
		return nil, services.NewDomainError(services.ErrorTypeUnavailable, "model registry unavailable", err)
	}

	fresh := &snapshot{configs: configs, loadedAt: time.Now()}
	s.mu.Lock()
	s.snapshots[orgID] = fresh
	s.mu.Unlock()

	return fresh, nil
}
