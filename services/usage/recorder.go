// Package usage persists usage log entries off the request path. Entries
// flow through a bounded channel to a pool of workers; when the buffer is
// full the entry is dropped with a warning rather than stalling routing.
package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sheetwise/modelmux/models"
	"github.com/sheetwise/modelmux/repositories"
	"go.uber.org/zap"
)

// Recorder handles asynchronous usage logging
type Recorder struct {
	repo        repositories.UsageLogRepository
	logger      *zap.Logger
	entryChan   chan *models.UsageLogEntry
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	started     bool
	mu          sync.Mutex

	dropped uint64
}

// Config holds configuration for the Recorder
type Config struct {
	BufferSize  int // Size of the entry buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  10000,
		WorkerCount: 5,
	}
}

// NewRecorder creates a new Recorder instance
func NewRecorder(repo repositories.UsageLogRepository, logger *zap.Logger, config Config) *Recorder {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}

	return &Recorder{
		repo:        repo,
		logger:      logger,
		entryChan:   make(chan *models.UsageLogEntry, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("usage recorder already started")
	}

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.started = true
	r.logger.Info("started usage recorder",
		zap.Int("worker_count", r.workerCount),
		zap.Int("buffer_size", r.bufferSize))

	return nil
}

// Stop gracefully stops the recorder, draining the buffer.
// Entries still pending after the timeout are lost.
func (r *Recorder) Stop(timeout time.Duration) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return fmt.Errorf("usage recorder not started")
	}
	r.started = false
	r.mu.Unlock()

	r.logger.Info("stopping usage recorder", zap.Int("pending_entries", len(r.entryChan)))

	close(r.entryChan)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("usage recorder stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("usage recorder stop timeout after %v", timeout)
	}
}

// Record queues an entry for persistence. Never blocks: when the buffer is
// full the entry is dropped and counted.
func (r *Recorder) Record(entry *models.UsageLogEntry) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return fmt.Errorf("usage recorder not started")
	}
	r.mu.Unlock()

	select {
	case r.entryChan <- entry:
		return nil
	default:
		r.mu.Lock()
		r.dropped++
		dropped := r.dropped
		r.mu.Unlock()

		r.logger.Warn("usage buffer full, dropping entry",
			zap.String("org_id", entry.OrgID.String()),
			zap.String("model_config_id", entry.ModelConfigID.String()),
			zap.Uint64("dropped_total", dropped))
		return fmt.Errorf("usage buffer full")
	}
}

// worker persists entries from the channel
func (r *Recorder) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("usage worker started", zap.Int("worker_id", id))

	for entry := range r.entryChan {
		if err := r.persist(entry); err != nil {
			r.logger.Error("failed to persist usage entry",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("org_id", entry.OrgID.String()),
				zap.String("model_config_id", entry.ModelConfigID.String()))
		}
	}

	r.logger.Debug("usage worker stopped", zap.Int("worker_id", id))
}

// persist inserts a single entry with its own timeout, detached from any
// request context
func (r *Recorder) persist(entry *models.UsageLogEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.repo.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert usage log: %w", err)
	}

	return nil
}

// Stats represents recorder statistics
type Stats struct {
	BufferSize     int
	PendingEntries int
	WorkerCount    int
	Started        bool
	Dropped        uint64
}

// GetStats returns statistics about the recorder
func (r *Recorder) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Stats{
		BufferSize:     r.bufferSize,
		PendingEntries: len(r.entryChan),
		WorkerCount:    r.workerCount,
		Started:        r.started,
		Dropped:        r.dropped,
	}
}
