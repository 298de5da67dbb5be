// Package worker runs background maintenance: fact-cache eviction and
// quota-ledger pruning.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/veriscope/veriscope-api/internal/repository"
)

// cacheSweeper evicts expired fact-cache entries. Satisfied by
// *facts.Store.
type cacheSweeper interface {
	Sweep() int
}

// Worker periodically sweeps the fact cache and prunes old quota rows.
type Worker struct {
	facts     cacheSweeper
	quotaRepo repository.QuotaRepository
	interval  time.Duration
	retention time.Duration
	stop      chan struct{}
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// Config holds worker configuration.
type Config struct {
	// SweepInterval is the cadence of maintenance passes.
	SweepInterval time.Duration
	// QuotaRetention is how long old daily-quota rows are kept.
	QuotaRetention time.Duration
}

// New creates a maintenance worker.
func New(facts cacheSweeper, quotaRepo repository.QuotaRepository, cfg Config, logger *slog.Logger) *Worker {
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 10 * time.Minute
	}
	if cfg.QuotaRetention == 0 {
		cfg.QuotaRetention = 90 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		facts:     facts,
		quotaRepo: quotaRepo,
		interval:  cfg.SweepInterval,
		retention: cfg.QuotaRetention,
		stop:      make(chan struct{}),
		logger:    logger.With("component", "worker"),
	}
}

// Start begins the maintenance loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting", "interval", w.interval.String())
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep runs one maintenance pass.
func (w *Worker) sweep(ctx context.Context) {
	evicted := w.facts.Sweep()

	cutoff := time.Now().UTC().Add(-w.retention).Format("2006-01-02")
	deleted, err := w.quotaRepo.DeleteBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error("quota prune failed", "cutoff", cutoff, "error", err)
	}

	if evicted > 0 || deleted > 0 {
		w.logger.Info("maintenance pass", "cache_evicted", evicted, "quota_rows_deleted", deleted)
	}
}
