package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"stellium-ask/internal/domain/ports/repository"
	"stellium-ask/internal/infra/logging"
	"stellium-ask/internal/infra/metrics"
	"stellium-ask/internal/infra/worker"
)

// Registry is the in-memory conversation store the sweep evicts from, so
// rows deleted from storage do not live on in process and get re-saved.
type Registry interface {
	EvictIdle(ctx context.Context, olderThan time.Duration) int
}

// RetentionWorker periodically removes conversations idle beyond the
// configured retention, from storage and from the in-memory registry.
// Sweeps run on the shared pool so a slow delete never blocks the ticker.
type RetentionWorker struct {
	interval time.Duration
	days     int
	repo     repository.ConversationRepository
	registry Registry
	pool     *worker.Pool
	log      *zerolog.Logger
}

func NewRetentionWorker(interval time.Duration, retentionDays int, repo repository.ConversationRepository, registry Registry, pool *worker.Pool, logger *zerolog.Logger) *RetentionWorker {
	l := logger.With().Str("component", "RetentionWorker").Logger()
	return &RetentionWorker{
		interval: interval,
		days:     retentionDays,
		repo:     repo,
		registry: registry,
		pool:     pool,
		log:      &l,
	}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info().Int("retention_days", w.days).Msg("Starting retention worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping retention worker")
			return ctx.Err()
		case <-ticker.C:
			if err := w.pool.Submit(w.sweep); err != nil {
				w.log.Warn().Err(err).Msg("sweep not scheduled")
			}
		}
	}
}

func (w *RetentionWorker) sweep(ctx context.Context) error {
	defer logging.TraceDuration(w.log, "RetentionWorker.sweep")()
	if w.registry != nil {
		if evicted := w.registry.EvictIdle(ctx, w.idle()); evicted > 0 {
			w.log.Info().Int("count", evicted).Msg("idle conversations evicted")
		}
	}
	n, err := w.repo.CleanupOld(ctx, w.days)
	if err != nil {
		return err
	}
	if n > 0 {
		metrics.AddConversationsCleaned(n)
		w.log.Info().Int64("count", n).Msg("old conversations removed")
	}
	return nil
}

// idle is the in-memory eviction horizon: one sweep interval of inactivity,
// far shorter than the storage retention, since an evicted conversation is
// reloaded from storage on the next open.
func (w *RetentionWorker) idle() time.Duration {
	if w.interval > 0 {
		return w.interval
	}
	return time.Hour
}
