package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"telegram-ai-relay/internal/domain/ports/repository"
	"telegram-ai-relay/internal/infra/metrics"
)

// RetentionWorker periodically prunes turns older than the retention period.
type RetentionWorker struct {
	interval  time.Duration
	retention time.Duration
	history   repository.HistoryRepository
	now       func() time.Time
	log       *zerolog.Logger
}

func NewRetentionWorker(interval time.Duration, retentionDays int, history repository.HistoryRepository, logger *zerolog.Logger) *RetentionWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	l := logger.With().Str("component", "RetentionWorker").Logger()
	return &RetentionWorker{
		interval:  interval,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		history:   history,
		now:       time.Now,
		log:       &l,
	}
}

// Run prunes once immediately and then on every tick until ctx ends.
func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("retention", w.retention).Msg("Starting retention worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping retention worker")
			return ctx.Err()
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce deletes every turn created before now minus the retention period.
func (w *RetentionWorker) RunOnce(ctx context.Context) int64 {
	cutoff := w.now().Add(-w.retention)
	n, err := w.history.PruneBefore(ctx, cutoff)
	if err != nil {
		metrics.IncHistoryStoreError("prune")
		w.log.Error().Err(err).Msg("retention prune failed")
		return 0
	}
	if n > 0 {
		metrics.AddHistoryPruned(n)
		w.log.Info().Int64("count", n).Time("cutoff", cutoff).Msg("old turns pruned")
	}
	return n
}
