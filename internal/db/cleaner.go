package db

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner removes imported items older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// StartOrganizerPruner removes imports older than retention every interval
// until ctx is cancelled.
func StartOrganizerPruner(
	ctx context.Context,
	p Pruner,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := p.Prune(ctx, time.Now().Add(-retention))
				if err != nil {
					log.Error("failed to prune organizer items", zap.Error(err))
					continue
				}
				if removed > 0 {
					log.Info("pruned organizer items", zap.Int64("removed", removed))
				}
			}
		}
	}()
}
