// Package retention prunes old language model exchanges from the journal.
package retention

import (
	"context"
	"log/slog"
	"time"
)

// Pruner deletes exchanges older than a TTL.
type Pruner interface {
	PruneExchanges(ctx context.Context, ttl time.Duration) (int64, error)
}

// StartWorker runs a background goroutine that periodically removes
// exchanges older than ttl. It stops when ctx is cancelled.
func StartWorker(ctx context.Context, repo Pruner, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, repo, ttl)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep runs one pruning pass and returns the number of removed exchanges.
func Sweep(ctx context.Context, repo Pruner, ttl time.Duration) int64 {
	removed, err := repo.PruneExchanges(ctx, ttl)
	if err != nil {
		if ctx.Err() != nil {
			slog.Debug("Retention sweep interrupted", "error", err)
			return 0
		}
		slog.Error("Retention worker failed to prune exchanges", "error", err)
		return 0
	}
	if removed > 0 {
		slog.Info("Retention worker pruned exchanges", "count", removed)
	}
	return removed
}
