package core

// scheduler.go prunes old run history in the background.
//
// The pruner runs once at start and then every CheckInterval until its
// context is cancelled. A failed prune is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// PruneConfig holds configuration for the history pruner.
type PruneConfig struct {
	RetentionDays int           // Days of run history to keep (default: 90)
	CheckInterval time.Duration // How often to prune (default: 24h)
}

func (c PruneConfig) withDefaults() PruneConfig {
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 24 * time.Hour
	}
	return c
}

// StartHistoryPruner blocks, deleting run records older than the retention
// window, until ctx is cancelled. It does nothing without a history store.
func (s *Service) StartHistoryPruner(ctx context.Context, cfg PruneConfig) {
	if s.history == nil {
		return
	}
	cfg = cfg.withDefaults()
	slog.Info("history pruner started",
		"retention_days", cfg.RetentionDays,
		"interval", cfg.CheckInterval,
	)

	s.pruneHistory(ctx, cfg)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("history pruner stopped")
			return
		case <-ticker.C:
			s.pruneHistory(ctx, cfg)
		}
	}
}

func (s *Service) pruneHistory(ctx context.Context, cfg PruneConfig) {
	start := time.Now()
	before := start.AddDate(0, 0, -cfg.RetentionDays)

	pruned, err := s.history.PruneRuns(ctx, before)
	if err != nil {
		slog.Error("history prune failed", "error", err)
		return
	}
	slog.Info("pruned run history",
		"runs_pruned", pruned,
		"before", before.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
