package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRunTimeout is the maximum duration of one import run.
const DefaultRunTimeout = 30 * time.Minute

// ServiceConfig configures a Service. Zero values fall back to defaults.
type ServiceConfig struct {
	RunTimeout        time.Duration
	MaxConcurrentRuns int
	RunWaitTime       time.Duration
	// Options holds per-importer options, keyed by importer key.
	Options map[string]Options
}

// Service runs importers against one backend and keeps their history. It is
// the entry point shared by the HTTP server and the CLI.
type Service struct {
	backend Backend
	history History
	limiter *RunLimiter
	timeout time.Duration
	options map[string]Options
}

// NewService creates a Service. history may be nil, in which case runs are
// not recorded.
func NewService(backend Backend, history History, cfg ServiceConfig) *Service {
	timeout := cfg.RunTimeout
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	options := cfg.Options
	if options == nil {
		options = make(map[string]Options)
	}
	return &Service{
		backend: backend,
		history: history,
		limiter: NewRunLimiter(cfg.MaxConcurrentRuns, cfg.RunWaitTime),
		timeout: timeout,
		options: options,
	}
}

// RunRequest describes one run started through the Service.
type RunRequest struct {
	Preview    bool
	Source     string
	Options    *Options // Overrides the configured options when set
	OnProgress ProgressCallback
}

// ListImporters returns information about all registered importers.
func (s *Service) ListImporters() []ImporterInfo {
	regs := All()
	infos := make([]ImporterInfo, len(regs))
	for i, reg := range regs {
		infos[i] = reg.Info
	}
	return infos
}

// OptionsFor returns the configured options for an importer.
func (s *Service) OptionsFor(key string) Options {
	return s.options[key]
}

// Import runs importer key over r. It waits for a run slot, enforces the run
// timeout and records non-preview runs in history. A report is returned whenever the
// importer started, even if the run aborted.
func (s *Service) Import(ctx context.Context, key string, r RecordReader, req RunRequest) (*Report, error) {
	opts := s.options[key]
	if req.Options != nil {
		opts = *req.Options
	}
	imp, err := Build(key, s.backend, opts)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, runErr := imp.Run(runCtx, r, RunOptions{
		Preview:    req.Preview,
		Source:     req.Source,
		OnProgress: req.OnProgress,
	})

	if s.history != nil && report != nil && !report.Preview {
		// Recorded with the parent context so a timed-out run is still stored.
		rec := NewRunRecord(report, RequesterFromContext(ctx))
		if err := s.history.RecordRun(context.WithoutCancel(ctx), rec); err != nil {
			slog.Error("failed to record import run", "run_id", report.RunID, "error", err)
		}
	}

	return report, runErr
}

// ListRuns returns the most recent runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.ListRuns(ctx, limit)
}

// GetRun returns a stored run by id.
func (s *Service) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	if s.history == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return s.history.GetRun(ctx, id)
}

// RewriteRules returns the rewrite rules produced by a stored run.
func (s *Service) RewriteRules(ctx context.Context, id string) (string, error) {
	rec, err := s.GetRun(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.RewriteRules, nil
}

// LimiterStatus reports run slot usage.
func (s *Service) LimiterStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// Drain waits for in-flight runs to finish.
func (s *Service) Drain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
