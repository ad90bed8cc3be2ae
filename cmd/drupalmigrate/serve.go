package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/drupalmigrate/internal/core"
	"github.com/JonMunkholm/drupalmigrate/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the import HTTP API",
	Long: `Serve the HTTP API for starting runs and fetching reports and rewrite
rules. Old run history is pruned in the background (HISTORY_RETENTION_DAYS).
On SIGINT or SIGTERM the server stops accepting requests and waits up to
SERVER_SHUTDOWN_TIMEOUT for runs in progress.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Info("configuration loaded",
		"addr", cfg.Server.Addr(),
		"store", cfg.Store.Backend,
		"drupal_source", a.drupal != nil,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"require_api_key", cfg.Security.RequireAPIKey,
	)
	slog.Info("importers registered", "count", core.ImporterCount(), "keys", core.Keys())

	server := web.NewServer(a.service, cfg, a.drupal)

	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()
	go a.service.StartHistoryPruner(jobCtx, core.PruneConfig{
		RetentionDays: cfg.History.RetentionDays,
		CheckInterval: cfg.History.CheckInterval,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := a.service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for runs to complete", "active", status.Active)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown did not complete in time", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	slog.Info("server stopped")
	return nil
}
