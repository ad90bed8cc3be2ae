package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/drupalmigrate/internal/config"
	"github.com/JonMunkholm/drupalmigrate/internal/core"
	"github.com/JonMunkholm/drupalmigrate/internal/source"
	"github.com/JonMunkholm/drupalmigrate/internal/store/memory"
	"github.com/JonMunkholm/drupalmigrate/internal/store/postgres"
)

// app holds the wired dependencies shared by the commands.
type app struct {
	service *core.Service
	profile *config.Profile
	drupal  *source.Drupal // nil without DRUPAL_DSN

	closers []func()
}

// openApp connects the configured store and, when withDrupal is set, the
// Drupal source database.
func openApp(ctx context.Context, cfg *config.Config, withDrupal bool) (*app, error) {
	a := &app{}

	profile, err := config.LoadProfile(cfg.Import.ProfilePath)
	if err != nil {
		return nil, err
	}
	if err := profile.Validate(core.Keys()); err != nil {
		return nil, err
	}
	a.profile = profile

	var (
		backend core.Backend
		history core.History
	)
	switch cfg.Store.Backend {
	case config.BackendMemory:
		slog.Warn("using the in-memory store; nothing is persisted")
		store := memory.New()
		backend, history = store, store
	default:
		pool, err := postgres.Connect(ctx, postgres.PoolConfig{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)

		store := postgres.New(pool)
		if err := store.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
		backend, history = store, store
	}

	if withDrupal && cfg.Source.DrupalDSN != "" {
		d, err := source.OpenDrupal(ctx, cfg.Source.DrupalDSN, cfg.Source.TablePrefix)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.drupal = d
		a.closers = append(a.closers, func() {
			if err := d.Close(); err != nil {
				slog.Warn("close drupal source", "error", err)
			}
		})
	}

	a.service = core.NewService(backend, history, core.ServiceConfig{
		RunTimeout:        cfg.Import.Timeout,
		MaxConcurrentRuns: cfg.Import.MaxConcurrent,
		RunWaitTime:       cfg.Import.MaxWaitTime,
		Options:           profile.Options(core.Keys()),
	})
	return a, nil
}

// requireDrupal returns the source database or explains how to configure it.
func (a *app) requireDrupal() (*source.Drupal, error) {
	if a.drupal == nil {
		return nil, fmt.Errorf("drupal source not configured: set DRUPAL_DSN")
	}
	return a.drupal, nil
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
