// Package app assembles and runs the verba server: job registry, worker
// pool, execution service, HTTP API, retention reaper, and the optional
// directory watcher.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GunnyMarc/verba/pkg/config"
	"github.com/GunnyMarc/verba/pkg/event"
	"github.com/GunnyMarc/verba/pkg/jobs"
	"github.com/GunnyMarc/verba/pkg/keystore"
	"github.com/GunnyMarc/verba/pkg/mediaexec"
	"github.com/GunnyMarc/verba/pkg/server/api"
	"github.com/GunnyMarc/verba/pkg/server/httpx"
	"github.com/GunnyMarc/verba/pkg/server/watch"
	"github.com/GunnyMarc/verba/pkg/summarize"
)

// shutdownTimeout bounds graceful teardown of in-flight HTTP requests
// and queued jobs.
const shutdownTimeout = 15 * time.Second

// App is the assembled server. Create one with New and drive it with Run.
type App struct {
	cfg      *config.Config
	registry *jobs.Registry
	pool     *jobs.Pool
	service  *mediaexec.Service
	reaper   *jobs.Reaper
	watcher  *watch.Watcher
	server   *http.Server
	ready    *atomic.Bool
	logger   zerolog.Logger
}

// New wires the server from configuration. A keystore failure downgrades
// to environment-only credentials rather than refusing to start; a bad
// watch directory is a hard error because the operator asked for it.
func New(cfg *config.Config) (*App, error) {
	logger := log.With().Str("component", "app").Logger()

	bus := event.NewManager()
	registry := jobs.NewRegistry(bus)
	pool := jobs.NewPool(cfg.Server.Workers)

	var store *keystore.Store
	creds := summarize.ChainCredentials{summarize.EnvCredentials{Getenv: os.Getenv}}
	if cfg.Keystore.Dir != "" {
		opened, err := keystore.Open(cfg.Keystore.Dir)
		if err != nil {
			logger.Warn().Err(err).Str("dir", cfg.Keystore.Dir).
				Msg("Keystore unavailable, falling back to environment credentials")
		} else {
			store = opened
			creds = summarize.ChainCredentials{store, summarize.EnvCredentials{Getenv: os.Getenv}}
		}
	}

	service := mediaexec.NewService(registry, pool, cfg, creds)

	settings := api.NewSettingsStore(map[string]any{
		mediaexec.SettingWhisperModel:    cfg.Whisper.ModelPath,
		mediaexec.SettingLanguage:        cfg.Whisper.Language,
		mediaexec.SettingMarkdownStyle:   cfg.Media.MarkdownStyle,
		mediaexec.SettingIncludeMetadata: cfg.Media.IncludeMetadata,
		mediaexec.SettingModel:           cfg.Summarize.Model,
	})

	ready := &atomic.Bool{}
	deps := &api.Deps{
		Registry: registry,
		Service:  service,
		Settings: settings,
		Config:   cfg,
		Ready:    ready,
	}
	if store != nil {
		deps.Keystore = store
	}

	app := &App{
		cfg:      cfg,
		registry: registry,
		pool:     pool,
		service:  service,
		ready:    ready,
		logger:   logger,
		server: &http.Server{
			Addr:        fmt.Sprintf("%s:%d", cfg.Server.Addr, cfg.Server.Port),
			Handler:     httpx.NewRouter(cfg.Server, deps),
			ReadTimeout: cfg.Server.ReadTimeout,
			// WriteTimeout defaults to zero so SSE streams outlive any fixed bound.
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	app.reaper = jobs.NewReaper(registry, jobs.RetentionPolicy{
		MaxJobs: cfg.Retention.MaxJobs,
		MaxAge:  cfg.Retention.MaxAge,
	}, cfg.Retention.SweepInterval)
	app.reaper.Attach(bus)

	if cfg.Media.WatchDir != "" {
		if err := os.MkdirAll(cfg.Media.WatchDir, 0o755); err != nil {
			return nil, fmt.Errorf("create watch dir: %w", err)
		}
		watcher, err := watch.New(cfg.Media.WatchDir, service)
		if err != nil {
			return nil, err
		}
		app.watcher = watcher
	}

	return app, nil
}

// Addr returns the listen address, resolved after Run binds the socket.
func (a *App) Addr() string {
	return a.server.Addr
}

// Run serves until ctx is canceled, then shuts down gracefully: stop
// accepting requests, drain in-flight handlers, drain the worker pool.
// A clean shutdown returns nil.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}
	a.server.Addr = ln.Addr().String()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.reaper.Run(runCtx)
	if a.watcher != nil {
		go func() {
			if err := a.watcher.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error().Err(err).Msg("Watcher exited")
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.Serve(ln)
	}()

	a.ready.Store(true)
	a.logger.Info().Str("addr", a.server.Addr).Int("workers", a.cfg.Server.Workers).Msg("Server started")

	select {
	case err := <-serveErr:
		a.ready.Store(false)
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	a.ready.Store(false)
	a.logger.Info().Msg("Shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn().Err(err).Msg("HTTP shutdown did not complete cleanly")
	}
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	if err := a.pool.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn().Err(err).Msg("Worker pool did not drain in time")
	}

	a.logger.Info().Msg("Server stopped")
	return nil
}
