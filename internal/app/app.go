// Package app wires all Orato subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithTranscriber). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/anneliv/orato/internal/coach"
	"github.com/anneliv/orato/internal/config"
	"github.com/anneliv/orato/internal/fluency"
	"github.com/anneliv/orato/internal/live"
	"github.com/anneliv/orato/internal/observe"
	"github.com/anneliv/orato/internal/progress"
	"github.com/anneliv/orato/internal/server"
	"github.com/anneliv/orato/pkg/provider/transcriber"
	"github.com/anneliv/orato/pkg/provider/transcriber/openai"
)

// shutdownGrace bounds how long the HTTP server drains in-flight requests.
const shutdownGrace = 10 * time.Second

// App owns all subsystem lifetimes for one Orato server instance.
type App struct {
	cfg *config.Config

	store       progress.Store
	transcriber transcriber.Provider
	httpSrv     *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a session store instead of creating one from config.
func WithStore(s progress.Store) Option {
	return func(a *App) { a.store = s }
}

// WithTranscriber injects a transcription provider instead of creating one
// from config.
func WithTranscriber(p transcriber.Provider) Option {
	return func(a *App) { a.transcriber = p }
}

// New creates an App by wiring all subsystems together: the session store,
// the transcription provider, the analysis pipeline, and the HTTP server.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initTranscriber(); err != nil {
		return nil, fmt.Errorf("app: init transcriber: %w", err)
	}
	a.initServer()

	return a, nil
}

// initStore creates the configured storage backend unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	switch a.cfg.Storage.Backend {
	case config.StorageMemory, "":
		a.store = progress.NewMemStore()
		slog.Info("using in-memory store, sessions are lost on restart")

	case config.StorageSQLite:
		store, err := progress.OpenSQLite(a.cfg.Storage.Path, slog.Default())
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
		slog.Info("sqlite store ready", "path", a.cfg.Storage.Path)

	case config.StoragePostgres:
		pool, err := pgxpool.New(ctx, a.cfg.Storage.DSN)
		if err != nil {
			return err
		}
		store := progress.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return fmt.Errorf("migrate: %w", err)
		}
		a.store = store
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		slog.Info("postgres store ready")

	default:
		return fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}

	return nil
}

// initTranscriber creates the configured transcription provider. Running
// without one is supported: live tracking and pre-transcribed analysis still
// work.
func (a *App) initTranscriber() error {
	if a.transcriber != nil {
		return nil
	}
	if a.cfg.Transcriber.Name == "" {
		slog.Warn("no transcriber configured; recorded-audio analysis will accept transcripts only")
		return nil
	}

	switch a.cfg.Transcriber.Name {
	case "openai":
		var opts []openai.Option
		if a.cfg.Transcriber.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(a.cfg.Transcriber.BaseURL))
		}
		p, err := openai.New(a.cfg.Transcriber.APIKey, a.cfg.Transcriber.Model, opts...)
		if err != nil {
			return err
		}
		a.transcriber = p
		slog.Info("transcriber ready", "provider", "openai", "model", a.cfg.Transcriber.Model)

	default:
		return fmt.Errorf("unknown transcriber %q", a.cfg.Transcriber.Name)
	}

	return nil
}

// initServer assembles the analysis pipeline and the HTTP server.
func (a *App) initServer() {
	calc := fluency.New(fluency.Config{
		Policy:              fluency.Policy(a.cfg.Analysis.Policy),
		TargetWPM:           a.cfg.Analysis.TargetWPM,
		PauseFloor:          a.cfg.Analysis.PauseFloor,
		RepetitionThreshold: a.cfg.Analysis.RepetitionThreshold,
	})

	srv := server.New(server.Config{
		Store:           a.store,
		Calculator:      calc,
		Coach:           coach.New(),
		Transcriber:     a.transcriber,
		TranscriberName: a.cfg.Transcriber.Name,
		DefaultLanguage: a.cfg.Transcriber.Language,
		Live: live.Config{
			Tick:           time.Duration(a.cfg.Live.TickMs) * time.Millisecond,
			PauseThreshold: time.Duration(a.cfg.Live.PauseThresholdMs) * time.Millisecond,
		},
		StreakMinimum: time.Duration(a.cfg.Progress.StreakMinimumMinutes) * time.Minute,
	})

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(srv.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Store exposes the active session store, mainly for tests.
func (a *App) Store() progress.Store { return a.store }

// Handler exposes the fully wired HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler { return a.httpSrv.Handler }

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("listening", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.httpSrv.Shutdown(drainCtx); err != nil {
			return fmt.Errorf("app: drain: %w", err)
		}
		return ctx.Err()
	})

	return g.Wait()
}

// Shutdown releases all resources held by the App. Safe to call more than
// once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
