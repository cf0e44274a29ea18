// Package app wires all Taiwa subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context ends, and Shutdown tears
// everything down in reverse-init order.
//
// For testing, inject mock implementations via functional options
// (WithHistoryStore, WithMetrics, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taiwalabs/taiwa/internal/api"
	"github.com/taiwalabs/taiwa/internal/config"
	"github.com/taiwalabs/taiwa/internal/observe"
	"github.com/taiwalabs/taiwa/internal/session"
	"github.com/taiwalabs/taiwa/internal/transport/rtc"
	"github.com/taiwalabs/taiwa/internal/transport/ws"
	"github.com/taiwalabs/taiwa/pkg/history"
	"github.com/taiwalabs/taiwa/pkg/history/memstore"
	"github.com/taiwalabs/taiwa/pkg/history/postgres"
	"github.com/taiwalabs/taiwa/pkg/provider/embeddings"
	"github.com/taiwalabs/taiwa/pkg/provider/llm"
	"github.com/taiwalabs/taiwa/pkg/provider/stt"
	"github.com/taiwalabs/taiwa/pkg/provider/tts"
	"github.com/taiwalabs/taiwa/pkg/provider/vad"
)

// Providers holds one interface value per provider slot. Recognizer,
// Responder, and Synthesizer are required; Embeddings is optional and only
// feeds semantic recall on the postgres history store. Populated by main.go
// via the config registry.
type Providers struct {
	Recognizer  stt.Recognizer
	Responder   llm.Responder
	Synthesizer tts.Synthesizer
	Embeddings  embeddings.Embedder

	// RecognizerName, ResponderName, and SynthesizerName label provider
	// metrics and logs.
	RecognizerName  string
	ResponderName   string
	SynthesizerName string

	// Speaker is the synthesizer voice used for every session and API
	// request. Negative selects the provider default.
	Speaker int
}

// App owns all subsystem lifetimes and serves the Taiwa conversation engine.
type App struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger

	// Subsystems — initialised in New, torn down in Shutdown.
	metrics *observe.Metrics
	engine  vad.Engine
	store   history.Store
	pool    *session.Pool
	manager *SessionManager
	rtc     *rtc.Server
	srv     *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistoryStore injects a history store instead of creating one from
// config. The app does not close injected stores.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects a metrics instance instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithVADEngine injects the classifier engine used for new sessions.
func WithVADEngine(e vad.Engine) Option {
	return func(a *App) { a.engine = e }
}

// WithLogger sets the app's logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if providers == nil {
		return nil, errors.New("app: providers must not be nil")
	}
	if providers.Recognizer == nil {
		return nil, errors.New("app: no recognizer configured")
	}
	if providers.Responder == nil {
		return nil, errors.New("app: no responder configured")
	}
	if providers.Synthesizer == nil {
		return nil, errors.New("app: no synthesizer configured")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.engine == nil {
		a.engine = vad.Energy{}
	}

	// ── 1. History store ─────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 2. Worker pool ───────────────────────────────────────────────────
	a.pool = session.NewPool(session.DefaultPoolSize)

	// ── 3. Session manager ───────────────────────────────────────────────
	manager, err := NewSessionManager(SessionManagerConfig{
		Config:    cfg,
		Providers: providers,
		Pool:      a.pool,
		History:   a.store,
		Metrics:   a.metrics,
		Engine:    a.engine,
		Logger:    a.log,
	})
	if err != nil {
		return nil, err
	}
	a.manager = manager
	a.closers = append(a.closers, manager.Close)

	// ── 4. HTTP server ───────────────────────────────────────────────────
	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initHistory sets up the configured history store unless one was injected.
func (a *App) initHistory(ctx context.Context) error {
	if a.store != nil || !a.cfg.History.Enabled {
		return nil
	}

	driver := a.cfg.History.EffectiveDriver()
	switch driver {
	case config.HistoryPostgres:
		var popts []postgres.Option
		if a.providers.Embeddings != nil {
			popts = append(popts,
				postgres.WithEmbedder(a.providers.Embeddings),
				postgres.WithDimensions(a.providers.Embeddings.Dimensions()),
			)
		}
		store, err := postgres.New(ctx, a.cfg.History.DSN, popts...)
		if err != nil {
			return err
		}
		a.store = store
	default:
		a.store = memstore.New()
	}

	a.closers = append(a.closers, a.store.Close)
	a.log.Info("history store ready",
		"driver", string(driver),
		"recall", a.cfg.History.RecallEnabled,
	)
	return nil
}

// initServer builds the HTTP mux: websocket and WebRTC transports, the
// offline coach API, health probes, and the Prometheus scrape endpoint.
func (a *App) initServer() error {
	apiOpts := []api.Option{api.WithLogger(a.log)}
	if a.providers.Speaker >= 0 {
		apiOpts = append(apiOpts, api.WithSpeaker(a.providers.Speaker))
	}
	if a.cfg.Session.CallTimeout() > 0 {
		apiOpts = append(apiOpts, api.WithCallTimeout(a.cfg.Session.CallTimeout()))
	}
	if a.store != nil {
		store := a.store
		apiOpts = append(apiOpts, api.WithChecker("history", func(ctx context.Context) error {
			_, err := store.Recent(ctx, "readyz", 1)
			return err
		}))
	}

	coach, err := api.New(
		a.providers.Recognizer,
		a.providers.Responder,
		a.providers.Synthesizer,
		apiOpts...,
	)
	if err != nil {
		return err
	}

	a.rtc = rtc.NewServer(a.manager, rtc.WithLogger(a.log))
	a.closers = append(a.closers, func() error {
		a.rtc.Close()
		return nil
	})

	mux := http.NewServeMux()
	mux.Handle("GET /ws", ws.NewHandler(a.manager, ws.WithLogger(a.log)))
	mux.Handle("/rtc/", a.rtc.Handler())
	coach.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.srv = &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: observe.Middleware(a.metrics)(mux),
	}
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or the server fails.
// When ctx is done, Run returns context.Canceled; call Shutdown to stop the
// server and every live session.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	a.log.Info("app running",
		"listen_addr", a.srv.Addr,
		"tls", a.cfg.Server.TLS != nil,
		"pool_size", a.pool.Size(),
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("app: http server: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sessions returns the session manager so transports constructed outside the
// app (the Discord binding) can open sessions from the same place.
func (a *App) Sessions() *SessionManager {
	return a.manager
}

// Handler returns the app's root HTTP handler. Used by tests to exercise the
// mux without binding a listener.
func (a *App) Handler() http.Handler {
	return a.srv.Handler
}

// ApplyConfig applies the hot-reload-safe parts of a new config: session and
// audio tunables pick up for sessions opened from now on. Provider, server,
// and history changes require a restart and are ignored here.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.manager.Retune(cfg)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server, then tears down all subsystems in
// reverse-init order. It respects the context deadline: if ctx expires before
// all closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		// Stop accepting connections first; live handlers get until the
		// deadline to drain.
		if a.srv != nil {
			if err := a.srv.Shutdown(ctx); err != nil {
				a.log.Warn("http server shutdown error", "err", err)
			}
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
