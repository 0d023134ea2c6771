// Package app wires the receptionist subsystems into a running server.
//
// New opens the request store, wraps the providers in circuit breakers and
// mounts every HTTP surface on one mux: the call WebSocket, the supervisor
// API, the health probes and the Prometheus endpoint. Shutdown tears
// everything down in order.
//
// For testing, inject a store with [WithStore]. Otherwise New opens the
// store named by the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/MrWong99/frontdesk/internal/config"
	"github.com/MrWong99/frontdesk/internal/health"
	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/internal/resilience"
	"github.com/MrWong99/frontdesk/internal/store"
	"github.com/MrWong99/frontdesk/internal/store/memstore"
	"github.com/MrWong99/frontdesk/internal/store/postgres"
	"github.com/MrWong99/frontdesk/internal/store/sqlite"
	"github.com/MrWong99/frontdesk/internal/supervisor"
	"github.com/MrWong99/frontdesk/pkg/audio/wsock"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	"github.com/MrWong99/frontdesk/pkg/provider/stt"
	"github.com/MrWong99/frontdesk/pkg/provider/tts"
	"github.com/MrWong99/frontdesk/pkg/provider/vad"
	"github.com/MrWong99/frontdesk/pkg/provider/vad/energy"
)

// Providers holds one value per provider slot. STT, LLM and TTS are required;
// a nil VAD selects the energy detector. Populated by main.go via the config
// registry.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
	VAD vad.Engine
}

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	store   store.Store
	metrics *observe.Metrics
	log     *slog.Logger

	calls   *CallManager
	ws      *wsock.Server
	handler http.Handler

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithStore injects a request store instead of opening one from config. The
// App still closes it on Shutdown.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics overrides the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the base logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg and the raw providers. The STT, LLM and TTS
// providers are wrapped in circuit breakers configured by cfg.Resilience.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil || providers.LLM == nil || providers.TTS == nil {
		return nil, errors.New("app: stt, llm and tts providers are required")
	}
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.log == nil {
		a.log = slog.Default()
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	guarded, checks := a.guard(providers)

	calls, err := NewCallManager(CallManagerConfig{
		Store:     a.store,
		Providers: guarded,
		Agent:     cfg.Agent,
		Logger:    a.log,
		Metrics:   a.metrics,
	})
	if err != nil {
		a.closeAll()
		return nil, err
	}
	a.calls = calls

	var wsOpts []wsock.Option
	wsOpts = append(wsOpts, wsock.WithLogger(a.log))
	if len(cfg.Server.AllowedOrigins) > 0 {
		wsOpts = append(wsOpts, wsock.WithOriginPatterns(cfg.Server.AllowedOrigins...))
	}
	a.ws = wsock.NewServer(calls, wsOpts...)

	mux := http.NewServeMux()
	a.ws.Register(mux)
	supervisor.NewAPI(a.store,
		supervisor.WithAPILogger(a.log),
		supervisor.WithAPIMetrics(a.metrics),
	).Register(mux)
	health.New(append([]health.Checker{health.StoreCheck(a.store)}, checks...)...).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler())
	a.handler = observe.Middleware(a.metrics)(mux)

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initStore(ctx context.Context) error {
	if a.store == nil {
		st, err := openStore(ctx, a.cfg.Store)
		if err != nil {
			return err
		}
		a.store = st
		a.log.Info("store opened", "driver", a.cfg.Store.Driver)
	}
	a.closers = append(a.closers, a.store.Close)
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.StoreMemory, "":
		return memstore.New(), nil
	case config.StoreSQLite:
		return sqlite.Open(ctx, cfg.DSN)
	case config.StorePostgres:
		return postgres.NewStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// guard wraps the remote providers in circuit breakers and returns one
// readiness check per breaker.
func (a *App) guard(p *Providers) (*Providers, []health.Checker) {
	breaker := resilience.CircuitBreakerConfig{
		MaxFailures:  a.cfg.Resilience.MaxFailures,
		ResetTimeout: a.cfg.Resilience.ResetTimeout,
		Logger:       a.log,
	}
	gopts := []resilience.GuardOption{
		resilience.WithBreaker(breaker),
		resilience.WithMetrics(a.metrics),
	}
	s := resilience.NewGuardedSTT(a.cfg.Providers.STT.Name, p.STT, gopts...)
	l := resilience.NewGuardedLLM(a.cfg.Providers.LLM.Name, p.LLM, gopts...)
	t := resilience.NewGuardedTTS(a.cfg.Providers.TTS.Name, p.TTS, gopts...)

	v := p.VAD
	if v == nil {
		v = energy.New()
	}
	return &Providers{STT: s, LLM: l, TTS: t, VAD: v}, []health.Checker{
		health.BreakerCheck("stt", s),
		health.BreakerCheck("llm", l),
		health.BreakerCheck("tts", t),
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the instrumented HTTP handler serving every route.
func (a *App) Handler() http.Handler { return a.handler }

// Calls returns the call manager.
func (a *App) Calls() *CallManager { return a.calls }

// Store returns the request store.
func (a *App) Store() store.Store { return a.store }

// ApplyConfig applies the hot-reloadable parts of newCfg. Agent settings take
// effect for calls that start afterwards. Sections that need a restart are
// logged and ignored.
func (a *App) ApplyConfig(newCfg *config.Config) {
	d := config.Diff(a.cfg, newCfg)
	if d.AgentChanged {
		a.calls.SetAgent(newCfg.Agent)
		a.log.Info("agent settings reloaded")
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes need a restart", "sections", d.RestartRequired)
	}
	a.cfg = newCfg
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends every live call, waits for the calls to finish and then
// closes the store. If ctx expires first, the store is still closed and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "active_calls", a.calls.Active())
		a.ws.Close()
		if err = a.calls.Wait(ctx); err != nil {
			a.log.Warn("shutdown deadline exceeded", "err", err)
		}
		a.closeAll()
		a.log.Info("shutdown complete")
	})
	return err
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
}
