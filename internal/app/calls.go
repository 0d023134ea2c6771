package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/frontdesk/internal/call"
	"github.com/MrWong99/frontdesk/internal/config"
	"github.com/MrWong99/frontdesk/internal/endpoint"
	"github.com/MrWong99/frontdesk/internal/filter"
	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/internal/resolver"
	"github.com/MrWong99/frontdesk/internal/speech"
	"github.com/MrWong99/frontdesk/internal/store"
	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/tts"
)

// CallManager runs one [call.Session] per accepted call. It implements
// [audio.CallHandler] and is safe for concurrent use.
type CallManager struct {
	store     store.Store
	providers *Providers
	filter    *filter.Filter
	log       *slog.Logger
	metrics   *observe.Metrics

	// agent is read once per call; SetAgent affects new calls only.
	agent atomic.Pointer[config.AgentConfig]

	active atomic.Int64
	wg     sync.WaitGroup
}

var _ audio.CallHandler = (*CallManager)(nil)

// CallManagerConfig holds the dependencies of a [CallManager]. Store and the
// STT, LLM, TTS and VAD providers are required.
type CallManagerConfig struct {
	Store     store.Store
	Providers *Providers
	Agent     config.AgentConfig

	// Filter gates transcripts. Default: filter.New().
	Filter *filter.Filter

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

// NewCallManager validates cfg and returns a ready [CallManager].
func NewCallManager(cfg CallManagerConfig) (*CallManager, error) {
	p := cfg.Providers
	if cfg.Store == nil || p == nil || p.STT == nil || p.LLM == nil || p.TTS == nil || p.VAD == nil {
		return nil, errors.New("app: call manager needs a store and stt, llm, tts and vad providers")
	}
	if cfg.Filter == nil {
		cfg.Filter = filter.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	m := &CallManager{
		store:     cfg.Store,
		providers: p,
		filter:    cfg.Filter,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
	}
	m.SetAgent(cfg.Agent)
	return m, nil
}

// SetAgent replaces the agent settings used for calls that start afterwards.
func (m *CallManager) SetAgent(a config.AgentConfig) {
	m.agent.Store(&a)
}

// Agent returns the agent settings new calls will use.
func (m *CallManager) Agent() config.AgentConfig {
	return *m.agent.Load()
}

// Active returns the number of calls in progress.
func (m *CallManager) Active() int {
	return int(m.active.Load())
}

// Wait blocks until every call has ended or ctx is done.
func (m *CallManager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("app: wait for %d calls: %w", m.Active(), ctx.Err())
	}
}

// HandleCall implements [audio.CallHandler]. It blocks until the caller hangs
// up, the transport fails, or ctx is cancelled. A call whose session cannot
// start, fails or panics is not disconnected: its audio is drained until the
// caller leaves. Only a session that ends normally hangs up.
func (m *CallManager) HandleCall(ctx context.Context, c audio.Call) {
	m.wg.Add(1)
	defer m.wg.Done()

	info := c.Info()
	log := m.log.With("call_id", info.ID)

	m.active.Add(1)
	m.metrics.ActiveCalls.Add(ctx, 1)
	defer func() {
		m.active.Add(-1)
		m.metrics.ActiveCalls.Add(context.WithoutCancel(ctx), -1)
	}()

	ended := false
	defer func() {
		if r := recover(); r != nil {
			log.Error("app: call panicked", "panic", r, "stack", string(debug.Stack()))
		}
		if !ended {
			log.Warn("app: call kept open without a session")
			audio.Drain(c.Input())
			return
		}
		if err := c.Hangup(); err != nil {
			log.Debug("app: hangup", "err", err)
		}
		// The transport never blocks on a finished session.
		audio.Drain(c.Input())
	}()

	sess, err := m.newSession(ctx, c, log)
	if err != nil {
		log.Error("app: start call", "err", err)
		return
	}
	log.Info("call started", "customer_id", sess.Customer().ID, "phone", sess.Phone())

	if err := sess.Run(ctx, c.Input()); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("app: call failed", "err", err)
		return
	}
	ended = true
	if err := c.Err(); err != nil {
		log.Warn("call dropped", "err", err)
	}
}

func (m *CallManager) newSession(ctx context.Context, c audio.Call, log *slog.Logger) (*call.Session, error) {
	a := m.Agent()

	ropts := []resolver.Option{
		resolver.WithAgent(a.Name, a.Business),
		resolver.WithMaxTokens(a.MaxTokens),
		resolver.WithMetrics(m.metrics),
	}
	if a.Temperature > 0 {
		ropts = append(ropts, resolver.WithTemperature(a.Temperature))
	}
	if len(a.EscalationPhrases) > 0 {
		ropts = append(ropts, resolver.WithEscalationPhrases(a.EscalationPhrases...))
	}

	speaker := speech.New(m.providers.TTS, c, tts.Voice{ID: a.Voice, Speed: a.Speed},
		speech.WithLogger(log))

	return call.New(ctx, call.Config{
		Info:        c.Info(),
		Store:       m.store,
		VAD:         m.providers.VAD,
		Transcriber: m.providers.STT,
		Resolver:    resolver.New(m.store, m.providers.LLM, ropts...),
		Speaker:     speaker,
		Filter:      m.filter,
		Endpoint: endpoint.Config{
			MinUtterance:    a.Endpoint.MinUtterance,
			TrailingSilence: a.Endpoint.TrailingSilence,
			MaxUtterance:    a.Endpoint.MaxUtterance,
			EnergyThreshold: a.Endpoint.EnergyThreshold,
		},
		Greeting:     a.Greeting,
		Cooldown:     a.Cooldown,
		PollInterval: a.PollInterval,
		Logger:       log,
		Metrics:      m.metrics,
	})
}
