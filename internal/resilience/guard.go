package resilience

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/pkg/provider/llm"
	"github.com/MrWong99/frontdesk/pkg/provider/stt"
	"github.com/MrWong99/frontdesk/pkg/provider/tts"
)

// Provider kinds used as the "kind" metric attribute.
const (
	KindSTT = "stt"
	KindLLM = "llm"
	KindTTS = "tts"
)

// GuardOption configures a guarded provider.
type GuardOption func(*guard)

// WithBreaker overrides the circuit breaker configuration. The breaker name is
// always derived from the provider kind and name.
func WithBreaker(cfg CircuitBreakerConfig) GuardOption {
	return func(g *guard) { g.breakerCfg = cfg }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) GuardOption {
	return func(g *guard) { g.metrics = m }
}

// guard is the breaker + telemetry plumbing shared by the typed wrappers.
type guard struct {
	kind       string
	name       string
	breakerCfg CircuitBreakerConfig
	metrics    *observe.Metrics
	cb         *CircuitBreaker
}

func newGuard(kind, name string, opts []GuardOption) *guard {
	g := &guard{kind: kind, name: name}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	cfg := g.breakerCfg
	cfg.Name = kind + ":" + name
	userHook := cfg.OnStateChange
	cfg.OnStateChange = func(breaker string, from, to State) {
		g.metrics.RecordBreakerTransition(context.Background(), breaker, to.String())
		if userHook != nil {
			userHook(breaker, from, to)
		}
	}
	g.cb = NewCircuitBreaker(cfg)
	return g
}

// run executes fn under the breaker inside a span and records its latency in
// h. A cancelled context is returned to the caller but not counted against
// the provider.
func (g *guard) run(ctx context.Context, h metric.Float64Histogram, fn func(context.Context) error) error {
	ctx, span := observe.StartSpan(ctx, g.kind+"."+g.name,
		trace.WithAttributes(
			attribute.String("provider.kind", g.kind),
			attribute.String("provider.name", g.name),
		),
	)
	defer span.End()

	var callErr error
	start := time.Now()
	err := g.cb.Execute(func() error {
		callErr = fn(ctx)
		if callErr != nil && ctx.Err() != nil {
			return nil
		}
		return callErr
	})
	if errors.Is(err, ErrCircuitOpen) {
		g.metrics.RecordProviderRequest(ctx, g.name, g.kind, "rejected")
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	h.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", g.name)))
	if callErr != nil {
		g.metrics.RecordProviderRequest(ctx, g.name, g.kind, "error")
		g.metrics.RecordProviderError(ctx, g.name, g.kind)
		span.RecordError(callErr)
		span.SetStatus(codes.Error, callErr.Error())
		return callErr
	}
	g.metrics.RecordProviderRequest(ctx, g.name, g.kind, "ok")
	return nil
}

// State returns the breaker state.
func (g *guard) State() State { return g.cb.State() }

// ─── STT ──────────────────────────────────────────────────────────────────────

// GuardedSTT wraps an [stt.Provider] with a circuit breaker and telemetry.
type GuardedSTT struct {
	*guard
	p stt.Provider
}

var _ stt.Provider = (*GuardedSTT)(nil)

// NewGuardedSTT wraps p. name labels logs, spans and metrics (e.g. "groq").
func NewGuardedSTT(name string, p stt.Provider, opts ...GuardOption) *GuardedSTT {
	return &GuardedSTT{guard: newGuard(KindSTT, name, opts), p: p}
}

// Transcribe implements [stt.Provider].
func (g *GuardedSTT) Transcribe(ctx context.Context, wav []byte) (string, error) {
	var text string
	err := g.run(ctx, g.metrics.STTDuration, func(ctx context.Context) error {
		var err error
		text, err = g.p.Transcribe(ctx, wav)
		return err
	})
	return text, err
}

// ─── LLM ──────────────────────────────────────────────────────────────────────

// GuardedLLM wraps an [llm.Provider] with a circuit breaker and telemetry.
type GuardedLLM struct {
	*guard
	p llm.Provider
}

var _ llm.Provider = (*GuardedLLM)(nil)

// NewGuardedLLM wraps p.
func NewGuardedLLM(name string, p llm.Provider, opts ...GuardOption) *GuardedLLM {
	return &GuardedLLM{guard: newGuard(KindLLM, name, opts), p: p}
}

// Complete implements [llm.Provider].
func (g *GuardedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := g.run(ctx, g.metrics.LLMDuration, func(ctx context.Context) error {
		var err error
		resp, err = g.p.Complete(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ─── TTS ──────────────────────────────────────────────────────────────────────

// GuardedTTS wraps a [tts.Provider] with a circuit breaker and telemetry.
type GuardedTTS struct {
	*guard
	p tts.Provider
}

var _ tts.Provider = (*GuardedTTS)(nil)

// NewGuardedTTS wraps p.
func NewGuardedTTS(name string, p tts.Provider, opts ...GuardOption) *GuardedTTS {
	return &GuardedTTS{guard: newGuard(KindTTS, name, opts), p: p}
}

// Synthesize implements [tts.Provider].
func (g *GuardedTTS) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	var out tts.Audio
	err := g.run(ctx, g.metrics.TTSDuration, func(ctx context.Context) error {
		var err error
		out, err = g.p.Synthesize(ctx, text, voice)
		return err
	})
	return out, err
}
