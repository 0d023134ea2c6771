// Package call runs one phone call end to end.
//
// A [Session] owns everything that is private to a call: the endpoint
// detector, the supervisor bridge and the processing [State]. Its frame loop
// canonicalizes inbound audio and feeds the detector; every completed
// utterance starts a reply cycle (transcribe, filter, resolve, speak) on its
// own goroutine so the frame loop never waits on the network. The state is
// advanced with compare-and-swap, so a second cycle cannot start while one is
// in flight. Frames that arrive meanwhile are converted and dropped; callers
// cannot interrupt the receptionist.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/frontdesk/internal/endpoint"
	"github.com/MrWong99/frontdesk/internal/filter"
	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/internal/resolver"
	"github.com/MrWong99/frontdesk/internal/speech"
	"github.com/MrWong99/frontdesk/internal/store"
	"github.com/MrWong99/frontdesk/internal/supervisor"
	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/stt"
	"github.com/MrWong99/frontdesk/pkg/provider/vad"
)

// Defaults for [Config].
const (
	DefaultGreeting     = "Hey there! Welcome to Glamour Salon, this is Maya! How can I help you today?"
	DefaultCooldown     = 500 * time.Millisecond
	DefaultCustomerName = "Customer"
)

// ErrPanicked is returned by [Session.Run] when the frame loop or the
// supervisor bridge panicked.
var ErrPanicked = errors.New("call: panicked")

// State is the processing state of a [Session].
type State int32

const (
	// Idle means no speech is buffered and no reply cycle is running.
	Idle State = iota

	// Capturing means the detector has heard speech and is accumulating.
	Capturing

	// Transcribing means an utterance is being transcribed.
	Transcribing

	// Resolving means the transcript is being answered.
	Resolving

	// Speaking means a reply is being synthesized and streamed.
	Speaking
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Transcribing:
		return "transcribing"
	case Resolving:
		return "resolving"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Resolver answers a transcribed question. *resolver.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, phone, question string) (resolver.Reply, error)
}

// Speaker speaks text into the call. *speech.Speaker satisfies it.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Config holds the dependencies and settings of a [Session]. Store, VAD,
// Transcriber, Resolver and Speaker are required.
type Config struct {
	Info audio.CallInfo

	Store       store.Store
	VAD         vad.Engine
	Transcriber stt.Provider
	Resolver    Resolver
	Speaker     Speaker

	// Filter gates transcripts. Default: filter.New().
	Filter *filter.Filter

	// Endpoint holds the segmentation thresholds.
	Endpoint endpoint.Config

	// Greeting is spoken when the call starts. Default: [DefaultGreeting].
	// Set SkipGreeting to stay silent.
	Greeting     string
	SkipGreeting bool

	// Cooldown is the pause after every reply cycle before listening again.
	// Default: [DefaultCooldown].
	Cooldown time.Duration

	// PollInterval is the supervisor bridge poll interval.
	// Default: [supervisor.DefaultPollInterval].
	PollInterval time.Duration

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

// Session is one live call.
type Session struct {
	cfg      Config
	phone    string
	customer store.Customer
	log      *slog.Logger
	metrics  *observe.Metrics

	detector *endpoint.Detector
	conv     audio.FormatConverter
	bridge   *supervisor.Bridge

	state  atomic.Int32
	cycles sync.WaitGroup
}

// New resolves the caller's customer record and prepares a Session. The
// customer is looked up once; the supervisor bridge delivers answers for that
// customer only.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Store == nil || cfg.VAD == nil || cfg.Transcriber == nil || cfg.Resolver == nil || cfg.Speaker == nil {
		return nil, errors.New("call: store, vad, transcriber, resolver and speaker are required")
	}
	if cfg.Filter == nil {
		cfg.Filter = filter.New()
	}
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	phone := cfg.Info.PhoneNumber
	if phone == "" {
		phone = audio.DefaultPhoneNumber
	}
	name := cfg.Info.CallerName
	if name == "" {
		name = DefaultCustomerName
	}
	log := cfg.Logger.With("call_id", cfg.Info.ID, "phone", phone)

	customer, err := cfg.Store.GetOrCreateCustomer(ctx, phone, name)
	if err != nil {
		return nil, fmt.Errorf("call: resolve customer: %w", err)
	}
	det, err := endpoint.New(cfg.VAD, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("call: %w", err)
	}

	s := &Session{
		cfg:      cfg,
		phone:    phone,
		customer: customer,
		log:      log,
		metrics:  cfg.Metrics,
		detector: det,
		conv:     audio.FormatConverter{Target: audio.Canonical},
	}
	s.bridge = supervisor.NewBridge(cfg.Store, cfg.Speaker, customer.ID,
		supervisor.WithPollInterval(cfg.PollInterval),
		supervisor.WithBridgeLogger(log),
		supervisor.WithBridgeMetrics(cfg.Metrics),
	)
	return s, nil
}

// State returns the current processing state.
func (s *Session) State() State { return State(s.state.Load()) }

// Customer returns the caller's customer record.
func (s *Session) Customer() store.Customer { return s.customer }

// Phone returns the caller's phone number.
func (s *Session) Phone() string { return s.phone }

// Run greets the caller and processes input until it is closed or ctx is
// cancelled. The supervisor bridge runs alongside and stops with the frame
// loop. Run waits for in-flight reply cycles before returning; those cycles
// run on a context that is not cancelled by ctx.
func (s *Session) Run(ctx context.Context, input <-chan audio.AudioFrame) error {
	defer func() {
		if err := s.detector.Close(); err != nil {
			s.log.Warn("call: close detector", "err", err)
		}
	}()
	ctx = observe.WithLogger(ctx, s.log)
	detached := context.WithoutCancel(ctx)

	if !s.cfg.SkipGreeting && s.state.CompareAndSwap(int32(Idle), int32(Speaking)) {
		s.startCycle(detached, func(ctx context.Context) {
			if err := s.cfg.Speaker.Speak(ctx, s.cfg.Greeting); err != nil {
				s.log.Warn("greeting not spoken", "err", err)
			}
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	bridgeCtx, stopBridge := context.WithCancel(gctx)
	g.Go(s.recovering("supervisor bridge", func() error { return s.bridge.Run(bridgeCtx) }))
	g.Go(s.recovering("frame loop", func() error {
		defer stopBridge()
		return s.frameLoop(gctx, detached, input)
	}))
	err := g.Wait()
	s.cycles.Wait()
	s.log.Info("call ended")
	return err
}

// recovering turns a panic in fn into an error wrapping [ErrPanicked].
func (s *Session) recovering(task string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("call: task panicked", "task", task, "panic", r, "stack", string(debug.Stack()))
				err = fmt.Errorf("%w: %s: %v", ErrPanicked, task, r)
			}
		}()
		return fn()
	}
}

func (s *Session) frameLoop(ctx, detached context.Context, input <-chan audio.AudioFrame) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-input:
			if !ok {
				return nil
			}
			s.handleFrame(detached, f)
		}
	}
}

// handleFrame canonicalizes f and, when no reply cycle is in flight, feeds the
// detector.
func (s *Session) handleFrame(ctx context.Context, f audio.AudioFrame) {
	frame := s.conv.Convert(f)
	st := s.State()
	if st != Idle && st != Capturing {
		return
	}

	utt, outcome, err := s.detector.Push(frame.Data)
	if err != nil {
		s.log.Warn("call: endpoint detection failed", "err", err)
		return
	}
	switch outcome {
	case endpoint.Overflow:
		s.log.Info("utterance too long, discarded")
		s.metrics.RecordUtterance(ctx, "overflow")
		s.state.CompareAndSwap(int32(Capturing), int32(Idle))
	case endpoint.Complete:
		if !s.state.CompareAndSwap(int32(st), int32(Transcribing)) {
			return
		}
		s.metrics.RecordUtterance(ctx, "complete")
		s.log.Info("utterance complete, transcribing", "duration", utt.Duration)
		s.startCycle(ctx, func(ctx context.Context) { s.reply(ctx, utt) })
	default:
		if st == Idle && s.detector.State() == endpoint.Accumulating {
			s.state.CompareAndSwap(int32(Idle), int32(Capturing))
		}
	}
}

// startCycle runs fn as a tracked goroutine. When fn returns (or panics) the
// session sleeps for the cooldown and then returns to Idle.
func (s *Session) startCycle(ctx context.Context, fn func(context.Context)) {
	s.cycles.Add(1)
	go func() {
		defer s.cycles.Done()
		defer func() {
			time.Sleep(s.cfg.Cooldown)
			s.state.Store(int32(Idle))
		}()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("call: reply cycle panicked", "panic", r)
			}
		}()
		fn(ctx)
	}()
}

// reply runs one transcribe → filter → resolve → speak cycle. Every failure
// ends the cycle silently.
func (s *Session) reply(ctx context.Context, utt endpoint.Utterance) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "call.reply", observe.CallAttributes(s.cfg.Info.ID, s.phone))
	defer span.End()

	wav := audio.EncodeWAV(utt.PCM, audio.CanonicalRate, 1)
	text, err := s.cfg.Transcriber.Transcribe(ctx, wav)
	if err != nil {
		s.log.Error("call: transcription failed", "err", err)
		span.SetStatus(codes.Error, "transcription failed")
		s.metrics.RecordUtterance(ctx, "transcription_failed")
		return
	}
	text = strings.TrimSpace(text)

	if v := s.cfg.Filter.Check(text); !v.Accept {
		s.log.Info("transcript ignored", "reason", string(v.Reason), "text", text)
		s.metrics.RecordUtterance(ctx, "filtered_"+string(v.Reason))
		return
	}
	s.log.Info("customer said", "text", text)

	if !s.state.CompareAndSwap(int32(Transcribing), int32(Resolving)) {
		return
	}
	reply, err := s.cfg.Resolver.Resolve(ctx, s.phone, text)
	if err != nil {
		s.log.Warn("call: no reply", "err", err)
		s.metrics.RecordUtterance(ctx, "unresolved")
		return
	}
	span.SetAttributes(attribute.String("reply.source", string(reply.Source)))
	s.log.Info("replying", "source", string(reply.Source), "text", reply.Text, "request_id", reply.RequestID)

	if !s.state.CompareAndSwap(int32(Resolving), int32(Speaking)) {
		return
	}
	if err := s.cfg.Speaker.Speak(ctx, reply.Text); err != nil {
		if errors.Is(err, speech.ErrSynthesis) {
			s.log.Error("call: reply not synthesized", "err", err)
		} else {
			s.log.Warn("call: reply not streamed", "err", err)
		}
		span.SetStatus(codes.Error, "speak failed")
		s.metrics.RecordUtterance(ctx, "speak_failed")
		return
	}
	s.metrics.RecordUtterance(ctx, "answered")
	s.metrics.ReplyDuration.Record(ctx, time.Since(start).Seconds())
}
