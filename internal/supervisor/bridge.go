// Package supervisor connects the human supervisor to live calls.
//
// The [Bridge] runs once per call and speaks answers a supervisor has
// resolved for that call's customer. The [API] is the JSON surface the
// supervisor uses to list escalated questions, answer them and curate the
// knowledge base.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/internal/store"
)

// DefaultPollInterval is how often a [Bridge] looks for resolved requests.
const DefaultPollInterval = 2 * time.Second

// FollowUpPrefix starts every spoken supervisor answer.
const FollowUpPrefix = "Great news! My supervisor says: "

// Speaker speaks text into the call. *speech.Speaker satisfies it.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// BridgeOption configures a [Bridge].
type BridgeOption func(*Bridge)

// WithPollInterval overrides [DefaultPollInterval].
func WithPollInterval(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		if d > 0 {
			b.interval = d
		}
	}
}

// WithBridgeLogger sets the logger. Default: slog.Default().
func WithBridgeLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) { b.log = l }
}

// WithBridgeMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithBridgeMetrics(m *observe.Metrics) BridgeOption {
	return func(b *Bridge) { b.metrics = m }
}

// Bridge delivers resolved help requests to one call. It only ever touches
// requests whose CallerID equals the customer it was built for, so concurrent
// calls never receive each other's answers.
type Bridge struct {
	store      store.Store
	speaker    Speaker
	customerID string
	interval   time.Duration
	log        *slog.Logger
	metrics    *observe.Metrics
}

// NewBridge returns a Bridge for the customer with the given id.
func NewBridge(st store.Store, speaker Speaker, customerID string, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		store:      st,
		speaker:    speaker,
		customerID: customerID,
		interval:   DefaultPollInterval,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	if b.metrics == nil {
		b.metrics = observe.DefaultMetrics()
	}
	return b
}

// Run polls until ctx is cancelled and then returns nil. Poll failures are
// logged and the loop continues.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := b.Poll(ctx); err != nil && ctx.Err() == nil {
				b.log.Error("supervisor bridge: poll failed", "err", err)
			}
		}
	}
}

// Poll runs one delivery cycle and returns how many answers were spoken.
//
// A request whose follow-up could not be spoken stays resolved and is tried
// again next cycle. Delivery itself is not cancelled by ctx once started.
func (b *Bridge) Poll(ctx context.Context) (int, error) {
	reqs, err := b.store.ListAllRequests(ctx)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, r := range reqs {
		if r.Status != store.StatusResolved || r.SupervisorAnswer == "" || r.CallerID != b.customerID {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		dctx := context.WithoutCancel(ctx)
		if err := b.speaker.Speak(dctx, FollowUpPrefix+r.SupervisorAnswer); err != nil {
			b.log.Warn("supervisor bridge: follow-up not spoken", "request_id", r.ID, "err", err)
			continue
		}
		delivered++
		b.metrics.RecordReply(dctx, "supervisor")
		if err := b.store.MarkDelivered(dctx, r.ID); err != nil {
			b.log.Error("supervisor bridge: mark delivered", "request_id", r.ID, "err", err)
			continue
		}
		b.metrics.RecordHelpRequest(dctx, "delivered")
		b.log.Info("supervisor answer delivered", "request_id", r.ID)
	}
	return delivered, nil
}
