// Package audio defines the call-transport abstractions and the PCM helpers
// shared by the receptionist pipeline.
//
// The two primary abstractions are:
//
//   - [Call]: one live phone call: a stream of inbound [AudioFrame] values
//     plus an outbound [Sink] for synthesized speech.
//   - [CallHandler]: receives every call accepted by a transport.
//
// Transport adapters (e.g., audio/wsock) implement [Call] and hand each call to
// a [CallHandler]. The interfaces are deliberately narrow so the session logic
// never depends on transport details.
package audio

import (
	"context"
	"errors"
)

// ErrTransport is wrapped by every error that reports interrupted frame
// delivery. Sessions treat it as a graceful end of the call.
var ErrTransport = errors.New("audio: transport error")

// Sink accepts outbound PCM frames (16-bit little-endian, mono, [OutputRate]).
//
// WriteFrame may block while the transport applies backpressure. It returns an
// error wrapping [ErrTransport] once the call is gone.
type Sink interface {
	WriteFrame(ctx context.Context, pcm []byte) error
}

// CallInfo is the out-of-band metadata delivered when a call is set up.
type CallInfo struct {
	// ID is the transport-assigned call identifier.
	ID string

	// PhoneNumber identifies the caller. Transports substitute
	// [DefaultPhoneNumber] when the caller ID is withheld.
	PhoneNumber string

	// CallerName is the display name, if the transport knows one.
	CallerName string
}

// DefaultPhoneNumber is used when a call arrives without caller ID.
const DefaultPhoneNumber = "5551234567"

// Call represents one active phone call.
//
// Implementations must be safe for concurrent use: the frame loop reads from
// Input while reply cycles and the supervisor bridge write to the Sink.
type Call interface {
	Sink

	// Info returns the metadata received at call setup.
	Info() CallInfo

	// Input returns the inbound audio stream. The channel is closed when the
	// caller hangs up or the transport fails; [Call.Err] tells the two apart.
	Input() <-chan AudioFrame

	// Err returns nil after a clean hang-up, or an error wrapping
	// [ErrTransport] when frame delivery was interrupted. It is only
	// meaningful after Input has been closed.
	Err() error

	// Hangup terminates the call. Calling it more than once is safe.
	Hangup() error
}

// CallHandler is invoked once per accepted call. HandleCall blocks for the
// lifetime of the call; ctx is cancelled when the server shuts down.
type CallHandler interface {
	HandleCall(ctx context.Context, call Call)
}

// CallHandlerFunc adapts an ordinary function to [CallHandler].
type CallHandlerFunc func(ctx context.Context, call Call)

// HandleCall calls f(ctx, call).
func (f CallHandlerFunc) HandleCall(ctx context.Context, call Call) { f(ctx, call) }
