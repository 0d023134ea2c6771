// Package mock provides in-memory mock implementations of the [audio.Sink] and
// [audio.Call] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every frame written so
// that tests can assert on outbound audio, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	call := mock.NewCall(audio.CallInfo{ID: "c1", PhoneNumber: "5550001"})
//	go session.Run(ctx, call.Input())
//	call.Send(audio.AudioFrame{...})
//	call.Close(nil)
//	frames := call.Frames()
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/frontdesk/pkg/audio"
)

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock implementation of [audio.Sink] that records every frame.
type Sink struct {
	mu sync.Mutex

	// WriteErr is returned by [Sink.WriteFrame] when non-nil. No frame is
	// recorded in that case.
	WriteErr error

	frames [][]byte
}

// WriteFrame implements [audio.Sink]. The frame is copied before recording.
func (s *Sink) WriteFrame(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		return s.WriteErr
	}
	s.frames = append(s.frames, append([]byte(nil), pcm...))
	return nil
}

// Frames returns a copy of all recorded frames in write order.
func (s *Sink) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

// FrameCount returns the number of recorded frames.
func (s *Sink) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Reset discards all recorded frames.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
}

// ─── Call ─────────────────────────────────────────────────────────────────────

// Call is a mock implementation of [audio.Call]. Inbound frames are injected
// with [Call.Send]; [Call.Close] simulates a hang-up or transport failure.
type Call struct {
	Sink

	info  audio.CallInfo
	input chan audio.AudioFrame

	mu        sync.Mutex
	err       error
	closed    bool
	hangups   int
	closeOnce sync.Once
}

var _ audio.Call = (*Call)(nil)

// NewCall returns a Call with a buffered input channel.
func NewCall(info audio.CallInfo) *Call {
	return &Call{info: info, input: make(chan audio.AudioFrame, 256)}
}

// Info implements [audio.Call].
func (c *Call) Info() audio.CallInfo { return c.info }

// Input implements [audio.Call].
func (c *Call) Input() <-chan audio.AudioFrame { return c.input }

// Err implements [audio.Call]. Returns the error given to [Call.Close].
func (c *Call) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Hangup implements [audio.Call]. It closes the input with a nil error.
func (c *Call) Hangup() error {
	c.mu.Lock()
	c.hangups++
	c.mu.Unlock()
	c.Close(nil)
	return nil
}

// HangupCount returns how many times Hangup was called.
func (c *Call) HangupCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hangups
}

// Send delivers an inbound frame. It must not be called after Close.
func (c *Call) Send(f audio.AudioFrame) { c.input <- f }

// Close closes the input channel and records err as the reason. Only the first
// call has an effect.
func (c *Call) Close(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.closed = true
		c.mu.Unlock()
		close(c.input)
	})
}

// Closed reports whether Close has been called.
func (c *Call) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
