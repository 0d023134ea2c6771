// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio to consumers and to verify that the
// expected text and Voice are passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Audio: tts.Audio{Data: pcm, Format: tts.FormatPCM, SampleRate: 24000, Channels: 1},
//	}
//	out, _ := p.Synthesize(ctx, "Hello!", voice)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/frontdesk/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the Voice passed to Synthesize.
	Voice tts.Voice
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by Synthesize when Err is nil.
	Audio tts.Audio

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// SynthesizeFunc, if set, replaces the canned response. It runs without
	// the mock's lock held.
	SynthesizeFunc func(ctx context.Context, text string, voice tts.Voice) (tts.Audio, error)

	// Calls records every invocation of Synthesize in order.
	Calls []SynthesizeCall
}

// Synthesize records the call and returns Audio, Err.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) (tts.Audio, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	fn, out, err := p.SynthesizeFunc, p.Audio, p.Err
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, text, voice)
	}
	if err != nil {
		return tts.Audio{}, err
	}
	return out, nil
}

// Texts returns the text of every Synthesize call in order. Thread-safe.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Text
	}
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
