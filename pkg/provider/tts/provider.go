// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (Groq/OpenAI speech, or the
// ElevenLabs streaming API) and returns the complete synthesized audio for one
// short reply together with its encoding, so the caller can decode and frame
// it for the telephony transport.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when Synthesize is called with blank text.
var ErrEmptyText = errors.New("tts: empty text")

// Format names the encoding of [Audio.Data].
type Format string

const (
	// FormatMP3 is an MPEG-1/2 Layer III stream.
	FormatMP3 Format = "mp3"

	// FormatWAV is a RIFF/WAVE container holding 16-bit PCM.
	FormatWAV Format = "wav"

	// FormatPCM is raw 16-bit signed little-endian PCM. SampleRate and
	// Channels must be set.
	FormatPCM Format = "pcm"
)

// Audio is a synthesized utterance.
type Audio struct {
	// Data is the encoded payload.
	Data []byte

	// Format is the encoding of Data.
	Format Format

	// SampleRate and Channels describe raw PCM payloads. Decoders of
	// self-describing formats (mp3, wav) ignore them.
	SampleRate int
	Channels   int
}

// Voice selects the speaker and delivery.
type Voice struct {
	// ID is the provider-specific voice identifier (e.g. "Fritz-PlayAI").
	ID string

	// Speed is the speaking-rate multiplier. Zero means provider default.
	Speed float64
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text in the given voice and returns the whole
	// payload. An empty payload from the backend is reported as an error.
	Synthesize(ctx context.Context, text string, voice Voice) (Audio, error)
}
