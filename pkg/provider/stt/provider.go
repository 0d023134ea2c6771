// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (a Whisper-compatible
// HTTP API such as Groq or OpenAI, or a local whisper.cpp server) and turns one
// complete utterance into text. Endpointing happens before the provider is
// called, so the provider only ever sees whole utterances encoded as WAV.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned when Transcribe is called with no audio payload.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe uploads wav (a complete RIFF/WAVE file, 16-bit PCM) and
	// returns the recognised text. An utterance with no recognisable speech
	// yields an empty string and a nil error.
	//
	// Network deadlines are owned by the implementation's HTTP client; ctx
	// cancellation aborts the request.
	Transcribe(ctx context.Context, wav []byte) (string, error)
}
