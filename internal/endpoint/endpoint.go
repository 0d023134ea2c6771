// Package endpoint segments a continuous stream of canonical (16 kHz mono)
// PCM frames into utterances using frame energy.
//
// The [Detector] is a two-state machine. In [Idle] every frame is buffered
// (leading silence included) until a speech frame moves it to [Accumulating].
// An utterance completes once speech has been seen, the buffer holds at least
// MinUtterance of audio, and at least TrailingSilence of non-speech has
// followed the last speech frame. A buffer growing past MaxUtterance is
// discarded without emitting anything.
//
// A Detector is not safe for concurrent use; it belongs to one call's frame loop.
package endpoint

import (
	"fmt"
	"time"

	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/vad"
)

// Default thresholds.
const (
	DefaultMinUtterance    = 1500 * time.Millisecond
	DefaultTrailingSilence = 800 * time.Millisecond
	DefaultMaxUtterance    = 9 * time.Second
)

// State is the detector's segmentation state.
type State int

const (
	// Idle means no speech has been seen since the last reset.
	Idle State = iota

	// Accumulating means speech has been seen and the buffer is growing
	// towards a completed utterance.
	Accumulating
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	default:
		return "unknown"
	}
}

// Outcome reports what a single [Detector.Push] did.
type Outcome int

const (
	// Buffering means the frame was absorbed and no utterance is ready.
	Buffering Outcome = iota

	// Complete means an utterance was emitted and the detector reset.
	Complete

	// Overflow means the buffer exceeded MaxUtterance and was discarded.
	Overflow
)

// Config holds the segmentation thresholds. Zero fields select the defaults.
type Config struct {
	// MinUtterance is the minimum buffered duration for an utterance.
	MinUtterance time.Duration

	// TrailingSilence is the non-speech duration that ends an utterance.
	TrailingSilence time.Duration

	// MaxUtterance is the ceiling beyond which the buffer is discarded.
	MaxUtterance time.Duration

	// EnergyThreshold is forwarded to the VAD session as its speech threshold.
	// Zero selects the engine default.
	EnergyThreshold float64
}

func (c Config) withDefaults() Config {
	if c.MinUtterance <= 0 {
		c.MinUtterance = DefaultMinUtterance
	}
	if c.TrailingSilence <= 0 {
		c.TrailingSilence = DefaultTrailingSilence
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = DefaultMaxUtterance
	}
	return c
}

// Utterance is one completed spoken turn in canonical format.
type Utterance struct {
	// PCM is 16-bit little-endian mono audio at [audio.CanonicalRate].
	PCM []byte

	// Duration is the playback length of PCM.
	Duration time.Duration
}

// Detector implements energy-based endpointing for one call.
type Detector struct {
	cfg Config
	vad vad.SessionHandle

	state      State
	buf        []byte
	speechSeen bool
	silence    time.Duration
}

// New creates a Detector whose speech classification comes from a session of
// engine configured for canonical audio.
func New(engine vad.Engine, cfg Config) (*Detector, error) {
	cfg = cfg.withDefaults()
	if cfg.MinUtterance > cfg.MaxUtterance {
		return nil, fmt.Errorf("endpoint: min utterance %s exceeds max utterance %s", cfg.MinUtterance, cfg.MaxUtterance)
	}
	sess, err := engine.NewSession(vad.Config{
		SampleRate:      audio.CanonicalRate,
		SpeechThreshold: cfg.EnergyThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("endpoint: create vad session: %w", err)
	}
	return &Detector{cfg: cfg, vad: sess}, nil
}

// State returns the current segmentation state.
func (d *Detector) State() State { return d.state }

// Buffered returns the duration of audio currently held.
func (d *Detector) Buffered() time.Duration {
	return audio.PCMDuration(len(d.buf), audio.CanonicalRate, 1)
}

// Push offers one canonical frame to the detector. The Utterance is only
// meaningful when the Outcome is [Complete]. A VAD error leaves the detector
// unchanged.
func (d *Detector) Push(pcm []byte) (Utterance, Outcome, error) {
	ev, err := d.vad.ProcessFrame(pcm)
	if err != nil {
		return Utterance{}, Buffering, fmt.Errorf("endpoint: classify frame: %w", err)
	}

	d.buf = append(d.buf, pcm...)
	if ev.IsSpeech() {
		d.speechSeen = true
		d.silence = 0
		d.state = Accumulating
	} else if d.speechSeen {
		d.silence += audio.PCMDuration(len(pcm), audio.CanonicalRate, 1)
	}

	buffered := d.Buffered()
	if buffered > d.cfg.MaxUtterance {
		d.Reset()
		return Utterance{}, Overflow, nil
	}
	if d.speechSeen && buffered >= d.cfg.MinUtterance && d.silence >= d.cfg.TrailingSilence {
		u := Utterance{PCM: d.buf, Duration: buffered}
		d.buf = nil
		d.Reset()
		return u, Complete, nil
	}
	return Utterance{}, Buffering, nil
}

// Reset discards buffered audio and returns to [Idle].
func (d *Detector) Reset() {
	d.buf = d.buf[:0]
	d.speechSeen = false
	d.silence = 0
	d.state = Idle
	d.vad.Reset()
}

// Close releases the underlying VAD session.
func (d *Detector) Close() error {
	return d.vad.Close()
}
