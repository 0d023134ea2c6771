// Package energy provides a [vad.Engine] that classifies frames by their mean
// absolute sample amplitude. It needs no model files and no cgo, and is the
// detector used by the receptionist's endpointing.
//
// A frame is speech when its energy is strictly greater than the configured
// threshold (default 500 in 16-bit PCM units, where full scale is 32 767).
package energy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/frontdesk/pkg/provider/vad"
)

// DefaultThreshold is the mean absolute amplitude above which a frame counts
// as speech.
const DefaultThreshold = 500.0

var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)

var errClosed = errors.New("energy: session is closed")

// Engine creates energy-threshold VAD sessions. The zero value is ready to use.
type Engine struct{}

// New returns an Engine.
func New() *Engine { return &Engine{} }

// NewSession validates cfg and returns a fresh session. A zero
// cfg.SpeechThreshold selects [DefaultThreshold].
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.FrameSizeMs < 0 {
		return nil, fmt.Errorf("energy: frame size must not be negative, got %d", cfg.FrameSizeMs)
	}
	if cfg.SpeechThreshold < 0 {
		return nil, fmt.Errorf("energy: speech threshold must not be negative, got %v", cfg.SpeechThreshold)
	}
	threshold := cfg.SpeechThreshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	frameBytes := 0
	if cfg.FrameSizeMs > 0 {
		frameBytes = cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2
	}
	return &session{threshold: threshold, frameBytes: frameBytes}, nil
}

type session struct {
	mu         sync.Mutex
	threshold  float64
	frameBytes int
	inSpeech   bool
	closed     bool
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, errClosed
	}
	if s.frameBytes > 0 && len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	score := MeanAbs(frame)
	ev := vad.VADEvent{Score: score}
	switch speech := score > s.threshold; {
	case speech && !s.inSpeech:
		ev.Type = vad.VADSpeechStart
	case speech:
		ev.Type = vad.VADSpeechContinue
	case s.inSpeech:
		ev.Type = vad.VADSpeechEnd
	default:
		ev.Type = vad.VADSilence
	}
	s.inSpeech = ev.IsSpeech()
	return ev, nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inSpeech = false
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// MeanAbs returns the mean absolute amplitude of a 16-bit signed
// little-endian PCM buffer. Returns 0 for buffers shorter than one sample.
func MeanAbs(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum int64
	for i := range n {
		v := int64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return float64(sum) / float64(n)
}
