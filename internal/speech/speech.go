// Package speech turns reply text into outbound call audio.
//
// A [Speaker] synthesizes text with a [tts.Provider], decodes whatever the
// provider returned (MP3, WAV or raw PCM) to 24 kHz mono PCM and writes it to
// an [audio.Sink] in fixed 20 ms frames. One Speaker belongs to one call;
// concurrent Speak calls are serialized so their frames never interleave.
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/hajimehoshi/go-mp3"

	"github.com/MrWong99/frontdesk/internal/observe"
	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/tts"
)

// ErrSynthesis wraps every failure to produce playable audio: provider errors,
// empty payloads and undecodable audio.
var ErrSynthesis = errors.New("speech: synthesis failed")

const (
	defaultYieldEvery = 20
	defaultYieldPause = 10 * time.Millisecond
)

// Option configures a [Speaker].
type Option func(*Speaker)

// WithYield sets how often streaming pauses to let other goroutines run.
// every <= 0 disables yielding.
func WithYield(every int, pause time.Duration) Option {
	return func(s *Speaker) {
		s.yieldEvery = every
		s.yieldPause = pause
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Speaker) { s.log = l }
}

// Speaker speaks text into one call.
type Speaker struct {
	tts   tts.Provider
	sink  audio.Sink
	voice tts.Voice

	yieldEvery int
	yieldPause time.Duration
	log        *slog.Logger

	// mu serializes streaming so two utterances never interleave frames.
	mu sync.Mutex
}

// New returns a Speaker that synthesizes with provider in the given voice and
// writes frames to sink.
func New(provider tts.Provider, sink audio.Sink, voice tts.Voice, opts ...Option) *Speaker {
	s := &Speaker{
		tts:        provider,
		sink:       sink,
		voice:      voice,
		yieldEvery: defaultYieldEvery,
		yieldPause: defaultYieldPause,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Speak synthesizes text and streams it to the sink. Synthesis failures are
// returned wrapping [ErrSynthesis]; sink failures are returned as reported by
// the sink. Nothing is retried.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: %w", ErrSynthesis, tts.ErrEmptyText)
	}
	ctx, span := observe.StartSpan(ctx, "speech.speak")
	defer span.End()

	out, err := s.tts.Synthesize(ctx, text, s.voice)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	pcm, err := Decode(out)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.stream(ctx, pcm)
	if err != nil {
		return fmt.Errorf("speech: stream after %d frames: %w", n, err)
	}
	s.log.Debug("spoke", "chars", len(text), "frames", n,
		"duration", audio.PCMDuration(len(pcm), audio.OutputRate, 1))
	return nil
}

// stream writes pcm in [audio.OutputFrameBytes] frames, zero-padding the last
// one, and returns the number of frames written. Must be called with s.mu held.
func (s *Speaker) stream(ctx context.Context, pcm []byte) (int, error) {
	frames := 0
	for off := 0; off < len(pcm); off += audio.OutputFrameBytes {
		if err := ctx.Err(); err != nil {
			return frames, err
		}
		frame := make([]byte, audio.OutputFrameBytes)
		copy(frame, pcm[off:])
		if err := s.sink.WriteFrame(ctx, frame); err != nil {
			return frames, err
		}
		frames++
		if s.yieldEvery > 0 && frames%s.yieldEvery == 0 {
			runtime.Gosched()
			if s.yieldPause > 0 {
				time.Sleep(s.yieldPause)
			}
		}
	}
	return frames, nil
}

// Decode converts synthesized audio to mono 16-bit PCM at [audio.OutputRate].
// Errors wrap [ErrSynthesis].
func Decode(a tts.Audio) ([]byte, error) {
	if len(a.Data) == 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrSynthesis)
	}
	var (
		pcm  []byte
		rate int
	)
	switch a.Format {
	case tts.FormatMP3:
		dec, err := mp3.NewDecoder(bytes.NewReader(a.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: decode mp3: %w", ErrSynthesis, err)
		}
		raw, err := io.ReadAll(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: decode mp3: %w", ErrSynthesis, err)
		}
		// go-mp3 always produces interleaved 16-bit stereo.
		pcm, rate = audio.DownmixAverage16(raw, 2), dec.SampleRate()
	case tts.FormatWAV:
		data, f, err := audio.DecodeWAV(a.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSynthesis, err)
		}
		pcm, rate = toMono(data, f.Channels), f.SampleRate
	case tts.FormatPCM:
		rate = a.SampleRate
		if rate <= 0 {
			rate = audio.OutputRate
		}
		pcm = toMono(a.Data, a.Channels)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrSynthesis, a.Format)
	}
	pcm = audio.ResampleMono16(pcm, rate, audio.OutputRate)
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: no samples after decoding", ErrSynthesis)
	}
	return pcm, nil
}

func toMono(pcm []byte, channels int) []byte {
	if channels > 1 {
		return audio.DownmixAverage16(pcm, channels)
	}
	return pcm[:len(pcm)&^1]
}
