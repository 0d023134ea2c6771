package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Canonical is the format used by endpoint detection and transcription.
var Canonical = Format{SampleRate: CanonicalRate, Channels: 1}

// FormatConverter converts inbound AudioFrames to mono PCM at a target rate.
// It logs a warning on the first format mismatch and on the first misaligned
// frame. Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	// Target sample rate. Channels are always reduced to mono.
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts a frame to mono at c.Target.SampleRate. A frame already in
// the target format is returned unchanged (zero allocation).
//
// Conversion order: trailing odd byte dropped, channels averaged to mono, then
// nearest-neighbour resampling.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	pcm := frame.Data
	if len(pcm)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio format converter: odd byte count in PCM data, dropping trailing byte",
				"bytes", len(pcm),
				"sampleRate", frame.SampleRate,
				"channels", frame.Channels,
			)
		})
		pcm = pcm[:len(pcm)-1]
	}

	channels := frame.Channels
	if channels <= 0 {
		channels = 1
	}
	rate := frame.SampleRate
	if rate <= 0 {
		rate = c.Target.SampleRate
	}

	if rate == c.Target.SampleRate && channels == 1 {
		frame.Data = pcm
		frame.SampleRate = rate
		frame.Channels = 1
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Info("audio format mismatch: converting",
			"from", formatString(rate, channels),
			"to", formatString(c.Target.SampleRate, 1),
		)
	})

	return AudioFrame{
		Data:       toMono(pcm, rate, channels, c.Target.SampleRate),
		SampleRate: c.Target.SampleRate,
		Channels:   1,
		Timestamp:  frame.Timestamp,
	}
}

// Canonicalize converts frame to [Canonical] format. Unlike
// [FormatConverter] it keeps no per-stream state and never logs.
func Canonicalize(frame AudioFrame) AudioFrame {
	channels := max(frame.Channels, 1)
	rate := frame.SampleRate
	if rate <= 0 {
		rate = CanonicalRate
	}
	pcm := frame.Data[:len(frame.Data)&^1]
	return AudioFrame{
		Data:       toMono(pcm, rate, channels, CanonicalRate),
		SampleRate: CanonicalRate,
		Channels:   1,
		Timestamp:  frame.Timestamp,
	}
}

func toMono(pcm []byte, rate, channels, dstRate int) []byte {
	if channels > 1 {
		pcm = DownmixAverage16(pcm, channels)
	}
	return ResampleNearest16(pcm, rate, dstRate)
}

// DownmixAverage16 averages the channels of each interleaved 16-bit frame to
// produce mono output. A trailing partial frame is dropped.
func DownmixAverage16(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameBytes := channels * 2
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			idx := i*frameBytes + ch*2
			sum += int32(int16(pcm[idx]) | int16(pcm[idx+1])<<8)
		}
		avg := sum / int32(channels)
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// DownmixSubsample16 keeps only the first channel of each interleaved frame.
// It discards information and exists for bit-exact comparison with pipelines
// that down-mix this way; [FormatConverter] uses [DownmixAverage16].
func DownmixSubsample16(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameBytes := channels * 2
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2)
	for i := range frames {
		out[i*2] = pcm[i*frameBytes]
		out[i*2+1] = pcm[i*frameBytes+1]
	}
	return out
}

// ResampleNearest16 resamples 16-bit mono PCM from srcRate to dstRate by
// nearest-neighbour index selection. For n input samples the output holds
// m = floor(n·dstRate/srcRate) samples and output i takes input
// floor(i·(n−1)/(m−1)); a single output sample takes input 0.
//
// No low-pass filtering is applied. If the rates are equal or invalid the
// input is returned unchanged.
func ResampleNearest16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	n := len(pcm) / 2
	m := int(int64(n) * int64(dstRate) / int64(srcRate))
	if m == 0 {
		return nil
	}
	out := make([]byte, m*2)
	if m == 1 {
		out[0], out[1] = pcm[0], pcm[1]
		return out
	}
	for i := range m {
		src := int(int64(i) * int64(n-1) / int64(m-1))
		out[i*2] = pcm[src*2]
		out[i*2+1] = pcm[src*2+1]
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. The input must be little-endian int16 samples. If srcRate ==
// dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	if srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		if srcIdx >= srcSamples {
			srcIdx = srcSamples - 1
		}
		frac := srcPos - float64(srcIdx)

		s0 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s1 := s0
		if srcIdx+1 < srcSamples {
			s1 = int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		}

		interpolated := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(interpolated)
		out[i*2+1] = byte(interpolated >> 8)
	}
	return out
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
