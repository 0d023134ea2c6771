package audio

import "time"

const (
	// CanonicalRate is the sample rate every inbound frame is converted to
	// before endpoint detection and transcription.
	CanonicalRate = 16000

	// OutputRate is the sample rate of outbound speech frames.
	OutputRate = 24000

	// OutputFrameBytes is the size of one outbound frame: 960 mono samples,
	// 20 ms at [OutputRate].
	OutputFrameBytes = 1920
)

// Bounds on the formats a transport may deliver. Resampling cost grows with
// CanonicalRate/SampleRate, so very low rates are refused.
const (
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MaxChannels   = 8
)

// SupportedFormat reports whether frames at rate and channels may enter the
// pipeline. Zero means unspecified and is read as [CanonicalRate] or mono.
func SupportedFormat(rate, channels int) bool {
	rateOK := rate == 0 || (rate >= MinSampleRate && rate <= MaxSampleRate)
	chOK := channels >= 0 && channels <= MaxChannels
	return rateOK && chOK
}

// AudioFrame represents a single frame of audio data flowing through the pipeline.
type AudioFrame struct {
	// PCM audio data, signed 16-bit little-endian, channels interleaved.
	Data []byte

	// SampleRate in Hz (e.g., 48000 from the transport, 16000 after canonicalization).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame's PCM data.
func (f AudioFrame) Duration() time.Duration {
	return PCMDuration(len(f.Data), f.SampleRate, f.Channels)
}

// PCMDuration returns the playback length of n bytes of 16-bit PCM at the
// given rate and channel count. Returns 0 for invalid formats.
func PCMDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := n / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
