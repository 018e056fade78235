// Package audio defines the raw PCM frame type and the capture abstractions
// the reading assessment pipeline consumes.
//
// A [Microphone] is opened once per capture attempt and yields a [Stream] of
// [AudioFrame] values. Implementations live in subpackages (pcmfile, mock);
// external code may provide its own device adapters.
package audio

import "time"

// AudioFrame is one chunk of 16-bit little-endian PCM audio.
type AudioFrame struct {
	// PCM audio data, int16 little-endian, interleaved when Channels > 1.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for STT input).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the playback length of the frame. It returns 0 when the
// format fields are unset.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// End returns the stream offset at which the frame finishes.
func (f AudioFrame) End() time.Duration {
	return f.Timestamp + f.Duration()
}
