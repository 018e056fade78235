// Package vad defines the Engine interface for voice activity detection.
//
// An engine produces per-stream sessions. A session classifies each PCM frame
// as voice or silence and reports transitions, so callers can time speech
// onset and measure pauses without knowing how the decision is made.
//
// Engines must be safe for concurrent use across sessions. A single
// SessionHandle is owned by one goroutine.
package vad

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the frames passed to
	// ProcessFrame.
	SampleRate int

	// FrameSizeMs is the nominal frame duration. Engines with fixed-size models
	// reject other sizes; the energy engine accepts any length.
	FrameSizeMs int

	// ThresholdDB is the loudness, in dBFS, above which a frame counts as voice.
	// Zero selects the engine default.
	ThresholdDB float64
}

// SessionHandle is an active VAD session for a single audio stream.
type SessionHandle interface {
	// ProcessFrame classifies one frame of little-endian int16 PCM.
	// It must not block.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears the speech/silence state without closing the session.
	Reset()

	// Close releases the session. Calling Close more than once returns nil.
	Close() error
}

// Engine creates VAD sessions.
type Engine interface {
	// NewSession returns a session ready to accept frames, or an error if cfg
	// is unsupported.
	NewSession(cfg Config) (SessionHandle, error)
}
