// Package stt defines the Provider interface for streaming speech-to-text
// backends.
//
// A provider wraps a real-time transcription service (a hosted API or a local
// whisper.cpp server) behind one streaming shape: a [SessionHandle] accepts
// raw PCM frames and emits interim partials and committed finals, each with a
// confidence score. Sessions may end on their own (a provider-side timeout);
// callers observe that as both transcript channels closing.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by optional operations a provider does not
// implement.
var ErrNotSupported = errors.New("stt: operation not supported")

// ErrSessionClosed is returned by SendAudio after the session has ended.
var ErrSessionClosed = errors.New("stt: session closed")

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. 16000 is the usual choice.
	SampleRate int

	// Channels is the number of audio channels. Most providers require 1.
	Channels int

	// Language is the BCP-47 tag for recognition (e.g., "en-US", "fil-PH").
	// Empty lets the provider auto-detect where supported.
	Language string

	// Keywords biases recognition towards the words the reader is expected
	// to say.
	Keywords []KeywordBoost
}

// SessionHandle is an open streaming session. Callers must call Close when
// done; failing to do so leaks goroutines and network connections.
type SessionHandle interface {
	// SendAudio delivers a chunk of PCM matching the StreamConfig format.
	SendAudio(chunk []byte) error

	// Partials emits interim hypotheses. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed hypotheses. Closed when the session ends.
	Finals() <-chan Transcript

	// SetKeywords replaces the keyword list mid-session, or returns
	// ErrNotSupported.
	SetKeywords(keywords []KeywordBoost) error

	// Close ends the session and flushes pending audio. After Close returns,
	// Partials and Finals are closed once any flushed results are delivered.
	// Calling Close more than once returns nil.
	Close() error
}

// Provider opens streaming sessions.
type Provider interface {
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
