// Package mock provides in-memory implementations of [audio.Microphone] and
// [audio.Stream] for use in unit tests.
//
// Both mocks are safe for concurrent use and record calls so tests can assert
// that every opened stream was released.
//
// Typical usage:
//
//	frames := make(chan audio.AudioFrame, 8)
//	stream := &mock.Stream{FramesCh: frames}
//	mic := &mock.Microphone{OpenResult: stream}
//	s, err := mic.Open(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/basa-ph/basa/pkg/audio"
)

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock [audio.Stream]. The test owns FramesCh and decides when to
// close it; Close does not close FramesCh.
type Stream struct {
	mu sync.Mutex

	// FramesCh is returned by Frames.
	FramesCh chan audio.AudioFrame

	// FormatResult is returned by Format. Defaults to 16 kHz mono.
	FormatResult audio.Format

	// CloseError is returned by Close.
	CloseError error

	// CloseCalls counts Close invocations.
	CloseCalls int
}

var _ audio.Stream = (*Stream)(nil)

// Frames implements [audio.Stream].
func (s *Stream) Frames() <-chan audio.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FramesCh
}

// Format implements [audio.Stream].
func (s *Stream) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FormatResult == (audio.Format{}) {
		return audio.Format{SampleRate: 16000, Channels: 1}
	}
	return s.FormatResult
}

// Close implements [audio.Stream].
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return s.CloseError
}

// Closed reports whether Close has been called at least once.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCalls > 0
}

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone is a mock [audio.Microphone].
type Microphone struct {
	mu sync.Mutex

	// OpenResult is returned by Open when OpenError is nil.
	OpenResult audio.Stream

	// OpenError is returned by Open.
	OpenError error

	// OpenCalls counts Open invocations.
	OpenCalls int
}

var _ audio.Microphone = (*Microphone)(nil)

// Open implements [audio.Microphone].
func (m *Microphone) Open(_ context.Context) (audio.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OpenCalls++
	if m.OpenError != nil {
		return nil, m.OpenError
	}
	return m.OpenResult, nil
}
