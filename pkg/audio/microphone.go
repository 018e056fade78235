package audio

import (
	"context"
	"errors"
)

// ErrDeviceUnavailable is returned by [Microphone.Open] when the capture
// device cannot be acquired (missing, busy, or permission denied).
var ErrDeviceUnavailable = errors.New("audio: capture device unavailable")

// Microphone acquires a capture device. Each call to Open starts a new,
// independent capture that must be released with [Stream.Close].
type Microphone interface {
	// Open starts capturing. The returned stream delivers frames until the
	// device is exhausted, ctx is cancelled, or Close is called.
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open capture handle.
//
// Frames is closed when the stream ends. Close releases the underlying device
// and is safe to call more than once.
type Stream interface {
	Frames() <-chan AudioFrame
	Format() Format
	Close() error
}
