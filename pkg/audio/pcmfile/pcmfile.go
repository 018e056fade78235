// Package pcmfile provides an [audio.Microphone] backed by raw 16-bit
// little-endian PCM read from a file or any other byte source.
//
// It stands in for a live capture device: the capture CLI uses it to replay
// recorded card readings, and tests use it to feed deterministic audio.
package pcmfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/basa-ph/basa/pkg/audio"
)

// Microphone opens a fresh reader for every capture attempt.
type Microphone struct {
	open     func() (io.ReadCloser, error)
	format   audio.Format
	frameDur time.Duration
	realtime bool
}

var _ audio.Microphone = (*Microphone)(nil)

// Option configures a [Microphone].
type Option func(*Microphone)

// WithFormat sets the PCM format of the source. Default: 16 kHz mono.
func WithFormat(f audio.Format) Option {
	return func(m *Microphone) {
		if f.SampleRate > 0 && f.Channels > 0 {
			m.format = f
		}
	}
}

// WithFrameDuration sets the length of each emitted frame. Default: 20 ms.
func WithFrameDuration(d time.Duration) Option {
	return func(m *Microphone) {
		if d > 0 {
			m.frameDur = d
		}
	}
}

// WithRealtime paces frame delivery to wall-clock time, as a live device
// would. Without it frames are delivered as fast as the consumer reads.
func WithRealtime(on bool) Option {
	return func(m *Microphone) { m.realtime = on }
}

// New returns a Microphone that calls open at the start of every capture.
func New(open func() (io.ReadCloser, error), opts ...Option) *Microphone {
	m := &Microphone{
		open:     open,
		format:   audio.Format{SampleRate: 16000, Channels: 1},
		frameDur: 20 * time.Millisecond,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// File returns a Microphone replaying the PCM file at path.
func File(path string, opts ...Option) *Microphone {
	return New(func() (io.ReadCloser, error) { return os.Open(path) }, opts...)
}

// Open implements [audio.Microphone].
func (m *Microphone) Open(ctx context.Context) (audio.Stream, error) {
	rc, err := m.open()
	if err != nil {
		return nil, fmt.Errorf("pcmfile: %w: %w", audio.ErrDeviceUnavailable, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &stream{
		rc:     rc,
		format: m.format,
		frames: make(chan audio.AudioFrame, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.read(ctx, m.frameBytes(), m.frameDur, m.realtime)
	return s, nil
}

func (m *Microphone) frameBytes() int {
	samples := int(int64(m.format.SampleRate) * int64(m.frameDur) / int64(time.Second))
	if samples < 1 {
		samples = 1
	}
	return samples * m.format.Channels * 2
}

type stream struct {
	rc     io.ReadCloser
	format audio.Format
	frames chan audio.AudioFrame
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func (s *stream) Frames() <-chan audio.AudioFrame { return s.frames }
func (s *stream) Format() audio.Format            { return s.format }

// Close stops the reader goroutine and closes the source. Idempotent.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.rc.Close()
		<-s.done
	})
	return s.closeErr
}

func (s *stream) read(ctx context.Context, size int, frameDur time.Duration, realtime bool) {
	defer close(s.done)
	defer close(s.frames)

	var (
		ts    time.Duration
		start = time.Now()
	)
	for {
		buf := make([]byte, size)
		n, err := io.ReadFull(s.rc, buf)
		n -= n % 2
		if n > 0 {
			f := audio.AudioFrame{
				Data:       buf[:n],
				SampleRate: s.format.SampleRate,
				Channels:   s.format.Channels,
				Timestamp:  ts,
			}
			ts = f.End()
			if realtime {
				if wait := time.Until(start.Add(f.Timestamp)); wait > 0 {
					select {
					case <-ctx.Done():
						return
					case <-time.After(wait):
					}
				}
			}
			select {
			case s.frames <- f:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && ctx.Err() == nil {
				slog.Warn("pcmfile: read failed, ending stream", "err", err)
			}
			return
		}
	}
}
