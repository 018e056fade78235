// Package energy implements a loudness-threshold [vad.Engine].
//
// Each frame's RMS level is converted to dBFS and compared with a fixed
// threshold. There is no model and no smoothing: a frame is voice exactly when
// it is louder than the threshold. Pause accounting on top of these decisions
// is the caller's concern.
package energy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/basa-ph/basa/pkg/audio"
	"github.com/basa-ph/basa/pkg/provider/vad"
)

// DefaultThresholdDB is the voice threshold used when the session config does
// not set one.
const DefaultThresholdDB = -50.0

// ErrClosed is returned by ProcessFrame after Close.
var ErrClosed = errors.New("energy: session closed")

// Engine creates energy-threshold sessions.
type Engine struct {
	thresholdDB float64
}

var _ vad.Engine = (*Engine)(nil)

// Option configures an [Engine].
type Option func(*Engine)

// WithThreshold overrides the engine-wide default threshold in dBFS.
func WithThreshold(db float64) Option {
	return func(e *Engine) { e.thresholdDB = db }
}

// New returns an energy Engine.
func New(opts ...Option) *Engine {
	e := &Engine{thresholdDB: DefaultThresholdDB}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession implements [vad.Engine]. A non-zero cfg.ThresholdDB takes
// precedence over the engine default.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	th := e.thresholdDB
	if cfg.ThresholdDB != 0 {
		th = cfg.ThresholdDB
	}
	if th >= 0 || th < audio.SilenceFloorDB {
		return nil, fmt.Errorf("energy: threshold %.1f dBFS out of range (%.0f, 0)", th, audio.SilenceFloorDB)
	}
	return &session{thresholdDB: th}, nil
}

type session struct {
	mu          sync.Mutex
	thresholdDB float64
	speaking    bool
	closed      bool
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, ErrClosed
	}

	level := audio.Level(frame)
	ev := vad.VADEvent{LevelDB: level}
	voice := level > s.thresholdDB
	switch {
	case voice && !s.speaking:
		ev.Type = vad.VADSpeechStart
	case voice:
		ev.Type = vad.VADSpeechContinue
	case s.speaking:
		ev.Type = vad.VADSpeechEnd
	default:
		ev.Type = vad.VADSilence
	}
	if voice {
		ev.Probability = 1
	}
	s.speaking = voice
	return ev, nil
}

func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = false
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
