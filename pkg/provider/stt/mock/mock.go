// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig and to hand out a scripted sequence of sessions (a recognizer
// that ends on its own is restarted with a fresh session). Use Session to feed
// Transcript values and inspect which audio chunks were delivered.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Sessions: []stt.SessionHandle{sess}}
//	handle, _ := p.StartStream(ctx, cfg)
//	sess.EmitFinal("ang bata", 0.9)
//	sess.End()
package mock

import (
	"context"
	"sync"

	"github.com/basa-ph/basa/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Sessions are returned by successive StartStream calls. Once exhausted,
	// Session is returned, or a fresh NewSession if Session is nil.
	Sessions []stt.SessionHandle

	// Session is the fallback handle once Sessions is exhausted.
	Session stt.SessionHandle

	// StartStreamErr, if non-nil, is returned by every StartStream call.
	StartStreamErr error

	// ErrOnCall maps a zero-based call number to an error for that call only.
	ErrOnCall map[int]error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall
}

var _ stt.Provider = (*Provider)(nil)

// StartStream records the call and returns the next scripted session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.StartStreamCalls)
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if err := p.ErrOnCall[n]; err != nil {
		return nil, err
	}
	if len(p.Sessions) > 0 {
		s := p.Sessions[0]
		p.Sessions = p.Sessions[1:]
		return s, nil
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(), nil
}

// CallCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

// Session is a mock implementation of stt.SessionHandle.
//
// Tests push transcripts with EmitPartial/EmitFinal and simulate the
// recognizer ending with End. By default Close also ends the stream, as a
// real provider does once it has flushed.
type Session struct {
	mu sync.Mutex

	// PartialsCh and FinalsCh back Partials and Finals.
	PartialsCh chan stt.Transcript
	FinalsCh   chan stt.Transcript

	// KeepOpenOnClose stops Close from closing the transcript channels.
	KeepOpenOnClose bool

	// OnClose, if set, runs inside Close before the stream ends. It may emit
	// a flushed final.
	OnClose func(s *Session)

	SendAudioErr   error
	SetKeywordsErr error
	CloseErr       error

	// Call records.
	SendAudioCalls   [][]byte
	SetKeywordsCalls [][]stt.KeywordBoost
	CloseCallCount   int

	endOnce sync.Once
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession returns a Session with buffered channels.
func NewSession() *Session {
	return &Session{
		PartialsCh: make(chan stt.Transcript, 16),
		FinalsCh:   make(chan stt.Transcript, 16),
	}
}

// EmitPartial queues an interim transcript.
func (s *Session) EmitPartial(text string, confidence float64) {
	s.PartialsCh <- stt.Transcript{Text: text, Confidence: confidence}
}

// EmitFinal queues a committed transcript.
func (s *Session) EmitFinal(text string, confidence float64) {
	s.FinalsCh <- stt.Transcript{Text: text, Confidence: confidence, IsFinal: true}
}

// End closes both transcript channels, as a recognizer does when its stream
// ends. Safe to call more than once.
func (s *Session) End() {
	s.endOnce.Do(func() {
		close(s.PartialsCh)
		close(s.FinalsCh)
	})
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, cp)
	return s.SendAudioErr
}

// Partials returns PartialsCh.
func (s *Session) Partials() <-chan stt.Transcript { return s.PartialsCh }

// Finals returns FinalsCh.
func (s *Session) Finals() <-chan stt.Transcript { return s.FinalsCh }

// SetKeywords records the call and returns SetKeywordsErr.
func (s *Session) SetKeywords(keywords []stt.KeywordBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SetKeywordsCalls = append(s.SetKeywordsCalls, append([]stt.KeywordBoost(nil), keywords...))
	return s.SetKeywordsErr
}

// SendAudioCallCount returns the number of SendAudio calls. Thread-safe.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// AudioSent returns a copy of every chunk passed to SendAudio. Thread-safe.
func (s *Session) AudioSent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.SendAudioCalls...)
}

// Close records the call, runs OnClose, and ends the stream unless
// KeepOpenOnClose is set.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	first := s.CloseCallCount == 1
	onClose := s.OnClose
	keep := s.KeepOpenOnClose
	err := s.CloseErr
	s.mu.Unlock()

	if first && onClose != nil {
		onClose(s)
	}
	if !keep {
		s.End()
	}
	return err
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount > 0
}
