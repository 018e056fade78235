package capture

import (
	"testing"
	"time"

	"github.com/basa-ph/basa/pkg/audio"
	"github.com/basa-ph/basa/pkg/provider/vad"
)

// frame20 returns a 20 ms, 16 kHz mono frame starting at ms.
func frame20(ms int) audio.AudioFrame {
	return audio.AudioFrame{
		Data:       make([]byte, 640),
		SampleRate: 16000,
		Channels:   1,
		Timestamp:  time.Duration(ms) * time.Millisecond,
	}
}

var (
	voiced = vad.VADEvent{Type: vad.VADSpeechContinue, Probability: 1}
	silent = vad.VADEvent{Type: vad.VADSilence}
)

// feed observes 20 ms frames over [fromMs, toMs) with the same event.
func feed(m *Monitor, fromMs, toMs int, ev vad.VADEvent) {
	for ms := fromMs; ms < toMs; ms += 20 {
		m.Observe(frame20(ms), ev)
	}
}

func TestMonitor_CountsLongPauseOnce(t *testing.T) {
	m := NewMonitor(200 * time.Millisecond)

	feed(m, 0, 100, silent) // leading silence is never counted
	feed(m, 100, 200, voiced)
	feed(m, 200, 700, silent) // long pause
	feed(m, 700, 800, voiced)
	feed(m, 800, 900, silent) // short pause

	got := m.Finish()

	if !got.Heard {
		t.Fatal("Heard: got false, want true")
	}
	if got.SpeechStart != 100*time.Millisecond {
		t.Errorf("SpeechStart: got %v, want 100ms", got.SpeechStart)
	}
	if got.SpeechEnd != 900*time.Millisecond {
		t.Errorf("SpeechEnd: got %v, want 900ms", got.SpeechEnd)
	}
	// The pause is counted when it first exceeds the run: the frame ending at
	// 420 ms is 220 ms after the last voice at 200 ms.
	if got.Silence != 220*time.Millisecond {
		t.Errorf("Silence: got %v, want 220ms", got.Silence)
	}
}

func TestMonitor_NoSpeech(t *testing.T) {
	m := NewMonitor(0)
	feed(m, 0, 1000, silent)

	got := m.Finish()
	if got.Heard || got.Silence != 0 {
		t.Errorf("got %+v, want nothing heard and no silence", got)
	}
	if got.SpeechEnd != got.SpeechStart {
		t.Errorf("empty span expected, got start %v end %v", got.SpeechStart, got.SpeechEnd)
	}
}

func TestMonitor_ContinuousSpeechHasNoSilence(t *testing.T) {
	m := NewMonitor(DefaultSilenceRun)
	feed(m, 0, 5000, voiced)

	got := m.Finish()
	if got.Silence != 0 {
		t.Errorf("Silence: got %v, want 0", got.Silence)
	}
	if span := got.SpeechEnd - got.SpeechStart; span != 5*time.Second {
		t.Errorf("span: got %v, want 5s", span)
	}
}

func TestMonitor_Reset(t *testing.T) {
	m := NewMonitor(100 * time.Millisecond)
	feed(m, 0, 100, voiced)
	feed(m, 100, 400, silent)
	m.Reset()

	if got := m.Finish(); got != (Timing{}) {
		t.Errorf("after Reset: got %+v, want zero", got)
	}
	if m.silenceRun != 100*time.Millisecond {
		t.Errorf("Reset dropped the silence run setting: %v", m.silenceRun)
	}
}
