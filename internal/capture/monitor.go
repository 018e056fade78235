package capture

import (
	"time"

	"github.com/basa-ph/basa/pkg/audio"
	"github.com/basa-ph/basa/pkg/provider/vad"
)

// DefaultSilenceRun is how long a pause must last before it counts against
// fluency.
const DefaultSilenceRun = 200 * time.Millisecond

// Timing is the speech timing of one capture attempt, in stream time.
type Timing struct {
	// SpeechStart is the start of the first voiced frame.
	SpeechStart time.Duration

	// SpeechEnd is the end of the last frame observed.
	SpeechEnd time.Duration

	// Silence is the accumulated length of counted pauses.
	Silence time.Duration

	// Heard reports whether any voiced frame was seen.
	Heard bool
}

// Monitor accumulates [Timing] from audio frames and their VAD
// classification. It is not safe for concurrent use; the controller's run
// loop is its only caller.
type Monitor struct {
	silenceRun time.Duration

	timing    Timing
	lastVoice time.Duration
	hasVoice  bool
	lastEnd   time.Duration
}

// NewMonitor returns a Monitor that counts pauses longer than silenceRun.
// A non-positive silenceRun selects [DefaultSilenceRun].
func NewMonitor(silenceRun time.Duration) *Monitor {
	if silenceRun <= 0 {
		silenceRun = DefaultSilenceRun
	}
	return &Monitor{silenceRun: silenceRun}
}

// Observe records one frame. A voiced frame refreshes the last-voice time
// and sets SpeechStart if unset. A silent frame that ends more than the
// silence run after the last voice adds that gap to Silence and clears the
// last-voice time, so one pause is counted once.
func (m *Monitor) Observe(f audio.AudioFrame, ev vad.VADEvent) {
	end := f.End()
	m.lastEnd = max(m.lastEnd, end)

	if ev.IsVoice() {
		if !m.timing.Heard {
			m.timing.Heard = true
			m.timing.SpeechStart = f.Timestamp
		}
		m.lastVoice = end
		m.hasVoice = true
		return
	}

	if m.hasVoice && end-m.lastVoice > m.silenceRun {
		m.timing.Silence += end - m.lastVoice
		m.hasVoice = false
	}
}

// Timing returns the timing accumulated so far.
func (m *Monitor) Timing() Timing {
	t := m.timing
	t.SpeechEnd = m.speechEnd()
	return t
}

// Finish returns the final timing. SpeechEnd is the end of the last frame
// seen; if no speech was heard it equals SpeechStart, so the span is empty.
func (m *Monitor) Finish() Timing {
	return m.Timing()
}

// Reset clears all accumulated state.
func (m *Monitor) Reset() {
	*m = Monitor{silenceRun: m.silenceRun}
}

func (m *Monitor) speechEnd() time.Duration {
	if !m.timing.Heard {
		return m.timing.SpeechStart
	}
	return m.lastEnd
}
