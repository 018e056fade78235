package vad

// VADEvent is the detection result for a single frame.
type VADEvent struct {
	Type VADEventType

	// Probability is the speech likelihood in [0, 1]. Engines without a
	// probabilistic model report 1 for voice and 0 for silence.
	Probability float64

	// LevelDB is the frame loudness in dBFS when the engine measures it.
	LevelDB float64
}

// IsVoice reports whether the frame was classified as speech.
func (e VADEvent) IsVoice() bool {
	return e.Type == VADSpeechStart || e.Type == VADSpeechContinue
}

// VADEventType enumerates VAD detection states.
type VADEventType int

const (
	// VADSpeechStart marks the first voice frame after silence.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue marks ongoing speech.
	VADSpeechContinue

	// VADSpeechEnd marks the first silent frame after speech.
	VADSpeechEnd

	// VADSilence marks continued silence.
	VADSilence
)

// String returns the event name.
func (t VADEventType) String() string {
	switch t {
	case VADSpeechStart:
		return "speech_start"
	case VADSpeechContinue:
		return "speech_continue"
	case VADSpeechEnd:
		return "speech_end"
	case VADSilence:
		return "silence"
	default:
		return "unknown"
	}
}
