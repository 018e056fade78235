package stt

import "time"

// Transcript is one recognition result, interim or final.
type Transcript struct {
	Text string

	IsFinal bool

	// Confidence is in [0, 1]. Zero when the provider does not report one.
	Confidence float64

	// Words carries per-word detail when the provider supplies it.
	Words []WordDetail

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	Duration time.Duration
}

// WordDetail holds per-word metadata.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a vocabulary hint.
type KeywordBoost struct {
	Keyword string

	// Boost is the provider-specific intensity.
	Boost float64
}
