// Package scoring combines alignment results, capture timing, and recognizer
// confidence into the per-card [SlideScore].
//
// Literacy cards are scored continuously from word accuracy, phoneme accuracy,
// fluency (share of speech time not spent in long pauses), and reading speed.
// Math cards are scored by exact equality of the spoken answer.
package scoring

import (
	"math"
	"time"

	"github.com/basa-ph/basa/internal/reading"
)

// DefaultTargetWPM is the reading speed treated as 100% when no target is
// configured.
const DefaultTargetWPM = 100

// Pronunciation weights.
const (
	wordWeight       = 0.5
	phonemeWeight    = 0.35
	confidenceWeight = 0.15
)

// Input is everything one capture attempt contributes to a score.
type Input struct {
	// Text is the final recognized transcript.
	Text string

	// Confidence is the recognizer confidence in [0, 1].
	Confidence float64

	// SpeechStart and SpeechEnd bound the attempt's speech in stream time.
	SpeechStart time.Duration
	SpeechEnd   time.Duration

	// Silence is the total length of counted pauses.
	Silence time.Duration
}

// SlideScore is the immutable result of scoring one card.
type SlideScore struct {
	WordAccuracy       float64 `json:"wordAccuracy"`
	PhonemeAccuracy    float64 `json:"phonemeAccuracy"`
	FluencyScore       int     `json:"fluencyScore"`
	WPM                int     `json:"wpm"`
	PronunciationScore int     `json:"pronunciationScore"`
	CompletenessScore  int     `json:"completenessScore"`
	AverageScore       int     `json:"averageScore"`
	Band               Band    `json:"band"`
	Remark             string  `json:"remark"`
	Transcription      string  `json:"transcription"`
	Confidence         float64 `json:"confidence"`

	// Math cards only.
	Math    bool          `json:"math,omitempty"`
	Correct bool          `json:"correct,omitempty"`
	Latency time.Duration `json:"latency,omitempty"`
}

// AccuracyScore is WordAccuracy rounded for persistence.
func (s SlideScore) AccuracyScore() int { return roundClamp(s.WordAccuracy) }

// Scorer computes slide scores. The zero value uses [DefaultTargetWPM].
type Scorer struct {
	TargetWPM int
}

// Score computes the score for item from one capture attempt.
func (sc Scorer) Score(item reading.Item, in Input) SlideScore {
	total := totalMs(in)
	expected := item.Words()

	s := SlideScore{
		FluencyScore:  Fluency(in.Silence, total),
		WPM:           WPM(len(expected), total),
		Transcription: in.Text,
		Confidence:    clamp01(in.Confidence),
	}

	if item.Profile.IsMath() {
		return sc.scoreMath(item, in, s)
	}

	recognized := reading.Normalize(in.Text, item.Profile)
	a := reading.Align(expected, recognized, item.Profile)

	s.WordAccuracy = a.WordAccuracy()
	s.PhonemeAccuracy = reading.PhonemeAccuracy(expected, recognized)
	s.CompletenessScore = roundClamp(a.Completeness())
	s.PronunciationScore = roundClamp(wordWeight*s.WordAccuracy +
		phonemeWeight*s.PhonemeAccuracy +
		confidenceWeight*s.Confidence*100)
	s.AverageScore = roundClamp((float64(s.PronunciationScore) +
		float64(s.FluencyScore) +
		sc.wpmPercent(s.WPM)) / 3)
	s.Band = BandFor(s.AverageScore)
	s.Remark = s.Band.Remark()
	return s
}

func (sc Scorer) scoreMath(item reading.Item, in Input, s SlideScore) SlideScore {
	s.Math = true
	s.Latency = in.SpeechStart

	want, ok := item.ExpectedAnswer()
	if !ok {
		want = item.Text
	}
	got, gotOK := reading.RecognizedAnswer(in.Text)
	s.Correct = gotOK && got == want

	v := 0
	if s.Correct {
		v = 100
	}
	s.WordAccuracy = float64(v)
	s.PhonemeAccuracy = float64(v)
	s.CompletenessScore = v
	s.PronunciationScore = v
	s.AverageScore = v
	s.Band = BandFor(v)
	s.Remark = s.Band.Remark()
	return s
}

func (sc Scorer) wpmPercent(wpm int) float64 {
	target := sc.TargetWPM
	if target <= 0 {
		target = DefaultTargetWPM
	}
	return math.Min(100, float64(wpm)/float64(target)*100)
}

// Fluency returns round(max(0, 1 − silence/total) × 100). Any counted
// silence keeps the result below 100.
func Fluency(silence time.Duration, totalMs float64) int {
	silenceMs := float64(silence) / float64(time.Millisecond)
	if silenceMs <= 0 {
		return 100
	}
	f := int(math.Round(math.Max(0, 1-silenceMs/totalMs) * 100))
	return min(f, 99)
}

// WPM returns round(words / (totalMs/1000) × 60), floored at 0.
func WPM(words int, totalMs float64) int {
	if words <= 0 || totalMs <= 0 {
		return 0
	}
	return max(0, int(math.Round(float64(words)/(totalMs/1000)*60)))
}

// totalMs is the speech span in milliseconds, at least 1.
func totalMs(in Input) float64 {
	return math.Max(1, float64(in.SpeechEnd-in.SpeechStart)/float64(time.Millisecond))
}

func roundClamp(v float64) int {
	return int(math.Round(math.Max(0, math.Min(100, v))))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
