// Package capture runs one oral-reading attempt: it owns the microphone
// stream, the voice-activity session, and the speech-to-text stream for the
// duration of a card, restarts the recognizer when it ends on its own, and
// hands the buffered transcript and speech timing to a scorer.
//
// The [Controller] is an explicit state machine:
//
//	Idle → Listening → Finalizing → Scored
//	         ↘ Error
//
// A single run goroutine owns all attempt state. Public methods only send
// signals to it or read a mutex-guarded snapshot.
package capture

import (
	"context"
	"errors"

	"github.com/basa-ph/basa/internal/reading"
	"github.com/basa-ph/basa/internal/scoring"
)

var (
	// ErrNotIdle is returned by Start when an attempt already ran or is
	// running. Call Reset first.
	ErrNotIdle = errors.New("capture: controller is not idle")

	// ErrBusy is returned by Reset while an attempt is in progress.
	ErrBusy = errors.New("capture: attempt in progress")

	// ErrDevice wraps any failure to acquire or restart the microphone or
	// the recognizer.
	ErrDevice = errors.New("capture: microphone or recognizer unavailable")

	// ErrNothingHeard is reported when the attempt ends with an empty
	// transcript. It is not fatal; the card may be retried.
	ErrNothingHeard = errors.New("capture: nothing heard")
)

// State is a controller state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateFinalizing
	StateScored
	StateError
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateFinalizing:
		return "finalizing"
	case StateScored:
		return "scored"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Hypothesis is the buffered recognizer output for an attempt.
type Hypothesis struct {
	Text       string
	Confidence float64
}

// Result is the outcome of one attempt.
type Result struct {
	Item       reading.Item
	Hypothesis Hypothesis
	Timing     Timing
	Score      scoring.SlideScore

	// Scored is false when the attempt ended without a score.
	Scored bool

	// Restarts counts recognizer restarts during the attempt.
	Restarts int

	// Err is ErrNothingHeard, an ErrDevice wrap, or the context error.
	Err error
}

// Scorer turns a finished attempt into a slide score.
type Scorer interface {
	Score(item reading.Item, in scoring.Input) scoring.SlideScore
}

// Metrics receives capture events. [observe.Metrics] implements it.
type Metrics interface {
	RecordCaptureAttempt(ctx context.Context, profile, outcome string)
	RecordCaptureRestart(ctx context.Context, profile string)
	RecordSlideScore(ctx context.Context, profile string, score int)
}

type noopMetrics struct{}

func (noopMetrics) RecordCaptureAttempt(context.Context, string, string) {}
func (noopMetrics) RecordCaptureRestart(context.Context, string)         {}
func (noopMetrics) RecordSlideScore(context.Context, string, int)        {}

// UserMessage returns the feedback line shown to the student for an attempt
// error.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNothingHeard):
		return "Nothing was heard. Press record and read the card aloud."
	case errors.Is(err, ErrDevice):
		return "The microphone could not be started. Check that it is connected and try again."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Recording was cancelled."
	default:
		return "Something went wrong while recording. Please try again."
	}
}
