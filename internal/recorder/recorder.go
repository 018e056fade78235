// Package recorder walks a student through a flashcard deck, keeps the
// latest score for every card, and submits the session when it ends.
//
// A [Recorder] drives one [Capturer] (normally a [capture.Controller]) card
// by card. Re-reading a card replaces its score. [Recorder.Stop] submits
// every scored card in deck order and always leaves the recorder back on
// the first card with no scores, whether or not the submission succeeded.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/basa-ph/basa/internal/api"
	"github.com/basa-ph/basa/internal/capture"
	"github.com/basa-ph/basa/internal/reading"
	"github.com/basa-ph/basa/internal/scoring"
)

var (
	// ErrEmptyDeck is returned by [New] for a deck without cards.
	ErrEmptyDeck = errors.New("recorder: deck has no cards")

	// ErrSessionEnded is returned by [Recorder.CaptureCurrent] when the
	// session was stopped while the attempt ran. The score is discarded.
	ErrSessionEnded = errors.New("recorder: session ended during capture")
)

// Capturer runs one capture attempt at a time. [capture.Controller]
// implements it.
type Capturer interface {
	Start(ctx context.Context, item reading.Item) error
	Stop()
	Wait(ctx context.Context) (capture.Result, error)
	Reset() error
}

// Submitter delivers a finished session. [api.Client] implements it.
type Submitter interface {
	SubmitSession(ctx context.Context, req api.SubmitRequest) (*api.SubmitResponse, error)
}

var (
	_ Capturer  = (*capture.Controller)(nil)
	_ Submitter = (*api.Client)(nil)
)

// Identifiers tie a session to a student and an approved schedule.
type Identifiers struct {
	StudentID          int64
	ApprovedScheduleID int64
	SubjectID          int64
	GradeID            int64
	PhonemicID         *int64
	MaterialID         *int64

	// MasteryThreshold overrides the server default when set.
	MasteryThreshold *int
}

// CardScore is the latest score of one card.
type CardScore struct {
	Index int
	Item  reading.Item
	Score scoring.SlideScore
}

// Draft is the session as it would be submitted right now.
type Draft struct {
	Identifiers
	Cards []CardScore
}

// Request builds the submission body. Cards keep their deck index as the
// flashcard index.
func (d Draft) Request(completed bool, feedback string) api.SubmitRequest {
	req := api.SubmitRequest{
		StudentID:          d.StudentID,
		ApprovedScheduleID: d.ApprovedScheduleID,
		SubjectID:          d.SubjectID,
		GradeID:            d.GradeID,
		PhonemicID:         d.PhonemicID,
		MaterialID:         d.MaterialID,
		MasteryThreshold:   d.MasteryThreshold,
		Completed:          completed,
		TeacherFeedback:    feedback,
		Slides:             make([]api.SlideEntry, len(d.Cards)),
	}
	for i, c := range d.Cards {
		s := c.Score
		req.Slides[i] = api.SlideEntry{
			FlashcardIndex:     c.Index,
			ExpectedText:       c.Item.Text,
			Transcription:      s.Transcription,
			PronunciationScore: metric(s.PronunciationScore),
			AccuracyScore:      metric(s.AccuracyScore()),
			FluencyScore:       metric(s.FluencyScore),
			CompletenessScore:  metric(s.CompletenessScore),
			ReadingSpeedWPM:    metric(s.WPM),
			SlideAverage:       metric(s.AverageScore),
		}
	}
	return req
}

func metric(v int) *float64 {
	f := float64(v)
	return &f
}

// Recorder accumulates card scores for one session. It is safe for
// concurrent use, but only one capture runs at a time.
type Recorder struct {
	deck []reading.Item
	ctrl Capturer
	sub  Submitter
	ids  Identifiers

	mu     sync.Mutex
	index  int
	scores map[int]scoring.SlideScore
	// gen counts sessions; Stop starts a new one.
	gen uint64
}

// New creates a Recorder positioned on the first card of deck.
func New(deck []reading.Item, ctrl Capturer, sub Submitter, ids Identifiers) (*Recorder, error) {
	if len(deck) == 0 {
		return nil, ErrEmptyDeck
	}
	return &Recorder{
		deck:   deck,
		ctrl:   ctrl,
		sub:    sub,
		ids:    ids,
		scores: make(map[int]scoring.SlideScore),
	}, nil
}

// Len returns the number of cards in the deck.
func (r *Recorder) Len() int { return len(r.deck) }

// Index returns the current card index.
func (r *Recorder) Index() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

// Current returns the current card.
func (r *Recorder) Current() reading.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deck[r.index]
}

// Next moves to the following card. It stays on the last card.
func (r *Recorder) Next() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = min(r.index+1, len(r.deck)-1)
	return r.index
}

// Prev moves to the previous card. It stays on the first card.
func (r *Recorder) Prev() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = max(r.index-1, 0)
	return r.index
}

// CaptureCurrent runs one attempt on the current card and records its
// score. An attempt that heard nothing leaves the card unscored and
// returns [capture.ErrNothingHeard]. The capturer is re-armed before
// CaptureCurrent returns, so the card can be retried.
func (r *Recorder) CaptureCurrent(ctx context.Context) (scoring.SlideScore, error) {
	r.mu.Lock()
	idx := r.index
	item := r.deck[idx]
	gen := r.gen
	r.mu.Unlock()

	log := slog.With("card_index", idx, "student_id", r.ids.StudentID)

	if err := r.ctrl.Start(ctx, item); err != nil {
		r.rearm(log)
		return scoring.SlideScore{}, fmt.Errorf("recorder: card %d: %w", idx, err)
	}

	// The attempt itself honours ctx, so waiting past cancellation only
	// waits for its cleanup.
	res, err := r.ctrl.Wait(context.WithoutCancel(ctx))
	r.rearm(log)
	if !res.Scored {
		if err == nil {
			err = capture.ErrNothingHeard
		}
		log.Info("card not scored", "err", err)
		return scoring.SlideScore{}, fmt.Errorf("recorder: card %d: %w", idx, err)
	}

	r.mu.Lock()
	current := r.gen == gen
	if current {
		r.scores[idx] = res.Score
	}
	r.mu.Unlock()
	if !current {
		log.Info("session stopped during capture, score dropped", "average", res.Score.AverageScore)
		return scoring.SlideScore{}, fmt.Errorf("recorder: card %d: %w", idx, ErrSessionEnded)
	}
	log.Info("card scored", "average", res.Score.AverageScore, "band", res.Score.Band)
	return res.Score, nil
}

// StopListening ends the attempt in progress, if any. The attempt is still
// scored from what was heard so far.
func (r *Recorder) StopListening() {
	r.ctrl.Stop()
}

// Scores returns the latest score of every scored card in deck order.
func (r *Recorder) Scores() []CardScore {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cardsLocked()
}

// Draft returns the session as it would be submitted now.
func (r *Recorder) Draft() Draft {
	return Draft{Identifiers: r.ids, Cards: r.Scores()}
}

// Stop ends the session. An attempt still listening is stopped and its
// score discarded. With no scored card nothing is submitted and the result
// is (nil, nil). Otherwise every scored card is submitted. Either way the
// scores are cleared, the capturer is back to Idle, and the recorder returns
// to the first card, even when the submission fails.
func (r *Recorder) Stop(ctx context.Context, completed bool, feedback string) (*api.SubmitResponse, error) {
	r.mu.Lock()
	r.gen++
	draft := Draft{Identifiers: r.ids, Cards: r.cardsLocked()}
	clear(r.scores)
	r.index = 0
	r.mu.Unlock()

	log := slog.With("student_id", r.ids.StudentID, "approved_schedule_id", r.ids.ApprovedScheduleID)

	// Reset refuses a capturer that is still listening or finalizing.
	r.ctrl.Stop()
	_, _ = r.ctrl.Wait(context.WithoutCancel(ctx))
	r.rearm(log)

	if len(draft.Cards) == 0 {
		log.Info("session stopped with no scored cards, nothing submitted")
		return nil, nil
	}

	resp, err := r.sub.SubmitSession(ctx, draft.Request(completed, feedback))
	if err != nil {
		log.Error("session submission failed", "cards", len(draft.Cards), "err", err)
		return nil, fmt.Errorf("recorder: submit: %w", err)
	}
	log.Info("session submitted",
		"session_id", resp.SessionID,
		"overall_average", resp.OverallAverage,
		"mastery_awarded", resp.MasteryAwarded,
	)
	return resp, nil
}

func (r *Recorder) cardsLocked() []CardScore {
	out := make([]CardScore, 0, len(r.scores))
	for i, item := range r.deck {
		if s, ok := r.scores[i]; ok {
			out = append(out, CardScore{Index: i, Item: item, Score: s})
		}
	}
	return out
}

func (r *Recorder) rearm(log *slog.Logger) {
	if err := r.ctrl.Reset(); err != nil {
		log.Warn("capturer reset failed", "err", err)
	}
}
