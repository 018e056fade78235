package remedial

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// MaxReadingSpeedWPM is the highest reading speed a slide may report.
const MaxReadingSpeedWPM = 1000

// Submission is one complete session submission from the client.
type Submission struct {
	StudentID          int64
	ApprovedScheduleID int64
	SubjectID          int64
	GradeID            int64
	PhonemicID         *int64
	MaterialID         *int64

	// MasteryThreshold overrides the service default when set.
	MasteryThreshold *int

	Completed       bool
	TeacherFeedback string
	Slides          []SlideInput
}

// SlideInput is one per-card entry of a submission. Metrics are pointers so
// a missing value can be told apart from zero.
type SlideInput struct {
	FlashcardIndex  int
	ExpectedText    string
	Transcription   string
	Pronunciation   *float64
	Accuracy        *float64
	Fluency         *float64
	Completeness    *float64
	ReadingSpeedWPM *float64
	SlideAverage    *float64
}

// Validate checks required identifiers and that every slide is fully
// populated. It returns a *ValidationError listing every problem.
func (s Submission) Validate() error {
	ve := &ValidationError{}

	for _, f := range []struct {
		name string
		v    int64
	}{
		{"studentId", s.StudentID},
		{"approvedScheduleId", s.ApprovedScheduleID},
		{"subjectId", s.SubjectID},
		{"gradeId", s.GradeID},
	} {
		if f.v <= 0 {
			ve.add(f.name, "required")
		}
	}

	if s.MasteryThreshold != nil && (*s.MasteryThreshold < 0 || *s.MasteryThreshold > 100) {
		ve.add("masteryThreshold", "must be between 0 and 100")
	}
	if s.Completed && strings.TrimSpace(s.TeacherFeedback) == "" {
		ve.add("teacherFeedback", "required when the session is completed")
	}

	if len(s.Slides) == 0 {
		ve.add("slides", "at least one slide is required")
	}
	seen := make(map[int]bool, len(s.Slides))
	for i, sl := range s.Slides {
		prefix := fmt.Sprintf("slides[%d].", i)
		if sl.FlashcardIndex < 0 {
			ve.add(prefix+"flashcardIndex", "must not be negative")
		} else if seen[sl.FlashcardIndex] {
			ve.add(prefix+"flashcardIndex", "duplicate flashcard index")
		}
		seen[sl.FlashcardIndex] = true

		for _, m := range []struct {
			name string
			v    *float64
		}{
			{"pronunciationScore", sl.Pronunciation},
			{"accuracyScore", sl.Accuracy},
			{"fluencyScore", sl.Fluency},
			{"completenessScore", sl.Completeness},
			{"slideAverage", sl.SlideAverage},
		} {
			switch {
			case m.v == nil:
				ve.add(prefix+m.name, "required")
			case *m.v < 0 || *m.v > 100 || math.IsNaN(*m.v):
				ve.add(prefix+m.name, "must be between 0 and 100")
			}
		}
		switch {
		case sl.ReadingSpeedWPM == nil:
			ve.add(prefix+"readingSpeedWpm", "required")
		case math.IsNaN(*sl.ReadingSpeedWPM) || *sl.ReadingSpeedWPM < 0 || *sl.ReadingSpeedWPM > MaxReadingSpeedWPM:
			ve.add(prefix+"readingSpeedWpm", fmt.Sprintf("must be between 0 and %d", MaxReadingSpeedWPM))
		}
	}

	return ve.orNil()
}

// slides converts validated inputs to rows. Metrics are rounded to whole
// points.
func (s Submission) slides(sessionID uuid.UUID) []SlidePerformance {
	out := make([]SlidePerformance, len(s.Slides))
	for i, sl := range s.Slides {
		out[i] = SlidePerformance{
			SessionID:       sessionID,
			FlashcardIndex:  sl.FlashcardIndex,
			ExpectedText:    sl.ExpectedText,
			Transcription:   sl.Transcription,
			Pronunciation:   roundPtr(sl.Pronunciation),
			Accuracy:        roundPtr(sl.Accuracy),
			Fluency:         roundPtr(sl.Fluency),
			Completeness:    roundPtr(sl.Completeness),
			ReadingSpeedWPM: roundPtr(sl.ReadingSpeedWPM),
			SlideAverage:    roundPtr(sl.SlideAverage),
		}
	}
	return out
}

func roundPtr(v *float64) int {
	if v == nil {
		return 0
	}
	return int(math.Round(*v))
}
