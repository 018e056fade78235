// Package remedial records remedial reading sessions.
//
// A [Session] is unique per (student, approved schedule) and is overwritten
// in place on every submission. Its per-card [SlidePerformance] rows are
// always replaced as a set through [Session.ReplaceSlides], which also
// derives the overall average, so the two never drift apart. [Service.Submit]
// runs the whole write path inside one [Store] transaction: session upsert,
// slide replacement, remark generation, the generic activity ledger, and the
// write-once mastery record.
package remedial

import (
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Session is the persisted summary of one remedial session.
type Session struct {
	ID                 uuid.UUID  `json:"sessionId"`
	StudentID          int64      `json:"studentId"`
	ApprovedScheduleID int64      `json:"approvedScheduleId"`
	SubjectID          int64      `json:"subjectId"`
	GradeID            int64      `json:"gradeId"`
	PhonemicID         *int64     `json:"phonemicId,omitempty"`
	MaterialID         *int64     `json:"materialId,omitempty"`
	OverallAverage     int        `json:"overallAverage"`
	Remarks            string     `json:"aiRemarks"`
	TeacherFeedback    string     `json:"teacherFeedback,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Completed reports whether the session was marked complete.
func (s Session) Completed() bool { return s.CompletedAt != nil }

// SlidePerformance is the stored result for one flashcard of a session.
type SlidePerformance struct {
	SessionID       uuid.UUID `json:"-"`
	FlashcardIndex  int       `json:"flashcardIndex"`
	ExpectedText    string    `json:"expectedText,omitempty"`
	Transcription   string    `json:"transcription,omitempty"`
	Pronunciation   int       `json:"pronunciationScore"`
	Accuracy        int       `json:"accuracyScore"`
	Fluency         int       `json:"fluencyScore"`
	Completeness    int       `json:"completenessScore"`
	ReadingSpeedWPM int       `json:"readingSpeedWpm"`
	SlideAverage    int       `json:"slideAverage"`
}

// ReplaceSlides is the only way to change a session's slides. It stamps each
// slide with the session id, orders them by flashcard index, and sets
// OverallAverage to the rounded mean of their SlideAverage (0 for no slides).
// The returned slice is the full replacement set to persist.
func (s *Session) ReplaceSlides(slides []SlidePerformance) []SlidePerformance {
	out := make([]SlidePerformance, len(slides))
	copy(out, slides)
	slices.SortStableFunc(out, func(a, b SlidePerformance) int {
		return a.FlashcardIndex - b.FlashcardIndex
	})

	sum := 0
	for i := range out {
		out[i].SessionID = s.ID
		sum += out[i].SlideAverage
	}
	s.OverallAverage = 0
	if len(out) > 0 {
		s.OverallAverage = int(math.Round(float64(sum) / float64(len(out))))
	}
	return out
}

// MasteryRecord marks that a student achieved a phonemic level in a subject.
// It is written at most once per (student, subject, level).
type MasteryRecord struct {
	StudentID  int64     `json:"studentId"`
	SubjectID  int64     `json:"subjectId"`
	PhonemicID int64     `json:"phonemicId"`
	AchievedAt time.Time `json:"achievedAt"`
}

// Schedule is the approved remedial schedule a session belongs to. It is
// owned by the enclosing school system and read only here.
type Schedule struct {
	ID        int64
	SubjectID int64
}

// Activity is an entry in the shared activity ledger, unique per
// (subject, title, date).
type Activity struct {
	ID        int64
	SubjectID int64
	Title     string
	Date      time.Time
}

// PerformanceRecord is a student's score on an Activity, unique per
// (student, activity).
type PerformanceRecord struct {
	StudentID  int64
	ActivityID int64
	Score      int
	ItemCount  int
	Metadata   []byte
}

// Progress is the answer to a progress lookup. Found is false, not an
// error, when no session exists yet.
type Progress struct {
	Found   bool               `json:"found"`
	Session *Session           `json:"session,omitempty"`
	Slides  []SlidePerformance `json:"slides,omitempty"`
}
