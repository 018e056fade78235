// Package api exposes the remedial session service over HTTP JSON and
// provides the typed [Client] the capture tool submits through.
//
// Routes:
//
//	POST /api/remedial/sessions                              submit a session
//	GET  /api/remedial/sessions?studentId=&approvedScheduleId= progress lookup
//	GET  /api/students/{studentId}/sessions?limit=            session history
//	GET  /api/students/{studentId}/mastery                    mastered levels
//
// Errors are returned as {"error": "..."} with 400 for invalid input, 404
// for unknown resources and a generic 500 otherwise.
package api

import (
	"github.com/google/uuid"

	"github.com/basa-ph/basa/internal/remedial"
)

// SubmitRequest is the body of POST /api/remedial/sessions.
type SubmitRequest struct {
	StudentID          int64        `json:"studentId"`
	ApprovedScheduleID int64        `json:"approvedScheduleId"`
	SubjectID          int64        `json:"subjectId"`
	GradeID            int64        `json:"gradeId"`
	PhonemicID         *int64       `json:"phonemicId,omitempty"`
	MaterialID         *int64       `json:"materialId,omitempty"`
	MasteryThreshold   *int         `json:"masteryThreshold,omitempty"`
	Completed          bool         `json:"completed"`
	TeacherFeedback    string       `json:"teacherFeedback,omitempty"`
	Slides             []SlideEntry `json:"slides"`
}

// SlideEntry is one scored flashcard of a [SubmitRequest]. Scores are
// pointers so an omitted metric is rejected instead of read as zero.
type SlideEntry struct {
	FlashcardIndex     int      `json:"flashcardIndex"`
	ExpectedText       string   `json:"expectedText,omitempty"`
	Transcription      string   `json:"transcription,omitempty"`
	PronunciationScore *float64 `json:"pronunciationScore"`
	AccuracyScore      *float64 `json:"accuracyScore"`
	FluencyScore       *float64 `json:"fluencyScore"`
	CompletenessScore  *float64 `json:"completenessScore"`
	ReadingSpeedWPM    *float64 `json:"readingSpeedWpm"`
	SlideAverage       *float64 `json:"slideAverage"`
}

// SubmitResponse is returned by a successful submission.
type SubmitResponse struct {
	SessionID      uuid.UUID `json:"sessionId"`
	OverallAverage int       `json:"overallAverage"`
	Remarks        string    `json:"aiRemarks"`
	Completed      bool      `json:"completed"`
	MasteryAwarded bool      `json:"masteryAwarded"`
}

// ErrorResponse is the body of every non-2xx response. Fields is set for
// validation failures.
type ErrorResponse struct {
	Error  string                `json:"error"`
	Fields []remedial.FieldError `json:"fields,omitempty"`
}

type sessionsResponse struct {
	Sessions []remedial.Session `json:"sessions"`
}

type masteryResponse struct {
	Mastery []remedial.MasteryRecord `json:"mastery"`
}

// Submission converts the request into the service input.
func (r SubmitRequest) Submission() remedial.Submission {
	sub := remedial.Submission{
		StudentID:          r.StudentID,
		ApprovedScheduleID: r.ApprovedScheduleID,
		SubjectID:          r.SubjectID,
		GradeID:            r.GradeID,
		PhonemicID:         r.PhonemicID,
		MaterialID:         r.MaterialID,
		MasteryThreshold:   r.MasteryThreshold,
		Completed:          r.Completed,
		TeacherFeedback:    r.TeacherFeedback,
		Slides:             make([]remedial.SlideInput, len(r.Slides)),
	}
	for i, s := range r.Slides {
		sub.Slides[i] = remedial.SlideInput{
			FlashcardIndex:  s.FlashcardIndex,
			ExpectedText:    s.ExpectedText,
			Transcription:   s.Transcription,
			Pronunciation:   s.PronunciationScore,
			Accuracy:        s.AccuracyScore,
			Fluency:         s.FluencyScore,
			Completeness:    s.CompletenessScore,
			ReadingSpeedWPM: s.ReadingSpeedWPM,
			SlideAverage:    s.SlideAverage,
		}
	}
	return sub
}

func toSubmitResponse(res remedial.SubmitResult) SubmitResponse {
	return SubmitResponse{
		SessionID:      res.SessionID,
		OverallAverage: res.OverallAverage,
		Remarks:        res.Remarks,
		Completed:      res.Completed,
		MasteryAwarded: res.MasteryAwarded,
	}
}
