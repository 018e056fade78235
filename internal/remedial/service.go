package remedial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/basa-ph/basa/internal/reading"
)

// Defaults for [NewService].
const (
	DefaultMasteryThreshold = 80
	DefaultTargetWPM        = 100
	DefaultListLimit        = 20
	MaxListLimit            = 100
)

// Metrics receives submission events. [observe.Metrics] implements it.
type Metrics interface {
	RecordSubmission(ctx context.Context, outcome string, d time.Duration)
	RecordMasteryAwarded(ctx context.Context, subjectID int64)
}

type noopMetrics struct{}

func (noopMetrics) RecordSubmission(context.Context, string, time.Duration) {}
func (noopMetrics) RecordMasteryAwarded(context.Context, int64)             {}

// Option configures a [Service].
type Option func(*Service)

// WithMasteryThreshold sets the default mastery threshold.
func WithMasteryThreshold(v int) Option {
	return func(s *Service) { s.threshold.Store(int64(v)) }
}

// WithTargetWPM sets the reading speed counted as 100% in remarks.
func WithTargetWPM(v int) Option {
	return func(s *Service) { s.targetWPM = v }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// SubmitResult is returned by a successful [Service.Submit].
type SubmitResult struct {
	SessionID      uuid.UUID
	OverallAverage int
	Remarks        string
	Completed      bool
	MasteryAwarded bool
}

// Service implements submission and retrieval of remedial sessions.
// It is safe for concurrent use.
type Service struct {
	store     Store
	threshold atomic.Int64
	targetWPM int
	now       func() time.Time
	metrics   Metrics
}

// NewService returns a Service backed by store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		targetWPM: DefaultTargetWPM,
		now:       time.Now,
		metrics:   noopMetrics{},
	}
	s.threshold.Store(DefaultMasteryThreshold)
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetMasteryThreshold changes the default threshold used when a submission
// carries no override. Safe to call while requests are in flight.
func (s *Service) SetMasteryThreshold(v int) {
	s.threshold.Store(int64(v))
}

// MasteryThreshold returns the current default threshold.
func (s *Service) MasteryThreshold() int {
	return int(s.threshold.Load())
}

// Submit validates and records a session submission. Every write after
// validation happens in one transaction: on any failure nothing from this
// submission is persisted and the error wraps [ErrPersistence], unless it is
// an [ErrNotFound] or [ErrValidation] raised along the way.
func (s *Service) Submit(ctx context.Context, sub Submission) (SubmitResult, error) {
	start := s.now()
	res, err := s.submit(ctx, sub)

	outcome := "ok"
	switch {
	case errors.Is(err, ErrValidation):
		outcome = "invalid"
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	s.metrics.RecordSubmission(ctx, outcome, s.now().Sub(start))
	return res, err
}

func (s *Service) submit(ctx context.Context, sub Submission) (SubmitResult, error) {
	if err := sub.Validate(); err != nil {
		return SubmitResult{}, err
	}

	log := slog.With(
		"student_id", sub.StudentID,
		"approved_schedule_id", sub.ApprovedScheduleID,
		"subject_id", sub.SubjectID,
	)

	if _, err := s.store.Schedule(ctx, sub.ApprovedScheduleID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return SubmitResult{}, fmt.Errorf("approved schedule %d: %w", sub.ApprovedScheduleID, ErrNotFound)
		}
		log.Error("schedule lookup failed", "err", err)
		return SubmitResult{}, fmt.Errorf("%w: schedule lookup: %w", ErrPersistence, err)
	}

	threshold := s.MasteryThreshold()
	if sub.MasteryThreshold != nil {
		threshold = *sub.MasteryThreshold
	}

	var res SubmitResult
	err := s.store.RunInTx(ctx, func(ctx context.Context) error {
		subject, err := s.store.SubjectName(ctx, sub.SubjectID)
		if err != nil {
			return fmt.Errorf("subject %d: %w", sub.SubjectID, err)
		}

		now := s.now().UTC()
		sess, err := s.store.FindOrCreateSession(ctx, Session{
			ID:                 uuid.New(),
			StudentID:          sub.StudentID,
			ApprovedScheduleID: sub.ApprovedScheduleID,
			SubjectID:          sub.SubjectID,
			GradeID:            sub.GradeID,
			PhonemicID:         sub.PhonemicID,
			MaterialID:         sub.MaterialID,
			CreatedAt:          now,
			UpdatedAt:          now,
		})
		if err != nil {
			return fmt.Errorf("find or create session: %w", err)
		}

		slides := sess.ReplaceSlides(sub.slides(sess.ID))
		if err := s.store.ReplaceSlides(ctx, sess.ID, slides); err != nil {
			return fmt.Errorf("replace slides: %w", err)
		}

		sess.SubjectID = sub.SubjectID
		sess.GradeID = sub.GradeID
		sess.PhonemicID = sub.PhonemicID
		sess.MaterialID = sub.MaterialID
		sess.Remarks = BuildRemarks(slides, reading.ProfileForSubject(subject).IsMath(), s.targetWPM)
		sess.TeacherFeedback = sub.TeacherFeedback
		sess.CompletedAt = nil
		if sub.Completed {
			sess.CompletedAt = &now
		}
		sess.UpdatedAt = now
		if err := s.store.UpdateSession(ctx, sess); err != nil {
			return fmt.Errorf("update session: %w", err)
		}

		if err := s.recordLedger(ctx, sess, subject, slides, now); err != nil {
			return err
		}

		awarded := false
		if sub.Completed && sess.OverallAverage >= threshold && sub.PhonemicID != nil {
			awarded, err = s.awardMastery(ctx, sess, *sub.PhonemicID, now)
			if err != nil {
				return err
			}
		}

		res = SubmitResult{
			SessionID:      sess.ID,
			OverallAverage: sess.OverallAverage,
			Remarks:        sess.Remarks,
			Completed:      sub.Completed,
			MasteryAwarded: awarded,
		}
		return nil
	})
	if err != nil {
		log.Error("session submission rolled back", "err", err)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
			return SubmitResult{}, err
		}
		return SubmitResult{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if res.MasteryAwarded {
		s.metrics.RecordMasteryAwarded(ctx, sub.SubjectID)
	}
	log.Info("session recorded",
		"session_id", res.SessionID,
		"overall_average", res.OverallAverage,
		"slides", len(sub.Slides),
		"completed", res.Completed,
		"mastery_awarded", res.MasteryAwarded,
	)
	return res, nil
}

// ledgerMetadata is the JSON stored with the performance record.
type ledgerMetadata struct {
	SessionID          uuid.UUID `json:"sessionId"`
	ApprovedScheduleID int64     `json:"approvedScheduleId"`
	GradeID            int64     `json:"gradeId"`
	PhonemicID         *int64    `json:"phonemicId"`
	MaterialID         *int64    `json:"materialId"`
	Completed          bool      `json:"completed"`
	SlideAverages      []int     `json:"slideAverages"`
}

func (s *Service) recordLedger(ctx context.Context, sess Session, subject string, slides []SlidePerformance, now time.Time) error {
	activityID, err := s.store.UpsertActivity(ctx, Activity{
		SubjectID: sess.SubjectID,
		Title:     "Remedial: " + subject,
		Date:      time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		return fmt.Errorf("upsert activity: %w", err)
	}

	meta := ledgerMetadata{
		SessionID:          sess.ID,
		ApprovedScheduleID: sess.ApprovedScheduleID,
		GradeID:            sess.GradeID,
		PhonemicID:         sess.PhonemicID,
		MaterialID:         sess.MaterialID,
		Completed:          sess.Completed(),
		SlideAverages:      make([]int, len(slides)),
	}
	for i, sl := range slides {
		meta.SlideAverages[i] = sl.SlideAverage
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode ledger metadata: %w", err)
	}

	if err := s.store.UpsertPerformanceRecord(ctx, PerformanceRecord{
		StudentID:  sess.StudentID,
		ActivityID: activityID,
		Score:      sess.OverallAverage,
		ItemCount:  len(slides),
		Metadata:   raw,
	}); err != nil {
		return fmt.Errorf("upsert performance record: %w", err)
	}
	return nil
}

func (s *Service) awardMastery(ctx context.Context, sess Session, phonemicID int64, now time.Time) (bool, error) {
	exists, err := s.store.HasMastery(ctx, sess.StudentID, sess.SubjectID, phonemicID)
	if err != nil {
		return false, fmt.Errorf("check mastery: %w", err)
	}
	if exists {
		return false, nil
	}
	inserted, err := s.store.InsertMastery(ctx, MasteryRecord{
		StudentID:  sess.StudentID,
		SubjectID:  sess.SubjectID,
		PhonemicID: phonemicID,
		AchievedAt: now,
	})
	if err != nil {
		return false, fmt.Errorf("insert mastery: %w", err)
	}
	return inserted, nil
}

// Progress returns the session and ordered slides for (studentID,
// scheduleID), or Found false if no session exists yet.
func (s *Service) Progress(ctx context.Context, studentID, scheduleID int64) (Progress, error) {
	if studentID <= 0 || scheduleID <= 0 {
		ve := &ValidationError{}
		if studentID <= 0 {
			ve.add("studentId", "required")
		}
		if scheduleID <= 0 {
			ve.add("approvedScheduleId", "required")
		}
		return Progress{}, ve
	}

	sess, err := s.store.GetSession(ctx, studentID, scheduleID)
	if errors.Is(err, ErrNotFound) {
		return Progress{Found: false}, nil
	}
	if err != nil {
		return Progress{}, fmt.Errorf("get session: %w", err)
	}

	slides, err := s.store.ListSlides(ctx, sess.ID)
	if err != nil {
		return Progress{}, fmt.Errorf("list slides: %w", err)
	}
	return Progress{Found: true, Session: &sess, Slides: slides}, nil
}

// ListSessions returns a student's session history, newest first. A
// non-positive limit selects [DefaultListLimit]; limits above
// [MaxListLimit] are capped.
func (s *Service) ListSessions(ctx context.Context, studentID int64, limit int) ([]Session, error) {
	if studentID <= 0 {
		return nil, &ValidationError{Errors: []FieldError{{Field: "studentId", Message: "required"}}}
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	sessions, err := s.store.ListSessions(ctx, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// ListMastery returns the phonemic levels a student has mastered.
func (s *Service) ListMastery(ctx context.Context, studentID int64) ([]MasteryRecord, error) {
	if studentID <= 0 {
		return nil, &ValidationError{Errors: []FieldError{{Field: "studentId", Message: "required"}}}
	}
	records, err := s.store.ListMastery(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list mastery: %w", err)
	}
	return records, nil
}
