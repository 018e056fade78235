package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/basa-ph/basa/internal/remedial"
)

var sessionColumns = []string{
	"id", "student_id", "approved_schedule_id", "subject_id", "grade_id",
	"phonemic_id", "material_id", "overall_average", "ai_remarks",
	"teacher_feedback", "completed_at", "created_at", "updated_at",
}

var slideColumns = []string{
	"session_id", "flashcard_index", "expected_text", "transcription",
	"pronunciation_score", "accuracy_score", "fluency_score",
	"completeness_score", "reading_speed_wpm", "slide_average",
}

func scanSession(row pgx.Row) (remedial.Session, error) {
	var s remedial.Session
	err := row.Scan(
		&s.ID, &s.StudentID, &s.ApprovedScheduleID, &s.SubjectID, &s.GradeID,
		&s.PhonemicID, &s.MaterialID, &s.OverallAverage, &s.Remarks,
		&s.TeacherFeedback, &s.CompletedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// ── Lookups ──────────────────────────────────────────────────────────────────

func (s *Store) Schedule(ctx context.Context, id int64) (remedial.Schedule, error) {
	var sc remedial.Schedule
	err := s.querier(ctx).QueryRow(ctx,
		`SELECT id, subject_id FROM approved_schedules WHERE id = $1`, id,
	).Scan(&sc.ID, &sc.SubjectID)
	if err != nil {
		return remedial.Schedule{}, mapError(err, fmt.Sprintf("schedule %d", id))
	}
	return sc, nil
}

func (s *Store) SubjectName(ctx context.Context, subjectID int64) (string, error) {
	var name string
	err := s.querier(ctx).QueryRow(ctx,
		`SELECT name FROM subjects WHERE id = $1`, subjectID,
	).Scan(&name)
	if err != nil {
		return "", mapError(err, fmt.Sprintf("subject %d", subjectID))
	}
	return name, nil
}

// ── Sessions ─────────────────────────────────────────────────────────────────

// FindOrCreateSession inserts in unless a session for the same student and
// schedule exists, then reads back whichever row won. Concurrent first
// submissions therefore converge on one session id.
func (s *Store) FindOrCreateSession(ctx context.Context, in remedial.Session) (remedial.Session, error) {
	q := s.querier(ctx)

	insert, args, err := s.sb.Insert("remedial_sessions").
		Columns(sessionColumns...).
		Values(
			in.ID, in.StudentID, in.ApprovedScheduleID, in.SubjectID, in.GradeID,
			in.PhonemicID, in.MaterialID, in.OverallAverage, in.Remarks,
			in.TeacherFeedback, in.CompletedAt, in.CreatedAt, in.UpdatedAt,
		).
		Suffix("ON CONFLICT (student_id, approved_schedule_id) DO NOTHING").
		ToSql()
	if err != nil {
		return remedial.Session{}, fmt.Errorf("postgres: build session insert: %w", err)
	}
	if _, err := q.Exec(ctx, insert, args...); err != nil {
		return remedial.Session{}, mapError(err, "insert session")
	}
	return s.getSession(ctx, q, in.StudentID, in.ApprovedScheduleID)
}

func (s *Store) UpdateSession(ctx context.Context, in remedial.Session) error {
	query, args, err := s.sb.Update("remedial_sessions").
		SetMap(map[string]any{
			"subject_id":       in.SubjectID,
			"grade_id":         in.GradeID,
			"phonemic_id":      in.PhonemicID,
			"material_id":      in.MaterialID,
			"overall_average":  in.OverallAverage,
			"ai_remarks":       in.Remarks,
			"teacher_feedback": in.TeacherFeedback,
			"completed_at":     in.CompletedAt,
			"updated_at":       in.UpdatedAt,
		}).
		Where("id = ?", in.ID).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build session update: %w", err)
	}
	tag, err := s.querier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return mapError(err, "update session")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", in.ID, remedial.ErrNotFound)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, studentID, scheduleID int64) (remedial.Session, error) {
	return s.getSession(ctx, s.querier(ctx), studentID, scheduleID)
}

func (s *Store) getSession(ctx context.Context, q querier, studentID, scheduleID int64) (remedial.Session, error) {
	query, args, err := s.sb.Select(sessionColumns...).
		From("remedial_sessions").
		Where(sq.Eq{"student_id": studentID, "approved_schedule_id": scheduleID}).
		ToSql()
	if err != nil {
		return remedial.Session{}, fmt.Errorf("postgres: build session select: %w", err)
	}
	sess, err := scanSession(q.QueryRow(ctx, query, args...))
	if err != nil {
		return remedial.Session{}, mapError(err, fmt.Sprintf("session for student %d schedule %d", studentID, scheduleID))
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, studentID int64, limit int) ([]remedial.Session, error) {
	builder := s.sb.Select(sessionColumns...).
		From("remedial_sessions").
		Where(sq.Eq{"student_id": studentID}).
		OrderBy("updated_at DESC", "id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build session list: %w", err)
	}

	rows, err := s.querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list sessions")
	}
	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (remedial.Session, error) {
		return scanSession(row)
	})
	if err != nil {
		return nil, mapError(err, "scan sessions")
	}
	return sessions, nil
}

// ── Slides ───────────────────────────────────────────────────────────────────

func (s *Store) ReplaceSlides(ctx context.Context, sessionID uuid.UUID, slides []remedial.SlidePerformance) error {
	q := s.querier(ctx)
	if _, err := q.Exec(ctx,
		`DELETE FROM remedial_slide_performances WHERE session_id = $1`, sessionID,
	); err != nil {
		return mapError(err, "delete slides")
	}
	if len(slides) == 0 {
		return nil
	}

	insert := s.sb.Insert("remedial_slide_performances").Columns(slideColumns...)
	for _, sl := range slides {
		insert = insert.Values(
			sessionID, sl.FlashcardIndex, sl.ExpectedText, sl.Transcription,
			sl.Pronunciation, sl.Accuracy, sl.Fluency,
			sl.Completeness, sl.ReadingSpeedWPM, sl.SlideAverage,
		)
	}
	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build slide insert: %w", err)
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return mapError(err, "insert slides")
	}
	return nil
}

func (s *Store) ListSlides(ctx context.Context, sessionID uuid.UUID) ([]remedial.SlidePerformance, error) {
	query, args, err := s.sb.Select(slideColumns...).
		From("remedial_slide_performances").
		Where("session_id = ?", sessionID).
		OrderBy("flashcard_index").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build slide list: %w", err)
	}
	rows, err := s.querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list slides")
	}
	slides, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (remedial.SlidePerformance, error) {
		var sl remedial.SlidePerformance
		err := row.Scan(
			&sl.SessionID, &sl.FlashcardIndex, &sl.ExpectedText, &sl.Transcription,
			&sl.Pronunciation, &sl.Accuracy, &sl.Fluency,
			&sl.Completeness, &sl.ReadingSpeedWPM, &sl.SlideAverage,
		)
		return sl, err
	})
	if err != nil {
		return nil, mapError(err, "scan slides")
	}
	return slides, nil
}
