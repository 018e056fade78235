package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/basa-ph/basa/internal/remedial"
)

// ── Activity ledger ──────────────────────────────────────────────────────────

// UpsertActivity returns the id of the (subject, title, date) activity. The
// no-op DO UPDATE makes RETURNING yield the id of an existing row too.
func (s *Store) UpsertActivity(ctx context.Context, a remedial.Activity) (int64, error) {
	query, args, err := s.sb.Insert("activities").
		Columns("subject_id", "title", "activity_date").
		Values(a.SubjectID, a.Title, a.Date).
		Suffix("ON CONFLICT (subject_id, title, activity_date) DO UPDATE SET title = EXCLUDED.title RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("postgres: build activity upsert: %w", err)
	}
	var id int64
	if err := s.querier(ctx).QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, mapError(err, "upsert activity")
	}
	return id, nil
}

func (s *Store) UpsertPerformanceRecord(ctx context.Context, r remedial.PerformanceRecord) error {
	metadata := r.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	query, args, err := s.sb.Insert("performance_records").
		Columns("student_id", "activity_id", "score", "item_count", "metadata").
		Values(r.StudentID, r.ActivityID, r.Score, r.ItemCount, metadata).
		Suffix(`ON CONFLICT (student_id, activity_id) DO UPDATE SET
			score = EXCLUDED.score,
			item_count = EXCLUDED.item_count,
			metadata = EXCLUDED.metadata,
			updated_at = now()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build record upsert: %w", err)
	}
	if _, err := s.querier(ctx).Exec(ctx, query, args...); err != nil {
		return mapError(err, "upsert performance record")
	}
	return nil
}

// ── Mastery ──────────────────────────────────────────────────────────────────

func (s *Store) HasMastery(ctx context.Context, studentID, subjectID, phonemicID int64) (bool, error) {
	var exists bool
	err := s.querier(ctx).QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM phonemic_history
			WHERE student_id = $1 AND subject_id = $2 AND phonemic_id = $3
		)`, studentID, subjectID, phonemicID,
	).Scan(&exists)
	if err != nil {
		return false, mapError(err, "mastery lookup")
	}
	return exists, nil
}

// InsertMastery writes m once. A second insert for the same key is a no-op
// and reports false.
func (s *Store) InsertMastery(ctx context.Context, m remedial.MasteryRecord) (bool, error) {
	query, args, err := s.sb.Insert("phonemic_history").
		Columns("student_id", "subject_id", "phonemic_id", "achieved_at").
		Values(m.StudentID, m.SubjectID, m.PhonemicID, m.AchievedAt).
		Suffix("ON CONFLICT (student_id, subject_id, phonemic_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("postgres: build mastery insert: %w", err)
	}
	tag, err := s.querier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return false, mapError(err, "insert mastery")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListMastery(ctx context.Context, studentID int64) ([]remedial.MasteryRecord, error) {
	query, args, err := s.sb.Select("student_id", "subject_id", "phonemic_id", "achieved_at").
		From("phonemic_history").
		Where(sq.Eq{"student_id": studentID}).
		OrderBy("achieved_at", "subject_id", "phonemic_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build mastery list: %w", err)
	}
	rows, err := s.querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list mastery")
	}
	defer rows.Close()

	var out []remedial.MasteryRecord
	for rows.Next() {
		var m remedial.MasteryRecord
		if err := rows.Scan(&m.StudentID, &m.SubjectID, &m.PhonemicID, &m.AchievedAt); err != nil {
			return nil, mapError(err, "scan mastery")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "list mastery")
	}
	return out, nil
}
