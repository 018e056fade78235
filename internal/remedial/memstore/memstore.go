// Package memstore is an in-memory [remedial.Store] for tests and local
// runs without PostgreSQL.
//
// Transactions are serialised: RunInTx holds the store lock for the whole
// callback and restores a snapshot if the callback fails.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/basa-ph/basa/internal/remedial"
)

type sessionKey struct{ student, schedule int64 }

type activityKey struct {
	subject int64
	title   string
	date    string
}

type recordKey struct{ student, activity int64 }

type masteryKey struct{ student, subject, phonemic int64 }

type state struct {
	sessions   map[sessionKey]remedial.Session
	slides     map[uuid.UUID][]remedial.SlidePerformance
	activities map[activityKey]int64
	records    map[recordKey]remedial.PerformanceRecord
	mastery    map[masteryKey]remedial.MasteryRecord
	nextID     int64
}

func (s *state) clone() *state {
	c := &state{
		sessions:   maps.Clone(s.sessions),
		slides:     make(map[uuid.UUID][]remedial.SlidePerformance, len(s.slides)),
		activities: maps.Clone(s.activities),
		records:    maps.Clone(s.records),
		mastery:    maps.Clone(s.mastery),
		nextID:     s.nextID,
	}
	for k, v := range s.slides {
		c.slides[k] = slices.Clone(v)
	}
	return c
}

// Store is an in-memory remedial.Store. Create one with [New].
type Store struct {
	mu        sync.Mutex
	st        *state
	schedules map[int64]remedial.Schedule
	subjects  map[int64]string

	// FailOn, when set, is consulted before every write; a non-nil error
	// aborts that write. Tests use it to force a rollback.
	FailOn func(op string) error
}

var _ remedial.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		st: &state{
			sessions:   make(map[sessionKey]remedial.Session),
			slides:     make(map[uuid.UUID][]remedial.SlidePerformance),
			activities: make(map[activityKey]int64),
			records:    make(map[recordKey]remedial.PerformanceRecord),
			mastery:    make(map[masteryKey]remedial.MasteryRecord),
		},
		schedules: make(map[int64]remedial.Schedule),
		subjects:  make(map[int64]string),
	}
}

// AddSchedule registers an approved schedule.
func (s *Store) AddSchedule(sc remedial.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[sc.ID] = sc
}

// AddSubject registers a subject name.
func (s *Store) AddSubject(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[id] = name
}

// ── transactions ──

type txKey struct{}

// RunInTx runs fn holding the store lock. If fn fails every write it made
// is discarded.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// do runs fn under the lock unless ctx is already inside RunInTx.
func (s *Store) do(ctx context.Context, fn func() error) error {
	if in, _ := ctx.Value(txKey{}).(bool); in {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func (s *Store) fail(op string) error {
	if s.FailOn == nil {
		return nil
	}
	return s.FailOn(op)
}

// ── lookups ──

func (s *Store) Schedule(ctx context.Context, id int64) (remedial.Schedule, error) {
	var sc remedial.Schedule
	err := s.do(ctx, func() error {
		var ok bool
		if sc, ok = s.schedules[id]; !ok {
			return fmt.Errorf("schedule %d: %w", id, remedial.ErrNotFound)
		}
		return nil
	})
	return sc, err
}

func (s *Store) SubjectName(ctx context.Context, subjectID int64) (string, error) {
	var name string
	err := s.do(ctx, func() error {
		var ok bool
		if name, ok = s.subjects[subjectID]; !ok {
			return fmt.Errorf("subject %d: %w", subjectID, remedial.ErrNotFound)
		}
		return nil
	})
	return name, err
}

// ── sessions ──

func (s *Store) FindOrCreateSession(ctx context.Context, in remedial.Session) (remedial.Session, error) {
	var out remedial.Session
	err := s.do(ctx, func() error {
		key := sessionKey{in.StudentID, in.ApprovedScheduleID}
		if existing, ok := s.st.sessions[key]; ok {
			out = existing
			return nil
		}
		if err := s.fail("create_session"); err != nil {
			return err
		}
		s.st.sessions[key] = in
		out = in
		return nil
	})
	return out, err
}

func (s *Store) UpdateSession(ctx context.Context, in remedial.Session) error {
	return s.do(ctx, func() error {
		if err := s.fail("update_session"); err != nil {
			return err
		}
		key := sessionKey{in.StudentID, in.ApprovedScheduleID}
		existing, ok := s.st.sessions[key]
		if !ok || existing.ID != in.ID {
			return fmt.Errorf("session %s: %w", in.ID, remedial.ErrNotFound)
		}
		in.CreatedAt = existing.CreatedAt
		s.st.sessions[key] = in
		return nil
	})
}

func (s *Store) GetSession(ctx context.Context, studentID, scheduleID int64) (remedial.Session, error) {
	var out remedial.Session
	err := s.do(ctx, func() error {
		var ok bool
		if out, ok = s.st.sessions[sessionKey{studentID, scheduleID}]; !ok {
			return fmt.Errorf("session for student %d schedule %d: %w", studentID, scheduleID, remedial.ErrNotFound)
		}
		return nil
	})
	return out, err
}

func (s *Store) ListSessions(ctx context.Context, studentID int64, limit int) ([]remedial.Session, error) {
	var out []remedial.Session
	err := s.do(ctx, func() error {
		for k, v := range s.st.sessions {
			if k.student == studentID {
				out = append(out, v)
			}
		}
		slices.SortFunc(out, func(a, b remedial.Session) int {
			return b.UpdatedAt.Compare(a.UpdatedAt)
		})
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

// ── slides ──

func (s *Store) ReplaceSlides(ctx context.Context, sessionID uuid.UUID, slides []remedial.SlidePerformance) error {
	return s.do(ctx, func() error {
		delete(s.st.slides, sessionID)
		if err := s.fail("insert_slides"); err != nil {
			return err
		}
		s.st.slides[sessionID] = slices.Clone(slides)
		return nil
	})
}

func (s *Store) ListSlides(ctx context.Context, sessionID uuid.UUID) ([]remedial.SlidePerformance, error) {
	var out []remedial.SlidePerformance
	err := s.do(ctx, func() error {
		out = slices.Clone(s.st.slides[sessionID])
		slices.SortFunc(out, func(a, b remedial.SlidePerformance) int {
			return cmp.Compare(a.FlashcardIndex, b.FlashcardIndex)
		})
		return nil
	})
	return out, err
}

// SlideCount returns the number of stored slides across all sessions.
func (s *Store) SlideCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.st.slides {
		n += len(v)
	}
	return n
}

// SessionCount returns the number of stored sessions.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.sessions)
}

// ── ledger ──

func (s *Store) UpsertActivity(ctx context.Context, a remedial.Activity) (int64, error) {
	var id int64
	err := s.do(ctx, func() error {
		if err := s.fail("upsert_activity"); err != nil {
			return err
		}
		key := activityKey{a.SubjectID, a.Title, a.Date.Format("2006-01-02")}
		if existing, ok := s.st.activities[key]; ok {
			id = existing
			return nil
		}
		s.st.nextID++
		id = s.st.nextID
		s.st.activities[key] = id
		return nil
	})
	return id, err
}

func (s *Store) UpsertPerformanceRecord(ctx context.Context, r remedial.PerformanceRecord) error {
	return s.do(ctx, func() error {
		if err := s.fail("upsert_record"); err != nil {
			return err
		}
		s.st.records[recordKey{r.StudentID, r.ActivityID}] = r
		return nil
	})
}

// PerformanceRecords returns every ledger record of a student.
func (s *Store) PerformanceRecords(studentID int64) []remedial.PerformanceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []remedial.PerformanceRecord
	for k, v := range s.st.records {
		if k.student == studentID {
			out = append(out, v)
		}
	}
	return out
}

// ── mastery ──

func (s *Store) HasMastery(ctx context.Context, studentID, subjectID, phonemicID int64) (bool, error) {
	var ok bool
	err := s.do(ctx, func() error {
		_, ok = s.st.mastery[masteryKey{studentID, subjectID, phonemicID}]
		return nil
	})
	return ok, err
}

func (s *Store) InsertMastery(ctx context.Context, m remedial.MasteryRecord) (bool, error) {
	var inserted bool
	err := s.do(ctx, func() error {
		if err := s.fail("insert_mastery"); err != nil {
			return err
		}
		key := masteryKey{m.StudentID, m.SubjectID, m.PhonemicID}
		if _, ok := s.st.mastery[key]; ok {
			return nil
		}
		s.st.mastery[key] = m
		inserted = true
		return nil
	})
	return inserted, err
}

func (s *Store) ListMastery(ctx context.Context, studentID int64) ([]remedial.MasteryRecord, error) {
	var out []remedial.MasteryRecord
	err := s.do(ctx, func() error {
		for k, v := range s.st.mastery {
			if k.student == studentID {
				out = append(out, v)
			}
		}
		slices.SortFunc(out, func(a, b remedial.MasteryRecord) int {
			if c := a.AchievedAt.Compare(b.AchievedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.PhonemicID, b.PhonemicID)
		})
		return nil
	})
	return out, err
}
