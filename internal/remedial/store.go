package remedial

import (
	"context"

	"github.com/google/uuid"
)

// Store is the persistence port of the service. Implementations live in
// internal/remedial/postgres and internal/remedial/memstore.
//
// Methods called with the context passed to RunInTx's callback take part in
// that transaction. Lookups return ErrNotFound for a missing row.
type Store interface {
	// RunInTx runs fn in one transaction. An error from fn rolls back every
	// write made through the callback context.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	// Schedule returns the approved schedule with id.
	Schedule(ctx context.Context, id int64) (Schedule, error)

	// SubjectName returns the display name of a subject.
	SubjectName(ctx context.Context, subjectID int64) (string, error)

	// FindOrCreateSession returns the session for (s.StudentID,
	// s.ApprovedScheduleID), inserting s if none exists.
	FindOrCreateSession(ctx context.Context, s Session) (Session, error)

	// UpdateSession overwrites the mutable columns of an existing session.
	UpdateSession(ctx context.Context, s Session) error

	// ReplaceSlides deletes every slide of sessionID and inserts slides.
	ReplaceSlides(ctx context.Context, sessionID uuid.UUID, slides []SlidePerformance) error

	// UpsertActivity returns the id of the activity keyed by (subject,
	// title, date), creating it if needed.
	UpsertActivity(ctx context.Context, a Activity) (int64, error)

	// UpsertPerformanceRecord writes the record keyed by (student,
	// activity), overwriting score, item count, and metadata.
	UpsertPerformanceRecord(ctx context.Context, r PerformanceRecord) error

	// HasMastery reports whether a mastery record exists.
	HasMastery(ctx context.Context, studentID, subjectID, phonemicID int64) (bool, error)

	// InsertMastery inserts m unless its key exists. It reports whether a
	// row was written.
	InsertMastery(ctx context.Context, m MasteryRecord) (bool, error)

	// GetSession returns the session for (studentID, scheduleID).
	GetSession(ctx context.Context, studentID, scheduleID int64) (Session, error)

	// ListSlides returns a session's slides ordered by flashcard index.
	ListSlides(ctx context.Context, sessionID uuid.UUID) ([]SlidePerformance, error)

	// ListSessions returns a student's sessions, most recently updated
	// first, at most limit rows.
	ListSessions(ctx context.Context, studentID int64, limit int) ([]Session, error)

	// ListMastery returns a student's mastery records, oldest first.
	ListMastery(ctx context.Context, studentID int64) ([]MasteryRecord, error)
}
