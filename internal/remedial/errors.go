package remedial

import (
	"errors"
	"strings"
)

var (
	// ErrValidation marks a rejected submission. Nothing was written.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an unknown schedule, subject, or session.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a unique-key clash reported by the store.
	ErrConflict = errors.New("conflict")

	// ErrPersistence wraps any failure inside the submission transaction.
	// The transaction was rolled back.
	ErrPersistence = errors.New("persistence failed")
)

// FieldError is one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of a submission.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) add(field, msg string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}
