package task

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a word, task or batch does not exist for
	// the caller.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned for illegal transitions, e.g. completing a
	// task that is already COMPLETED.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation is returned for malformed input such as an unknown result.
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("already exists")
	// ErrRateLimited is returned when a per-user quota is used up.
	ErrRateLimited = errors.New("rate limited")
	// ErrBusy is returned when another run holds the generation lock for the
	// same user and date. Retrying later is safe.
	ErrBusy = errors.New("generation in progress")
	// ErrGenerationFailure is the cause of every GenerationError.
	ErrGenerationFailure = errors.New("generation failed")
)

// GenerationError reports that the external question generator could not
// produce a task for one word, after retrying.
type GenerationError struct {
	WordID   string
	TaskType string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s task for word %s (attempts=%d): %v", e.TaskType, e.WordID, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	return []error{ErrGenerationFailure, e.Err}
}

func invalidState(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Validationf builds an ErrValidation error for callers outside the package.
func Validationf(format string, args ...interface{}) error {
	return validation(format, args...)
}

// InvalidStatef builds an ErrInvalidState error for callers outside the package.
func InvalidStatef(format string, args ...interface{}) error {
	return invalidState(format, args...)
}
