package tasks

import (
	"fmt"

	"todolist/internal/models"
	"todolist/internal/store"
)

// ErrNotFound is returned when an id does not reference an existing task.
var ErrNotFound = store.ErrNotFound

// ValidationError is re-exported so callers only need this package.
type ValidationError = models.ValidationError

// PersistenceError wraps a storage failure. Its message is safe to log but
// should not be shown to callers verbatim.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
