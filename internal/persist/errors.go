package persist

import (
	"errors"
	"fmt"
)

// ErrPersistence matches every *PersistenceError.
var ErrPersistence = errors.New("persistence error")

// PersistenceError reports a failed store. The previous document, if any, is left intact.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// IntegrityWarning reports a loaded document part that was missing and has been reset.
type IntegrityWarning struct {
	Path  string
	Field string
}

func (w *IntegrityWarning) Error() string {
	return fmt.Sprintf("%s: %s missing, reset to defaults", w.Path, w.Field)
}
