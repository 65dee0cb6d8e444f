package collection

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexingInProgress is returned by Index while a previous task is still running.
	ErrIndexingInProgress = errors.New("indexing already in progress")

	// ErrNotAttached is returned when a collection is used before a registry attached it.
	ErrNotAttached = errors.New("collection is not attached to a registry")

	// ErrStopped is the error of a task ended by StopRequest.
	ErrStopped = errors.New("indexing stopped")

	// ErrIndex matches every *IndexError.
	ErrIndex = errors.New("index error")
)

// IndexError reports that a collection's content directory or index could not be used.
// It is confined to that collection.
type IndexError struct {
	Collection string
	Op         string
	Err        error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("collection %q: %s: %v", e.Collection, e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

func (e *IndexError) Is(target error) bool {
	return target == ErrIndex
}
