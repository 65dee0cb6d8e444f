// Package storage records which files each collection's index was built from, so incremental
// indexing can tell added, changed and removed files apart.
package storage

import (
	"context"
	"time"
)

// FileRecord is one indexed document. Source is the file on disk the document came from;
// it equals Path except for archive entries, whose Path is archive!entry.
type FileRecord struct {
	DocID     string
	Path      string
	Source    string
	Size      int64
	ModTime   int64 // unix nanoseconds of Source
	IndexedAt time.Time
}

// Unchanged reports whether the record still describes a source of the given size and mtime.
func (r *FileRecord) Unchanged(size int64, modTime time.Time) bool {
	return r.Size == size && r.ModTime == modTime.UnixNano()
}

// Manifest persists FileRecords per collection.
type Manifest interface {
	// List returns the records of a collection grouped by Source.
	List(ctx context.Context, collectionID string) (map[string][]*FileRecord, error)
	Count(ctx context.Context, collectionID string) (int64, error)
	// Apply upserts and deletes (by doc id) in one transaction.
	Apply(ctx context.Context, collectionID string, upserts []*FileRecord, deletes []string) error
	// Replace swaps the whole record set of a collection in one transaction.
	Replace(ctx context.Context, collectionID string, records []*FileRecord) error
	DeleteCollection(ctx context.Context, collectionID string) error
	Close() error
}
