// Package indexer walks a collection's content directory and turns what it finds into index
// documents: one per regular file, or one per entry for archives that are walked.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/docsearcher/internal/archive"
	"github.com/hyperjump/docsearcher/internal/extract"
	"github.com/hyperjump/docsearcher/internal/fileid"
	"github.com/hyperjump/docsearcher/internal/schema"
	"github.com/hyperjump/docsearcher/internal/storage"
)

// Source is a regular file found under the content directory.
type Source struct {
	Path    string
	Size    int64
	ModTime time.Time
	// Archive is set when the file's entries are indexed instead of the file itself.
	Archive bool
}

// Indexer scans content directories and extracts documents.
type Indexer struct {
	extractors    *extract.Registry
	archives      *archive.Registry
	extensions    []string
	indexArchives bool
	logger        *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets a logger for skipped files and debug events.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = l }
}

// WithExtensions restricts scanning to files with one of exts. Empty means every file.
func WithExtensions(exts []string) Option {
	return func(idx *Indexer) { idx.extensions = exts }
}

// WithArchives makes files mapped in the archive registry contribute one document per entry.
func WithArchives(enabled bool) Option {
	return func(idx *Indexer) { idx.indexArchives = enabled }
}

// New returns an indexer. archives may be nil when archive walking is not needed.
func New(extractors *extract.Registry, archives *archive.Registry, opts ...Option) *Indexer {
	idx := &Indexer{
		extractors: extractors,
		archives:   archives,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Scan lists the regular files under dir, sorted by path. An unreadable dir is an error;
// unreadable entries below it are logged and skipped.
func (idx *Indexer) Scan(ctx context.Context, dir string) ([]Source, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat content directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}

	var out []Source
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == absDir {
				return walkErr
			}
			idx.logger.Warn("skipping unreadable path", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		isArchive := idx.indexArchives && idx.archives != nil && idx.archives.IsArchive(ext)
		if !isArchive && len(idx.extensions) > 0 && !extensionAllowed(ext, idx.extensions) {
			return nil
		}
		// Resolve symlinks so only regular files are indexed.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		out = append(out, Source{Path: path, Size: finfo.Size(), ModTime: finfo.ModTime(), Archive: isArchive})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Document is one index document ready to be added, with its manifest record.
type Document struct {
	Record *storage.FileRecord
	Doc    *schema.Document
}

// Extract produces the documents of src and hands each to fn. Files that cannot be
// extracted are logged and produce nothing. fn errors, and ctx cancellation between archive
// entries, stop the walk and are returned.
func (idx *Indexer) Extract(ctx context.Context, src Source, fn func(Document) error) error {
	if !src.Archive {
		info := idx.extractors.ExtractInfo(src.Path)
		if info == nil {
			return nil
		}
		return fn(idx.document(src, src.Path, fileid.For(src.Path), info))
	}

	err := idx.archives.Walk(ctx, src.Path, func(e archive.Entry, data []byte) error {
		if len(idx.extensions) > 0 && !extensionAllowed(filepath.Ext(e.Name), idx.extensions) {
			return nil
		}
		info := idx.extractors.ExtractBytes(e.Name, data, e.ModTime)
		if info == nil {
			return nil
		}
		if err := fn(idx.document(src, archive.Join(src.Path, e.Name), fileid.ForEntry(src.Path, e.Name), info)); err != nil {
			return &callbackError{err}
		}
		return nil
	})
	var cbErr *callbackError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &cbErr):
		return cbErr.err
	case ctx.Err() != nil:
		return ctx.Err()
	}
	idx.logger.Warn("skipping unreadable archive", zap.String("path", src.Path), zap.Error(err))
	return nil
}

// callbackError carries an error returned by the caller's fn through the archive walk.
type callbackError struct{ err error }

func (e *callbackError) Error() string { return e.err.Error() }

func (idx *Indexer) document(src Source, docPath, docID string, info *extract.ParsedFileInfo) Document {
	doc := schema.NewDocument(docPath, info)
	doc.Title = strings.Join(strings.Fields(doc.Title), " ")
	idx.logger.Debug("document extracted", zap.String("path", docPath), zap.String("type", string(info.Type)))
	return Document{
		Record: &storage.FileRecord{
			DocID:   docID,
			Path:    docPath,
			Source:  src.Path,
			Size:    src.Size,
			ModTime: src.ModTime.UnixNano(),
		},
		Doc: doc,
	}
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
