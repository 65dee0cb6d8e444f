// Package archive walks container files (zip and zip-based formats) so their entries can be
// indexed as individual documents.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Separator joins an archive path and an entry name into a document path.
const Separator = "!"

// DefaultMaxEntrySize bounds the uncompressed size of a single entry that will be read.
const DefaultMaxEntrySize int64 = 64 << 20

// Entry is one file inside an archive.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
	open    func() (io.ReadCloser, error)
}

// Open returns a reader over the entry's uncompressed bytes.
func (e Entry) Open() (io.ReadCloser, error) { return e.open() }

// Walker enumerates the entries of one archive format.
type Walker interface {
	Kind() string
	// Walk calls fn for each regular entry in path. It stops at the first error from fn
	// and when ctx is done.
	Walk(ctx context.Context, path string, fn func(Entry) error) error
}

// Join returns the document path for an entry inside an archive.
func Join(archivePath, entry string) string {
	return archivePath + Separator + entry
}

// Split reverses Join. ok is false when p is not an archive entry path.
func Split(p string) (archivePath, entry string, ok bool) {
	i := strings.Index(p, Separator)
	if i < 0 {
		return p, "", false
	}
	return p[:i], p[i+len(Separator):], true
}

type zipWalker struct{}

func (zipWalker) Kind() string { return "zip" }

func (zipWalker) Walk(ctx context.Context, p string, fn func(Entry) error) error {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return fmt.Errorf("open archive %s: %w", p, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		f := f
		entry := Entry{
			Name:    path.Clean(f.Name),
			Size:    int64(f.UncompressedSize64),
			ModTime: f.Modified,
			open:    f.Open,
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// Catalog returns the named walkers a mapping may refer to.
func Catalog() map[string]Walker {
	return map[string]Walker{
		"zip": zipWalker{},
	}
}

// DefaultMapping returns the extension → walker name table used when nothing is persisted.
func DefaultMapping() map[string]string {
	return map[string]string{
		".zip": "zip",
		".jar": "zip",
	}
}

// Registry maps archive extensions to walkers.
type Registry struct {
	mu           sync.RWMutex
	mapping      map[string]string
	walkers      map[string]Walker
	maxEntrySize int64
	logger       *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for unreadable archives and skipped entries.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMaxEntrySize skips entries whose uncompressed size exceeds n bytes.
func WithMaxEntrySize(n int64) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxEntrySize = n
		}
	}
}

// NewRegistry builds a registry from an extension → walker name mapping.
// A nil mapping means DefaultMapping.
func NewRegistry(mapping map[string]string, opts ...Option) *Registry {
	r := &Registry{
		walkers:      make(map[string]Walker),
		maxEntrySize: DefaultMaxEntrySize,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if mapping == nil {
		mapping = DefaultMapping()
	}
	r.mapping = make(map[string]string, len(mapping))
	catalog := Catalog()
	for ext, name := range mapping {
		ext = normalizeExt(ext)
		w, ok := catalog[name]
		if !ok {
			r.logger.Warn("unknown archive kind in mapping", zap.String("ext", ext), zap.String("kind", name))
			continue
		}
		r.mapping[ext] = name
		r.walkers[ext] = w
	}
	return r
}

// Mapping returns a copy of the extension → walker name table.
func (r *Registry) Mapping() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.mapping))
	for k, v := range r.mapping {
		out[k] = v
	}
	return out
}

// Extensions returns the mapped archive extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.walkers))
	for ext := range r.walkers {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// IsArchive reports whether files with extension ext are walked as archives.
func (r *Registry) IsArchive(ext string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.walkers[normalizeExt(ext)]
	return ok
}

// Walk enumerates the entries of the archive at p, skipping entries larger than the
// configured limit. Entries are handed to fn already read into memory.
func (r *Registry) Walk(ctx context.Context, p string, fn func(e Entry, data []byte) error) error {
	r.mu.RLock()
	w, ok := r.walkers[normalizeExt(filepath.Ext(p))]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no archive walker for %s", p)
	}
	return w.Walk(ctx, p, func(e Entry) error {
		if e.Size > r.maxEntrySize {
			r.logger.Debug("skipping oversized archive entry",
				zap.String("archive", p), zap.String("entry", e.Name), zap.Int64("size", e.Size))
			return nil
		}
		rc, err := e.Open()
		if err != nil {
			r.logger.Warn("unreadable archive entry", zap.String("archive", p), zap.String("entry", e.Name), zap.Error(err))
			return nil
		}
		data, err := io.ReadAll(io.LimitReader(rc, r.maxEntrySize+1))
		rc.Close()
		if err != nil {
			r.logger.Warn("unreadable archive entry", zap.String("archive", p), zap.String("entry", e.Name), zap.Error(err))
			return nil
		}
		return fn(e, data)
	})
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
