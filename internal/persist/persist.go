// Package persist stores and loads the registry and service documents. Stores are atomic and
// serialized across processes; loads never fail and fall back to defaults.
package persist

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/docsearcher/internal/archive"
	"github.com/hyperjump/docsearcher/internal/collection"
	"github.com/hyperjump/docsearcher/internal/config"
	"github.com/hyperjump/docsearcher/internal/extract"
	"github.com/hyperjump/docsearcher/internal/registry"
)

// Document names under the gateway directory. The extension picks the codec.
const (
	RegistryFile      = "collections.yaml"
	IndexServiceFile  = "index-service.toml"
	SearchServiceFile = "search-service.toml"

	lockFile = ".lock"
)

type codec interface {
	encode(w io.Writer, v any) error
	decode(data []byte, v any) error
}

type yamlCodec struct{}

func (yamlCodec) encode(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func (yamlCodec) decode(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(v)
}

type tomlCodec struct{}

func (tomlCodec) encode(w io.Writer, v any) error {
	return toml.NewEncoder(w).Encode(v)
}

func (tomlCodec) decode(data []byte, v any) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

var codecs = map[string]codec{
	".yaml": yamlCodec{},
	".yml":  yamlCodec{},
	".toml": tomlCodec{},
}

// tempFile is the part of *os.File that store writes through.
type tempFile interface {
	io.Writer
	Name() string
	Sync() error
	Close() error
}

var createTemp = func(dir, pattern string) (tempFile, error) {
	return os.CreateTemp(dir, pattern)
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger for load fallbacks and integrity warnings.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// Gateway reads and writes the persisted documents under one directory.
type Gateway struct {
	dir    string
	mu     sync.Mutex
	lock   *flock.Flock
	logger *zap.Logger
}

// New returns a gateway rooted at dir. The directory is created on first store.
func New(dir string, opts ...Option) *Gateway {
	g := &Gateway{
		dir:    dir,
		lock:   flock.New(filepath.Join(dir, lockFile)),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dir returns the gateway directory.
func (g *Gateway) Dir() string { return g.dir }

// StoreRegistry writes the registry document.
func (g *Gateway) StoreRegistry(s *registry.State) error {
	return g.store(RegistryFile, s)
}

// LoadRegistry reads the registry document. It never returns nil: a missing, unreadable or
// outdated document yields registry.DefaultState, and missing mappings are reset.
func (g *Gateway) LoadRegistry() *registry.State {
	var s registry.State
	if !g.load(RegistryFile, &s, func() int { return s.Version }, registry.StateVersion) {
		return registry.DefaultState()
	}
	g.checkIntegrity(&s)
	return &s
}

// checkIntegrity resets the parts of s that the rest of the system cannot run without.
func (g *Gateway) checkIntegrity(s *registry.State) {
	path := filepath.Join(g.dir, RegistryFile)
	if len(s.Extractors) == 0 {
		s.Extractors = extract.DefaultMapping()
		g.warn(&IntegrityWarning{Path: path, Field: "extractors"})
	}
	if len(s.Archives) == 0 {
		s.Archives = archive.DefaultMapping()
		g.warn(&IntegrityWarning{Path: path, Field: "archives"})
	}
	if s.Collections == nil {
		s.Collections = []collection.Config{}
	}
}

func (g *Gateway) warn(w *IntegrityWarning) {
	g.logger.Warn(w.Error(), zap.String("path", w.Path), zap.String("field", w.Field))
}

// StoreIndexService writes the index service document.
func (g *Gateway) StoreIndexService(c *config.IndexService) error {
	return g.store(IndexServiceFile, c)
}

// LoadIndexService reads the index service document, or returns the defaults.
func (g *Gateway) LoadIndexService() *config.IndexService {
	var c config.IndexService
	if !g.load(IndexServiceFile, &c, func() int { return c.Version }, config.ServiceVersion) {
		return config.DefaultIndexService()
	}
	return &c
}

// StoreSearchService writes the search service document.
func (g *Gateway) StoreSearchService(c *config.SearchService) error {
	return g.store(SearchServiceFile, c)
}

// LoadSearchService reads the search service document, or returns the defaults. A document
// without a boosts table gets the default weights; an empty table is kept and means
// unweighted queries.
func (g *Gateway) LoadSearchService() *config.SearchService {
	var c config.SearchService
	if !g.load(SearchServiceFile, &c, func() int { return c.Version }, config.ServiceVersion) {
		return config.DefaultSearchService()
	}
	if c.Boosts == nil {
		c.Boosts = config.DefaultSearchService().Boosts
	}
	return &c
}

// store encodes v into a temp file next to name, syncs it and renames it into place while
// holding the cross-process lock.
func (g *Gateway) store(name string, v any) (err error) {
	path := filepath.Join(g.dir, name)
	c, ok := codecs[filepath.Ext(name)]
	if !ok {
		return &PersistenceError{Path: path, Op: "encode", Err: fmt.Errorf("no codec for %q", filepath.Ext(name))}
	}
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return &PersistenceError{Path: path, Op: "create directory", Err: err}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.lock.Lock(); err != nil {
		return &PersistenceError{Path: path, Op: "lock", Err: err}
	}
	defer func() {
		if uerr := g.lock.Unlock(); uerr != nil && err == nil {
			err = &PersistenceError{Path: path, Op: "unlock", Err: uerr}
		}
	}()

	tmp, err := createTemp(g.dir, name+".*.tmp")
	if err != nil {
		return &PersistenceError{Path: path, Op: "create temp file", Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	encErr := c.encode(tmp, v)
	if encErr == nil {
		encErr = tmp.Sync()
	}
	closeErr := tmp.Close()
	if encErr != nil {
		return &PersistenceError{Path: path, Op: "encode", Err: encErr}
	}
	if closeErr != nil {
		return &PersistenceError{Path: path, Op: "close", Err: closeErr}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &PersistenceError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

// load decodes name into v and reports whether v is usable. Failures are logged.
func (g *Gateway) load(name string, v any, version func() int, want int) bool {
	path := filepath.Join(g.dir, name)
	log := g.logger.With(zap.String("path", path))

	data, err := g.read(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info("no stored document, using defaults")
		return false
	}
	if err != nil {
		log.Warn("stored document unreadable, using defaults", zap.Error(err))
		return false
	}
	c, ok := codecs[filepath.Ext(name)]
	if !ok {
		log.Warn("no codec for stored document, using defaults")
		return false
	}
	if err := c.decode(data, v); err != nil {
		log.Warn("stored document could not be decoded, using defaults", zap.Error(err))
		return false
	}
	if got := version(); got != want {
		log.Warn("stored document has another schema version, using defaults",
			zap.Int("version", got), zap.Int("want", want))
		return false
	}
	return true
}

func (g *Gateway) read(path string) ([]byte, error) {
	if _, err := os.Stat(g.dir); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.lock.RLock(); err != nil {
		return nil, err
	}
	defer g.lock.Unlock()
	return os.ReadFile(path)
}
