// Package registry owns the set of collections and the environment they share.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/docsearcher/internal/archive"
	"github.com/hyperjump/docsearcher/internal/collection"
	"github.com/hyperjump/docsearcher/internal/extract"
	"github.com/hyperjump/docsearcher/internal/query"
	"github.com/hyperjump/docsearcher/internal/schema"
	"github.com/hyperjump/docsearcher/internal/storage"
)

var (
	// ErrNotFound is returned for ids and names that are not registered.
	ErrNotFound = errors.New("collection not found")
	// ErrUnsupportedExtension is returned by CheckExtensions.
	ErrUnsupportedExtension = errors.New("unsupported extension")
)

// StateVersion is the current layout version of State.
const StateVersion = 1

// DefaultStopTimeout bounds how long Delete waits for a running task to stop.
const DefaultStopTimeout = 10 * time.Second

// State is the persisted form of a registry.
type State struct {
	Version     int                    `yaml:"version"`
	Extractors  map[string]string      `yaml:"extractors"`
	Archives    map[string]string      `yaml:"archives"`
	Cache       collection.CachePolicy `yaml:"cache"`
	Collections []collection.Config    `yaml:"collections"`
}

// DefaultState is the state of a registry that has never been stored.
func DefaultState() *State {
	return &State{
		Version:     StateVersion,
		Extractors:  extract.DefaultMapping(),
		Archives:    archive.DefaultMapping(),
		Collections: []collection.Config{},
	}
}

// Config holds what a registry shares with its collections. Nil registries and parser get
// defaults; Manifest is required for incremental indexing.
type Config struct {
	IndexBaseDir string
	Extractors   *extract.Registry
	Archives     *archive.Registry
	Manifest     storage.Manifest
	Parser       *query.Parser
	Cache        collection.CachePolicy
	BatchSize    int
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger handed to every collection.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithStopTimeout sets how long Delete waits for indexing to stop.
func WithStopTimeout(d time.Duration) Option {
	return func(r *Registry) { r.stopTimeout = d }
}

// Registry is a keyed set of collections in insertion order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*collection.Collection

	env         *collection.Env
	stopTimeout time.Duration
	logger      *zap.Logger
}

// New returns an empty registry.
func New(cfg Config, opts ...Option) *Registry {
	r := &Registry{
		byID:        make(map[string]*collection.Collection),
		stopTimeout: DefaultStopTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if cfg.Extractors == nil {
		cfg.Extractors = extract.NewRegistry(nil, extract.WithLogger(r.logger))
	}
	if cfg.Archives == nil {
		cfg.Archives = archive.NewRegistry(nil, archive.WithLogger(r.logger))
	}
	if cfg.Parser == nil {
		cfg.Parser = query.NewParser(query.NewBuilder(schema.NewAnalyzer(nil), ""))
	}
	r.env = &collection.Env{
		IndexBaseDir: cfg.IndexBaseDir,
		Extractors:   cfg.Extractors,
		Archives:     cfg.Archives,
		Manifest:     cfg.Manifest,
		Parser:       cfg.Parser,
		Cache:        cfg.Cache,
		BatchSize:    cfg.BatchSize,
		Logger:       r.logger,
	}
	return r
}

// Add assigns c a fresh id, attaches it and registers it. Names need not be unique; a
// duplicate is accepted with a warning and GetByName keeps returning the first one.
func (r *Registry) Add(c *collection.Collection) (string, error) {
	if c == nil {
		return "", errors.New("nil collection")
	}
	if c.ID() != "" {
		return "", fmt.Errorf("collection %q is already registered as %s", c.Name(), c.ID())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.NewString()
	r.insert(id, c)
	return id, nil
}

func (r *Registry) insert(id string, c *collection.Collection) {
	if dup := r.lookupName(c.Name()); dup != nil {
		r.logger.Warn("duplicate collection name, lookups by name return the first",
			zap.String("name", c.Name()), zap.String("first", dup.ID()), zap.String("id", id))
	}
	c.Attach(id, r.env)
	r.byID[id] = c
	r.order = append(r.order, id)
}

// Delete stops c's indexing (waiting up to the stop timeout), removes its index and manifest
// records and unregisters it. c.ID() is "" afterwards.
func (r *Registry) Delete(ctx context.Context, c *collection.Collection) error {
	if c == nil {
		return ErrNotFound
	}
	id := c.ID()
	r.mu.Lock()
	if got, ok := r.byID[id]; !ok || got != c {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.byID, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, r.stopTimeout)
	defer cancel()
	if err := c.Remove(ctx); err != nil {
		r.logger.Warn("collection removed with errors", zap.String("id", id), zap.Error(err))
		return err
	}
	r.logger.Info("collection deleted", zap.String("id", id), zap.String("name", c.Name()))
	return nil
}

// Get returns the collection with id.
func (r *Registry) Get(id string) (*collection.Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.byID[id]; ok {
		return c, nil
	}
	return nil, ErrNotFound
}

// GetByName returns the first registered collection called name.
func (r *Registry) GetByName(name string) (*collection.Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c := r.lookupName(name); c != nil {
		return c, nil
	}
	return nil, ErrNotFound
}

func (r *Registry) lookupName(name string) *collection.Collection {
	for _, id := range r.order {
		if c := r.byID[id]; c.Name() == name {
			return c
		}
	}
	return nil
}

// List returns the collections in insertion order.
func (r *Registry) List() []*collection.Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*collection.Collection, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of collections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Init initializes every collection. Failures stay with their collection; an error is
// returned only when every collection failed.
func (r *Registry) Init(ctx context.Context) error {
	cols := r.List()
	var errs []error
	for _, c := range cols {
		if err := c.Init(ctx); err != nil {
			r.logger.Error("collection failed to initialize", zap.String("name", c.Name()), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if len(cols) > 0 && len(errs) == len(cols) {
		return errors.Join(errs...)
	}
	return nil
}

// FlushCache drops the cached results of the collection called name.
func (r *Registry) FlushCache(name string) error {
	c, err := r.GetByName(name)
	if err != nil {
		return fmt.Errorf("flush cache of %q: %w", name, err)
	}
	c.FlushCache()
	return nil
}

// CheckExtensions reports the first of exts that neither an extractor nor an archive walker
// handles. The error lists what is supported.
func (r *Registry) CheckExtensions(exts []string) error {
	for _, ext := range exts {
		if r.env.Extractors.Supports(ext) || r.env.Archives.IsArchive(ext) {
			continue
		}
		supported := r.env.Archives.Extensions()
		for e := range r.env.Extractors.Mapping() {
			supported = append(supported, e)
		}
		sort.Strings(supported)
		return fmt.Errorf("%w %q (supported: %s)", ErrUnsupportedExtension, ext, strings.Join(supported, ", "))
	}
	return nil
}

// Extractors returns the shared extractor registry.
func (r *Registry) Extractors() *extract.Registry { return r.env.Extractors }

// Archives returns the shared archive registry.
func (r *Registry) Archives() *archive.Registry { return r.env.Archives }

// State returns the persisted form of the registry.
func (r *Registry) State() *State {
	cols := r.List()
	s := &State{
		Version:     StateVersion,
		Extractors:  r.env.Extractors.Mapping(),
		Archives:    r.env.Archives.Mapping(),
		Cache:       r.env.Cache,
		Collections: make([]collection.Config, 0, len(cols)),
	}
	for _, c := range cols {
		s.Collections = append(s.Collections, c.Config())
	}
	return s
}

// Restore registers the collections of s, keeping their persisted ids. Entries without an id
// get a fresh one; an id seen twice is skipped. Mappings in s are not applied here: build the
// extractor and archive registries from them before New.
func (r *Registry) Restore(s *State) error {
	if s == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) > 0 {
		return errors.New("restore into a non-empty registry")
	}
	for _, cfg := range s.Collections {
		id := cfg.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, ok := r.byID[id]; ok {
			r.logger.Warn("skipping collection with duplicate id", zap.String("id", id), zap.String("name", cfg.Name))
			continue
		}
		cfg.ID = ""
		r.insert(id, collection.New(cfg))
	}
	return nil
}

// Close stops indexing and closes every index.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, c := range r.List() {
		errs = append(errs, c.Close(ctx))
	}
	return errors.Join(errs...)
}
