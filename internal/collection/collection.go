// Package collection implements one indexable corpus: a content directory, the bleve index
// built from it and the state machine around building, refreshing and searching that index.
//
// Indexing runs in a background Task. A full build writes a new index generation next to the
// live one and publishes it by swapping the CURRENT pointer file and the in-memory snapshot;
// an incremental run applies all changes as one bleve batch. Either way a concurrent search
// sees the index entirely before or entirely after the run.
package collection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/hyperjump/docsearcher/internal/archive"
	"github.com/hyperjump/docsearcher/internal/extract"
	"github.com/hyperjump/docsearcher/internal/indexer"
	"github.com/hyperjump/docsearcher/internal/query"
	"github.com/hyperjump/docsearcher/internal/schema"
	"github.com/hyperjump/docsearcher/internal/storage"
)

// State is the index lifecycle state of a collection.
type State int32

const (
	Uninitialized State = iota
	Valid
	Invalid
	Indexing
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	case Indexing:
		return "indexing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const (
	// DefaultLimit is the number of hits returned when a search asks for none.
	DefaultLimit = 10
	// DefaultBatchSize is the number of documents per bleve batch during a full build.
	DefaultBatchSize = 100
)

// CachePolicy configures the per-collection result cache. A zero Size disables caching.
type CachePolicy struct {
	Size int           `yaml:"size" json:"size"`
	TTL  time.Duration `yaml:"ttl" json:"ttl"`
}

// Config is the persisted description of a collection.
type Config struct {
	ID            string       `yaml:"id" json:"id"`
	Name          string       `yaml:"name" json:"name"`
	Description   string       `yaml:"description,omitempty" json:"description,omitempty"`
	ContentDir    string       `yaml:"content_dir" json:"content_dir"`
	Extensions    []string     `yaml:"extensions,omitempty" json:"extensions,omitempty"`
	IndexArchives bool         `yaml:"index_archives,omitempty" json:"index_archives,omitempty"`
	Cache         *CachePolicy `yaml:"cache,omitempty" json:"cache,omitempty"`
	LastIndexedAt time.Time    `yaml:"last_indexed_at,omitempty" json:"last_indexed_at,omitempty"`
}

// Env is what a registry shares with the collections it owns.
type Env struct {
	IndexBaseDir string
	Extractors   *extract.Registry
	Archives     *archive.Registry
	Manifest     storage.Manifest
	Parser       *query.Parser
	// Cache applies to collections without their own policy.
	Cache     CachePolicy
	BatchSize int
	Logger    *zap.Logger
}

// Result is one search hit.
type Result struct {
	CollectionName string  `json:"collection"`
	Score          float64 `json:"score"`
	Title          string  `json:"title"`
	Path           string  `json:"path"`
	Summary        string  `json:"summary"`
}

// Status is a point-in-time view of a collection for display.
type Status struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	State         string    `json:"state"`
	Valid         bool      `json:"valid"`
	Indexing      bool      `json:"indexing"`
	NumberOfDocs  uint64    `json:"number_of_docs"`
	LastIndexedAt time.Time `json:"last_indexed_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	SizeBytes     int64     `json:"size_bytes"`
	CachedQueries int       `json:"cached_queries"`
}

// Collection is one content directory and its index. Create it with New; it becomes usable
// once a registry attaches it.
type Collection struct {
	mu      sync.Mutex // guards the fields below
	cfg     Config
	env     *Env
	logger  *zap.Logger
	task    *Task
	cache   *expirable.LRU[string, []Result]
	lastErr string

	state         atomic.Int32
	valid         atomic.Bool
	indexing      atomic.Bool
	numDocs       atomic.Uint64
	lastIndexedAt atomic.Int64
	generation    atomic.Uint64
	snap          atomic.Pointer[snapshot]
}

// New returns an unattached collection described by cfg.
func New(cfg Config) *Collection {
	c := &Collection{cfg: cfg, logger: zap.NewNop()}
	if !cfg.LastIndexedAt.IsZero() {
		c.lastIndexedAt.Store(cfg.LastIndexedAt.UnixNano())
	}
	return c
}

// Attach gives the collection its id and shared environment.
func (c *Collection) Attach(id string, env *Env) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.ID = id
	c.env = env
	c.logger = zap.NewNop()
	if env.Logger != nil {
		c.logger = env.Logger
	}
	c.logger = c.logger.With(zap.String("collection", c.cfg.Name), zap.String("id", id))

	policy := env.Cache
	if c.cfg.Cache != nil {
		policy = *c.cfg.Cache
	}
	c.cache = nil
	if policy.Size > 0 {
		c.cache = expirable.NewLRU[string, []Result](policy.Size, nil, policy.TTL)
	}
}

// ID returns the registry-assigned id, or "" when the collection is not attached.
func (c *Collection) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.ID
}

// Name returns the display name.
func (c *Collection) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Name
}

// Config returns a copy of the persisted description.
func (c *Collection) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg := c.cfg
	cfg.Extensions = append([]string(nil), c.cfg.Extensions...)
	if c.cfg.Cache != nil {
		p := *c.cfg.Cache
		cfg.Cache = &p
	}
	return cfg
}

func (c *Collection) attached() (*Env, Config, *zap.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.env, c.cfg, c.logger
}

// State returns the lifecycle state.
func (c *Collection) State() State { return State(c.state.Load()) }

// IsIndexingInProgress reports whether a task is running.
func (c *Collection) IsIndexingInProgress() bool { return c.indexing.Load() }

// IsIndexValid reports whether the last open or index run committed a readable index.
func (c *Collection) IsIndexValid() bool { return c.valid.Load() }

// NumberOfDocs returns the document count of the committed index.
func (c *Collection) NumberOfDocs() uint64 { return c.numDocs.Load() }

// LastIndexedAt returns when the last successful run finished.
func (c *Collection) LastIndexedAt() time.Time {
	n := c.lastIndexedAt.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// LastError returns the message of the last failure, or "".
func (c *Collection) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Task returns the current or most recent indexing task, or nil.
func (c *Collection) Task() *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.task
}

// IndexDir returns the directory holding this collection's index generations.
func (c *Collection) IndexDir() string {
	env, cfg, _ := c.attached()
	if env == nil || cfg.ID == "" {
		return ""
	}
	return filepath.Join(env.IndexBaseDir, cfg.ID)
}

// IndexSizeBytes returns the on-disk size of the index.
func (c *Collection) IndexSizeBytes() int64 {
	dir := c.IndexDir()
	if dir == "" {
		return 0
	}
	n, err := storage.DiskUsage(dir)
	if err != nil {
		return 0
	}
	return n
}

// Status returns a point-in-time view of the collection.
func (c *Collection) Status() Status {
	_, cfg, _ := c.attached()
	return Status{
		ID:            cfg.ID,
		Name:          cfg.Name,
		State:         c.State().String(),
		Valid:         c.IsIndexValid(),
		Indexing:      c.IsIndexingInProgress(),
		NumberOfDocs:  c.NumberOfDocs(),
		LastIndexedAt: c.LastIndexedAt(),
		LastError:     c.LastError(),
		SizeBytes:     c.IndexSizeBytes(),
		CachedQueries: c.cachedQueries(),
	}
}

func (c *Collection) cachedQueries() int {
	c.mu.Lock()
	cache := c.cache
	c.mu.Unlock()
	if cache == nil {
		return 0
	}
	return cache.Len()
}

// Init opens the committed index, or starts a full build when there is none. An index that
// is present but unreadable leaves the collection Invalid and returns an *IndexError.
func (c *Collection) Init(ctx context.Context) error {
	env, cfg, logger := c.attached()
	if env == nil {
		return ErrNotAttached
	}
	if c.indexing.Load() {
		return nil
	}
	dir := filepath.Join(env.IndexBaseDir, cfg.ID)
	gen, err := readCurrent(dir)
	if err != nil {
		return c.fail(cfg, "read index pointer", err)
	}
	if gen == "" {
		logger.Info("no committed index, starting full build")
		if _, err := c.Index(true); err != nil && !errors.Is(err, ErrIndexingInProgress) {
			return err
		}
		return nil
	}

	genDir := filepath.Join(dir, gen)
	if s := c.snap.Load(); s != nil && s.dir == genDir {
		return nil
	}
	if err := schema.CheckIntegrity(genDir); err != nil {
		return c.fail(cfg, "check index", err)
	}
	idx, err := bleve.Open(genDir)
	if err != nil {
		return c.fail(cfg, "open index", err)
	}
	n, err := idx.DocCount()
	if err != nil {
		_ = idx.Close()
		return c.fail(cfg, "count documents", err)
	}
	if old := c.snap.Swap(&snapshot{index: idx, dir: genDir}); old != nil {
		_ = old.retire(false)
	}
	c.generation.Add(1)
	c.numDocs.Store(n)
	c.valid.Store(true)
	c.state.Store(int32(Valid))
	if err := removeStaleGenerations(dir, gen); err != nil {
		logger.Warn("could not remove stale index generations", zap.Error(err))
	}
	logger.Info("index opened", zap.Uint64("docs", n))
	return nil
}

func (c *Collection) fail(cfg Config, op string, err error) error {
	ierr := &IndexError{Collection: cfg.Name, Op: op, Err: err}
	c.mu.Lock()
	c.lastErr = ierr.Error()
	c.mu.Unlock()
	c.valid.Store(false)
	c.state.Store(int32(Invalid))
	return ierr
}

// Index starts a background indexing task. full discards the index and rebuilds it from
// the content directory; otherwise only added, changed and removed files are applied. Only
// one task runs at a time: a second call returns ErrIndexingInProgress.
func (c *Collection) Index(full bool) (*Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.env == nil {
		return nil, ErrNotAttached
	}
	if !c.indexing.CompareAndSwap(false, true) {
		return nil, ErrIndexingInProgress
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := newTask(full, cancel)
	c.task = t
	prior := State(c.state.Swap(int32(Indexing)))
	go c.run(ctx, t, c.env, c.cfg, c.logger, prior)
	return t, nil
}

// StopRequest asks the running task to stop at the next document boundary. The partial
// work is discarded and the previous index stays in place.
func (c *Collection) StopRequest() {
	if t := c.Task(); t != nil && t.Running() {
		t.stop()
	}
}

func (c *Collection) run(ctx context.Context, t *Task, env *Env, cfg Config, logger *zap.Logger, prior State) {
	start := time.Now()
	logger.Info("indexing started", zap.Bool("full", t.Full))

	full := t.Full
	var n uint64
	var err error
	if !full {
		n, full, err = c.incremental(ctx, env, cfg, logger)
		if full {
			logger.Info("no usable manifest, falling back to full build")
		}
	}
	if full && err == nil {
		n, err = c.rebuild(ctx, env, cfg, logger)
	}

	switch {
	case err == nil:
		now := time.Now()
		c.numDocs.Store(n)
		c.lastIndexedAt.Store(now.UnixNano())
		c.generation.Add(1)
		c.mu.Lock()
		c.cfg.LastIndexedAt = now
		c.lastErr = ""
		if c.cache != nil {
			c.cache.Purge()
		}
		c.mu.Unlock()
		c.valid.Store(true)
		c.state.Store(int32(Valid))
		logger.Info("indexing finished", zap.Uint64("docs", n), zap.Duration("took", time.Since(start)))
	case errors.Is(err, context.Canceled):
		err = ErrStopped
		restored := prior
		if restored != Valid && restored != Invalid {
			restored = Invalid
			c.mu.Lock()
			c.lastErr = "indexing stopped before an index was committed"
			c.mu.Unlock()
		}
		c.state.Store(int32(restored))
		logger.Info("indexing stopped", zap.Stringer("state", restored))
	default:
		c.mu.Lock()
		c.lastErr = err.Error()
		c.mu.Unlock()
		c.valid.Store(false)
		c.state.Store(int32(Invalid))
		logger.Error("indexing failed", zap.Error(err))
	}
	c.indexing.Store(false)
	t.finish(err)
}

func (c *Collection) newIndexer(env *Env, cfg Config, logger *zap.Logger) *indexer.Indexer {
	return indexer.New(env.Extractors, env.Archives,
		indexer.WithExtensions(cfg.Extensions),
		indexer.WithArchives(cfg.IndexArchives),
		indexer.WithLogger(logger),
	)
}

func (c *Collection) scan(ctx context.Context, ix *indexer.Indexer, cfg Config) ([]indexer.Source, error) {
	sources, err := ix.Scan(ctx, cfg.ContentDir)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &IndexError{Collection: cfg.Name, Op: "scan content directory", Err: err}
	}
	return sources, nil
}

// rebuild builds a new generation from scratch and publishes it.
func (c *Collection) rebuild(ctx context.Context, env *Env, cfg Config, logger *zap.Logger) (uint64, error) {
	dir := filepath.Join(env.IndexBaseDir, cfg.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, &IndexError{Collection: cfg.Name, Op: "create index directory", Err: err}
	}
	ix := c.newIndexer(env, cfg, logger)
	sources, err := c.scan(ctx, ix, cfg)
	if err != nil {
		return 0, err
	}

	gen := newGenerationName()
	genDir := filepath.Join(dir, gen)
	idx, err := bleve.New(genDir, schema.NewMapping())
	if err != nil {
		return 0, &IndexError{Collection: cfg.Name, Op: "create index", Err: err}
	}
	published := false
	defer func() {
		if !published {
			_ = idx.Close()
			_ = os.RemoveAll(genDir)
		}
	}()

	batchSize := env.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	batch := idx.NewBatch()
	var records []*storage.FileRecord
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		err := ix.Extract(ctx, src, func(d indexer.Document) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := batch.Index(d.Record.DocID, d.Doc); err != nil {
				return err
			}
			records = append(records, d.Record)
			if batch.Size() >= batchSize {
				if err := idx.Batch(batch); err != nil {
					return err
				}
				batch.Reset()
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			return 0, &IndexError{Collection: cfg.Name, Op: "index " + src.Path, Err: err}
		}
	}
	if batch.Size() > 0 {
		if err := idx.Batch(batch); err != nil {
			return 0, &IndexError{Collection: cfg.Name, Op: "write batch", Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := idx.DocCount()
	if err != nil {
		return 0, &IndexError{Collection: cfg.Name, Op: "count documents", Err: err}
	}

	if err := writeCurrent(dir, gen); err != nil {
		return 0, &IndexError{Collection: cfg.Name, Op: "publish index", Err: err}
	}
	published = true
	if old := c.snap.Swap(&snapshot{index: idx, dir: genDir}); old != nil {
		if err := old.retire(true); err != nil {
			logger.Warn("could not retire previous index generation", zap.String("dir", old.dir), zap.Error(err))
		}
	}
	if err := env.Manifest.Replace(context.Background(), cfg.ID, records); err != nil {
		logger.Warn("manifest not updated, next incremental run may redo work", zap.Error(err))
	}
	return n, nil
}

// incremental applies the difference between the content directory and the manifest as one
// batch. needFull is set when there is nothing to reconcile against.
func (c *Collection) incremental(ctx context.Context, env *Env, cfg Config, logger *zap.Logger) (n uint64, needFull bool, err error) {
	s := c.acquire()
	if s == nil {
		return 0, true, nil
	}
	defer s.release()

	known, err := env.Manifest.List(ctx, cfg.ID)
	if err != nil {
		return 0, false, &IndexError{Collection: cfg.Name, Op: "read manifest", Err: err}
	}
	count, err := s.index.DocCount()
	if err != nil {
		return 0, false, &IndexError{Collection: cfg.Name, Op: "count documents", Err: err}
	}
	if len(known) == 0 && count > 0 {
		return 0, true, nil
	}

	ix := c.newIndexer(env, cfg, logger)
	sources, err := c.scan(ctx, ix, cfg)
	if err != nil {
		return 0, false, err
	}

	batch := s.index.NewBatch()
	var upserts []*storage.FileRecord
	var deletes []string
	var added, changed, removed int
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
		recs, seen := known[src.Path]
		delete(known, src.Path)
		if seen && unchanged(recs, src) {
			continue
		}
		for _, r := range recs {
			batch.Delete(r.DocID)
			deletes = append(deletes, r.DocID)
		}
		err := ix.Extract(ctx, src, func(d indexer.Document) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := batch.Index(d.Record.DocID, d.Doc); err != nil {
				return err
			}
			upserts = append(upserts, d.Record)
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return 0, false, ctx.Err()
			}
			return 0, false, &IndexError{Collection: cfg.Name, Op: "index " + src.Path, Err: err}
		}
		if seen {
			changed++
		} else {
			added++
		}
	}
	for _, recs := range known {
		for _, r := range recs {
			batch.Delete(r.DocID)
			deletes = append(deletes, r.DocID)
		}
		removed++
	}
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	if batch.Size() > 0 {
		if err := s.index.Batch(batch); err != nil {
			return 0, false, &IndexError{Collection: cfg.Name, Op: "commit batch", Err: err}
		}
	}
	if err := env.Manifest.Apply(context.Background(), cfg.ID, upserts, deletes); err != nil {
		logger.Warn("manifest not updated, next incremental run may redo work", zap.Error(err))
	}
	logger.Info("incremental changes applied",
		zap.Int("added", added), zap.Int("changed", changed), zap.Int("removed", removed))

	n, err = s.index.DocCount()
	if err != nil {
		return 0, false, &IndexError{Collection: cfg.Name, Op: "count documents", Err: err}
	}
	return n, false, nil
}

func unchanged(recs []*storage.FileRecord, src indexer.Source) bool {
	for _, r := range recs {
		if !r.Unchanged(src.Size, src.ModTime) {
			return false
		}
	}
	return true
}

// Search runs text against the committed index and returns at most limit hits. boosts
// nil or empty means an unweighted query on the contents field.
func (c *Collection) Search(ctx context.Context, text string, boosts map[string]float64, limit int) ([]Result, error) {
	c.mu.Lock()
	env, name, cache := c.env, c.cfg.Name, c.cache
	c.mu.Unlock()
	if env == nil {
		return nil, ErrNotAttached
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	key := fmt.Sprintf("%d|%d|%s|%s", c.generation.Load(), limit, query.Fingerprint(boosts), text)
	if cache != nil {
		if hits, ok := cache.Get(key); ok {
			return append([]Result(nil), hits...), nil
		}
	}

	q, err := env.Parser.Parse(text, boosts)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return []Result{}, nil
	}
	s := c.acquire()
	if s == nil {
		return []Result{}, nil
	}
	defer s.release()

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = schema.StoredFields
	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}
	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, Result{
			CollectionName: name,
			Score:          hit.Score,
			Title:          field(hit.Fields, schema.FieldTitle),
			Path:           field(hit.Fields, schema.FieldPath),
			Summary:        field(hit.Fields, schema.FieldSummary),
		})
	}
	if cache != nil {
		cache.Add(key, out)
	}
	return append([]Result(nil), out...), nil
}

func field(fields map[string]interface{}, name string) string {
	if s, ok := fields[name].(string); ok {
		return s
	}
	return ""
}

// FlushCache drops every cached result.
func (c *Collection) FlushCache() {
	c.mu.Lock()
	cache := c.cache
	c.mu.Unlock()
	if cache != nil {
		cache.Purge()
	}
}

// stopAndWait stops the running task, if any, and waits for it until ctx is done. It reports
// whether no task is left running.
func (c *Collection) stopAndWait(ctx context.Context) bool {
	t := c.Task()
	if t == nil || !t.Running() {
		return true
	}
	t.stop()
	if err := t.Wait(ctx); err != nil && ctx.Err() != nil {
		_, _, logger := c.attached()
		logger.Warn("indexing task did not stop in time")
		return false
	}
	return true
}

// Close stops indexing and releases the index. The index stays on disk. When the task does
// not stop before ctx is done, the index is closed in the background once the task lets go
// of it.
func (c *Collection) Close(ctx context.Context) error {
	stopped := c.stopAndWait(ctx)
	s := c.snap.Swap(nil)
	if s == nil {
		return nil
	}
	if !stopped {
		_, _, logger := c.attached()
		go func() {
			if err := s.retire(false); err != nil {
				logger.Warn("failed to close index", zap.Error(err))
			}
		}()
		return nil
	}
	return s.retire(false)
}

// Remove stops indexing, deletes the index files and manifest records and detaches the
// collection: its ID becomes "".
func (c *Collection) Remove(ctx context.Context) error {
	env, cfg, _ := c.attached()
	if env == nil {
		return ErrNotAttached
	}
	var errs []error
	errs = append(errs, c.Close(ctx))
	if cfg.ID != "" {
		errs = append(errs, os.RemoveAll(filepath.Join(env.IndexBaseDir, cfg.ID)))
		if env.Manifest != nil {
			errs = append(errs, env.Manifest.DeleteCollection(context.WithoutCancel(ctx), cfg.ID))
		}
	}

	c.mu.Lock()
	c.cfg.ID = ""
	c.env = nil
	c.cache = nil
	c.mu.Unlock()
	c.valid.Store(false)
	c.numDocs.Store(0)
	c.state.Store(int32(Uninitialized))
	return errors.Join(errs...)
}
