package collection

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/docsearcher/internal/archive"
	"github.com/hyperjump/docsearcher/internal/extract"
	"github.com/hyperjump/docsearcher/internal/query"
	"github.com/hyperjump/docsearcher/internal/schema"
	"github.com/hyperjump/docsearcher/internal/storage"
)

// fixture writes 14 documents, 11 of which mention "test" in their name or text.
func fixture(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"test_plan.txt":     "steps for the release",
		"test_report.md":    "all green",
		"unit_test.txt":     "nothing else here",
		"a.txt":             "this is a test document",
		"b.txt":             "another test of the system",
		"c.txt":             "test",
		"d.md":              "the test suite passed",
		"e.txt":             "we test everything",
		"f.txt":             "acceptance test notes",
		"g.txt":             "a smoke test",
		"h.txt":             "final test run",
		"recipes.txt":       "flour sugar eggs",
		"travel.txt":        "a trip to the mountains",
		"sub/inventory.txt": "chairs and tables",
	}
	for name, body := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0600))
	}
}

func newEnv(t *testing.T) *Env {
	t.Helper()
	base := t.TempDir()
	m, err := storage.NewSQLiteManifest(filepath.Join(base, "manifest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return &Env{
		IndexBaseDir: base,
		Extractors:   extract.NewRegistry(nil),
		Archives:     archive.NewRegistry(nil),
		Manifest:     m,
		Parser:       query.NewParser(query.NewBuilder(schema.NewAnalyzer(nil), "")),
		Cache:        CachePolicy{Size: 16, TTL: time.Minute},
		BatchSize:    4,
	}
}

func newCollection(t *testing.T, env *Env) (*Collection, string) {
	t.Helper()
	content := t.TempDir()
	fixture(t, content)
	c := New(Config{Name: "docs", ContentDir: content})
	c.Attach("c1", env)
	t.Cleanup(func() { c.Close(context.Background()) })
	return c, content
}

func runIndex(t *testing.T, c *Collection, full bool) {
	t.Helper()
	task, err := c.Index(full)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, task.Wait(ctx))
}

func TestCollection_fullIndexAndSearch(t *testing.T) {
	c, _ := newCollection(t, newEnv(t))
	assert.Equal(t, Uninitialized, c.State())
	assert.False(t, c.IsIndexValid())

	task, err := c.Index(true)
	require.NoError(t, err)
	assert.True(t, c.IsIndexingInProgress())
	require.NoError(t, task.Wait(context.Background()))

	assert.False(t, c.IsIndexingInProgress())
	assert.False(t, task.Running())
	assert.Equal(t, Valid, c.State())
	assert.True(t, c.IsIndexValid())
	assert.EqualValues(t, 14, c.NumberOfDocs())
	assert.False(t, c.LastIndexedAt().IsZero())
	assert.Empty(t, c.LastError())
	assert.Positive(t, c.IndexSizeBytes())

	hits, err := c.Search(context.Background(), "test", query.DefaultBoosts(), 100)
	require.NoError(t, err)
	assert.Len(t, hits, 11)
	for _, h := range hits {
		assert.Equal(t, "docs", h.CollectionName)
		assert.NotEmpty(t, h.Path)
	}

	hits, err = c.Search(context.Background(), "test", nil, 100)
	require.NoError(t, err)
	assert.Len(t, hits, 8, "unweighted queries only look at contents")

	hits, err = c.Search(context.Background(), "the", query.DefaultBoosts(), 100)
	require.NoError(t, err)
	assert.Empty(t, hits, "stop words alone match nothing")
}

func TestCollection_limit(t *testing.T) {
	c, _ := newCollection(t, newEnv(t))
	runIndex(t, c, true)
	hits, err := c.Search(context.Background(), "test", query.DefaultBoosts(), 3)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestCollection_incremental(t *testing.T) {
	c, dir := newCollection(t, newEnv(t))
	runIndex(t, c, true)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("a fresh test"), 0600))
	require.NoError(t, os.Remove(filepath.Join(dir, "a.txt")))
	changed := filepath.Join(dir, "recipes.txt")
	require.NoError(t, os.WriteFile(changed, []byte("test bake"), 0600))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(changed, later, later))

	runIndex(t, c, false)
	assert.Equal(t, Valid, c.State())
	assert.EqualValues(t, 14, c.NumberOfDocs())

	hits, err := c.Search(context.Background(), "test", nil, 100)
	require.NoError(t, err)
	paths := map[string]bool{}
	for _, h := range hits {
		paths[h.Path] = true
	}
	assert.True(t, paths[filepath.Join(dir, "new.txt")])
	assert.True(t, paths[changed])
	assert.False(t, paths[filepath.Join(dir, "a.txt")])
	assert.Len(t, hits, 9)
}

func TestCollection_incrementalWithoutIndexFallsBackToFull(t *testing.T) {
	c, _ := newCollection(t, newEnv(t))
	task, err := c.Index(false)
	require.NoError(t, err)
	require.NoError(t, task.Wait(context.Background()))
	assert.Equal(t, Valid, c.State())
	assert.EqualValues(t, 14, c.NumberOfDocs())
}

func TestCollection_indexingInProgress(t *testing.T) {
	c, _ := newCollection(t, newEnv(t))
	task, err := c.Index(true)
	require.NoError(t, err)
	_, err = c.Index(false)
	if task.Running() {
		assert.ErrorIs(t, err, ErrIndexingInProgress)
	}
	require.NoError(t, task.Wait(context.Background()))
}

func TestCollection_stopKeepsPreviousIndex(t *testing.T) {
	c, dir := newCollection(t, newEnv(t))
	runIndex(t, c, true)
	for i := 0; i < 200; i++ {
		name := filepath.Join(dir, fmt.Sprintf("extra%03d.txt", i))
		require.NoError(t, os.WriteFile(name, []byte("more test data"), 0600))
	}

	task, err := c.Index(true)
	require.NoError(t, err)
	c.StopRequest()
	err = task.Wait(context.Background())
	if err == nil {
		// Finished before the stop landed; nothing to check.
		return
	}
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, Valid, c.State())
	assert.EqualValues(t, 14, c.NumberOfDocs())
	hits, err := c.Search(context.Background(), "test", query.DefaultBoosts(), 1000)
	require.NoError(t, err)
	assert.Len(t, hits, 11)

	gens, err := filepath.Glob(filepath.Join(c.IndexDir(), genPrefix+"*"))
	require.NoError(t, err)
	assert.Len(t, gens, 1, "discarded generation is removed")
}

func TestCollection_stopFirstBuildIsInvalid(t *testing.T) {
	c, dir := newCollection(t, newEnv(t))
	for i := 0; i < 200; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("x%03d.txt", i)), []byte("x"), 0600))
	}
	task, err := c.Index(true)
	require.NoError(t, err)
	c.StopRequest()
	if err := task.Wait(context.Background()); err != nil {
		assert.ErrorIs(t, err, ErrStopped)
		assert.Equal(t, Invalid, c.State())
		assert.NotEmpty(t, c.LastError())
	}
}

func TestCollection_searchDuringReindex(t *testing.T) {
	c, _ := newCollection(t, newEnv(t))
	runIndex(t, c, true)

	task, err := c.Index(true)
	require.NoError(t, err)
	var wg sync.WaitGroup
	errs := make(chan string, 100)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task.Running() {
				hits, err := c.Search(context.Background(), "test", query.DefaultBoosts(), 100)
				if err != nil {
					errs <- err.Error()
					return
				}
				if len(hits) != 11 {
					errs <- fmt.Sprintf("partial result: %d hits", len(hits))
					return
				}
			}
		}()
	}
	require.NoError(t, task.Wait(context.Background()))
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestCollection_initOpensCommittedIndex(t *testing.T) {
	env := newEnv(t)
	c, dir := newCollection(t, env)
	runIndex(t, c, true)
	require.NoError(t, c.Close(context.Background()))

	reopened := New(Config{Name: "docs", ContentDir: dir})
	reopened.Attach("c1", env)
	defer reopened.Close(context.Background())
	require.NoError(t, reopened.Init(context.Background()))
	assert.Equal(t, Valid, reopened.State())
	assert.EqualValues(t, 14, reopened.NumberOfDocs())
	assert.False(t, reopened.IsIndexingInProgress())
}

func TestCollection_initWithoutIndexBuilds(t *testing.T) {
	c, _ := newCollection(t, newEnv(t))
	require.NoError(t, c.Init(context.Background()))
	task := c.Task()
	require.NotNil(t, task)
	require.NoError(t, task.Wait(context.Background()))
	assert.Equal(t, Valid, c.State())
}

func TestCollection_initCorruptIndex(t *testing.T) {
	env := newEnv(t)
	c, _ := newCollection(t, env)
	runIndex(t, c, true)
	require.NoError(t, c.Close(context.Background()))

	gen, err := readCurrent(c.IndexDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(c.IndexDir(), gen, schema.MetaFile), []byte("{broken"), 0600))

	err = c.Init(context.Background())
	assert.ErrorIs(t, err, ErrIndex)
	var ierr *IndexError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "docs", ierr.Collection)
	assert.Equal(t, Invalid, c.State())
	assert.False(t, c.IsIndexValid())
	assert.NotEmpty(t, c.LastError())
}

func TestCollection_missingContentDir(t *testing.T) {
	env := newEnv(t)
	c := New(Config{Name: "gone", ContentDir: filepath.Join(t.TempDir(), "missing")})
	c.Attach("c2", env)
	task, err := c.Index(true)
	require.NoError(t, err)
	err = task.Wait(context.Background())
	assert.ErrorIs(t, err, ErrIndex)
	assert.Equal(t, Invalid, c.State())
}

func TestCollection_notAttached(t *testing.T) {
	c := New(Config{Name: "x"})
	_, err := c.Index(true)
	assert.ErrorIs(t, err, ErrNotAttached)
	_, err = c.Search(context.Background(), "x", nil, 10)
	assert.ErrorIs(t, err, ErrNotAttached)
	assert.ErrorIs(t, c.Init(context.Background()), ErrNotAttached)
}

func TestCollection_remove(t *testing.T) {
	env := newEnv(t)
	c, _ := newCollection(t, env)
	runIndex(t, c, true)
	dir := c.IndexDir()

	require.NoError(t, c.Remove(context.Background()))
	assert.Empty(t, c.ID())
	assert.NoDirExists(t, dir)
	n, err := env.Manifest.Count(context.Background(), "c1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCollection_closeBoundedByContext(t *testing.T) {
	c, _ := newCollection(t, newEnv(t))
	runIndex(t, c, true)

	// A task that ignores stop and keeps reading the index.
	held := c.acquire()
	require.NotNil(t, held)
	stuck := newTask(false, func() {})
	c.mu.Lock()
	c.task = stuck
	c.mu.Unlock()
	c.indexing.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Close(ctx) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked past its context")
	}
	assert.Nil(t, c.snap.Load())

	held.release()
	stuck.finish(ErrStopped)
	c.indexing.Store(false)
	assert.Eventually(t, func() bool {
		held.mu.RLock()
		defer held.mu.RUnlock()
		return held.closed
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCollection_cacheFlushedOnReindex(t *testing.T) {
	c, dir := newCollection(t, newEnv(t))
	runIndex(t, c, true)
	hits, err := c.Search(context.Background(), "mountains", nil, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	require.NoError(t, os.Remove(filepath.Join(dir, "travel.txt")))
	runIndex(t, c, false)
	hits, err = c.Search(context.Background(), "mountains", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "valid", Valid.String())
	assert.Equal(t, "indexing", Indexing.String())
	assert.Equal(t, "state(9)", State(9).String())
}
