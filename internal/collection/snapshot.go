package collection

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"
)

const (
	currentFile = "CURRENT"
	genPrefix   = "gen-"
)

// snapshot is one committed index generation. Searches hold a read lock for their whole
// run, so retire waits for them before closing the index.
type snapshot struct {
	index bleve.Index
	dir   string

	mu     sync.RWMutex
	closed bool
}

// acquire returns the current snapshot read-locked, or nil when there is none.
func (c *Collection) acquire() *snapshot {
	for {
		s := c.snap.Load()
		if s == nil {
			return nil
		}
		s.mu.RLock()
		if !s.closed {
			return s
		}
		// Retired between Load and RLock; the pointer has already moved on.
		s.mu.RUnlock()
	}
}

func (s *snapshot) release() { s.mu.RUnlock() }

// retire closes the index once in-flight readers are done and, if remove is set, deletes
// the generation directory.
func (s *snapshot) retire(remove bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.index.Close()
	if remove {
		if rmErr := os.RemoveAll(s.dir); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}

func newGenerationName() string {
	return genPrefix + uuid.NewString()
}

// readCurrent returns the committed generation name under dir, or "" when nothing has been
// committed yet.
func readCurrent(dir string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, currentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(string(b))
	if !strings.HasPrefix(name, genPrefix) || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%s names an invalid generation %q", currentFile, name)
	}
	return name, nil
}

// writeCurrent publishes gen by replacing the CURRENT file atomically.
func writeCurrent(dir, gen string) error {
	tmp, err := os.CreateTemp(dir, currentFile+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(gen + "\n"); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(dir, currentFile))
}

// removeStaleGenerations deletes every generation under dir except keep. Leftovers come from
// runs that were interrupted before they published.
func removeStaleGenerations(dir, keep string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), genPrefix) && e.Name() != keep {
			errs = append(errs, os.RemoveAll(filepath.Join(dir, e.Name())))
		}
	}
	return errors.Join(errs...)
}
