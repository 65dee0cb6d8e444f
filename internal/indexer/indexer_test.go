package indexer

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/docsearcher/internal/archive"
	"github.com/hyperjump/docsearcher/internal/extract"
	"github.com/hyperjump/docsearcher/internal/fileid"
)

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{"txt"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
	}
	for _, tt := range tests {
		if got := extensionAllowed(tt.ext, tt.allowed); got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for name, body := range entries {
		fw, _ := w.Create(name)
		_, _ = fw.Write([]byte(body))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
}

func collect(t *testing.T, idx *Indexer, dir string) map[string]Document {
	t.Helper()
	ctx := context.Background()
	sources, err := idx.Scan(ctx, dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	out := map[string]Document{}
	for _, src := range sources {
		err := idx.Extract(ctx, src, func(d Document) error {
			out[d.Record.Path] = d
			return nil
		})
		if err != nil {
			t.Fatalf("Extract %s: %v", src.Path, err)
		}
	}
	return out
}

func TestScanAndExtract(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.txt"), "alpha text")
	write(t, filepath.Join(dir, "sub", "b.md"), "bravo")
	write(t, filepath.Join(dir, "c.bin"), "\x00\x01")
	writeZip(t, filepath.Join(dir, "bundle.zip"), map[string]string{"inner.txt": "inside the archive"})

	idx := New(extract.NewRegistry(nil), archive.NewRegistry(nil), WithArchives(true))
	docs := collect(t, idx, dir)

	if len(docs) != 4 {
		t.Fatalf("got %d documents, want 4: %v", len(docs), docs)
	}
	a := docs[filepath.Join(dir, "a.txt")]
	if a.Doc == nil || a.Doc.Contents != "alpha text" || a.Record.DocID != fileid.For(filepath.Join(dir, "a.txt")) {
		t.Errorf("a.txt: %+v", a)
	}
	if bin := docs[filepath.Join(dir, "c.bin")]; bin.Doc == nil || bin.Doc.Type != string(extract.TypeFile) {
		t.Errorf("c.bin should be a FILE document: %+v", bin)
	}
	entryPath := archive.Join(filepath.Join(dir, "bundle.zip"), "inner.txt")
	entry, ok := docs[entryPath]
	if !ok {
		t.Fatalf("archive entry %s not indexed", entryPath)
	}
	if entry.Record.Source != filepath.Join(dir, "bundle.zip") || entry.Doc.Contents != "inside the archive" {
		t.Errorf("entry: %+v", entry)
	}
}

func TestScan_withoutArchives(t *testing.T) {
	dir := t.TempDir()
	writeZip(t, filepath.Join(dir, "bundle.zip"), map[string]string{"inner.txt": "x"})
	idx := New(extract.NewRegistry(nil), archive.NewRegistry(nil))
	docs := collect(t, idx, dir)
	d, ok := docs[filepath.Join(dir, "bundle.zip")]
	if len(docs) != 1 || !ok || d.Doc.Type != string(extract.TypeFile) {
		t.Errorf("archive should be a single FILE document: %v", docs)
	}
}

func TestScan_extensions(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "a.txt"), "a")
	write(t, filepath.Join(dir, "b.md"), "b")
	idx := New(extract.NewRegistry(nil), nil, WithExtensions([]string{".md"}))
	sources, err := idx.Scan(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(sources) != 1 || filepath.Base(sources[0].Path) != "b.md" {
		t.Errorf("got %v", sources)
	}
}

func TestScan_errors(t *testing.T) {
	idx := New(extract.NewRegistry(nil), nil)
	if _, err := idx.Scan(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
	file := filepath.Join(t.TempDir(), "f.txt")
	write(t, file, "x")
	if _, err := idx.Scan(context.Background(), file); err == nil {
		t.Error("expected error for non-directory")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.Scan(ctx, t.TempDir()); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled scan: %v", err)
	}
}

func TestExtract_callbackErrorStopsArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.zip")
	writeZip(t, path, map[string]string{"a.txt": "a", "b.txt": "b"})
	idx := New(extract.NewRegistry(nil), archive.NewRegistry(nil), WithArchives(true))
	stop := errors.New("stop")
	calls := 0
	err := idx.Extract(context.Background(), Source{Path: path, Archive: true}, func(Document) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestExtract_corruptArchiveSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	write(t, path, "not a zip")
	idx := New(extract.NewRegistry(nil), archive.NewRegistry(nil), WithArchives(true))
	err := idx.Extract(context.Background(), Source{Path: path, Archive: true}, func(Document) error {
		t.Error("no documents expected")
		return nil
	})
	if err != nil {
		t.Errorf("corrupt archive should be skipped, got %v", err)
	}
}
