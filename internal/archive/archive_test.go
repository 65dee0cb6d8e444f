package archive

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for name, body := range entries {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRegistry_Walk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.zip")
	writeZip(t, path, map[string]string{
		"a.txt":        "alpha",
		"docs/b.txt":   "bravo",
		"docs/":        "",
		"big/huge.txt": "0123456789",
	})

	r := NewRegistry(nil, WithMaxEntrySize(8))
	got := map[string]string{}
	err := r.Walk(context.Background(), path, func(e Entry, data []byte) error {
		got[e.Name] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	want := map[string]string{"a.txt": "alpha", "docs/b.txt": "bravo"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("entry %s = %q, want %q", k, got[k], v)
		}
	}
}

func TestRegistry_WalkStopsOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.zip")
	writeZip(t, path, map[string]string{"a.txt": "a", "b.txt": "b"})
	stop := errors.New("stop")
	calls := 0
	err := NewRegistry(nil).Walk(context.Background(), path, func(Entry, []byte) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestRegistry_WalkCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.zip")
	writeZip(t, path, map[string]string{"a.txt": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewRegistry(nil).Walk(ctx, path, func(Entry, []byte) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRegistry_WalkNotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.zip")
	if err := os.WriteFile(path, []byte("nope"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := NewRegistry(nil).Walk(context.Background(), path, func(Entry, []byte) error { return nil }); err == nil {
		t.Error("expected error for invalid archive")
	}
}

func TestNewRegistry_mapping(t *testing.T) {
	r := NewRegistry(map[string]string{"ZIP": "zip", ".rar": "rar"})
	if !r.IsArchive(".zip") {
		t.Error(".zip should be an archive")
	}
	if r.IsArchive(".rar") || r.IsArchive(".jar") {
		t.Error("unexpected archive extension")
	}
	if got := r.Extensions(); len(got) != 1 || got[0] != ".zip" {
		t.Errorf("Extensions = %v", got)
	}
}

func TestJoinSplit(t *testing.T) {
	p := Join("/data/bundle.zip", "docs/b.txt")
	if p != "/data/bundle.zip!docs/b.txt" {
		t.Errorf("Join = %q", p)
	}
	a, e, ok := Split(p)
	if !ok || a != "/data/bundle.zip" || e != "docs/b.txt" {
		t.Errorf("Split = %q %q %v", a, e, ok)
	}
	if _, _, ok := Split("/data/plain.txt"); ok {
		t.Error("plain path should not split")
	}
}
