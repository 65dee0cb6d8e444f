package schema

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"

	"github.com/hyperjump/docsearcher/internal/extract"
)

func TestTokenize(t *testing.T) {
	a := NewAnalyzer(nil)
	got := a.Tokenize(FieldContents, "The Quick brown-fox")
	want := []string{"quick", "brown", "fox"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
	if got := a.Tokenize(FieldContents, "the and of"); len(got) != 0 {
		t.Errorf("stop words only: got %v", got)
	}
}

func TestNewDocument(t *testing.T) {
	mod := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	info := extract.NewRegistry(nil).ExtractBytes("company_profile.2021.txt", []byte("annual company profile"), mod)
	if info == nil {
		t.Fatal("no info extracted")
	}
	doc := NewDocument("/docs/company_profile.2021.txt", info)
	if doc.Contents != "annual company profile" {
		t.Errorf("Contents = %q", doc.Contents)
	}
	if doc.Name != "company profile 2021 txt" {
		t.Errorf("Name = %q", doc.Name)
	}
	if doc.Path != "/docs/company_profile.2021.txt" || !doc.Modified.Equal(mod) {
		t.Errorf("doc = %+v", doc)
	}
	if doc.BleveType() != DocType {
		t.Errorf("BleveType = %q", doc.BleveType())
	}
}

func TestCheckIntegrity(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		if err := CheckIntegrity(t.TempDir()); err == nil {
			t.Error("expected error for directory without metadata")
		}
	})
	t.Run("empty", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, MetaFile), nil, 0600); err != nil {
			t.Fatal(err)
		}
		if err := CheckIntegrity(dir); err == nil {
			t.Error("expected error for empty metadata")
		}
	})
	t.Run("corrupt", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, MetaFile), []byte("{not json"), 0600); err != nil {
			t.Fatal(err)
		}
		if err := CheckIntegrity(dir); err == nil {
			t.Error("expected error for corrupt metadata")
		}
	})
	t.Run("valid", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "idx")
		idx, err := bleve.New(dir, NewMapping())
		if err != nil {
			t.Fatal(err)
		}
		if err := idx.Close(); err != nil {
			t.Fatal(err)
		}
		if err := CheckIntegrity(dir); err != nil {
			t.Errorf("valid index: %v", err)
		}
	})
}
