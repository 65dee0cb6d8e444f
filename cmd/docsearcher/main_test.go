package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/docsearcher/internal/collection"
	"github.com/hyperjump/docsearcher/internal/search"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	cfg := "storage:\n" +
		"  data_dir: " + filepath.Join(base, "data") + "\n" +
		"  index_dir: " + filepath.Join(base, "indices") + "\n"
	path := filepath.Join(base, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"minutes.txt": "board meeting minutes",
		"agenda.txt":  "meeting agenda for monday",
		"menu.txt":    "lunch menu",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"invoice"}, "invoice"},
		{"multiple words", []string{"quarterly", "report"}, "quarterly report"},
		{"single quoted phrase", []string{"quarterly report"}, "quarterly report"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildSearchQuery(tt.args); got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestParseBoosts(t *testing.T) {
	got, err := parseBoosts(map[string]string{"title": "5", "contents": "0.5"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{"title": 5, "contents": 0.5}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseBoosts = %v, want %v", got, want)
	}
	if _, err := parseBoosts(map[string]string{"title": "high"}); err == nil {
		t.Error("expected error for non-numeric boost")
	}
	if got, err := parseBoosts(nil); err != nil || got != nil {
		t.Errorf("parseBoosts(nil) = %v, %v", got, err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeTestConfig(t)
	cfg, loaded, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded != path {
		t.Errorf("loaded path = %q, want %q", loaded, path)
	}
	if cfg.Storage.ManifestPath != filepath.Join(cfg.Storage.IndexDir, "manifest.db") {
		t.Errorf("manifest path default: %q", cfg.Storage.ManifestPath)
	}
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestCollectionsLifecycle(t *testing.T) {
	cfg := writeTestConfig(t)
	docs := writeDocs(t)

	out, err := execute(t, "--config", cfg, "collections", "add", "office", docs)
	if err != nil {
		t.Fatalf("add: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Added collection office") || !strings.Contains(out, "Indexed 3 documents") {
		t.Errorf("add output: %q", out)
	}

	out, err = execute(t, "--config", cfg, "search", "meeting", "--format", "compact")
	if err != nil {
		t.Fatalf("search: %v\n%s", err, out)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 2 {
		t.Errorf("search results: %q", out)
	}

	out, err = execute(t, "--config", cfg, "index", "office", "--full")
	if err != nil {
		t.Fatalf("index: %v\n%s", err, out)
	}
	if !strings.Contains(out, "office: valid, 3 documents") {
		t.Errorf("index output: %q", out)
	}

	out, err = execute(t, "--config", cfg, "collections", "list", "--format", "json")
	if err != nil {
		t.Fatalf("list: %v\n%s", err, out)
	}
	var statuses []collection.Status
	if err := json.Unmarshal([]byte(out), &statuses); err != nil {
		t.Fatalf("list output is not JSON: %v\n%s", err, out)
	}
	if len(statuses) != 1 || statuses[0].Name != "office" || statuses[0].NumberOfDocs != 3 {
		t.Errorf("statuses: %+v", statuses)
	}
	if statuses[0].LastIndexedAt.IsZero() {
		t.Error("last indexed time not persisted")
	}

	if out, err = execute(t, "--config", cfg, "collections", "remove", "office"); err != nil {
		t.Fatalf("remove: %v\n%s", err, out)
	}
	out, err = execute(t, "--config", cfg, "collections", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No collections") {
		t.Errorf("list after remove: %q", out)
	}
}

func TestCommandErrors(t *testing.T) {
	cfg := writeTestConfig(t)
	tests := []struct {
		name string
		args []string
	}{
		{"unknown collection", []string{"index", "nope"}},
		{"remove unknown", []string{"collections", "remove", "nope"}},
		{"missing directory", []string{"collections", "add", "x", filepath.Join(t.TempDir(), "missing")}},
		{"unsupported extension", []string{"collections", "add", "x", t.TempDir(), "--ext", ".exe"}},
		{"bad format", []string{"search", "x", "--format", "xml"}},
		{"bad boost", []string{"search", "x", "--boost", "title=high"}},
		{"search without query", []string{"search"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--config", cfg}, tt.args...)
			if _, err := execute(t, args...); err == nil {
				t.Errorf("%v: expected error", tt.args)
			}
		})
	}
}

func TestSearchViaHTTP(t *testing.T) {
	var got search.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/search" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(search.Response{
			Query:   got.Query,
			Total:   1,
			Results: []collection.Result{{CollectionName: "office", Path: "/docs/a.txt", Score: 1}},
		})
	}))
	defer ts.Close()

	resp, err := searchViaHTTP(context.Background(), ts.URL+"/", search.Request{Query: "meeting", Collections: []string{"office"}})
	if err != nil {
		t.Fatal(err)
	}
	if got.Query != "meeting" || !reflect.DeepEqual(got.Collections, []string{"office"}) {
		t.Errorf("request sent: %+v", got)
	}
	if resp.Total != 1 || resp.Results[0].Path != "/docs/a.txt" {
		t.Errorf("response: %+v", resp)
	}

	fail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer fail.Close()
	if _, err := searchViaHTTP(context.Background(), fail.URL, search.Request{Query: "x"}); err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("expected server error, got %v", err)
	}
}
