package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/docsearcher/internal/collection"
	"github.com/hyperjump/docsearcher/internal/search"
)

func sampleResponse() *search.Response {
	return &search.Response{
		Query:     "harvest",
		Total:     5,
		StartAt:   0,
		PageSize:  3,
		QueryTime: 4,
		Results: []collection.Result{
			{CollectionName: "letters", Score: 1.5, Title: "Autumn", Path: "/data/a.txt", Summary: "the harvest was good"},
			{CollectionName: "reports", Score: 0.5, Path: "/data/q1.txt"},
			{CollectionName: "reports", Score: 0.25, Path: "/data/old.zip!2019/q4.txt"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"JSON", OutputJSON, false},
		{"compact", OutputCompact, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteSearchResults_text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Found 5 results", "showing 1-3", "Collection: letters", "Title: Autumn", "Path: /data/q1.txt", "the harvest was good",
		"Path: /data/old.zip\n", "Archive entry: 2019/q4.txt"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults_json(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded search.Response
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded.Total != 5 || len(decoded.Results) != 3 || decoded.Results[0].CollectionName != "letters" {
		t.Errorf("decoded: %+v", decoded)
	}
}

func TestWriteSearchResults_compact(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, sampleResponse(), OutputCompact); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "1\t1.5000\tletters\t/data/a.txt") {
		t.Errorf("compact output: %q", lines)
	}
}

func TestWriteCollections(t *testing.T) {
	cols := []collection.Status{
		{ID: "id1", Name: "letters", State: "valid", NumberOfDocs: 12, SizeBytes: 2048},
		{ID: "id2", Name: "broken", State: "invalid", LastError: "index corrupt"},
	}
	var buf bytes.Buffer
	if err := WriteCollections(&buf, cols, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"letters (id1)", "documents: 12", "2.0 KiB", "error:     index corrupt"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	_ = WriteCollections(&buf, nil, OutputText)
	if !strings.Contains(buf.String(), "No collections") {
		t.Errorf("empty list: %q", buf.String())
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:       "0 B",
		1023:    "1023 B",
		1024:    "1.0 KiB",
		1536:    "1.5 KiB",
		5 << 20: "5.0 MiB",
	}
	for in, want := range tests {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
