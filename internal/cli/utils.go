// Package cli provides output formatting for the docsearcher command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/docsearcher/internal/archive"
	"github.com/hyperjump/docsearcher/internal/collection"
	"github.com/hyperjump/docsearcher/internal/search"
	"github.com/hyperjump/docsearcher/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputCompact is one line per item.
	OutputCompact OutputFormat = "compact"
)

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputText, OutputJSON, OutputCompact:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or compact)", s)
	}
}

// SummaryWidth caps summaries in text output.
const SummaryWidth = 200

// WriteSearchResults writes a search response to w in the given format.
func WriteSearchResults(w io.Writer, resp *search.Response, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, resp)
	case OutputCompact:
		for i, r := range resp.Results {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", resp.StartAt+i+1, r.Score, r.CollectionName, r.Path)
		}
		return nil
	default:
		writeSearchResultsText(w, resp)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, resp *search.Response) {
	fmt.Fprintf(w, "\nFound %d results in %dms", resp.Total, resp.QueryTime)
	if resp.Total > len(resp.Results) && len(resp.Results) > 0 {
		fmt.Fprintf(w, " (showing %d-%d)", resp.StartAt+1, resp.StartAt+len(resp.Results))
	}
	fmt.Fprint(w, "\n\n")
	for i, r := range resp.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f | Collection: %s\n", resp.StartAt+i+1, r.Score, r.CollectionName)
		if r.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", r.Title)
		}
		if archivePath, entry, ok := archive.Split(r.Path); ok {
			fmt.Fprintf(w, "Path: %s\nArchive entry: %s\n", archivePath, entry)
		} else {
			fmt.Fprintf(w, "Path: %s\n", r.Path)
		}
		if r.Summary != "" {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(strings.TrimSpace(r.Summary), SummaryWidth))
		}
		fmt.Fprintln(w)
	}
}

// WriteCollections writes collection status lines to w.
func WriteCollections(w io.Writer, cols []collection.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, cols)
	}
	if len(cols) == 0 {
		fmt.Fprintln(w, "No collections.")
		return nil
	}
	for _, c := range cols {
		if format == OutputCompact {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", c.ID, c.Name, c.State, c.NumberOfDocs)
			continue
		}
		fmt.Fprintf(w, "%s (%s)\n", c.Name, c.ID)
		fmt.Fprintf(w, "  state:     %s\n", c.State)
		fmt.Fprintf(w, "  documents: %d\n", c.NumberOfDocs)
		fmt.Fprintf(w, "  size:      %s\n", FormatBytes(c.SizeBytes))
		if !c.LastIndexedAt.IsZero() {
			fmt.Fprintf(w, "  indexed:   %s\n", c.LastIndexedAt.Format(time.RFC3339))
		}
		if c.LastError != "" {
			fmt.Fprintf(w, "  error:     %s\n", c.LastError)
		}
	}
	return nil
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
