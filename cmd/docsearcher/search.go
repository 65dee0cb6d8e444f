package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperjump/docsearcher/internal/cli"
	"github.com/hyperjump/docsearcher/internal/search"
	"github.com/hyperjump/docsearcher/pkg/utils"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	collections []string
	pageSize    int
	startAt     int
	format      string
	boosts      map[string]string
	serverURL   string
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var so searchOptions
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search collections",
		Long: `Search one or more collections and print the merged, ranked results.

A single word matches that term; several words match as a phrase. Field weights
can be overridden per query with --boost.

Examples:
  docsearcher search invoice
  docsearcher search "quarterly report" --collections finance,legal
  docsearcher search harvest --boost title=5 --boost contents=1 --format json
  docsearcher search harvest --server http://localhost:8080`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runSearch(ctx, cmd, opts, buildSearchQuery(args), so)
		},
	}
	cmd.Flags().StringSliceVarP(&so.collections, "collections", "c", nil, "Collections to search (default: all)")
	cmd.Flags().IntVarP(&so.pageSize, "page-size", "n", 0, "Results per page (default from search settings)")
	cmd.Flags().IntVar(&so.startAt, "start", 0, "Offset of the first result")
	cmd.Flags().StringVarP(&so.format, "format", "f", "text", "Output format: text, json, compact")
	cmd.Flags().StringToStringVar(&so.boosts, "boost", nil, "Field weight override, e.g. title=5 (repeatable)")
	cmd.Flags().StringVar(&so.serverURL, "server", "", "Query a running server at this URL instead of the local indexes")
	return cmd
}

// buildSearchQuery joins positional args into the query text.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// parseBoosts converts field=weight flag values.
func parseBoosts(raw map[string]string) (map[string]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(raw))
	for field, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("boost %s: %q is not a number", field, v)
		}
		out[field] = f
	}
	return out, nil
}

func runSearch(ctx context.Context, cmd *cobra.Command, opts *rootOptions, text string, so searchOptions) error {
	format, err := cli.ParseFormat(so.format)
	if err != nil {
		return err
	}
	boosts, err := parseBoosts(so.boosts)
	if err != nil {
		return err
	}
	req := search.Request{
		Query:       text,
		Collections: so.collections,
		Boosts:      boosts,
		StartAt:     so.startAt,
		PageSize:    so.pageSize,
	}

	var resp *search.Response
	if so.serverURL != "" {
		resp, err = searchViaHTTP(ctx, so.serverURL, req)
		if err != nil {
			return err
		}
	} else {
		a, err := openApp(opts, utils.NewCommandLogger)
		if err != nil {
			return err
		}
		defer a.close(context.Background())
		if err := a.init(ctx, false); err != nil {
			a.logger.Warn("no collection could be initialized", zap.Error(err))
		}
		// Collections without an index are built by init; search once they are done.
		if err := a.wait(ctx, a.registry.List()); err != nil {
			a.logger.Warn("indexing failed", zap.Error(err))
		}
		resp = a.search.Search(ctx, req)
	}
	return cli.WriteSearchResults(cmd.OutOrStdout(), resp, format)
}

func searchViaHTTP(ctx context.Context, serverURL string, req search.Request) (*search.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(serverURL, "/")+"/api/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out search.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
