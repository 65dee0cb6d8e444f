package search

import (
	"strings"

	"github.com/hyperjump/docsearcher/internal/collection"
)

// Request is one search over some or all collections.
type Request struct {
	Query string `json:"query"`
	// Collections names the collections to search; empty means all.
	Collections []string `json:"collections,omitempty"`
	// Boosts overrides the configured field weights for this request.
	Boosts   map[string]float64 `json:"boosts,omitempty"`
	StartAt  int                `json:"start_at"`
	PageSize int                `json:"page_size"`
}

// Response is one page of merged results.
type Response struct {
	Query     string              `json:"query"`
	Results   []collection.Result `json:"results"`
	Total     int                 `json:"total"`
	StartAt   int                 `json:"start_at"`
	PageSize  int                 `json:"page_size"`
	QueryTime int64               `json:"query_time_ms"`
}

// normalize trims the query and clamps paging. clamp maps a requested page size to the
// allowed one.
func (r Request) normalize(clamp func(int) int) Request {
	r.Query = strings.TrimSpace(r.Query)
	if r.StartAt < 0 {
		r.StartAt = 0
	}
	r.PageSize = clamp(r.PageSize)
	return r
}
