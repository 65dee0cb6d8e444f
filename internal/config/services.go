package config

import (
	"github.com/hyperjump/docsearcher/internal/archive"
	"github.com/hyperjump/docsearcher/internal/extract"
	"github.com/hyperjump/docsearcher/internal/query"
)

// ServiceVersion is the current layout version of the service documents.
const ServiceVersion = 1

// IndexService holds indexing settings shared by every collection.
type IndexService struct {
	Version int `toml:"version" yaml:"version"`
	// MaxFileSize makes larger files metadata-only. Zero means no limit.
	MaxFileSize         int64 `toml:"max_file_size" yaml:"max_file_size"`
	MaxArchiveEntrySize int64 `toml:"max_archive_entry_size" yaml:"max_archive_entry_size"`
	SummaryLength       int   `toml:"summary_length" yaml:"summary_length"`
	BatchSize           int   `toml:"batch_size" yaml:"batch_size"`
	// ReindexOnStart runs an incremental pass over every valid collection at startup.
	ReindexOnStart bool `toml:"reindex_on_start" yaml:"reindex_on_start"`
}

// DefaultIndexService returns the index settings used when none are stored.
func DefaultIndexService() *IndexService {
	return &IndexService{
		Version:             ServiceVersion,
		MaxFileSize:         100 << 20,
		MaxArchiveEntrySize: archive.DefaultMaxEntrySize,
		SummaryLength:       extract.DefaultSummaryLength,
		BatchSize:           100,
	}
}

// SearchService holds search settings.
type SearchService struct {
	Version         int                `toml:"version" yaml:"version"`
	DefaultPageSize int                `toml:"default_page_size" yaml:"default_page_size"`
	MaxPageSize     int                `toml:"max_page_size" yaml:"max_page_size"`
	Boosts          map[string]float64 `toml:"boosts" yaml:"boosts"`
}

// DefaultSearchService returns the search settings used when none are stored.
func DefaultSearchService() *SearchService {
	return &SearchService{
		Version:         ServiceVersion,
		DefaultPageSize: 10,
		MaxPageSize:     100,
		Boosts:          query.DefaultBoosts(),
	}
}

// ClampPageSize maps n into [1, MaxPageSize], using DefaultPageSize for n <= 0.
func (s *SearchService) ClampPageSize(n int) int {
	if n <= 0 {
		n = s.DefaultPageSize
	}
	if n <= 0 {
		n = 10
	}
	if s.MaxPageSize > 0 && n > s.MaxPageSize {
		n = s.MaxPageSize
	}
	return n
}
