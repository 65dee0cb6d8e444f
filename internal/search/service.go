// Package search runs one query across several collections and merges the ranked hits.
package search

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/docsearcher/internal/collection"
	"github.com/hyperjump/docsearcher/internal/config"
	"github.com/hyperjump/docsearcher/internal/query"
	"github.com/hyperjump/docsearcher/internal/registry"
)

// Service searches the collections of a registry.
type Service struct {
	registry *registry.Registry
	boosts   *query.BoostFactors
	logger   *zap.Logger

	mu  sync.RWMutex
	cfg config.SearchService
}

// NewService returns a service using cfg's paging limits and boosts. A nil cfg means
// config.DefaultSearchService.
func NewService(reg *registry.Registry, cfg *config.SearchService, logger *zap.Logger) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultSearchService()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	boosts, err := query.NewBoostFactors(cfg.Boosts)
	if err != nil {
		return nil, err
	}
	return &Service{registry: reg, boosts: boosts, logger: logger, cfg: *cfg}, nil
}

// Config returns the current settings, boosts included.
func (s *Service) Config() *config.SearchService {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()
	cfg.Boosts = s.boosts.Snapshot()
	return &cfg
}

// UpdateConfig replaces the settings. Invalid boosts leave everything unchanged.
func (s *Service) UpdateConfig(cfg *config.SearchService) error {
	if err := s.boosts.Set(cfg.Boosts); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = *cfg
	s.mu.Unlock()
	return nil
}

// Boosts returns the shared boost table.
func (s *Service) Boosts() *query.BoostFactors { return s.boosts }

func (s *Service) clamp(n int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.ClampPageSize(n)
}

// Search runs req against the named collections, or all of them, in parallel. Each
// collection returns its best StartAt+PageSize hits; the merged list is paged. A failing
// collection is logged and left out. A malformed query yields an empty response.
func (s *Service) Search(ctx context.Context, req Request) *Response {
	start := time.Now()
	req = req.normalize(s.clamp)
	resp := &Response{
		Query:    req.Query,
		Results:  []collection.Result{},
		StartAt:  req.StartAt,
		PageSize: req.PageSize,
	}
	defer func() { resp.QueryTime = time.Since(start).Milliseconds() }()
	if req.Query == "" {
		return resp
	}

	boosts := s.boosts.Snapshot()
	if len(req.Boosts) > 0 {
		override, err := query.Normalize(req.Boosts)
		if err != nil {
			s.logger.Warn("ignoring invalid boosts in request", zap.Error(err))
		} else {
			boosts = override
		}
	}

	cols := s.resolve(req.Collections)
	limit := req.StartAt + req.PageSize
	lists := make([][]collection.Result, len(cols))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range cols {
		i, c := i, c
		g.Go(func() error {
			hits, err := c.Search(gctx, req.Query, boosts, limit)
			if err != nil {
				if errors.Is(err, query.ErrMalformed) {
					return err
				}
				s.logger.Warn("collection search failed", zap.String("collection", c.Name()), zap.Error(err))
				return nil
			}
			lists[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Info("search aborted", zap.String("query", req.Query), zap.Error(err))
		return resp
	}

	merged := Merge(lists)
	resp.Total = len(merged)
	resp.Results = append(resp.Results, Page(merged, req.StartAt, req.PageSize)...)
	s.logger.Debug("search complete",
		zap.String("query", req.Query),
		zap.Int("collections", len(cols)),
		zap.Int("total", resp.Total))
	return resp
}

// resolve maps names to collections; unknown names are logged and skipped.
func (s *Service) resolve(names []string) []*collection.Collection {
	if len(names) == 0 {
		return s.registry.List()
	}
	seen := make(map[*collection.Collection]bool, len(names))
	out := make([]*collection.Collection, 0, len(names))
	for _, name := range names {
		c, err := s.registry.GetByName(name)
		if err != nil {
			s.logger.Warn("unknown collection in search request", zap.String("name", name))
			continue
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
