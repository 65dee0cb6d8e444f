package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/docsearcher/internal/archive"
	"github.com/hyperjump/docsearcher/internal/collection"
	"github.com/hyperjump/docsearcher/internal/config"
	"github.com/hyperjump/docsearcher/internal/extract"
	"github.com/hyperjump/docsearcher/internal/persist"
	"github.com/hyperjump/docsearcher/internal/registry"
	"github.com/hyperjump/docsearcher/internal/search"
	"github.com/hyperjump/docsearcher/internal/storage"
)

// app holds the initialized services for one command run.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	gateway  *persist.Gateway
	manifest *storage.SQLiteManifest
	registry *registry.Registry
	search   *search.Service
	index    *config.IndexService
}

// openApp loads the config and persisted state and builds the registry. Collections are
// restored but not initialized; call init for that. newLogger picks the server or the
// command logger.
func openApp(opts *rootOptions, newLogger func(bool) (*zap.Logger, error)) (*app, error) {
	cfg, path, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || opts.debug
	logger, err := newLogger(debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", path), zap.Bool("debug", debug))

	a := &app{cfg: cfg, configPath: path, logger: logger}
	if err := a.build(); err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func (a *app) build() error {
	a.gateway = persist.New(a.cfg.Storage.DataDir, persist.WithLogger(a.logger))
	state := a.gateway.LoadRegistry()
	a.index = a.gateway.LoadIndexService()
	searchCfg := a.gateway.LoadSearchService()

	manifest, err := storage.NewSQLiteManifest(a.cfg.Storage.ManifestPath)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	a.manifest = manifest

	extractors := extract.NewRegistry(state.Extractors,
		extract.WithLogger(a.logger),
		extract.WithSummaryLength(a.index.SummaryLength),
		extract.WithMaxFileSize(a.index.MaxFileSize))
	archives := archive.NewRegistry(state.Archives,
		archive.WithLogger(a.logger),
		archive.WithMaxEntrySize(a.index.MaxArchiveEntrySize))

	cache := state.Cache
	if cache.Size == 0 {
		cache = collection.CachePolicy{Size: a.cfg.Cache.Size, TTL: a.cfg.Cache.TTL}
	}
	a.registry = registry.New(registry.Config{
		IndexBaseDir: a.cfg.Storage.IndexDir,
		Extractors:   extractors,
		Archives:     archives,
		Manifest:     manifest,
		Cache:        cache,
		BatchSize:    a.index.BatchSize,
	}, registry.WithLogger(a.logger))
	if err := a.registry.Restore(state); err != nil {
		a.manifest.Close()
		return fmt.Errorf("failed to restore collections: %w", err)
	}

	svc, err := search.NewService(a.registry, searchCfg, a.logger)
	if err != nil {
		a.logger.Warn("stored search settings rejected, using defaults", zap.Error(err))
		if svc, err = search.NewService(a.registry, nil, a.logger); err != nil {
			a.manifest.Close()
			return err
		}
	}
	a.search = svc

	// Write the service documents back so a fresh install has editable files.
	if err := a.gateway.StoreIndexService(a.index); err != nil {
		a.logger.Warn("failed to persist index settings", zap.Error(err))
	}
	if err := a.gateway.StoreSearchService(a.search.Config()); err != nil {
		a.logger.Warn("failed to persist search settings", zap.Error(err))
	}
	return nil
}

// init opens or builds every collection index. With reindex set, valid collections also get
// an incremental pass.
func (a *app) init(ctx context.Context, reindex bool) error {
	if err := a.registry.Init(ctx); err != nil {
		return err
	}
	if !reindex {
		return nil
	}
	for _, c := range a.registry.List() {
		if !c.IsIndexValid() {
			continue
		}
		if _, err := c.Index(false); err != nil && !errors.Is(err, collection.ErrIndexingInProgress) {
			a.logger.Warn("reindex on start failed", zap.String("name", c.Name()), zap.Error(err))
		}
	}
	return nil
}

// wait blocks until every running task of cols finishes and returns their errors joined.
func (a *app) wait(ctx context.Context, cols []*collection.Collection) error {
	var errs []error
	for _, c := range cols {
		t := c.Task()
		if t == nil {
			continue
		}
		if err := t.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// resolve returns the named collections, or all of them when names is empty.
func (a *app) resolve(names []string) ([]*collection.Collection, error) {
	if len(names) == 0 {
		return a.registry.List(), nil
	}
	cols := make([]*collection.Collection, 0, len(names))
	for _, n := range names {
		c, err := a.registry.GetByName(n)
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", n, err)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

func (a *app) storeRegistry() {
	if err := a.gateway.StoreRegistry(a.registry.State()); err != nil {
		a.logger.Warn("failed to persist collections", zap.Error(err))
	}
}

// close stops indexing, closes every index, persists the registry and releases the manifest.
func (a *app) close(ctx context.Context) {
	if err := a.registry.Close(ctx); err != nil {
		a.logger.Warn("failed to close collections", zap.Error(err))
	}
	a.storeRegistry()
	if err := a.manifest.Close(); err != nil {
		a.logger.Warn("failed to close manifest", zap.Error(err))
	}
	_ = a.logger.Sync()
}
