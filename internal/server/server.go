// Package server provides the HTTP API for docsearcher.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/docsearcher/internal/collection"
	"github.com/hyperjump/docsearcher/internal/config"
	"github.com/hyperjump/docsearcher/internal/persist"
	"github.com/hyperjump/docsearcher/internal/registry"
	"github.com/hyperjump/docsearcher/internal/search"
)

// Server is the HTTP server for the docsearcher API.
type Server struct {
	registry *registry.Registry
	search   *search.Service
	gateway  *persist.Gateway
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server

	// storeMu serializes registry snapshots so stores land in mutation order.
	storeMu sync.Mutex
	pending sync.WaitGroup
}

// NewServer creates a server with the given dependencies. gateway may be nil, in which case
// mutations are not persisted.
func NewServer(
	reg *registry.Registry,
	svc *search.Service,
	gateway *persist.Gateway,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		registry: reg,
		search:   svc,
		gateway:  gateway,
		config:   cfg,
		logger:   logger,
	}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(s.requestLogger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Get("/collections", s.handleListCollections)
		r.Post("/collections", s.handleAddCollection)
		r.Delete("/collections/{id}", s.handleDeleteCollection)
		r.Post("/collections/{id}/index", s.handleIndexCollection)
		r.Post("/collections/{id}/stop", s.handleStopCollection)
		r.Get("/collections/{id}/status", s.handleCollectionStatus)
		r.Post("/collections/{id}/flush", s.handleFlushCache)
	})
	r.Get("/health", s.handleHealth)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server and waits for pending registry stores.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.pending.Wait()
	return err
}

// storeRegistry persists the current registry state. Failures are logged; the in-memory
// state stays authoritative.
func (s *Server) storeRegistry() {
	if s.gateway == nil {
		return
	}
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	if err := s.gateway.StoreRegistry(s.registry.State()); err != nil {
		s.logger.Warn("failed to persist collections", zap.Error(err))
	}
}

// storeWhenDone persists the registry once t finishes, so LastIndexedAt survives a restart.
func (s *Server) storeWhenDone(t *collection.Task) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		<-t.Done()
		s.storeRegistry()
	}()
}
