package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/docsearcher/internal/collection"
	"github.com/hyperjump/docsearcher/internal/registry"
	"github.com/hyperjump/docsearcher/internal/search"
)

type collectionView struct {
	collection.Config
	Status collection.Status `json:"status"`
}

func view(c *collection.Collection) collectionView {
	return collectionView{Config: c.Config(), Status: c.Status()}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Strings("collections", req.Collections))
	s.respondJSON(w, http.StatusOK, s.search.Search(r.Context(), req))
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	cols := s.registry.List()
	out := make([]collectionView, 0, len(cols))
	for _, c := range cols {
		out = append(out, view(c))
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"collections": out})
}

type addCollectionRequest struct {
	Name          string                  `json:"name"`
	Description   string                  `json:"description"`
	ContentDir    string                  `json:"content_dir"`
	Extensions    []string                `json:"extensions"`
	IndexArchives bool                    `json:"index_archives"`
	Cache         *collection.CachePolicy `json:"cache,omitempty"`
}

func (s *Server) handleAddCollection(w http.ResponseWriter, r *http.Request) {
	var req addCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.ContentDir == "" {
		s.respondError(w, http.StatusBadRequest, "name and content_dir are required")
		return
	}
	abs, err := filepath.Abs(req.ContentDir)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid content_dir")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "content_dir is not a directory")
		return
	}
	if err := s.registry.CheckExtensions(req.Extensions); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	c := collection.New(collection.Config{
		Name:          req.Name,
		Description:   req.Description,
		ContentDir:    abs,
		Extensions:    req.Extensions,
		IndexArchives: req.IndexArchives,
		Cache:         req.Cache,
	})
	if _, err := s.registry.Add(c); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("collection added", zap.String("id", c.ID()), zap.String("name", req.Name), zap.String("content_dir", abs))
	if err := c.Init(r.Context()); err != nil {
		s.logger.Warn("collection init failed", zap.String("id", c.ID()), zap.Error(err))
	}
	s.storeRegistry()
	if t := c.Task(); t != nil {
		s.storeWhenDone(t)
	}
	s.respondJSON(w, http.StatusCreated, view(c))
}

func (s *Server) collectionByID(w http.ResponseWriter, r *http.Request) (*collection.Collection, bool) {
	c, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, "collection not found")
		return nil, false
	}
	return c, true
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collectionByID(w, r)
	if !ok {
		return
	}
	id := c.ID()
	err := s.registry.Delete(r.Context(), c)
	if errors.Is(err, registry.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "collection not found")
		return
	}
	s.storeRegistry()
	if err != nil {
		s.logger.Error("collection deletion incomplete", zap.String("id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleIndexCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collectionByID(w, r)
	if !ok {
		return
	}
	full := false
	if v := r.URL.Query().Get("full"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "full must be a boolean")
			return
		}
		full = b
	}
	task, err := c.Index(full)
	if errors.Is(err, collection.ErrIndexingInProgress) {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.storeWhenDone(task)
	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{"id": c.ID(), "status": "indexing", "full": full})
}

func (s *Server) handleStopCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collectionByID(w, r)
	if !ok {
		return
	}
	c.StopRequest()
	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{"id": c.ID(), "indexing": c.IsIndexingInProgress()})
}

func (s *Server) handleCollectionStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collectionByID(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, c.Status())
}

// handleFlushCache accepts a collection id or name. An id always targets that collection,
// even when another one shares its name.
func (s *Server) handleFlushCache(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "id")
	if c, err := s.registry.Get(key); err == nil {
		c.FlushCache()
		s.respondJSON(w, http.StatusOK, map[string]string{"id": c.ID(), "name": c.Name(), "status": "flushed"})
		return
	}
	if err := s.registry.FlushCache(key); err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"name": key, "status": "flushed"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "collections": s.registry.Len()})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
