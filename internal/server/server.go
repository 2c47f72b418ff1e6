// Package server provides the HTTP API for lens.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/lens/internal/capture"
	"github.com/hyperjump/lens/internal/config"
	"github.com/hyperjump/lens/internal/corpus"
	"github.com/hyperjump/lens/internal/indexer"
	"github.com/hyperjump/lens/internal/storage"
)

// maxUploadBytes bounds capture uploads.
const maxUploadBytes = 32 << 20

// DocumentIndexer adds and removes corpus documents.
type DocumentIndexer interface {
	Ingest(ctx context.Context, paths []string, current *corpus.Index) (*corpus.Index, indexer.IngestReport, error)
	Remove(ctx context.Context, path string, current *corpus.Index) (*corpus.Index, error)
}

// WatchService manages watched directories.
type WatchService interface {
	Directories() []string
	AddDirectory(ctx context.Context, path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the lens API.
type Server struct {
	cfg      *config.Config
	snapshot *corpus.Snapshot
	searcher capture.Searcher
	indexer  DocumentIndexer
	captures *capture.Service
	history  storage.CaptureStore
	watch    WatchService
	logger   *zap.Logger
	server   *http.Server

	configPath string
	configMu   sync.Mutex
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCaptureService enables the capture endpoint.
func WithCaptureService(c *capture.Service) ServerOption {
	return func(s *Server) { s.captures = c }
}

// WithHistory enables the capture history endpoint.
func WithHistory(h storage.CaptureStore) ServerOption {
	return func(s *Server) { s.history = h }
}

// WithWatch enables the watch directory endpoints. Changes are saved to configPath when set.
func WithWatch(w WatchService, configPath string) ServerOption {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// WithLogger sets the logger for the server.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server over the shared index snapshot.
func NewServer(cfg *config.Config, snapshot *corpus.Snapshot, searcher capture.Searcher, idx DocumentIndexer, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		snapshot: snapshot,
		searcher: searcher,
		indexer:  idx,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))
	if s.cfg != nil && s.cfg.Debug {
		r.Use(middleware.Logger)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/capture", s.handleCapture)
		r.Post("/search", s.handleSearch)
		r.Get("/documents", s.handleListDocuments)
		r.Post("/documents", s.handleIngestDocuments)
		r.Delete("/documents", s.handleRemoveDocument)
		r.Get("/pages", s.handleGetPage)
		r.Get("/captures", s.handleListCaptures)
		r.Get("/captures/{id}", s.handleGetCapture)
		r.Get("/status", s.handleStatus)
		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
