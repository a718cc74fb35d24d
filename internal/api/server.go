package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-scraper/internal/config"
	"github.com/JakeFAU/job-scraper/internal/jobs"
	"github.com/JakeFAU/job-scraper/internal/metrics"
	"github.com/JakeFAU/job-scraper/internal/scraper"
)

// PageScraper scrapes one URL.
type PageScraper interface {
	ScrapePage(ctx context.Context, url string) (scraper.Page, error)
}

// BatchScraper scrapes many URLs with positional results.
type BatchScraper interface {
	ScrapeAll(ctx context.Context, urls []string) []scraper.Result
}

// Deps are the collaborators the handlers call into. Publisher may be nil.
type Deps struct {
	Scraper   PageScraper
	Batch     BatchScraper
	Store     jobs.JobStore
	Publisher jobs.Publisher
	IDs       jobs.IDGenerator
	Clock     jobs.Clock
}

// Server wires HTTP handlers to the scrapers and the job store.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
	ready  atomic.Bool
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if deps.Scraper == nil || deps.Batch == nil || deps.Store == nil || deps.IDs == nil || deps.Clock == nil {
		return nil, fmt.Errorf("scraper, batch scraper, store, id generator and clock are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	if d := cfg.RequestTimeout(); d > 0 {
		r.Use(timeoutMiddleware(d))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Use(ownerMiddleware)
		r.Route("/v1/jobs", func(r chi.Router) {
			r.Get("/", s.listJobs)
			r.Post("/scrape", s.scrapeJob)
			r.Post("/scrape/batch", s.scrapeBatch)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Patch("/", s.updateJob)
				r.Delete("/", s.deleteJob)
			})
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetReady flips the readiness probe.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		s.writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
