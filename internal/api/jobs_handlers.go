package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-scraper/internal/jobs"
	"github.com/JakeFAU/job-scraper/internal/scraper"
)

const maxBodyBytes = 1 << 20

type scrapeRequest struct {
	URL string `json:"url"`
}

type batchRequest struct {
	URLs []string `json:"urls"`
	Save bool     `json:"save"`
}

type batchItem struct {
	URL    string         `json:"url"`
	OK     bool           `json:"ok"`
	Record jobs.JobRecord `json:"record"`
	Error  string         `json:"error,omitempty"`
	JobID  string         `json:"job_id,omitempty"`
}

type updateRequest struct {
	Status *jobs.TrackingStatus `json:"status"`
	Notes  *string              `json:"notes"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func (s *Server) scrapeJob(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if err := scraper.ValidateURL(req.URL); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := s.deps.Scraper.ScrapePage(r.Context(), req.URL)
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": err.Error(),
			"url":   req.URL,
		})
		return
	}

	stored, err := s.save(r.Context(), ownerFrom(r.Context()), page.Record, page.SnapshotURI)
	if err != nil {
		s.logger.Error("save scraped job failed", zap.String("url", req.URL), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to save job")
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"job":      stored,
		"headless": page.Headless,
		"attempts": page.Attempts,
	})
}

func (s *Server) scrapeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.URLs) == 0 {
		s.writeError(w, http.StatusBadRequest, "urls required")
		return
	}
	if limit := s.cfg.Server.MaxBatchSize; limit > 0 && len(req.URLs) > limit {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d urls per batch", limit))
		return
	}
	for i, u := range req.URLs {
		req.URLs[i] = strings.TrimSpace(u)
		if err := scraper.ValidateURL(req.URLs[i]); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("urls[%d]: %v", i, err))
			return
		}
	}

	owner := ownerFrom(r.Context())
	results := s.deps.Batch.ScrapeAll(r.Context(), req.URLs)
	items := make([]batchItem, len(results))
	for i, res := range results {
		item := batchItem{URL: res.URL, OK: res.OK(), Record: res.Record}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		if req.Save && res.OK() {
			stored, err := s.save(r.Context(), owner, res.Record, "")
			if err != nil {
				s.logger.Error("save batch job failed", zap.String("url", res.URL), zap.Error(err))
				item.Error = "scraped but not saved: " + err.Error()
			} else {
				item.JobID = stored.ID
			}
		}
		items[i] = item
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": items})
}

// save persists rec verbatim for owner and announces it. Publish failures are
// logged; the job is already stored by then.
func (s *Server) save(ctx context.Context, owner string, rec jobs.JobRecord, snapshotURI string) (jobs.StoredJob, error) {
	id, err := s.deps.IDs.NewID()
	if err != nil {
		return jobs.StoredJob{}, fmt.Errorf("generate job id: %w", err)
	}
	now := s.deps.Clock.Now()
	stored := jobs.StoredJob{
		ID:          id,
		OwnerID:     owner,
		Record:      rec,
		Tracking:    jobs.TrackingSaved,
		SnapshotURI: snapshotURI,
		DateAdded:   now,
		UpdatedAt:   now,
	}
	if err := s.deps.Store.CreateJob(ctx, stored); err != nil {
		return jobs.StoredJob{}, fmt.Errorf("create job: %w", err)
	}
	s.publish(ctx, stored, now)
	return stored, nil
}

func (s *Server) publish(ctx context.Context, job jobs.StoredJob, at time.Time) {
	if s.deps.Publisher == nil || s.cfg.PubSub.Topic == "" {
		return
	}
	event := jobs.ScrapedEvent{
		JobID:     job.ID,
		OwnerID:   job.OwnerID,
		SourceURL: job.Record.SourceURL,
		Title:     job.Record.Title,
		Company:   job.Record.Company,
		Status:    job.Record.Status,
		ScrapedAt: at,
	}
	if _, err := s.deps.Publisher.Publish(ctx, s.cfg.PubSub.Topic, event); err != nil {
		s.logger.Warn("publish job event failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Store.ListJobs(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": list})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Store.GetJob(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "job_id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) updateJob(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Status == nil && req.Notes == nil {
		s.writeError(w, http.StatusBadRequest, "status or notes required")
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", *req.Status))
		return
	}
	update := jobs.JobUpdate{Tracking: req.Status, Notes: req.Notes}
	job, err := s.deps.Store.UpdateJob(
		r.Context(),
		ownerFrom(r.Context()),
		chi.URLParam(r, "job_id"),
		update,
		s.deps.Clock.Now(),
	)
	if err != nil {
		s.storeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.DeleteJob(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "job_id")); err != nil {
		s.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, jobs.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.logger.Error("job store failed", zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "job store failure")
}
