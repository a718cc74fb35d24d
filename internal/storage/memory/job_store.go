// Package memory keeps jobs and blobs in process memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/job-scraper/internal/jobs"
)

// JobStore implements jobs.JobStore in memory. Every lookup is scoped to the
// owner, so a job saved by one owner is invisible to the rest.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]jobs.StoredJob
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]jobs.StoredJob)}
}

// CreateJob stores a new job. IDs must be unique.
func (s *JobStore) CreateJob(_ context.Context, job jobs.StoredJob) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches one of the owner's jobs.
func (s *JobStore) GetJob(_ context.Context, ownerID, id string) (jobs.StoredJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok || job.OwnerID != ownerID {
		return jobs.StoredJob{}, jobs.ErrNotFound
	}
	return job, nil
}

// ListJobs returns the owner's jobs, most recently added first.
func (s *JobStore) ListJobs(_ context.Context, ownerID string) ([]jobs.StoredJob, error) {
	s.mu.RLock()
	out := make([]jobs.StoredJob, 0)
	for _, job := range s.jobs {
		if job.OwnerID == ownerID {
			out = append(out, job)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateAdded.Equal(out[j].DateAdded) {
			return out[i].DateAdded.After(out[j].DateAdded)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// UpdateJob applies the non-nil fields of update and stamps UpdatedAt.
func (s *JobStore) UpdateJob(_ context.Context, ownerID, id string, update jobs.JobUpdate, at time.Time) (jobs.StoredJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.OwnerID != ownerID {
		return jobs.StoredJob{}, jobs.ErrNotFound
	}
	if update.Tracking != nil {
		job.Tracking = *update.Tracking
	}
	if update.Notes != nil {
		job.Notes = *update.Notes
	}
	job.UpdatedAt = at
	s.jobs[id] = job
	return job, nil
}

// DeleteJob removes one of the owner's jobs.
func (s *JobStore) DeleteJob(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.OwnerID != ownerID {
		return jobs.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}
