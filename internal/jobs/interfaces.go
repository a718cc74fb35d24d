package jobs

import (
	"context"
	"io"
	"time"
)

// Renderer loads a URL and returns its rendered snapshot.
type Renderer interface {
	Render(ctx context.Context, url string) (Snapshot, error)
}

// Scraper turns one posting URL into a record.
type Scraper interface {
	Scrape(ctx context.Context, url string) (JobRecord, error)
}

// JobStore persists scraped jobs per owner.
type JobStore interface {
	CreateJob(ctx context.Context, job StoredJob) error
	GetJob(ctx context.Context, ownerID, id string) (StoredJob, error)
	ListJobs(ctx context.Context, ownerID string) ([]StoredJob, error)
	UpdateJob(ctx context.Context, ownerID, id string, update JobUpdate, at time.Time) (StoredJob, error)
	DeleteJob(ctx context.Context, ownerID, id string) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces stored job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
