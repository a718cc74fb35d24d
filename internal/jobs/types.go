package jobs

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Status is the extractor-assigned posting status.
type Status string

// Posting status values.
const (
	StatusActive Status = "ACTIVE"
	StatusClosed Status = "CLOSED"
)

// Sentinels and markers used in extracted records.
const (
	// NotAvailable fills any field the extractors could not resolve.
	NotAvailable = "N/A"
	// NoDescription is used when a page carries no usable text at all.
	NoDescription = "No detailed description found."
	// MaxDescriptionLength caps descriptions, in characters, before a marker is appended.
	MaxDescriptionLength = 5000

	TruncatedMarker     = "... (truncated)"
	FullTextMarker      = "... (full text fallback)"
	ParsedExcerptMarker = "... (parsed description)"

	// FailedTitle is the title of placeholder records built for failed scrapes.
	FailedTitle = "Scraping Failed"
)

// JobRecord is the structured result of scraping one posting URL.
type JobRecord struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Salary      string `json:"salary"`
	Experience  string `json:"experience"`
	Description string `json:"description"`
	SourceURL   string `json:"sourceUrl"`
	Status      Status `json:"status"`
}

// NewRecord returns a record for sourceURL with every field at its default.
func NewRecord(sourceURL string) JobRecord {
	return JobRecord{
		Title:       NotAvailable,
		Company:     NotAvailable,
		Location:    NotAvailable,
		Salary:      NotAvailable,
		Experience:  NotAvailable,
		Description: NoDescription,
		SourceURL:   sourceURL,
		Status:      StatusActive,
	}
}

// FailureRecord builds the placeholder substituted for a URL whose scrape failed.
func FailureRecord(sourceURL string, err error) JobRecord {
	rec := NewRecord(sourceURL)
	rec.Title = FailedTitle
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	rec.Description = fmt.Sprintf("Could not scrape %s: %s", sourceURL, detail)
	return rec
}

// IsFailure reports whether rec is a placeholder built by FailureRecord.
func (r JobRecord) IsFailure() bool {
	return r.Title == FailedTitle
}

// Truncate caps s at limit characters and appends marker when it had to cut.
// Cutting happens on rune boundaries.
func Truncate(s string, limit int, marker string) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return TruncateRunes(s, limit) + marker
}

// TruncateRunes returns at most the first limit runes of s.
func TruncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}

// Snapshot is a rendered page as seen by the extractors.
type Snapshot struct {
	URL        string
	FinalURL   string
	StatusCode int
	Title      string
	HTML       string
	Text       string
	Headless   bool
	Duration   time.Duration
}

// TrackingStatus is the user-managed status of a saved posting.
type TrackingStatus string

// Tracking status values.
const (
	TrackingSaved     TrackingStatus = "Saved"
	TrackingApplied   TrackingStatus = "Applied"
	TrackingInterview TrackingStatus = "Interview"
	TrackingRejected  TrackingStatus = "Rejected"
)

// Valid reports whether s is one of the known tracking statuses.
func (s TrackingStatus) Valid() bool {
	switch s {
	case TrackingSaved, TrackingApplied, TrackingInterview, TrackingRejected:
		return true
	default:
		return false
	}
}

// StoredJob is a scraped record persisted on behalf of an owner.
type StoredJob struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	Record      JobRecord      `json:"record"`
	Tracking    TrackingStatus `json:"tracking_status"`
	Notes       string         `json:"notes"`
	SnapshotURI string         `json:"snapshot_uri,omitempty"`
	DateAdded   time.Time      `json:"date_added"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// JobUpdate carries the mutable fields of a stored job. Nil fields are left untouched.
type JobUpdate struct {
	Tracking *TrackingStatus
	Notes    *string
}

// ErrNotFound is returned by stores when a job does not exist for the owner.
var ErrNotFound = errors.New("job not found")

// ScrapedEvent is published after a scraped record has been stored.
type ScrapedEvent struct {
	JobID     string    `json:"job_id"`
	OwnerID   string    `json:"owner_id"`
	SourceURL string    `json:"source_url"`
	Title     string    `json:"title"`
	Company   string    `json:"company"`
	Status    Status    `json:"status"`
	ScrapedAt time.Time `json:"scraped_at"`
}
