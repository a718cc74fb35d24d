package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/job-scraper/internal/extract"
	"github.com/JakeFAU/job-scraper/internal/jobs"
	"github.com/JakeFAU/job-scraper/internal/metrics"
	"github.com/JakeFAU/job-scraper/internal/retry"
)

// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("invalid url")

// ValidateURL checks that raw is an absolute http or https URL with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// Archive stores the rendered HTML of every successful scrape.
type Archive struct {
	Blobs       jobs.BlobStore
	Hasher      jobs.Hasher
	Prefix      string
	ContentType string
}

func (a *Archive) enabled() bool {
	return a != nil && a.Blobs != nil && a.Hasher != nil
}

func (a *Archive) path(rawURL, hash string) string {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = strings.ToLower(u.Hostname())
	}
	prefix := strings.Trim(a.Prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", host, hash)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, host, hash)
}

// PageConfig controls PageScraper behavior.
type PageConfig struct {
	Selectors extract.Selectors
	Retry     retry.Policy
	// Archive is optional. Archive failures are logged and never fail a scrape.
	Archive *Archive
}

// Page is the full outcome of one successful scrape.
type Page struct {
	Record      jobs.JobRecord
	SnapshotURI string
	Headless    bool
	// Fallback lists the fields that sent the page through the heuristic extractor.
	Fallback []string
	Attempts int
}

// PageScraper implements jobs.Scraper over a renderer.
type PageScraper struct {
	renderer jobs.Renderer
	cfg      PageConfig
	logger   *zap.Logger
}

// NewPageScraper validates the selector set and builds a PageScraper.
func NewPageScraper(renderer jobs.Renderer, cfg PageConfig, logger *zap.Logger) (*PageScraper, error) {
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	cfg.Selectors = cfg.Selectors.WithDefaults()
	if err := cfg.Selectors.Validate(); err != nil {
		return nil, fmt.Errorf("invalid selectors: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Archive != nil && cfg.Archive.ContentType == "" {
		cfg.Archive.ContentType = "text/html; charset=utf-8"
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = logger.Named("retry")
	}
	return &PageScraper{renderer: renderer, cfg: cfg, logger: logger.Named("page")}, nil
}

// Scrape renders rawURL and extracts its record. Once the retry budget is
// spent the last error is returned and no record is synthesized.
func (s *PageScraper) Scrape(ctx context.Context, rawURL string) (jobs.JobRecord, error) {
	page, err := s.ScrapePage(ctx, rawURL)
	if err != nil {
		return jobs.JobRecord{}, err
	}
	return page.Record, nil
}

type attemptResult struct {
	snap    jobs.Snapshot
	record  jobs.JobRecord
	outcome extract.Outcome
}

// ScrapePage is Scrape with the rendering details callers may want to keep.
func (s *PageScraper) ScrapePage(ctx context.Context, rawURL string) (Page, error) {
	if err := ValidateURL(rawURL); err != nil {
		return Page{}, err
	}

	site := metrics.SanitizeSite(rawURL)
	metrics.IncInflightScrapes()
	defer metrics.DecInflightScrapes()
	start := time.Now()

	policy := s.cfg.Retry
	attempts := 0
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.ObserveScrapeRetry(site)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}

	res, err := retry.Do(ctx, policy, func(ctx context.Context) (attemptResult, error) {
		attempts++
		return s.attempt(ctx, rawURL)
	})
	if err != nil {
		metrics.ObserveScrape(site, "failure", time.Since(start))
		s.logger.Error("scrape failed",
			zap.String("url", rawURL),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return Page{}, fmt.Errorf("scrape %s: %w", rawURL, err)
	}

	for _, field := range res.outcome.Missing {
		metrics.ObserveExtractionFallback(field)
	}
	metrics.ObserveScrape(site, "success", time.Since(start))

	page := Page{
		Record:   res.record,
		Headless: res.snap.Headless,
		Fallback: res.outcome.Missing,
		Attempts: attempts,
	}
	page.SnapshotURI = s.archive(ctx, rawURL, res.snap)

	s.logger.Debug("page scraped",
		zap.String("url", rawURL),
		zap.String("title", page.Record.Title),
		zap.String("status", string(page.Record.Status)),
		zap.Bool("headless", page.Headless),
		zap.Strings("fallback", page.Fallback),
		zap.Int("attempts", attempts),
	)
	return page, nil
}

func (s *PageScraper) attempt(ctx context.Context, rawURL string) (attemptResult, error) {
	snap, err := s.renderer.Render(ctx, rawURL)
	if err != nil {
		return attemptResult{}, fmt.Errorf("render: %w", err)
	}
	rec, outcome, err := extract.Compose(snap, rawURL, s.cfg.Selectors)
	if err != nil {
		return attemptResult{}, fmt.Errorf("extract: %w", err)
	}
	return attemptResult{snap: snap, record: rec, outcome: outcome}, nil
}

func (s *PageScraper) archive(ctx context.Context, rawURL string, snap jobs.Snapshot) string {
	a := s.cfg.Archive
	if !a.enabled() || snap.HTML == "" {
		return ""
	}
	body := []byte(snap.HTML)
	hash, err := a.Hasher.Hash(body)
	if err != nil {
		metrics.ObserveSnapshot("error")
		s.logger.Warn("snapshot hash failed", zap.String("url", rawURL), zap.Error(err))
		return ""
	}
	uri, err := a.Blobs.PutObject(ctx, a.path(rawURL, hash), a.ContentType, bytes.NewReader(body))
	if err != nil {
		metrics.ObserveSnapshot("error")
		s.logger.Warn("snapshot archive failed", zap.String("url", rawURL), zap.Error(err))
		return ""
	}
	metrics.ObserveSnapshot("stored")
	return uri
}
