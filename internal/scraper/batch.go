package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/job-scraper/internal/jobs"
	"github.com/JakeFAU/job-scraper/internal/metrics"
)

// DefaultConcurrency is the number of scrapes a batch runs at once.
const DefaultConcurrency = 3

// FailurePolicy decides what a batch reports for a URL whose scrape failed.
type FailurePolicy string

// Failure policies.
const (
	// FailurePropagate leaves Record zero and reports only Err.
	FailurePropagate FailurePolicy = "propagate"
	// FailurePlaceholder substitutes a "Scraping Failed" record alongside Err.
	FailurePlaceholder FailurePolicy = "placeholder"
)

// ParseFailurePolicy maps a configuration value to a FailurePolicy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case FailurePropagate:
		return FailurePropagate, nil
	case FailurePlaceholder, "":
		return FailurePlaceholder, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// Result is the terminal outcome for one URL of a batch.
type Result struct {
	URL    string         `json:"url"`
	Record jobs.JobRecord `json:"record"`
	Err    error          `json:"-"`
}

// OK reports whether the scrape succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// BatchConfig controls BatchScraper behavior.
type BatchConfig struct {
	// Concurrency caps in-flight scrapes. Values below 1 use DefaultConcurrency.
	Concurrency int
	// URLTimeout bounds each URL including its retries. Zero disables it.
	URLTimeout time.Duration
	Failure    FailurePolicy
}

// BatchScraper runs a Scraper over many URLs.
type BatchScraper struct {
	scraper jobs.Scraper
	cfg     BatchConfig
	logger  *zap.Logger
}

// NewBatchScraper builds a BatchScraper around scraper.
func NewBatchScraper(scraper jobs.Scraper, cfg BatchConfig, logger *zap.Logger) (*BatchScraper, error) {
	if scraper == nil {
		return nil, fmt.Errorf("scraper is required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Failure == "" {
		cfg.Failure = FailurePlaceholder
	}
	if cfg.Failure != FailurePropagate && cfg.Failure != FailurePlaceholder {
		return nil, fmt.Errorf("unknown failure policy %q", cfg.Failure)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchScraper{scraper: scraper, cfg: cfg, logger: logger.Named("batch")}, nil
}

// Policy returns the failure policy applied to every URL.
func (b *BatchScraper) Policy() FailurePolicy {
	return b.cfg.Failure
}

// ScrapeAll scrapes every URL and returns one Result per input, in input order.
// It returns only after every URL reached a terminal outcome. A failing URL
// never cancels its siblings; canceling ctx fails the URLs still waiting.
func (b *BatchScraper) ScrapeAll(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))
	if len(urls) == 0 {
		return results
	}

	// A plain group: a failed scrape must not cancel the others.
	var g errgroup.Group
	g.SetLimit(b.cfg.Concurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			results[i] = b.scrapeOne(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	failures := 0
	for _, r := range results {
		if !r.OK() {
			failures++
		}
	}
	metrics.ObserveBatch(len(urls), failures)
	b.logger.Info("batch finished",
		zap.Int("urls", len(urls)),
		zap.Int("failures", failures),
		zap.String("failure_policy", string(b.cfg.Failure)),
	)
	return results
}

func (b *BatchScraper) scrapeOne(ctx context.Context, rawURL string) Result {
	if err := ctx.Err(); err != nil {
		return b.failed(rawURL, err)
	}
	if b.cfg.URLTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.URLTimeout)
		defer cancel()
	}

	rec, err := b.scraper.Scrape(ctx, rawURL)
	if err != nil {
		b.logger.Warn("batch url failed", zap.String("url", rawURL), zap.Error(err))
		return b.failed(rawURL, err)
	}
	return Result{URL: rawURL, Record: rec}
}

func (b *BatchScraper) failed(rawURL string, err error) Result {
	res := Result{URL: rawURL, Err: err}
	if b.cfg.Failure == FailurePlaceholder {
		res.Record = jobs.FailureRecord(rawURL, err)
	}
	return res
}
