// Package collyfetcher renders pages without a browser using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/job-scraper/internal/extract"
	"github.com/JakeFAU/job-scraper/internal/jobs"
	"github.com/JakeFAU/job-scraper/internal/metrics"
	"github.com/JakeFAU/job-scraper/internal/policy/ratelimit"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Fetcher implements jobs.Renderer with a plain HTTP GET. No JavaScript runs,
// so the snapshot text is derived from the served markup.
type Fetcher struct {
	cfg           Config
	politeness    *ratelimit.Limiter
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, politeness *ratelimit.Limiter) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	// clones share the visited store; retries must be able to fetch a URL again
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		politeness:    politeness,
		baseCollector: c,
	}
}

// Render fetches rawURL and builds a snapshot from the response body.
func (f *Fetcher) Render(ctx context.Context, rawURL string) (jobs.Snapshot, error) {
	if err := f.politeness.Wait(ctx, rawURL); err != nil {
		return jobs.Snapshot{}, err
	}
	var (
		resp     *colly.Response
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector()
	f.configureCollectorHooks(collector, &resp, &fetchErr)

	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		metrics.ObserveRender("static", "error", time.Since(start))
		return jobs.Snapshot{}, err
	}
	if resp == nil {
		metrics.ObserveRender("static", "error", time.Since(start))
		return jobs.Snapshot{}, fmt.Errorf("colly fetch %s: no response", rawURL)
	}

	snap, err := snapshotFromResponse(rawURL, resp)
	if err != nil {
		metrics.ObserveRender("static", "error", time.Since(start))
		return jobs.Snapshot{}, err
	}
	snap.Duration = time.Since(start)
	metrics.ObserveRender("static", "success", snap.Duration)
	return snap, nil
}

func (f *Fetcher) buildCollector() *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.SetRequestTimeout(f.cfg.Timeout)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, resp **colly.Response, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*resp = r
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func snapshotFromResponse(rawURL string, r *colly.Response) (jobs.Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return jobs.Snapshot{}, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	finalURL := rawURL
	if r.Request != nil && r.Request.URL != nil {
		finalURL = r.Request.URL.String()
	}
	return jobs.Snapshot{
		URL:        rawURL,
		FinalURL:   finalURL,
		StatusCode: r.StatusCode,
		Title:      strings.TrimSpace(doc.Find("title").First().Text()),
		HTML:       string(r.Body),
		Text:       extract.VisibleText(doc),
		Headless:   false,
	}, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
