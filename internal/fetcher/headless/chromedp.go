// Package headless renders job posting pages in headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-scraper/internal/browser"
	"github.com/JakeFAU/job-scraper/internal/jobs"
	"github.com/JakeFAU/job-scraper/internal/metrics"
	"github.com/JakeFAU/job-scraper/internal/policy/ratelimit"
)

// Defaults applied when Config leaves a field unset.
const (
	defaultNavigationTimeout  = 60 * time.Second
	defaultNetworkIdleTimeout = 15 * time.Second
	defaultSettleDelay        = 3 * time.Second
)

// Config controls the behavior of the headless renderer.
type Config struct {
	// MaxParallel caps open tabs across all callers. Zero means unlimited.
	MaxParallel        int
	UserAgent          string
	ViewportWidth      int
	ViewportHeight     int
	NavigationTimeout  time.Duration
	NetworkIdleTimeout time.Duration
	SettleDelay        time.Duration
}

// BrowserSource hands out the shared browser.
type BrowserSource interface {
	Acquire(ctx context.Context) (*browser.Browser, error)
}

// StatusError reports a document response the server marked as failed.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}

// Fetcher implements jobs.Renderer using chromedp and headless Chrome.
type Fetcher struct {
	cfg        Config
	browsers   BrowserSource
	politeness *ratelimit.Limiter
	limiter    chan struct{}
	logger     *zap.Logger
}

// NewChromedp creates a headless renderer that opens one isolated tab per render.
func NewChromedp(cfg Config, browsers BrowserSource, politeness *ratelimit.Limiter, logger *zap.Logger) (*Fetcher, error) {
	if browsers == nil {
		return nil, fmt.Errorf("browser source is required")
	}
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = browser.DefaultWindowWidth
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = browser.DefaultWindowHeight
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = browser.DefaultUserAgent
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		cfg:        cfg,
		browsers:   browsers,
		politeness: politeness,
		limiter:    limiter,
		logger:     logger.Named("headless"),
	}, nil
}

// Render navigates to rawURL in a fresh browser context, lets the page settle,
// scrolls once to trigger lazy content and captures the DOM and visible text.
func (f *Fetcher) Render(ctx context.Context, rawURL string) (jobs.Snapshot, error) {
	if err := f.politeness.Wait(ctx, rawURL); err != nil {
		return jobs.Snapshot{}, err
	}
	if err := f.acquire(ctx); err != nil {
		return jobs.Snapshot{}, err
	}
	defer f.release()

	b, err := f.browsers.Acquire(ctx)
	if err != nil {
		return jobs.Snapshot{}, fmt.Errorf("acquire browser: %w", err)
	}
	pageCtx, closePage, err := b.NewPage()
	if err != nil {
		return jobs.Snapshot{}, fmt.Errorf("open page: %w", err)
	}
	defer closePage()

	taskCtx, cancel := context.WithTimeout(pageCtx, f.navTimeout())
	defer cancel()
	stopForward := context.AfterFunc(ctx, cancel)
	defer stopForward()

	meta := newResponseMeta()
	idle := newIdleWatcher()
	chromedp.ListenTarget(taskCtx, func(ev any) {
		meta.captureEvent(ev)
		idle.captureEvent(ev)
	})

	start := time.Now()
	result, err := f.run(taskCtx, rawURL, idle)
	if err != nil {
		metrics.ObserveRender("headless", "error", time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return jobs.Snapshot{}, fmt.Errorf("render %s: %w", rawURL, errors.Join(ctxErr, err))
		}
		return jobs.Snapshot{}, fmt.Errorf("render %s: %w", rawURL, err)
	}

	status, _, finalURL := meta.snapshotWithFallbacks(rawURL, result.finalURL)
	if status >= http.StatusInternalServerError {
		metrics.ObserveRender("headless", "error", time.Since(start))
		return jobs.Snapshot{}, &StatusError{URL: rawURL, Code: status}
	}
	metrics.ObserveRender("headless", "success", time.Since(start))
	f.logger.Debug("page rendered",
		zap.String("url", rawURL),
		zap.String("final_url", finalURL),
		zap.Int("status", status),
		zap.Bool("network_idle", result.idle),
		zap.Duration("duration", time.Since(start)),
	)

	return jobs.Snapshot{
		URL:        rawURL,
		FinalURL:   finalURL,
		StatusCode: status,
		Title:      result.title,
		HTML:       result.html,
		Text:       result.text,
		Headless:   true,
		Duration:   time.Since(start),
	}, nil
}

type renderResult struct {
	title    string
	html     string
	text     string
	finalURL string
	idle     bool
}

func (f *Fetcher) run(ctx context.Context, rawURL string, idle *idleWatcher) (renderResult, error) {
	var (
		res     renderResult
		scrollY float64
	)
	actions := []chromedp.Action{
		f.setupAction(),
		idle.drain(),
		chromedp.Navigate(rawURL),
		idle.wait(f.idleTimeout(), &res.idle),
		chromedp.Sleep(f.settleDelay()),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`(window.scrollBy(0, window.innerHeight), window.scrollY)`, &scrollY),
		chromedp.Title(&res.title),
		chromedp.Location(&res.finalURL),
		chromedp.OuterHTML("html", &res.html, chromedp.ByQuery),
		chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &res.text),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return renderResult{}, fmt.Errorf("chromedp run: %w", err)
	}
	return res, nil
}

func (f *Fetcher) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return fmt.Errorf("enable lifecycle events: %w", err)
		}
		if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		err := emulation.SetDeviceMetricsOverride(int64(f.cfg.ViewportWidth), int64(f.cfg.ViewportHeight), 1, false).Do(ctx)
		if err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (f *Fetcher) idleTimeout() time.Duration {
	if f.cfg.NetworkIdleTimeout > 0 {
		return f.cfg.NetworkIdleTimeout
	}
	return defaultNetworkIdleTimeout
}

func (f *Fetcher) settleDelay() time.Duration {
	if f.cfg.SettleDelay > 0 {
		return f.cfg.SettleDelay
	}
	return defaultSettleDelay
}

// idleWatcher turns the page's networkIdle lifecycle event into a signal.
type idleWatcher struct {
	ch chan struct{}
}

func newIdleWatcher() *idleWatcher {
	return &idleWatcher{ch: make(chan struct{}, 1)}
}

func (w *idleWatcher) captureEvent(ev any) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok || e.Name != "networkIdle" {
		return
	}
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// drain discards an idle signal left over from the blank start page.
func (w *idleWatcher) drain() chromedp.Action {
	return chromedp.ActionFunc(func(context.Context) error {
		select {
		case <-w.ch:
		default:
		}
		return nil
	})
}

// wait blocks until network idle or timeout. Pages that never go idle are
// still captured, so the timeout is not an error.
func (w *idleWatcher) wait(timeout time.Duration, reached *bool) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-w.ch:
			*reached = true
			return nil
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("wait for network idle: %w", ctx.Err())
		}
	})
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.headers.Clone(), m.url
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, url := m.snapshot()
	switch {
	case finalURL != "":
		url = finalURL
	case url != "":
	default:
		url = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}
