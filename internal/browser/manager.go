// Package browser owns the lifecycle of the shared headless Chrome instance
// used for page rendering.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-scraper/internal/metrics"
)

// Default launch settings.
const (
	DefaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36"
	DefaultWindowWidth   = 1280
	DefaultWindowHeight  = 800
	defaultLaunchTimeout = 30 * time.Second
)

// ErrNotLaunched is returned by Browser methods once the instance has been released.
var ErrNotLaunched = errors.New("browser is not running")

// Config controls how Chrome is launched.
type Config struct {
	ExecPath      string
	Headless      bool
	NoSandbox     bool
	UserAgent     string
	WindowWidth   int
	WindowHeight  int
	ExtraFlags    []string
	LaunchTimeout time.Duration
}

// Browser is a launched Chrome instance. Pages opened from it share the
// process but not cookies or storage.
type Browser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	launchedAt  time.Time
}

// NewPage opens a tab inside a fresh browser context. The returned cancel
// closes the tab and disposes of the browser context.
func (b *Browser) NewPage() (context.Context, context.CancelFunc, error) {
	if !b.alive() {
		return nil, nil, ErrNotLaunched
	}
	ctx, cancel := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())
	return ctx, cancel, nil
}

// LaunchedAt reports when the browser process was started.
func (b *Browser) LaunchedAt() time.Time {
	return b.launchedAt
}

func (b *Browser) alive() bool {
	return b != nil && b.ctx.Err() == nil
}

func (b *Browser) close(logger *zap.Logger) {
	if err := chromedp.Cancel(b.ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("graceful browser shutdown failed", zap.Error(err))
	}
	b.cancel()
	b.allocCancel()
}

// Manager lazily launches one shared Browser and hands it to every caller
// until Release. Launches are serialized; a failed launch is not memoized.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	current *Browser
}

// NewManager validates cfg and returns a Manager. No browser is started yet.
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if cfg.WindowWidth < 0 || cfg.WindowHeight < 0 {
		return nil, fmt.Errorf("window size must be >= 0")
	}
	if cfg.WindowWidth == 0 {
		cfg.WindowWidth = DefaultWindowWidth
	}
	if cfg.WindowHeight == 0 {
		cfg.WindowHeight = DefaultWindowHeight
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = defaultLaunchTimeout
	}
	for _, flag := range cfg.ExtraFlags {
		if name, _ := parseFlag(flag); name == "" {
			return nil, fmt.Errorf("invalid browser flag %q", flag)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, logger: logger.Named("browser")}, nil
}

// Acquire returns the running browser, launching it first if needed.
// Concurrent callers wait for a single launch and share its result.
func (m *Manager) Acquire(ctx context.Context) (*Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.alive() {
		return m.current, nil
	}
	if m.current != nil {
		m.logger.Warn("browser exited unexpectedly, relaunching")
		m.current.close(m.logger)
		m.current = nil
		metrics.SetBrowserUp(false)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire browser: %w", err)
	}

	b, err := m.launch(ctx)
	if err != nil {
		return nil, err
	}
	m.current = b
	return b, nil
}

// Release shuts the browser down. Calling it again, or before any Acquire, is a no-op.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}
	m.current.close(m.logger)
	m.current = nil
	metrics.SetBrowserUp(false)
	m.logger.Info("browser released")
}

// Running reports whether a live browser is currently memoized.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.alive()
}

func (m *Manager) launch(ctx context.Context) (*Browser, error) {
	start := time.Now()
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), m.allocatorOptions()...)
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(m.logger.Sugar().Debugf),
	)

	launchCtx, launchCancel := context.WithTimeout(ctx, m.cfg.LaunchTimeout)
	defer launchCancel()

	// The first Run on browserCtx starts the process; it must not be tied to
	// the caller's context or the browser would die with the request.
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(browserCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-launchCtx.Done():
		err = launchCtx.Err()
	}
	if err != nil {
		cancel()
		allocCancel()
		metrics.ObserveBrowserLaunch("error", time.Since(start))
		m.logger.Error("browser launch failed", zap.Error(err))
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	metrics.ObserveBrowserLaunch("success", time.Since(start))
	metrics.SetBrowserUp(true)
	m.logger.Info("browser launched",
		zap.Duration("duration", time.Since(start)),
		zap.Bool("headless", m.cfg.Headless),
	)
	return &Browser{
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		launchedAt:  start,
	}, nil
}

func (m *Manager) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(m.cfg.WindowWidth, m.cfg.WindowHeight),
		chromedp.UserAgent(m.cfg.UserAgent),
	)
	if m.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if m.cfg.NoSandbox {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}
	for _, flag := range m.cfg.ExtraFlags {
		name, value := parseFlag(flag)
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseFlag splits "--name=value" style flags. Bare names become boolean true.
func parseFlag(flag string) (string, any) {
	flag = strings.TrimLeft(strings.TrimSpace(flag), "-")
	name, value, ok := strings.Cut(flag, "=")
	name = strings.TrimSpace(name)
	if !ok {
		return name, true
	}
	switch strings.ToLower(value) {
	case "true":
		return name, true
	case "false":
		return name, false
	}
	return name, value
}
