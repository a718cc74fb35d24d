package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-scraper/internal/browser"
)

type failingSource struct {
	err error
}

func (s failingSource) Acquire(context.Context) (*browser.Browser, error) {
	return nil, s.err
}

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{}, nil, nil, nil)
	require.ErrorContains(t, err, "browser source is required")

	_, err = NewChromedp(Config{MaxParallel: -1}, failingSource{}, nil, nil)
	require.ErrorContains(t, err, "max parallel")

	fetcher, err := NewChromedp(Config{MaxParallel: 2}, failingSource{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, cap(fetcher.limiter))
	require.Equal(t, browser.DefaultWindowWidth, fetcher.cfg.ViewportWidth)
	require.Equal(t, browser.DefaultWindowHeight, fetcher.cfg.ViewportHeight)
	require.Equal(t, browser.DefaultUserAgent, fetcher.cfg.UserAgent)
}

func TestFetcherTimeoutDefaults(t *testing.T) {
	t.Parallel()

	fetcher := &Fetcher{}
	require.Equal(t, defaultNavigationTimeout, fetcher.navTimeout())
	require.Equal(t, defaultNetworkIdleTimeout, fetcher.idleTimeout())
	require.Equal(t, defaultSettleDelay, fetcher.settleDelay())

	fetcher.cfg = Config{NavigationTimeout: time.Second, NetworkIdleTimeout: 2 * time.Second, SettleDelay: 3 * time.Millisecond}
	require.Equal(t, time.Second, fetcher.navTimeout())
	require.Equal(t, 2*time.Second, fetcher.idleTimeout())
	require.Equal(t, 3*time.Millisecond, fetcher.settleDelay())
}

func TestRenderSurfacesBrowserFailure(t *testing.T) {
	t.Parallel()

	launchErr := errors.New("chrome missing")
	fetcher, err := NewChromedp(Config{}, failingSource{err: launchErr}, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = fetcher.Render(context.Background(), "https://example.com/job")
	require.ErrorIs(t, err, launchErr)
	require.ErrorContains(t, err, "acquire browser")
}

func TestSlotAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	fetcher, err := NewChromedp(Config{MaxParallel: 1}, failingSource{}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, fetcher.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, fetcher.acquire(ctx), context.DeadlineExceeded)

	fetcher.release()
	require.NoError(t, fetcher.acquire(context.Background()))
}

func TestIdleWatcher(t *testing.T) {
	t.Parallel()

	w := newIdleWatcher()
	w.captureEvent(&page.EventLifecycleEvent{Name: "load"})
	w.captureEvent(&page.EventLifecycleEvent{Name: "networkIdle"})
	w.captureEvent(&page.EventLifecycleEvent{Name: "networkIdle"})

	require.NoError(t, w.drain().Do(context.Background()))

	var reached bool
	require.NoError(t, w.wait(5*time.Millisecond, &reached).Do(context.Background()))
	require.False(t, reached, "drained signal must not count")

	w.captureEvent(&page.EventLifecycleEvent{Name: "networkIdle"})
	require.NoError(t, w.wait(time.Second, &reached).Do(context.Background()))
	require.True(t, reached)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, w.wait(time.Second, &reached).Do(ctx), context.Canceled)
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.capture(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  503,
			URL:     "https://example.com/rendered",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 200, URL: "https://cdn.example.com/app.js"},
	})
	status, headers, url := meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, 503, status)
	require.Equal(t, "abc", headers.Get("X-Request-ID"))
	require.Equal(t, "https://example.com/rendered", url)

	meta = newResponseMeta()
	status, _, url = meta.snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://final", url)

	_, _, url = meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, "https://req", url)
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	var err error = &StatusError{URL: "https://example.com", Code: 502}
	var statusErr *StatusError
	require.ErrorAs(t, fmt.Errorf("wrapped: %w", err), &statusErr)
	require.Equal(t, 502, statusErr.Code)
	require.Contains(t, err.Error(), "502")
}

func TestNoopRendererError(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().Render(context.Background(), "https://example.com")
	require.ErrorIs(t, err, ErrDisabled)
}

func TestRenderAgainstChrome(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser render in short mode")
	}
	var chromePath string
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			chromePath = path
			break
		}
	}
	if chromePath == "" {
		t.Skip("chrome not installed")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Go Engineer</title></head><body>
<h1 class="job-title">Go Engineer</h1><p>Salary: 100k</p>
<script>document.body.insertAdjacentHTML('beforeend', '<p id="late">rendered by script</p>')</script>
</body></html>`))
	}))
	defer srv.Close()

	manager, err := browser.NewManager(browser.Config{ExecPath: chromePath, Headless: true, NoSandbox: true}, zap.NewNop())
	require.NoError(t, err)
	defer manager.Release()

	fetcher, err := NewChromedp(Config{SettleDelay: 10 * time.Millisecond, NetworkIdleTimeout: 2 * time.Second}, manager, nil, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	snap, err := fetcher.Render(ctx, srv.URL)
	require.NoError(t, err)
	require.True(t, snap.Headless)
	require.Equal(t, "Go Engineer", snap.Title)
	require.Contains(t, snap.HTML, `id="late"`)
	require.Contains(t, snap.Text, "rendered by script")
	require.Equal(t, http.StatusOK, snap.StatusCode)
}
