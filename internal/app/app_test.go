package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-scraper/internal/config"
	"github.com/JakeFAU/job-scraper/internal/jobs"
	"github.com/JakeFAU/job-scraper/internal/scraper"
)

const postingHTML = `<html><head><title>Backend Engineer</title></head><body>
<h1 class="job-title">Backend Engineer</h1>
<div class="company-name">Acme Inc</div>
<div class="job-location">Remote</div>
<div class="job-description-content">Build scraping pipelines in Go.</div>
</body></html>`

func staticConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Browser.Enabled = false
	cfg.Scraper.RenderMode = config.RenderStatic
	cfg.Scraper.RetryAttempts = 1
	cfg.Politeness.PerHostRPS = 0
	cfg.Static.RespectRobots = false
	return cfg
}

func postingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, postingHTML)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := staticConfig(t)
	cfg.Scraper.RenderMode = "psychic"

	_, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "render_mode")
}

func TestNew_HeadlessModeRequiresBrowser(t *testing.T) {
	cfg := staticConfig(t)
	cfg.Scraper.RenderMode = config.RenderHeadless

	_, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestNew_PostgresFailsFastOnBadDSN(t *testing.T) {
	cfg := staticConfig(t)
	cfg.Storage.Backend = "postgres"
	cfg.Storage.Postgres.DSN = "::not a dsn::"

	_, err := New(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "job store init failed")
}

func TestApp_StaticScrapeEndToEnd(t *testing.T) {
	srv := postingServer(t)
	cfg := staticConfig(t)
	cfg.Snapshots.Backend = "local"
	cfg.Snapshots.LocalDir = t.TempDir()

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	page, err := a.Scraper().ScrapePage(context.Background(), srv.URL+"/jobs/1")
	require.NoError(t, err)
	require.Equal(t, "Backend Engineer", page.Record.Title)
	require.Equal(t, "Acme Inc", page.Record.Company)
	require.Equal(t, jobs.StatusActive, page.Record.Status)
	require.True(t, strings.HasPrefix(page.SnapshotURI, "file://"), page.SnapshotURI)

	path := strings.TrimPrefix(page.SnapshotURI, "file://")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "Acme Inc")
	require.True(t, strings.HasPrefix(path, filepath.Clean(cfg.Snapshots.LocalDir)))
}

func TestApp_BatchUsesPlaceholders(t *testing.T) {
	srv := postingServer(t)
	cfg := staticConfig(t)

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	require.Equal(t, scraper.FailurePlaceholder, a.Batch().Policy())
	results := a.Batch().ScrapeAll(context.Background(), []string{
		srv.URL + "/jobs/1",
		"http://127.0.0.1:1/unreachable",
	})
	require.Len(t, results, 2)
	require.True(t, results[0].OK())
	require.False(t, results[1].OK())
	require.Equal(t, jobs.FailedTitle, results[1].Record.Title)
}

func TestApp_ServeAndShutdown(t *testing.T) {
	cfg := staticConfig(t)
	cfg.PubSub.Backend = "memory"
	cfg.Snapshots.Backend = "memory"

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/readyz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("serve did not return after cancel")
	}

	_, err = http.Get(base + "/healthz")
	require.Error(t, err, "listener should be closed")
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	a, err := New(context.Background(), staticConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
