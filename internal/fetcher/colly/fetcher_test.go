package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
)

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: false, Timeout: time.Second}, nil)
	collector := f.buildCollector()
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.True(t, collector.IgnoreRobotsTxt)

	f = New(Config{RespectRobots: true}, nil)
	require.False(t, f.buildCollector().IgnoreRobotsTxt)
	require.Equal(t, defaultTimeout, f.cfg.Timeout)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{}, nil)
	var (
		resp     *colly.Response
		fetchErr error
	)
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &resp, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	want := &colly.Response{StatusCode: http.StatusOK, Body: []byte("body")}
	hooks.onResponse(want)
	require.Same(t, want, resp)

	hooks.onError(&colly.Response{StatusCode: http.StatusBadGateway}, errors.New("Bad Gateway"))
	require.ErrorContains(t, fetchErr, "status 502")

	hooks.onError(nil, errors.New("dial tcp: refused"))
	require.EqualError(t, fetchErr, "dial tcp: refused")
}

func TestSnapshotFromResponse(t *testing.T) {
	t.Parallel()

	resp := &colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte(`<html><head><title> Data Engineer </title><script>x()</script></head><body><h1>Data Engineer</h1><p>Location: Berlin</p></body></html>`),
		Request:    &colly.Request{URL: mustParseURL(t, "https://jobs.example.com/final")},
	}
	snap, err := snapshotFromResponse("https://jobs.example.com/1", resp)
	require.NoError(t, err)
	require.Equal(t, "https://jobs.example.com/1", snap.URL)
	require.Equal(t, "https://jobs.example.com/final", snap.FinalURL)
	require.Equal(t, "Data Engineer", snap.Title)
	require.Equal(t, "Data Engineer\n\nLocation: Berlin", snap.Text)
	require.False(t, snap.Headless)
}

func TestRenderAgainstServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Go Developer</title></head><body><h1 class="job-title">Go Developer</h1></body></html>`))
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second}, nil)
	snap, err := f.Render(context.Background(), srv.URL+"/jobs/1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, snap.StatusCode)
	require.Equal(t, "Go Developer", snap.Title)
	require.Contains(t, snap.HTML, "job-title")

	again, err := f.Render(context.Background(), srv.URL+"/jobs/1")
	require.NoError(t, err, "same URL must be fetchable again")
	require.Equal(t, snap.Title, again.Title)

	_, err = f.Render(context.Background(), srv.URL+"/missing")
	require.ErrorContains(t, err, "status 404")
}

func TestRenderCanceled(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Config{Timeout: 5 * time.Second}, nil).Render(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
