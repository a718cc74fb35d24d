// Package robots gates headless renders on the target host's robots.txt.
// The static renderer relies on colly's own robots handling instead.
package robots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/job-scraper/internal/jobs"
)

const maxRobotsBytes = 1 << 20

// ErrDisallowed is returned by Renderer when robots.txt forbids the URL.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Policy caches robots.txt per scheme and host.
type Policy struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
	cache     sync.Map
}

// New builds a Policy that matches groups against userAgent. A nil client
// uses one with a ten second timeout.
func New(userAgent string, client *http.Client, logger *zap.Logger) *Policy {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{client: client, userAgent: userAgent, logger: logger}
}

// Allowed reports whether rawURL may be fetched. Hosts whose robots.txt
// cannot be retrieved are allowed.
func (p *Policy) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	data, err := p.load(ctx, parsed)
	if err != nil {
		p.logger.Warn("robots fetch failed; allowing access", zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	target := parsed.EscapedPath()
	if target == "" {
		target = "/"
	}
	return data.TestAgent(target, p.userAgent)
}

func (p *Policy) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	key := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	if data, ok := p.cache.Load(key); ok {
		cached, assertOK := data.(*robotstxt.RobotsData)
		if !assertOK {
			return nil, fmt.Errorf("robots cache type mismatch: %T", data)
		}
		return cached, nil
	}

	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			p.logger.Debug("failed to close robots response body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	p.cache.Store(key, data)
	return data, nil
}

// Renderer refuses URLs the policy disallows and delegates the rest.
type Renderer struct {
	next   jobs.Renderer
	policy *Policy
}

// Guard wraps next with policy.
func Guard(next jobs.Renderer, policy *Policy) *Renderer {
	return &Renderer{next: next, policy: policy}
}

// Render implements jobs.Renderer.
func (r *Renderer) Render(ctx context.Context, rawURL string) (jobs.Snapshot, error) {
	if !r.policy.Allowed(ctx, rawURL) {
		return jobs.Snapshot{}, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
	}
	return r.next.Render(ctx, rawURL)
}
