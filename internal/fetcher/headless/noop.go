package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/job-scraper/internal/jobs"
)

// ErrDisabled is returned by Noop when headless rendering is switched off.
var ErrDisabled = errors.New("headless renderer not configured")

// Noop implements jobs.Renderer but always fails. It stands in for the
// chromedp renderer when the browser is disabled by configuration.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Render returns ErrDisabled.
func (Noop) Render(_ context.Context, _ string) (jobs.Snapshot, error) {
	return jobs.Snapshot{}, ErrDisabled
}
