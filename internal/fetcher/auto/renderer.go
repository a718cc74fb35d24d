// Package auto renders pages with a cheap static probe first and promotes to
// the headless browser only when the probe looks client-rendered.
package auto

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/job-scraper/internal/fetcher/headless"
	"github.com/JakeFAU/job-scraper/internal/jobs"
	"github.com/JakeFAU/job-scraper/internal/metrics"
)

// Detector decides whether a static probe needs a browser render.
type Detector interface {
	ShouldPromote(probe jobs.Snapshot) (bool, string)
}

// Renderer implements jobs.Renderer on top of a static and a headless renderer.
type Renderer struct {
	static   jobs.Renderer
	headless jobs.Renderer
	detector Detector
	logger   *zap.Logger
}

// New wires the probe renderer, the headless renderer and the promotion detector.
func New(static, headless jobs.Renderer, detector Detector, logger *zap.Logger) (*Renderer, error) {
	if static == nil || headless == nil || detector == nil {
		return nil, fmt.Errorf("static renderer, headless renderer and detector are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{static: static, headless: headless, detector: detector, logger: logger.Named("auto")}, nil
}

// Render probes rawURL statically and promotes to headless rendering when needed.
func (r *Renderer) Render(ctx context.Context, rawURL string) (jobs.Snapshot, error) {
	probe, err := r.static.Render(ctx, rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return jobs.Snapshot{}, err
		}
		r.logger.Info("probe fetch failed", zap.String("url", rawURL), zap.Error(err))
		metrics.ObserveRenderPromotion("probe_failed")
		snap, herr := r.headless.Render(ctx, rawURL)
		if herr != nil {
			return jobs.Snapshot{}, errors.Join(err, herr)
		}
		return snap, nil
	}

	promote, reason := r.detector.ShouldPromote(probe)
	if !promote {
		return probe, nil
	}
	metrics.ObserveRenderPromotion(reason)
	r.logger.Debug("promoting to headless", zap.String("url", rawURL), zap.String("reason", reason))

	snap, err := r.headless.Render(ctx, rawURL)
	if err != nil {
		if errors.Is(err, headless.ErrDisabled) {
			return probe, nil
		}
		r.logger.Warn("headless promotion failed", zap.String("url", rawURL), zap.Error(err))
		return jobs.Snapshot{}, err
	}
	return snap, nil
}
