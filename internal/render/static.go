package render

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/metrics"
)

// Static renders pages from their server-sent HTML without running scripts.
type Static struct {
	fetcher crawler.Fetcher
	logger  *zap.Logger
}

// NewStatic builds a Static renderer over fetcher.
func NewStatic(fetcher crawler.Fetcher, logger *zap.Logger) *Static {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Static{fetcher: fetcher, logger: logger.Named("render_static")}
}

// Render implements crawler.Renderer.
func (s *Static) Render(ctx context.Context, url string, includeImages bool) (crawler.RenderedPage, error) {
	start := time.Now()
	page, err := s.render(ctx, url, includeImages)
	metrics.ObserveRender("static", err, time.Since(start))
	return page, err
}

func (s *Static) render(ctx context.Context, url string, includeImages bool) (crawler.RenderedPage, error) {
	resp, err := s.fetcher.Fetch(ctx, crawler.FetchRequest{URL: url, Timeout: crawler.RequestTimeout})
	if err != nil {
		return crawler.RenderedPage{}, fmt.Errorf("render %s: %w", url, err)
	}
	if !resp.OK() {
		return crawler.RenderedPage{}, fmt.Errorf("render %s: status %d", url, resp.StatusCode)
	}
	page, err := Clean(url, resp.Body, includeImages)
	if err != nil {
		return crawler.RenderedPage{}, fmt.Errorf("render %s: %w", url, err)
	}
	s.logger.Debug("page rendered", zap.String("url", url), zap.Int("images", len(page.Images)))
	return page, nil
}
