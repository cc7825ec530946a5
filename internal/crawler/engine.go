package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RequestTimeout is the fixed per-request fetch timeout used by engines.
const RequestTimeout = 30 * time.Second

// ErrUnsupportedMode is returned by Factory.New for modes it cannot build.
var ErrUnsupportedMode = errors.New("unsupported crawl mode")

type noPause struct{}

func (noPause) Pause(context.Context) error { return nil }

// PacerFunc builds a Pacer for a request delay.
type PacerFunc func(delay time.Duration) Pacer

// Factory builds single-use engines for a mode.
type Factory struct {
	Fetcher  Fetcher
	Expander SitemapExpander
	NewPacer PacerFunc
	// RecordFailures makes sitemap crawls emit failed records instead of
	// skipping URLs that could not be fetched.
	RecordFailures bool
	Logger         *zap.Logger
}

// New returns a fresh engine for mode. expander overrides the factory's
// sitemap expander when non-nil (used for uploaded sitemaps).
func (f Factory) New(mode Mode, cfg CrawlConfig, expander SitemapExpander) (Engine, error) {
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var pacer Pacer = noPause{}
	if f.NewPacer != nil {
		pacer = f.NewPacer(cfg.RequestDelay)
	}
	switch mode {
	case ModeSinglePage:
		return NewSinglePage(f.Fetcher, logger), nil
	case ModeRecursive:
		return NewRecursive(cfg, f.Fetcher, pacer, logger), nil
	case ModeSitemapURL, ModeSitemapUpload:
		if expander == nil {
			expander = f.Expander
		}
		if expander == nil {
			return nil, fmt.Errorf("%w: %s requires a sitemap expander", ErrUnsupportedMode, mode)
		}
		return NewSitemap(cfg, f.Fetcher, expander, pacer, f.RecordFailures, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
}

func fetchPage(ctx context.Context, fetcher Fetcher, url string) (FetchResponse, error) {
	resp, err := fetcher.Fetch(ctx, FetchRequest{URL: url, Timeout: RequestTimeout})
	if err != nil {
		return FetchResponse{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	return resp, nil
}

func failedRecord(url string, statusCode int) PageRecord {
	return PageRecord{URL: url, Status: PageStatusFailed, StatusCode: statusCode}
}
