package crawler

import (
	"context"
	"iter"

	"go.uber.org/zap"
)

// Sitemap crawls the URLs listed in a sitemap, in document order.
type Sitemap struct {
	cfg            CrawlConfig
	fetcher        Fetcher
	expander       SitemapExpander
	pacer          Pacer
	gate           *Gate
	recordFailures bool
	logger         *zap.Logger
}

// NewSitemap builds a Sitemap engine.
func NewSitemap(
	cfg CrawlConfig,
	fetcher Fetcher,
	expander SitemapExpander,
	pacer Pacer,
	recordFailures bool,
	logger *zap.Logger,
) *Sitemap {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pacer == nil {
		pacer = noPause{}
	}
	return &Sitemap{
		cfg:            cfg,
		fetcher:        fetcher,
		expander:       expander,
		pacer:          pacer,
		gate:           NewGate(cfg),
		recordFailures: recordFailures,
		logger:         logger.Named("sitemap"),
	}
}

// Crawl expands sitemapURL and fetches each listed page. Pages that cannot
// be fetched are skipped unless failures are recorded.
func (e *Sitemap) Crawl(ctx context.Context, sitemapURL string) iter.Seq[PageRecord] {
	return func(yield func(PageRecord) bool) {
		urls, err := e.expander.Expand(ctx, sitemapURL, e.cfg.MaxURLs)
		if err != nil {
			e.logger.Warn("sitemap expansion failed", zap.String("sitemap", sitemapURL), zap.Error(err))
			return
		}
		if len(urls) > e.cfg.MaxURLs {
			urls = urls[:e.cfg.MaxURLs]
		}
		e.logger.Debug("sitemap expanded", zap.String("sitemap", sitemapURL), zap.Int("urls", len(urls)))

		for i, url := range urls {
			if ctx.Err() != nil {
				return
			}
			if !e.gate.Admit(url) {
				e.logger.Debug("url rejected by crawl rules", zap.String("url", url))
				continue
			}
			rec, ok := e.visit(ctx, url)
			if ctx.Err() != nil {
				return
			}
			if ok && !yield(rec) {
				return
			}
			if i < len(urls)-1 {
				if err := e.pacer.Pause(ctx); err != nil {
					return
				}
			}
		}
	}
}

func (e *Sitemap) visit(ctx context.Context, url string) (PageRecord, bool) {
	resp, err := fetchPage(ctx, e.fetcher, url)
	if err != nil {
		e.logger.Warn("page fetch failed", zap.String("url", url), zap.Error(err))
		return failedRecord(url, 0), e.recordFailures
	}
	if !resp.OK() {
		e.logger.Debug("page returned non-200", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return failedRecord(url, resp.StatusCode), e.recordFailures
	}
	info := InspectLight(resp.Body)
	return PageRecord{
		URL:        url,
		Title:      info.Title,
		Size:       len(resp.Body),
		HasImages:  info.HasImages,
		WordCount:  info.WordCount,
		Status:     PageStatusSuccess,
		StatusCode: resp.StatusCode,
	}, true
}
