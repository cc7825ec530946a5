package crawler

import (
	"context"
	"iter"

	"go.uber.org/zap"
)

// Recursive is a breadth-first crawl bounded by depth and page count that
// never leaves the start URL's scheme and host.
type Recursive struct {
	cfg      CrawlConfig
	fetcher  Fetcher
	pacer    Pacer
	gate     *Gate
	frontier *Frontier
	logger   *zap.Logger
}

// NewRecursive builds a Recursive engine. A nil pacer disables the delay.
func NewRecursive(cfg CrawlConfig, fetcher Fetcher, pacer Pacer, logger *zap.Logger) *Recursive {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pacer == nil {
		pacer = noPause{}
	}
	return &Recursive{
		cfg:      cfg,
		fetcher:  fetcher,
		pacer:    pacer,
		gate:     NewGate(cfg),
		frontier: NewFrontier(cfg.MaxURLs),
		logger:   logger.Named("recursive"),
	}
}

// Crawl walks the site from startURL.
func (e *Recursive) Crawl(ctx context.Context, startURL string) iter.Seq[PageRecord] {
	return func(yield func(PageRecord) bool) {
		start := StripFragment(startURL)
		e.frontier.Push(start, 0)
		yielded := 0
		for yielded < e.cfg.MaxURLs {
			if ctx.Err() != nil {
				return
			}
			url, depth, ok := e.frontier.Pop()
			if !ok {
				e.logger.Debug("frontier exhausted", zap.Int("pages", yielded))
				return
			}
			if depth > e.cfg.MaxDepth || !e.gate.Admit(url) {
				continue
			}

			rec, links := e.visit(ctx, url)
			if ctx.Err() != nil {
				return
			}
			yielded++
			if depth < e.cfg.MaxDepth && yielded < e.cfg.MaxURLs {
				e.enqueue(links, start, depth+1)
			}
			if !yield(rec) {
				return
			}
			if yielded >= e.cfg.MaxURLs {
				return
			}
			if err := e.pacer.Pause(ctx); err != nil {
				return
			}
		}
	}
}

func (e *Recursive) visit(ctx context.Context, url string) (PageRecord, []string) {
	resp, err := fetchPage(ctx, e.fetcher, url)
	if err != nil {
		e.logger.Warn("page fetch failed", zap.String("url", url), zap.Error(err))
		return failedRecord(url, 0), nil
	}
	if !resp.OK() {
		e.logger.Debug("page returned non-200", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return failedRecord(url, resp.StatusCode), nil
	}
	rec := PageRecord{
		URL:        url,
		Size:       len(resp.Body),
		Status:     PageStatusSuccess,
		StatusCode: resp.StatusCode,
	}
	info, err := InspectDocument(url, resp.Body)
	if err != nil {
		e.logger.Debug("page inspection failed", zap.String("url", url), zap.Error(err))
		return rec, nil
	}
	rec.Title = info.Title
	rec.HasImages = info.HasImages
	rec.WordCount = info.WordCount
	if e.cfg.RespectCanonical && info.Canonical != "" && info.Canonical != url {
		e.frontier.Mark(info.Canonical)
	}
	return rec, info.Links
}

func (e *Recursive) enqueue(links []string, start string, depth int) {
	for _, link := range links {
		if !SameDomain(link, start) || e.gate.Visited(link) || e.frontier.Queued(link) {
			continue
		}
		e.frontier.Push(link, depth)
	}
}
