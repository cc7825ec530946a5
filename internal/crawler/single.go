package crawler

import (
	"context"
	"iter"

	"go.uber.org/zap"
)

// SinglePage fetches exactly one URL.
type SinglePage struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// NewSinglePage builds a SinglePage engine.
func NewSinglePage(fetcher Fetcher, logger *zap.Logger) *SinglePage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SinglePage{fetcher: fetcher, logger: logger.Named("single_page")}
}

// Crawl emits one record for startURL, successful or failed.
func (e *SinglePage) Crawl(ctx context.Context, startURL string) iter.Seq[PageRecord] {
	return func(yield func(PageRecord) bool) {
		if ctx.Err() != nil {
			return
		}
		resp, err := fetchPage(ctx, e.fetcher, startURL)
		if ctx.Err() != nil {
			return
		}
		switch {
		case err != nil:
			e.logger.Warn("page fetch failed", zap.String("url", startURL), zap.Error(err))
			yield(failedRecord(startURL, 0))
		case !resp.OK():
			e.logger.Warn("page returned non-200", zap.String("url", startURL), zap.Int("status", resp.StatusCode))
			yield(failedRecord(startURL, resp.StatusCode))
		default:
			yield(successRecord(startURL, resp))
		}
	}
}

func successRecord(url string, resp FetchResponse) PageRecord {
	rec := PageRecord{
		URL:        url,
		Size:       len(resp.Body),
		Status:     PageStatusSuccess,
		StatusCode: resp.StatusCode,
	}
	if info, err := InspectDocument(url, resp.Body); err == nil {
		rec.Title = info.Title
		rec.HasImages = info.HasImages
		rec.WordCount = info.WordCount
	}
	return rec
}
