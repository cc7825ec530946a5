// Package sitemap validates and expands XML sitemaps and sitemap indexes.
package sitemap

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

// Config bounds sitemap expansion.
type Config struct {
	// MaxDepth is the deepest index level followed; the root is level 0.
	MaxDepth int
	// MaxChildren caps the child sitemaps followed per index.
	MaxChildren int
	// IndexEstimate is the assumed URL count per child sitemap when
	// validating an index.
	IndexEstimate int
}

// Defaults for Config.
const (
	DefaultMaxDepth      = 3
	DefaultMaxChildren   = 10
	DefaultIndexEstimate = 50
)

// Client fetches sitemaps through a crawler.Fetcher.
type Client struct {
	fetcher crawler.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New builds a Client, filling zero Config fields with defaults.
func New(fetcher crawler.Fetcher, cfg Config, logger *zap.Logger) *Client {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.MaxChildren <= 0 {
		cfg.MaxChildren = DefaultMaxChildren
	}
	if cfg.IndexEstimate <= 0 {
		cfg.IndexEstimate = DefaultIndexEstimate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{fetcher: fetcher, cfg: cfg, logger: logger.Named("sitemap")}
}

// Validate fetches sitemapURL and reports whether it is a usable sitemap.
// It never fails: fetch and parse problems yield an invalid descriptor.
func (c *Client) Validate(ctx context.Context, sitemapURL string, source crawler.SitemapSource) crawler.SitemapDescriptor {
	desc := crawler.SitemapDescriptor{URL: sitemapURL, Source: source}
	doc, err := c.load(ctx, sitemapURL)
	if err != nil {
		c.logger.Debug("sitemap probe failed", zap.String("url", sitemapURL), zap.Error(err))
		return desc
	}
	desc.URLCount = doc.EstimatedURLs(c.cfg.IndexEstimate)
	desc.Valid = desc.URLCount > 0
	return desc
}

// Expand resolves sitemapURL into at most limit page URLs, following index
// entries up to MaxDepth levels and MaxChildren children per level. Failing
// child sitemaps are skipped; a failing root is an error.
func (c *Client) Expand(ctx context.Context, sitemapURL string, limit int) ([]string, error) {
	doc, err := c.load(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	out := c.collect(ctx, doc, 0, limit, nil)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *Client) collect(ctx context.Context, doc Document, depth, limit int, out []string) []string {
	if !doc.IsIndex() {
		return append(out, doc.URLs...)
	}
	for i, child := range doc.Children {
		if i >= c.cfg.MaxChildren || len(out) >= limit || ctx.Err() != nil {
			break
		}
		if depth+1 > c.cfg.MaxDepth {
			c.logger.Debug("sitemap depth limit reached", zap.String("url", child))
			break
		}
		childDoc, err := c.load(ctx, child)
		if err != nil {
			c.logger.Warn("child sitemap skipped", zap.String("url", child), zap.Error(err))
			continue
		}
		out = c.collect(ctx, childDoc, depth+1, limit, out)
	}
	return out
}

func (c *Client) load(ctx context.Context, sitemapURL string) (Document, error) {
	resp, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{URL: sitemapURL, Timeout: crawler.RequestTimeout})
	if err != nil {
		return Document{}, fmt.Errorf("fetch sitemap: %w", err)
	}
	if !resp.OK() {
		return Document{}, fmt.Errorf("fetch sitemap: status %d", resp.StatusCode)
	}
	return ParseBytes(resp.Body, isGzipURL(sitemapURL))
}

func isGzipURL(raw string) bool {
	if u, err := url.Parse(raw); err == nil {
		return strings.HasSuffix(strings.ToLower(u.Path), ".gz")
	}
	return strings.HasSuffix(strings.ToLower(raw), ".gz")
}
