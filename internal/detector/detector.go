// Package detector picks a crawl mode for a site by probing robots.txt,
// well-known sitemap paths and the root page's markup.
package detector

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

// DefaultProbeTimeout bounds each individual probe.
const DefaultProbeTimeout = 30 * time.Second

// CommonSitemapPaths are probed in order after robots.txt.
var CommonSitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap/sitemap.xml",
	"/wp-sitemap.xml",
	"/sitemap1.xml",
}

var sitemapLinkPattern = regexp.MustCompile(`(?i)<link[^>]*rel=["']sitemap["'][^>]*href=["']([^"']+)["']`)

// SitemapValidator checks a candidate sitemap URL.
type SitemapValidator interface {
	Validate(ctx context.Context, sitemapURL string, source crawler.SitemapSource) crawler.SitemapDescriptor
}

// Config tunes probing.
type Config struct {
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// Detector selects a crawl mode for a start URL.
type Detector struct {
	fetcher   crawler.Fetcher
	validator SitemapValidator
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Detector.
func New(fetcher crawler.Fetcher, validator SitemapValidator, cfg Config, logger *zap.Logger) *Detector {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		fetcher:   fetcher,
		validator: validator,
		cfg:       cfg,
		logger:    logger.Named("detector"),
	}
}

// Detection is the full outcome of a detection run.
type Detection struct {
	Mode        crawler.Mode
	Sitemap     *crawler.SitemapDescriptor
	RobotsFound bool
	// Root is the root page response; nil when it could not be fetched.
	Root *crawler.FetchResponse
}

// Detect returns the suggested mode and, for sitemap_url, the sitemap found.
// Probe failures count as "not found"; Detect never fails.
func (d *Detector) Detect(ctx context.Context, startURL string) (crawler.Mode, *crawler.SitemapDescriptor) {
	det := d.detect(ctx, startURL)
	return det.Mode, det.Sitemap
}

func (d *Detector) detect(ctx context.Context, startURL string) Detection {
	logger := d.logger.With(zap.String("url", startURL))
	det := Detection{Mode: crawler.ModeRecursive}

	det.Root = d.probe(ctx, startURL)
	if det.Root != nil {
		stats := ClassifyLinks(det.Root.Body, startURL)
		if stats.SinglePage() {
			logger.Info("single page detected",
				zap.Int("links", stats.Total),
				zap.Float64("navigation_ratio", stats.NavigationRatio()),
				zap.Int("internal_paths", stats.InternalPaths),
			)
			det.Mode = crawler.ModeSinglePage
			return det
		}
	}

	domain := crawler.Domain(startURL)
	if domain == "" {
		return det
	}

	var robotsSitemap string
	robotsSitemap, det.RobotsFound = d.robotsSitemap(ctx, domain)
	if robotsSitemap != "" {
		if desc := d.validate(ctx, robotsSitemap, crawler.SitemapSourceRobots); desc != nil {
			det.Mode, det.Sitemap = crawler.ModeSitemapURL, desc
			return det
		}
	}

	for _, path := range CommonSitemapPaths {
		if ctx.Err() != nil {
			return det
		}
		if desc := d.validate(ctx, domain+path, crawler.SitemapSourceCommon); desc != nil {
			det.Mode, det.Sitemap = crawler.ModeSitemapURL, desc
			return det
		}
	}

	if det.Root != nil {
		if href := sitemapLink(det.Root.Body, startURL); href != "" {
			if desc := d.validate(ctx, href, crawler.SitemapSourceHTMLLink); desc != nil {
				det.Mode, det.Sitemap = crawler.ModeSitemapURL, desc
				return det
			}
		}
	}

	logger.Info("no sitemap found, falling back to recursive crawl")
	return det
}

// probe fetches url and returns the response only for a 200.
func (d *Detector) probe(ctx context.Context, url string) *crawler.FetchResponse {
	resp, err := d.fetcher.Fetch(ctx, crawler.FetchRequest{URL: url, Timeout: d.cfg.ProbeTimeout})
	if err != nil {
		d.logger.Debug("probe failed", zap.String("url", url), zap.Error(err))
		return nil
	}
	if !resp.OK() {
		d.logger.Debug("probe returned non-200", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return nil
	}
	return &resp
}

// robotsSitemap returns the first Sitemap directive of domain's robots.txt
// and whether robots.txt answered 200.
func (d *Detector) robotsSitemap(ctx context.Context, domain string) (string, bool) {
	resp := d.probe(ctx, domain+"/robots.txt")
	if resp == nil {
		return "", false
	}
	robots, err := robotstxt.FromStatusAndBytes(http.StatusOK, resp.Body)
	if err != nil {
		d.logger.Debug("robots.txt unparsable", zap.String("domain", domain), zap.Error(err))
		return "", true
	}
	if len(robots.Sitemaps) == 0 {
		return "", true
	}
	base, err := crawler.ParseHTTPURL(domain)
	if err != nil {
		return "", true
	}
	resolved, ok := crawler.Resolve(base, robots.Sitemaps[0])
	if !ok {
		return "", true
	}
	return resolved, true
}

func (d *Detector) validate(ctx context.Context, sitemapURL string, source crawler.SitemapSource) *crawler.SitemapDescriptor {
	probeCtx, cancel := context.WithTimeout(ctx, d.cfg.ProbeTimeout)
	defer cancel()
	desc := d.validator.Validate(probeCtx, sitemapURL, source)
	if !desc.Valid {
		return nil
	}
	d.logger.Info("sitemap found",
		zap.String("sitemap", desc.URL),
		zap.String("source", string(desc.Source)),
		zap.Int("url_count", desc.URLCount),
	)
	return &desc
}

func sitemapLink(body []byte, pageURL string) string {
	m := sitemapLinkPattern.FindSubmatch(body)
	if m == nil {
		return ""
	}
	base, err := crawler.ParseHTTPURL(pageURL)
	if err != nil {
		return ""
	}
	resolved, ok := crawler.Resolve(base, string(m[1]))
	if !ok {
		return ""
	}
	return resolved
}
