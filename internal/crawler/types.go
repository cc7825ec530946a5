package crawler

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

// ErrInvalidConfig is returned when a CrawlConfig is out of range.
var ErrInvalidConfig = errors.New("invalid crawl config")

// Mode selects how a site is enumerated.
type Mode string

// Supported crawl modes.
const (
	ModeAuto          Mode = "auto"
	ModeSitemapURL    Mode = "sitemap_url"
	ModeSitemapUpload Mode = "sitemap_upload"
	ModeRecursive     Mode = "recursive"
	ModeSinglePage    Mode = "single_page"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeAuto, ModeSitemapURL, ModeSitemapUpload, ModeRecursive, ModeSinglePage:
		return true
	default:
		return false
	}
}

// SitemapSource records where a sitemap was discovered.
type SitemapSource string

// Known sitemap sources.
const (
	SitemapSourceRobots   SitemapSource = "robots.txt"
	SitemapSourceCommon   SitemapSource = "common_path"
	SitemapSourceHTMLLink SitemapSource = "html_link"
	SitemapSourceUser     SitemapSource = "user"
	SitemapSourceUpload   SitemapSource = "upload"
)

// SitemapDescriptor describes a validated sitemap.
type SitemapDescriptor struct {
	URL      string        `json:"url"`
	URLCount int           `json:"url_count"`
	Valid    bool          `json:"valid"`
	Source   SitemapSource `json:"source"`
}

// Crawl limits.
const (
	DefaultMaxURLs      = 100
	DefaultMaxDepth     = 3
	DefaultRequestDelay = time.Second

	MinMaxURLs      = 1
	MaxMaxURLs      = 1000
	MinMaxDepth     = 1
	MaxMaxDepth     = 10
	MinRequestDelay = 100 * time.Millisecond
	MaxRequestDelay = 10 * time.Second
)

// CrawlConfig bounds a single crawl. It is copied into the job request and
// never mutated once the job starts.
type CrawlConfig struct {
	MaxURLs          int           `mapstructure:"max_urls"`
	MaxDepth         int           `mapstructure:"max_depth"`
	IncludeImages    bool          `mapstructure:"include_images"`
	RespectCanonical bool          `mapstructure:"respect_canonical"`
	ExcludePatterns  []string      `mapstructure:"exclude_patterns"`
	RequestDelay     time.Duration `mapstructure:"request_delay"`
}

// DefaultCrawlConfig returns the stock crawl limits.
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		MaxURLs:          DefaultMaxURLs,
		MaxDepth:         DefaultMaxDepth,
		IncludeImages:    true,
		RespectCanonical: true,
		ExcludePatterns:  []string{},
		RequestDelay:     DefaultRequestDelay,
	}
}

// Validate enforces the documented ranges.
func (c CrawlConfig) Validate() error {
	if c.MaxURLs < MinMaxURLs || c.MaxURLs > MaxMaxURLs {
		return fmt.Errorf("%w: max_urls must be between %d and %d", ErrInvalidConfig, MinMaxURLs, MaxMaxURLs)
	}
	if c.MaxDepth < MinMaxDepth || c.MaxDepth > MaxMaxDepth {
		return fmt.Errorf("%w: max_depth must be between %d and %d", ErrInvalidConfig, MinMaxDepth, MaxMaxDepth)
	}
	if c.RequestDelay < MinRequestDelay || c.RequestDelay > MaxRequestDelay {
		return fmt.Errorf("%w: request_delay must be between %s and %s", ErrInvalidConfig, MinRequestDelay, MaxRequestDelay)
	}
	return nil
}

type crawlConfigJSON struct {
	MaxURLs          int      `json:"max_urls"`
	MaxDepth         int      `json:"max_depth"`
	IncludeImages    bool     `json:"include_images"`
	RespectCanonical bool     `json:"respect_canonical"`
	ExcludePatterns  []string `json:"exclude_patterns"`
	RequestDelay     float64  `json:"request_delay"`
}

// MarshalJSON writes request_delay in seconds, the unit the HTTP API accepts.
func (c CrawlConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(crawlConfigJSON{
		MaxURLs:          c.MaxURLs,
		MaxDepth:         c.MaxDepth,
		IncludeImages:    c.IncludeImages,
		RespectCanonical: c.RespectCanonical,
		ExcludePatterns:  c.ExcludePatterns,
		RequestDelay:     c.RequestDelay.Seconds(),
	})
}

// UnmarshalJSON reads request_delay in seconds.
func (c *CrawlConfig) UnmarshalJSON(data []byte) error {
	var raw crawlConfigJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode crawl config: %w", err)
	}
	*c = CrawlConfig{
		MaxURLs:          raw.MaxURLs,
		MaxDepth:         raw.MaxDepth,
		IncludeImages:    raw.IncludeImages,
		RespectCanonical: raw.RespectCanonical,
		ExcludePatterns:  raw.ExcludePatterns,
		RequestDelay:     time.Duration(math.Round(raw.RequestDelay * float64(time.Second))),
	}
	return nil
}

// Clone returns a deep copy.
func (c CrawlConfig) Clone() CrawlConfig {
	cp := c
	cp.ExcludePatterns = append([]string{}, c.ExcludePatterns...)
	return cp
}

// PageStatus is the fetch outcome of a crawled URL.
type PageStatus string

// Page statuses.
const (
	PageStatusPending PageStatus = "pending"
	PageStatusSuccess PageStatus = "success"
	PageStatusFailed  PageStatus = "failed"
)

// PageRecord is produced once per crawl attempt of a URL.
type PageRecord struct {
	URL        string     `json:"url"`
	Title      string     `json:"title,omitempty"`
	Size       int        `json:"size"`
	HasImages  bool       `json:"has_images"`
	WordCount  int        `json:"word_count,omitempty"`
	Status     PageStatus `json:"status"`
	StatusCode int        `json:"status_code,omitempty"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
	// Timeout overrides the fetcher default when positive.
	Timeout time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports a 200 response.
func (r FetchResponse) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Image is an image reference found in rendered content.
type Image struct {
	Src   string `json:"src"`
	Alt   string `json:"alt,omitempty"`
	Title string `json:"title,omitempty"`
}

// RenderedPage is the cleaned, export-ready form of a crawled page.
type RenderedPage struct {
	URL      string            `json:"url"`
	Title    string            `json:"title"`
	HTML     string            `json:"html"`
	Text     string            `json:"text"`
	Images   []Image           `json:"images,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ArtifactKind identifies the export output shape.
type ArtifactKind string

// Artifact kinds.
const (
	ArtifactPDF      ArtifactKind = "pdf"
	ArtifactMarkdown ArtifactKind = "markdown"
	ArtifactHTMLDir  ArtifactKind = "html_dir"
)

// Artifact is the stored result of an export.
type Artifact struct {
	Kind ArtifactKind `json:"kind"`
	// Key is the blob path of the primary object (the index for HTML dirs).
	Key string `json:"key"`
	// Locator is the URI returned by the blob store for Key.
	Locator     string `json:"locator"`
	ContentType string `json:"content_type"`
	// Parts lists every blob path that makes up a multi-file artifact.
	Parts []string `json:"parts,omitempty"`
	// Digest is the hex sha256 of the primary object.
	Digest string `json:"digest,omitempty"`
}

// ExportOptions tune document assembly.
type ExportOptions struct {
	Title        string
	IncludeTOC   bool
	IncludeCover bool
	// Prefix is prepended to every blob path written by the exporter.
	Prefix string
	// Progress receives sub-step updates; may be nil.
	Progress func(pct float64, step string)
}

// Report forwards a progress update when a callback is configured.
func (o ExportOptions) Report(pct float64, step string) {
	if o.Progress != nil {
		o.Progress(pct, step)
	}
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Attempt   int
	Submitted int64
}
