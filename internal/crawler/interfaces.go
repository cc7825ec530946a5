package crawler

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"
)

// Engine enumerates pages of a site. The returned sequence is finite and
// single-use; consumers stop early by returning false from yield, and
// cancelling ctx ends it.
type Engine interface {
	Crawl(ctx context.Context, startURL string) iter.Seq[PageRecord]
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Pacer throttles consecutive fetches of one crawl.
type Pacer interface {
	Pause(ctx context.Context) error
}

// SitemapExpander resolves a sitemap (or sitemap index) into page URLs,
// returning at most limit entries.
type SitemapExpander interface {
	Expand(ctx context.Context, sitemapURL string, limit int) ([]string, error)
}

// Renderer turns a URL into export-ready content.
type Renderer interface {
	Render(ctx context.Context, url string, includeImages bool) (RenderedPage, error)
}

// Exporter assembles rendered pages into a stored artifact.
type Exporter interface {
	Export(ctx context.Context, pages []RenderedPage, filename string, opts ExportOptions) (Artifact, error)
}

// ErrObjectNotFound is returned by BlobStore.GetObject for unknown paths.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	GetObject(ctx context.Context, path string) (io.ReadCloser, error)
}

// Publisher pushes job notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ErrQueueClosed is returned by Queue.Dequeue once a closed queue is drained.
var ErrQueueClosed = errors.New("queue closed")

// Queue provides enqueue/dequeue semantics for snapshot jobs.
type Queue interface {
	Enqueue(ctx context.Context, job QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for artifact integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
