package sitemap

import (
	"context"
	"fmt"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

// Uploaded expands a sitemap document supplied by the user instead of one
// fetched from the site. Child sitemaps of an uploaded index are fetched
// through the Client.
type Uploaded struct {
	client *Client
	doc    Document
}

// NewUploaded parses body as the root sitemap.
func (c *Client) NewUploaded(body []byte) (*Uploaded, error) {
	doc, err := ParseBytes(body, false)
	if err != nil {
		return nil, fmt.Errorf("parse uploaded sitemap: %w", err)
	}
	return &Uploaded{client: c, doc: doc}, nil
}

// Descriptor describes the uploaded document.
func (u *Uploaded) Descriptor() crawler.SitemapDescriptor {
	count := u.doc.EstimatedURLs(u.client.cfg.IndexEstimate)
	return crawler.SitemapDescriptor{
		URLCount: count,
		Valid:    count > 0,
		Source:   crawler.SitemapSourceUpload,
	}
}

// Expand ignores its URL argument and expands the uploaded document.
func (u *Uploaded) Expand(ctx context.Context, _ string, limit int) ([]string, error) {
	out := u.client.collect(ctx, u.doc, 0, limit, nil)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
