package sitemap

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
)

// Document is a parsed sitemap or sitemap index. Element matching ignores
// namespaces, so documents without the sitemaps.org namespace still parse.
type Document struct {
	// Children are the <sitemap><loc> entries of an index.
	Children []string
	// URLs are the <url><loc> entries of a urlset.
	URLs []string
	// Entries counts <url> elements, with or without a <loc>.
	Entries int
	// ChildEntries counts <sitemap> elements, with or without a <loc>.
	ChildEntries int
}

// IsIndex reports whether the document lists child sitemaps.
func (d Document) IsIndex() bool {
	return d.ChildEntries > 0
}

// EstimatedURLs returns the entry count, or perChild per child sitemap for
// an index.
func (d Document) EstimatedURLs(perChild int) int {
	if d.IsIndex() {
		return d.ChildEntries * perChild
	}
	return d.Entries
}

// Parse reads a sitemap XML document.
func Parse(r io.Reader) (Document, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return Document{}, fmt.Errorf("parse sitemap xml: %w", err)
	}
	if doc.Root() == nil {
		return Document{}, fmt.Errorf("parse sitemap xml: empty document")
	}
	sitemaps := doc.FindElements("//sitemap")
	urls := doc.FindElements("//url")
	return Document{
		Children:     locs(sitemaps),
		URLs:         locs(urls),
		Entries:      len(urls),
		ChildEntries: len(sitemaps),
	}, nil
}

// ParseBytes parses body, gunzipping it first when gzipped is set.
func ParseBytes(body []byte, gzipped bool) (Document, error) {
	var r io.Reader = bytes.NewReader(body)
	if gzipped {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return Document{}, fmt.Errorf("open gzip sitemap: %w", err)
		}
		defer zr.Close() //nolint:errcheck // read-only stream
		r = zr
	}
	return Parse(r)
}

func locs(elements []*etree.Element) []string {
	out := make([]string, 0, len(elements))
	for _, el := range elements {
		loc := el.SelectElement("loc")
		if loc == nil {
			continue
		}
		if text := strings.TrimSpace(loc.Text()); text != "" {
			out = append(out, text)
		}
	}
	return out
}
