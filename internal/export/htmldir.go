package export

import (
	"context"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

// HTMLDir writes one file per page plus an index. It is the fallback when
// the primary exporter fails.
type HTMLDir struct {
	w      writer
	logger *zap.Logger
}

// NewHTMLDir builds an HTML directory exporter.
func NewHTMLDir(store crawler.BlobStore, hasher crawler.Hasher, logger *zap.Logger) *HTMLDir {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTMLDir{w: writer{store: store, hasher: hasher}, logger: logger.Named("export_html")}
}

// Export implements crawler.Exporter. The artifact key is the index file.
func (e *HTMLDir) Export(ctx context.Context, pages []crawler.RenderedPage, filename string, opts crawler.ExportOptions) (crawler.Artifact, error) {
	if len(pages) == 0 {
		return crawler.Artifact{}, ErrNoPages
	}
	dir := trimExt(filename) + "_html"
	parts := make([]string, 0, len(pages)+1)

	var index strings.Builder
	index.WriteString("<html><body><h1>Pages</h1><ul>")
	for i, p := range pages {
		name := fmt.Sprintf("page_%d.html", i+1)
		key := blobPath(opts.Prefix, dir, name)
		if _, err := e.w.put(ctx, key, "text/html; charset=utf-8", []byte(p.HTML)); err != nil {
			return crawler.Artifact{}, fmt.Errorf("export html: %w", err)
		}
		parts = append(parts, key)
		fmt.Fprintf(&index, `<li><a href="%s">%s</a></li>`, name, html.EscapeString(pageTitle(p, i)))
	}
	index.WriteString("</ul></body></html>")

	indexData := []byte(index.String())
	indexKey := blobPath(opts.Prefix, dir, "index.html")
	locator, err := e.w.put(ctx, indexKey, "text/html; charset=utf-8", indexData)
	if err != nil {
		return crawler.Artifact{}, fmt.Errorf("export html: %w", err)
	}
	parts = append(parts, indexKey)
	opts.Report(98, "HTML pages saved")

	e.logger.Info("html directory exported", zap.String("index", indexKey), zap.Int("pages", len(pages)))
	return crawler.Artifact{
		Kind:        crawler.ArtifactHTMLDir,
		Key:         indexKey,
		Locator:     locator,
		ContentType: "text/html; charset=utf-8",
		Parts:       parts,
		Digest:      e.w.digest(indexData),
	}, nil
}
