package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

// Markdown concatenates pages into one Markdown file.
type Markdown struct {
	conv   *converter.Converter
	w      writer
	logger *zap.Logger
}

// NewMarkdown builds a Markdown exporter.
func NewMarkdown(store crawler.BlobStore, hasher crawler.Hasher, logger *zap.Logger) *Markdown {
	if logger == nil {
		logger = zap.NewNop()
	}
	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
	return &Markdown{
		conv:   conv,
		w:      writer{store: store, hasher: hasher},
		logger: logger.Named("export_markdown"),
	}
}

// Export implements crawler.Exporter.
func (e *Markdown) Export(ctx context.Context, pages []crawler.RenderedPage, filename string, opts crawler.ExportOptions) (crawler.Artifact, error) {
	if len(pages) == 0 {
		return crawler.Artifact{}, ErrNoPages
	}
	opts.Report(80, fmt.Sprintf("Converting %d pages to Markdown", len(pages)))

	doc, err := e.Convert(pages, opts)
	if err != nil {
		return crawler.Artifact{}, err
	}
	opts.Report(90, "Writing Markdown file...")

	data := []byte(doc)
	key := blobPath(opts.Prefix, trimExt(filename)+".md")
	locator, err := e.w.put(ctx, key, "text/markdown; charset=utf-8", data)
	if err != nil {
		return crawler.Artifact{}, fmt.Errorf("export markdown: %w", err)
	}
	opts.Report(98, "Finalizing Markdown...")
	e.logger.Info("markdown exported", zap.String("key", key), zap.Int("bytes", len(data)))
	return crawler.Artifact{
		Kind:        crawler.ArtifactMarkdown,
		Key:         key,
		Locator:     locator,
		ContentType: "text/markdown; charset=utf-8",
		Parts:       []string{key},
		Digest:      e.w.digest(data),
	}, nil
}

// Convert renders the Markdown document without storing it.
func (e *Markdown) Convert(pages []crawler.RenderedPage, opts crawler.ExportOptions) (string, error) {
	var b strings.Builder
	b.WriteString("# " + DocumentTitle(pages, opts.Title) + "\n\n")

	if opts.IncludeTOC && len(pages) > 1 {
		b.WriteString("## Contents\n\n")
		for i, p := range pages {
			fmt.Fprintf(&b, "%d. [%s](#page-%d)\n", i+1, pageTitle(p, i), i+1)
		}
		b.WriteString("\n")
	}

	for i, p := range pages {
		body, err := e.conv.ConvertString(p.HTML)
		if err != nil {
			return "", fmt.Errorf("convert %s: %w", p.URL, err)
		}
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		fmt.Fprintf(&b, "<a id=\"page-%d\"></a>\n\n## %s\n\n", i+1, pageTitle(p, i))
		if p.URL != "" {
			fmt.Fprintf(&b, "Source: <%s>\n\n", p.URL)
		}
		b.WriteString(strings.TrimSpace(body))
		b.WriteString("\n")
	}
	return b.String(), nil
}

func pageTitle(p crawler.RenderedPage, i int) string {
	if t := strings.TrimSpace(p.Title); t != "" {
		return t
	}
	return fmt.Sprintf("Page %d", i+1)
}
