package export

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/render"
)

// Printer prints an HTML document to PDF bytes.
type Printer interface {
	PrintPDF(ctx context.Context, html string, opts render.PDFOptions) ([]byte, error)
}

// PDF prints the assembled document through a headless browser.
type PDF struct {
	printer Printer
	w       writer
	clock   crawler.Clock
	logger  *zap.Logger
}

// NewPDF builds a PDF exporter.
func NewPDF(printer Printer, store crawler.BlobStore, hasher crawler.Hasher, clock crawler.Clock, logger *zap.Logger) *PDF {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDF{
		printer: printer,
		w:       writer{store: store, hasher: hasher},
		clock:   clock,
		logger:  logger.Named("export_pdf"),
	}
}

// Export implements crawler.Exporter.
func (e *PDF) Export(ctx context.Context, pages []crawler.RenderedPage, filename string, opts crawler.ExportOptions) (crawler.Artifact, error) {
	if len(pages) == 0 {
		return crawler.Artifact{}, ErrNoPages
	}
	opts.Report(80, fmt.Sprintf("Preparing PDF document with %d pages", len(pages)))

	html, err := BuildDocument(pages, opts, e.clock.Now())
	if err != nil {
		return crawler.Artifact{}, err
	}
	e.logger.Debug("document assembled", zap.Int("pages", len(pages)), zap.Int("bytes", len(html)))

	opts.Report(85, "Initializing PDF renderer...")
	opts.Report(87, "Loading content...")
	pdf, err := e.printer.PrintPDF(ctx, html, render.A4)
	if err != nil {
		return crawler.Artifact{}, fmt.Errorf("export pdf: %w", err)
	}
	opts.Report(90, "Rendering PDF pages...")

	key := blobPath(opts.Prefix, trimExt(filename)+".pdf")
	locator, err := e.w.put(ctx, key, "application/pdf", pdf)
	if err != nil {
		return crawler.Artifact{}, fmt.Errorf("export pdf: %w", err)
	}
	opts.Report(95, "Finalizing document...")

	art := crawler.Artifact{
		Kind:        crawler.ArtifactPDF,
		Key:         key,
		Locator:     locator,
		ContentType: "application/pdf",
		Parts:       []string{key},
		Digest:      e.w.digest(pdf),
	}
	opts.Report(98, "Finalizing PDF...")
	e.logger.Info("pdf exported", zap.String("key", key), zap.Int("bytes", len(pdf)))
	return art, nil
}
