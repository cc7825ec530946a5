package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/hash/sha256"
	"github.com/JakeFAU/sitesnap/internal/render"
	"github.com/JakeFAU/sitesnap/internal/storage/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fakePrinter struct {
	html string
	opts render.PDFOptions
	err  error
}

func (p *fakePrinter) PrintPDF(_ context.Context, html string, opts render.PDFOptions) ([]byte, error) {
	p.html, p.opts = html, opts
	if p.err != nil {
		return nil, p.err
	}
	return []byte("%PDF-1.7 fake"), nil
}

type progressLog struct {
	pcts  []float64
	steps []string
}

func (l *progressLog) report(pct float64, step string) {
	l.pcts = append(l.pcts, pct)
	l.steps = append(l.steps, step)
}

func samplePages() []crawler.RenderedPage {
	return []crawler.RenderedPage{
		{URL: "https://docs.test/", Title: "Intro", HTML: "<main><h2>Welcome</h2><p>Hello <b>world</b></p></main>"},
		{URL: "https://docs.test/api", Title: "", HTML: "<main><table><tr><th>Name</th></tr><tr><td>get</td></tr></table></main>"},
	}
}

func TestBaseName(t *testing.T) {
	t.Parallel()

	pages := []crawler.RenderedPage{{Title: `  A/B: "Guide" <v2>?  `}}
	require.Equal(t, "AB Guide v2", BaseName(pages, "https://docs.test/", "0123456789"))
	require.Equal(t, "docs.test", BaseName(nil, "https://docs.test/x", "0123456789"))
	require.Equal(t, "document_01234567", BaseName([]crawler.RenderedPage{{Title: "???"}}, "", "0123456789"))
	require.Len(t, []rune(BaseName([]crawler.RenderedPage{{Title: strings.Repeat("é", 150)}}, "", "x")), MaxBaseNameLength)
}

func TestDownloadName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "snapshot-Guide.pdf", DownloadName("", "Guide", crawler.ArtifactPDF))
	require.Equal(t, "acme-Guide.md", DownloadName("acme", "Guide", crawler.ArtifactMarkdown))
	require.Equal(t, "snapshot-Guide.zip", DownloadName("", "Guide", crawler.ArtifactHTMLDir))
}

func TestBuildDocument(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 4, 15, 5, 0, 0, time.UTC)
	doc, err := BuildDocument(samplePages(), crawler.ExportOptions{IncludeCover: true, IncludeTOC: true}, now)
	require.NoError(t, err)
	require.Contains(t, doc, "<title>Intro</title>")
	require.Contains(t, doc, "Generated on March 04, 2026 at 03:05 PM")
	require.Contains(t, doc, `<a href="#page-2">Page 2</a>`)
	require.Contains(t, doc, `id="page-1"`)
	require.Contains(t, doc, "<p>Hello <b>world</b></p>")
	require.Equal(t, 3, strings.Count(doc, `<div class="page-break"></div>`))

	single, err := BuildDocument(samplePages()[:1], crawler.ExportOptions{Title: "<Custom>", IncludeTOC: true}, now)
	require.NoError(t, err)
	require.NotContains(t, single, "Table of Contents")
	require.NotContains(t, single, "cover-page\"")
	require.Contains(t, single, "<title>&lt;Custom&gt;</title>")
}

func TestPDFExport(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	printer := &fakePrinter{}
	progress := &progressLog{}
	exp := NewPDF(printer, store, sha256.New(), fixedClock{time.Unix(0, 0)}, nil)

	art, err := exp.Export(context.Background(), samplePages(), "Intro.pdf", crawler.ExportOptions{
		Prefix:       "jobs/j1",
		IncludeCover: true,
		Progress:     progress.report,
	})
	require.NoError(t, err)
	require.Equal(t, crawler.ArtifactPDF, art.Kind)
	require.Equal(t, "jobs/j1/Intro.pdf", art.Key)
	require.Equal(t, "memory://jobs/j1/Intro.pdf", art.Locator)
	require.Len(t, art.Digest, 64)
	require.Equal(t, []float64{80, 85, 87, 90, 95, 98}, progress.pcts)
	require.Equal(t, render.A4, printer.opts)
	require.Contains(t, printer.html, "Welcome")

	rc, err := store.GetObject(context.Background(), art.Key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.7 fake", string(data))
}

func TestPDFExportFailures(t *testing.T) {
	t.Parallel()

	exp := NewPDF(&fakePrinter{err: errors.New("chrome crashed")}, memory.NewBlobStore(), nil, fixedClock{}, nil)
	_, err := exp.Export(context.Background(), samplePages(), "x.pdf", crawler.ExportOptions{})
	require.ErrorContains(t, err, "chrome crashed")

	_, err = exp.Export(context.Background(), nil, "x.pdf", crawler.ExportOptions{})
	require.ErrorIs(t, err, ErrNoPages)
}

func TestMarkdownExport(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	exp := NewMarkdown(store, sha256.New(), nil)
	art, err := exp.Export(context.Background(), samplePages(), "Intro.pdf", crawler.ExportOptions{IncludeTOC: true})
	require.NoError(t, err)
	require.Equal(t, crawler.ArtifactMarkdown, art.Kind)
	require.Equal(t, "Intro.md", art.Key)

	rc, err := store.GetObject(context.Background(), art.Key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	md := string(data)
	require.True(t, strings.HasPrefix(md, "# Intro\n"))
	require.Contains(t, md, "2. [Page 2](#page-2)")
	require.Contains(t, md, "## Welcome")
	require.Contains(t, md, "Hello **world**")
	require.Contains(t, md, "| Name |")
	require.Contains(t, md, "Source: <https://docs.test/api>")
	require.Contains(t, md, "\n---\n")
}

func TestHTMLDirExportAndZip(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	exp := NewHTMLDir(store, sha256.New(), nil)
	art, err := exp.Export(context.Background(), samplePages(), "Intro.pdf", crawler.ExportOptions{Prefix: "out"})
	require.NoError(t, err)
	require.Equal(t, crawler.ArtifactHTMLDir, art.Kind)
	require.Equal(t, "out/Intro_html/index.html", art.Key)
	require.Equal(t, []string{
		"out/Intro_html/page_1.html",
		"out/Intro_html/page_2.html",
		"out/Intro_html/index.html",
	}, art.Parts)

	var buf bytes.Buffer
	require.NoError(t, WriteZip(context.Background(), store, art, &buf))
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{"page_1.html", "page_2.html", "index.html"}, names)

	idx, err := zr.File[2].Open()
	require.NoError(t, err)
	index, err := io.ReadAll(idx)
	require.NoError(t, err)
	require.Contains(t, string(index), `<a href="page_1.html">Intro</a>`)
	require.Contains(t, string(index), `<a href="page_2.html">Page 2</a>`)
}

func TestWriteZipMissingPart(t *testing.T) {
	t.Parallel()

	err := WriteZip(context.Background(), memory.NewBlobStore(), crawler.Artifact{Key: "gone.html"}, io.Discard)
	require.ErrorIs(t, err, crawler.ErrObjectNotFound)
}
