package api

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/job"
)

func seedJob(t *testing.T, h *harness, id string, status job.Status, art *crawler.Artifact, filename string) {
	t.Helper()
	rec := job.NewRecord(id, job.Request{URL: "https://site.test/", Mode: crawler.ModeAuto, Format: job.FormatPDF}, time.Now())
	rec.Status = status
	rec.Artifact = art
	rec.ResultFilename = filename
	if art != nil {
		rec.ResultFile = art.Locator
		rec.ResultKind = art.Kind
		rec.ResultDigest = art.Digest
	}
	require.NoError(t, h.store.Create(context.Background(), rec))
}

func putBlob(t *testing.T, h *harness, key, body string) string {
	t.Helper()
	loc, err := h.blobs.PutObject(context.Background(), key, "", strings.NewReader(body))
	require.NoError(t, err)
	return loc
}

func TestPreviewServesPDFInline(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	loc := putBlob(t, h, "jobs/a/site.pdf", "%PDF-1.7")
	seedJob(t, h, jobA, job.StatusCompleted, &crawler.Artifact{
		Kind: crawler.ArtifactPDF, Key: "jobs/a/site.pdf", Locator: loc, ContentType: "application/pdf",
	}, "snapshot-site.pdf")

	rec := h.do(http.MethodGet, "/v1/jobs/"+jobA+"/preview", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Equal(t, "inline", rec.Header().Get("Content-Disposition"))
	require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	require.Equal(t, "%PDF-1.7", rec.Body.String())
}

func TestPreviewRejections(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	seedJob(t, h, jobA, job.StatusCrawling, nil, "")
	rec := h.do(http.MethodGet, "/v1/jobs/"+jobA+"/preview", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Job not completed")

	seedJob(t, h, jobB, job.StatusCompleted, &crawler.Artifact{Kind: crawler.ArtifactMarkdown, Key: "jobs/b/site.md"}, "")
	rec = h.do(http.MethodGet, "/v1/jobs/"+jobB+"/preview", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "Only PDF files can be previewed")
}

func TestPreviewMissingObject(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	seedJob(t, h, jobA, job.StatusCompleted, &crawler.Artifact{Kind: crawler.ArtifactPDF, Key: "jobs/a/gone.pdf"}, "")
	rec := h.do(http.MethodGet, "/v1/jobs/"+jobA+"/preview", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "File not found")
}

func TestDownloadSingleFile(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	loc := putBlob(t, h, "jobs/a/Docs.md", "# Docs")
	seedJob(t, h, jobA, job.StatusCompleted, &crawler.Artifact{
		Kind: crawler.ArtifactMarkdown, Key: "jobs/a/Docs.md", Locator: loc,
		ContentType: "text/markdown; charset=utf-8", Digest: "abc123",
	}, "snapshot-Docs.md")

	rec := h.do(http.MethodGet, "/v1/jobs/"+jobA+"/download", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, `attachment; filename=snapshot-Docs.md`, rec.Header().Get("Content-Disposition"))
	require.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Equal(t, `"abc123"`, rec.Header().Get("ETag"))
	require.Equal(t, "# Docs", rec.Body.String())

	req, err := http.NewRequest(http.MethodGet, "/v1/jobs/"+jobA+"/download", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", `"abc123"`)
	cached := h.serve(req)
	require.Equal(t, http.StatusNotModified, cached.Code)
	require.Empty(t, cached.Body.String())
}

func TestDownloadHTMLDirectoryAsZip(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	putBlob(t, h, "jobs/a/site_html/page_1.html", "<p>one</p>")
	putBlob(t, h, "jobs/a/site_html/page_2.html", "<p>two</p>")
	loc := putBlob(t, h, "jobs/a/site_html/index.html", "<ul></ul>")
	seedJob(t, h, jobA, job.StatusCompleted, &crawler.Artifact{
		Kind:    crawler.ArtifactHTMLDir,
		Key:     "jobs/a/site_html/index.html",
		Locator: loc,
		Parts: []string{
			"jobs/a/site_html/page_1.html",
			"jobs/a/site_html/page_2.html",
			"jobs/a/site_html/index.html",
		},
		Digest: "def456",
	}, "snapshot-site.zip")

	rec := h.do(http.MethodGet, "/v1/jobs/"+jobA+"/download", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	require.Equal(t, `W/"def456"`, rec.Header().Get("ETag"))
	require.Equal(t, `attachment; filename=snapshot-site.zip`, rec.Header().Get("Content-Disposition"))

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{"page_1.html", "page_2.html", "index.html"}, names)

	first, err := zr.File[0].Open()
	require.NoError(t, err)
	body, err := io.ReadAll(first)
	require.NoError(t, err)
	require.Equal(t, "<p>one</p>", string(body))
}

func TestDownloadFallbackFilename(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	putBlob(t, h, "jobs/a/x.pdf", "%PDF")
	seedJob(t, h, jobA, job.StatusCompleted, &crawler.Artifact{Kind: crawler.ArtifactPDF, Key: "jobs/a/x.pdf"}, "")

	rec := h.do(http.MethodGet, "/v1/jobs/"+jobA+"/download", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "attachment; filename=snapshot-"+jobA+".pdf", rec.Header().Get("Content-Disposition"))
	require.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	require.Empty(t, rec.Header().Get("ETag"))
}

func TestDownloadFailedJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	seedJob(t, h, jobA, job.StatusFailed, nil, "")
	rec := h.do(http.MethodGet, "/v1/jobs/"+jobA+"/download", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	seedJob(t, h, jobB, job.StatusCompleted, nil, "")
	rec = h.do(http.MethodGet, "/v1/jobs/"+jobB+"/download", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
