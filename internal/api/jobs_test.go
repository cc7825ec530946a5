package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/job"
)

func TestCreateJobAppliesDefaultsAndQueues(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	rec := h.do(http.MethodPost, "/v1/jobs", `{"url":"https://site.test/docs"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp createJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, createJobResponse{JobID: jobA, Status: job.StatusPending, Message: "Crawl job started"}, resp)

	stored, err := h.store.Get(context.Background(), jobA)
	require.NoError(t, err)
	require.Equal(t, job.StatusPending, stored.Status)
	require.Equal(t, job.InitialStep, stored.CurrentStep)
	require.Equal(t, crawler.ModeAuto, stored.Request.Mode)
	require.Equal(t, job.FormatPDF, stored.Request.Format)
	require.Equal(t, crawler.DefaultCrawlConfig().MaxURLs, stored.Request.Config.MaxURLs)

	item, err := h.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, jobA, item.JobID)
	require.Equal(t, 1, item.Attempt)
}

func TestCreateJobOverridesConfig(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	body := `{"url":"https://site.test/","mode":"sitemap_url","sitemap_url":"https://site.test/map.xml",
		"format":"markdown","config":{"max_urls":5,"max_depth":2,"include_images":false,
		"exclude_patterns":["/tag/"],"request_delay":0.5}}`
	rec := h.do(http.MethodPost, "/v1/jobs/", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	stored, err := h.store.Get(context.Background(), jobA)
	require.NoError(t, err)
	cfg := stored.Request.Config
	require.Equal(t, 5, cfg.MaxURLs)
	require.Equal(t, 2, cfg.MaxDepth)
	require.False(t, cfg.IncludeImages)
	require.True(t, cfg.RespectCanonical)
	require.Equal(t, []string{"/tag/"}, cfg.ExcludePatterns)
	require.Equal(t, 500*time.Millisecond, cfg.RequestDelay)
	require.Equal(t, job.FormatMarkdown, stored.Request.Format)
	require.Equal(t, "https://site.test/map.xml", stored.Request.SitemapURL)
}

func TestCreateJobValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"empty body", ``, "request body is empty"},
		{"bad json", `{`, "invalid JSON"},
		{"unknown field", `{"url":"https://site.test/","speed":"max"}`, "invalid JSON"},
		{"bad url", `{"url":"not a url"}`, "url"},
		{"bad mode", `{"url":"https://site.test/","mode":"deep"}`, "unknown mode"},
		{"bad format", `{"url":"https://site.test/","format":"docx"}`, "unknown format"},
		{"sitemap url missing", `{"url":"https://site.test/","mode":"sitemap_url"}`, "sitemap_url is required"},
		{"upload missing", `{"url":"https://site.test/","mode":"sitemap_upload"}`, "sitemap_xml is required"},
		{"max urls", `{"url":"https://site.test/","config":{"max_urls":0}}`, "max_urls"},
		{"max depth", `{"url":"https://site.test/","config":{"max_depth":11}}`, "max_depth"},
		{"delay", `{"url":"https://site.test/","config":{"request_delay":0.01}}`, "request_delay"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			rec := h.do(http.MethodPost, "/v1/jobs", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), tc.want)
			require.Zero(t, h.queue.Len())
		})
	}
}

func TestCreateJobQueueFull(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	for range 4 {
		require.NoError(t, h.queue.Enqueue(context.Background(), crawler.QueueItem{JobID: "filler"}))
	}
	rec := h.do(http.MethodPost, "/v1/jobs", `{"url":"https://site.test/"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	stored, err := h.store.Get(context.Background(), jobA)
	require.NoError(t, err)
	require.Equal(t, job.StatusFailed, stored.Status)
	require.Contains(t, stored.Error, "enqueue job")
}

func TestGetJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	rec := h.do(http.MethodPost, "/v1/jobs", `{"url":"https://site.test/"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = h.do(http.MethodGet, "/v1/jobs/"+jobA, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got job.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, jobA, got.ID)
	require.Equal(t, job.StatusPending, got.Status)
	require.Equal(t, "https://site.test/", got.URL)
}

func TestGetJobReportsDelayInSeconds(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	rec := h.do(http.MethodPost, "/v1/jobs", `{"url":"https://site.test/","config":{"request_delay":0.5}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = h.do(http.MethodGet, "/v1/jobs/"+jobA, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var raw struct {
		Request struct {
			Config map[string]any `json:"config"`
		} `json:"request"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	require.InDelta(t, 0.5, raw.Request.Config["request_delay"], 1e-9)

	var got job.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 500*time.Millisecond, got.Request.Config.RequestDelay)
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	for _, id := range []string{jobB, "not-a-uuid"} {
		rec := h.do(http.MethodGet, "/v1/jobs/"+id, "")
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Contains(t, rec.Body.String(), "Job not found")
	}
}
