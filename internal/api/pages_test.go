package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/job"
)

func seedPages(t *testing.T, h *harness, id string, n int) {
	t.Helper()
	rec := job.NewRecord(id, job.Request{URL: "https://site.test/"}, time.Now())
	for i := range n {
		status := crawler.PageStatusSuccess
		if i%3 == 2 {
			status = crawler.PageStatusFailed
		}
		rec.AddPage(crawler.PageRecord{URL: fmt.Sprintf("https://site.test/p%d", i), Status: status})
	}
	require.NoError(t, h.store.Create(context.Background(), rec))
}

func listPages(t *testing.T, h *harness, query string) pageListResponse {
	t.Helper()
	rec := h.do(http.MethodGet, "/v1/jobs/"+jobA+"/pages"+query, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out pageListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestListPagesPaginates(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	seedPages(t, h, jobA, 9)

	all := listPages(t, h, "")
	require.Equal(t, 9, all.Total)
	require.Len(t, all.Pages, 9)
	require.Equal(t, defaultPageLimit, all.Limit)

	page := listPages(t, h, "?limit=4&offset=4")
	require.Equal(t, 9, page.Total)
	require.Len(t, page.Pages, 4)
	require.Equal(t, "https://site.test/p4", page.Pages[0].URL)

	tail := listPages(t, h, "?limit=4&offset=8")
	require.Len(t, tail.Pages, 1)

	past := listPages(t, h, "?offset=50")
	require.NotNil(t, past.Pages)
	require.Empty(t, past.Pages)

	capped := listPages(t, h, "?limit=100000")
	require.Equal(t, maxPageLimit, capped.Limit)
}

func TestListPagesFiltersByStatus(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	seedPages(t, h, jobA, 9)

	failed := listPages(t, h, "?status=failed")
	require.Equal(t, 3, failed.Total)
	for _, p := range failed.Pages {
		require.Equal(t, crawler.PageStatusFailed, p.Status)
	}
	ok := listPages(t, h, "?status=OK")
	require.Equal(t, 6, ok.Total)
}

func TestListPagesRejectsBadQuery(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	seedPages(t, h, jobA, 1)
	for _, q := range []string{"?limit=0", "?limit=x", "?offset=-1", "?status=weird"} {
		rec := h.do(http.MethodGet, "/v1/jobs/"+jobA+"/pages"+q, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	rec := h.do(http.MethodGet, "/v1/jobs/"+jobB+"/pages", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
