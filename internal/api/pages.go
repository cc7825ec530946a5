package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

type pageListResponse struct {
	JobID  string               `json:"job_id"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
	Pages  []crawler.PageRecord `json:"pages"`
}

// listPages handles GET /v1/jobs/{job_id}/pages?status=&limit=&offset=.
// Total counts pages after the status filter.
func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultPageLimit, maxPageLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := parsePageStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	pages := rec.Pages
	if status != "" {
		pages = make([]crawler.PageRecord, 0, len(rec.Pages))
		for _, p := range rec.Pages {
			if p.Status == status {
				pages = append(pages, p)
			}
		}
	}
	out := pageListResponse{JobID: rec.ID, Total: len(pages), Limit: limit, Offset: offset}
	if offset < len(pages) {
		out.Pages = pages[offset:min(offset+limit, len(pages))]
	}
	if out.Pages == nil {
		out.Pages = []crawler.PageRecord{}
	}
	writeJSON(w, http.StatusOK, out)
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parsePageStatus(input string) (crawler.PageStatus, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "":
		return "", nil
	case "success", "ok":
		return crawler.PageStatusSuccess, nil
	case "failed", "error":
		return crawler.PageStatusFailed, nil
	case "pending":
		return crawler.PageStatusPending, nil
	default:
		return "", errors.New("invalid status")
	}
}
