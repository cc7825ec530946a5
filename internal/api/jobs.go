package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/id/uuid"
	"github.com/JakeFAU/sitesnap/internal/job"
	"github.com/JakeFAU/sitesnap/internal/queue/memory"
)

const enqueueTimeout = 5 * time.Second

type createJobRequest struct {
	URL        string              `json:"url"`
	Mode       crawler.Mode        `json:"mode"`
	SitemapURL string              `json:"sitemap_url"`
	SitemapXML string              `json:"sitemap_xml"`
	Format     job.Format          `json:"format"`
	Config     *crawlConfigRequest `json:"config"`
}

// crawlConfigRequest mirrors crawler.CrawlConfig with optional fields so
// omitted values fall back to the configured defaults.
type crawlConfigRequest struct {
	MaxURLs          *int     `json:"max_urls"`
	MaxDepth         *int     `json:"max_depth"`
	IncludeImages    *bool    `json:"include_images"`
	RespectCanonical *bool    `json:"respect_canonical"`
	ExcludePatterns  []string `json:"exclude_patterns"`
	// RequestDelay is in seconds.
	RequestDelay *float64 `json:"request_delay"`
}

type createJobResponse struct {
	JobID   string     `json:"job_id"`
	Status  job.Status `json:"status"`
	Message string     `json:"message"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var body createJobRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := s.toRequest(body)
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobID, err := s.enqueueJob(r.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, memory.ErrFull):
			status = http.StatusServiceUnavailable
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusRequestTimeout
		}
		s.logger.Warn("job submission failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	s.logger.Info("job accepted",
		zap.String("job_id", jobID),
		zap.String("url", req.URL),
		zap.String("mode", string(req.Mode)),
	)
	writeJSON(w, http.StatusAccepted, createJobResponse{
		JobID:   jobID,
		Status:  job.StatusPending,
		Message: "Crawl job started",
	})
}

// enqueueJob persists a pending record before queueing it so a worker never
// sees an ID the store does not know. A failed enqueue marks the record failed.
func (s *Server) enqueueJob(ctx context.Context, req job.Request) (string, error) {
	jobID, err := s.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.deps.Clock.Now()
	if err := s.deps.Store.Create(ctx, job.NewRecord(jobID, req, now)); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	queueCtx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()
	item := crawler.QueueItem{JobID: jobID, Attempt: 1, Submitted: now.Unix()}
	if err := s.deps.Queue.Enqueue(queueCtx, item); err != nil {
		enqueueErr := fmt.Errorf("enqueue job: %w", err)
		_, updErr := s.deps.Store.Update(context.WithoutCancel(ctx), jobID, func(rec *job.Record) error {
			rec.Fail(enqueueErr, s.deps.Clock.Now())
			return nil
		})
		if updErr != nil {
			s.logger.Warn("mark unqueued job failed", zap.String("job_id", jobID), zap.Error(updErr))
		}
		return "", enqueueErr
	}
	return jobID, nil
}

func (s *Server) toRequest(body createJobRequest) job.Request {
	req := job.Request{
		URL:        body.URL,
		Mode:       body.Mode,
		SitemapURL: body.SitemapURL,
		SitemapXML: body.SitemapXML,
		Format:     body.Format,
		Config:     s.cfg.Defaults.Clone(),
	}
	if req.Mode == "" {
		req.Mode = crawler.ModeAuto
	}
	if req.Format == "" {
		req.Format = s.cfg.DefaultFormat
	}
	if c := body.Config; c != nil {
		req.Config.MaxURLs = valueOrDefault(c.MaxURLs, req.Config.MaxURLs)
		req.Config.MaxDepth = valueOrDefault(c.MaxDepth, req.Config.MaxDepth)
		req.Config.IncludeImages = valueOrDefault(c.IncludeImages, req.Config.IncludeImages)
		req.Config.RespectCanonical = valueOrDefault(c.RespectCanonical, req.Config.RespectCanonical)
		if c.ExcludePatterns != nil {
			req.Config.ExcludePatterns = append([]string{}, c.ExcludePatterns...)
		}
		if c.RequestDelay != nil {
			req.Config.RequestDelay = time.Duration(*c.RequestDelay * float64(time.Second))
		}
	}
	return req
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// loadJob resolves the {job_id} parameter, writing 404 or 500 itself when
// the record is unavailable.
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (job.Record, bool) {
	jobID := chi.URLParam(r, "job_id")
	if !uuid.Valid(jobID) {
		writeError(w, http.StatusNotFound, "Job not found")
		return job.Record{}, false
	}
	rec, err := s.deps.Store.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Job not found")
			return job.Record{}, false
		}
		s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return job.Record{}, false
	}
	return rec, true
}
