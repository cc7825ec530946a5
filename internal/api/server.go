package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/clock/system"
	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/detector"
	"github.com/JakeFAU/sitesnap/internal/id/uuid"
	"github.com/JakeFAU/sitesnap/internal/job"
	"github.com/JakeFAU/sitesnap/internal/metrics"
)

// DefaultRequestTimeout bounds non-streaming handlers.
const DefaultRequestTimeout = 60 * time.Second

// Submitter accepts jobs for asynchronous execution.
type Submitter interface {
	Enqueue(ctx context.Context, item crawler.QueueItem) error
}

// Analyzer produces the pre-flight report for a URL.
type Analyzer interface {
	Analyze(ctx context.Context, rawURL string) (detector.Analysis, error)
}

// Deps are the collaborators behind the handlers.
type Deps struct {
	Store    job.Store
	Blobs    crawler.BlobStore
	Queue    Submitter
	Analyzer Analyzer
	IDs      crawler.IDGenerator
	Clock    crawler.Clock
	// Ready reports downstream health for /readyz; nil means always ready.
	Ready func(ctx context.Context) error
}

// Config holds request defaults.
type Config struct {
	RequestTimeout time.Duration
	Defaults       crawler.CrawlConfig
	DefaultFormat  job.Format
}

// Server wires HTTP handlers to the job store and queue.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// NewServer validates deps and builds the router.
func NewServer(deps Deps, cfg Config, logger *zap.Logger) (*Server, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("job store is required")
	case deps.Blobs == nil:
		return nil, errors.New("blob store is required")
	case deps.Queue == nil:
		return nil, errors.New("job queue is required")
	case deps.Analyzer == nil:
		return nil, errors.New("analyzer is required")
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Defaults.MaxURLs == 0 {
		cfg.Defaults = crawler.DefaultCrawlConfig()
	}
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = job.FormatPDF
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.accessLog)
	r.Use(s.recoverer)
	r.Use(metrics.Middleware)
	r.Use(otelhttp.NewMiddleware("sitesnap.api"))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.With(middleware.Timeout(cfg.RequestTimeout)).Post("/analyze", s.analyze)
		r.Route("/jobs", func(r chi.Router) {
			r.With(middleware.Timeout(cfg.RequestTimeout)).Post("/", s.createJob)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Get("/pages", s.listPages)
				// Artifact streams are left unbounded; large zips take a while.
				r.Get("/preview", s.preview)
				r.Get("/download", s.download)
			})
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := crawler.ParseHTTPURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	analysis, err := s.deps.Analyzer.Analyze(r.Context(), req.URL)
	if err != nil {
		s.logger.Error("analysis failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Analysis failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
