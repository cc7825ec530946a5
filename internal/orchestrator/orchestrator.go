// Package orchestrator drives a snapshot job through detection, crawling,
// rendering and export, recording every step on the job record.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/clock/system"
	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/export"
	"github.com/JakeFAU/sitesnap/internal/job"
	"github.com/JakeFAU/sitesnap/internal/progress"
	"github.com/JakeFAU/sitesnap/internal/sitemap"
)

var tracer = otel.Tracer("github.com/JakeFAU/sitesnap/internal/orchestrator")

// DefaultJobTimeout bounds a whole job.
const DefaultJobTimeout = time.Hour

// DefaultArtifactPrefix is the blob folder holding per-job artifacts.
const DefaultArtifactPrefix = "jobs"

// ErrNoPages fails a job whose crawl, including the fallback, produced no
// successfully fetched page.
var ErrNoPages = errors.New("no pages found")

// Detector chooses a crawl mode for auto jobs.
type Detector interface {
	Detect(ctx context.Context, startURL string) (crawler.Mode, *crawler.SitemapDescriptor)
}

// EngineFactory builds a single-use engine per crawl.
type EngineFactory interface {
	New(mode crawler.Mode, cfg crawler.CrawlConfig, expander crawler.SitemapExpander) (crawler.Engine, error)
}

// Config tunes job execution.
type Config struct {
	JobTimeout     time.Duration
	ArtifactPrefix string
	NamePrefix     string
	IncludeTOC     bool
	IncludeCover   bool
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store    job.Store
	Detector Detector
	Engines  EngineFactory
	Sitemaps *sitemap.Client
	Renderer crawler.Renderer
	// Exporters maps each format to its primary exporter.
	Exporters map[job.Format]crawler.Exporter
	// Fallback runs when the primary exporter fails.
	Fallback crawler.Exporter
	Clock    crawler.Clock
	Events   progress.Emitter
}

// Orchestrator runs jobs. It is safe for concurrent use; each Run owns one
// job ID.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New validates deps and builds an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("job store is required")
	case deps.Engines == nil:
		return nil, errors.New("engine factory is required")
	case deps.Renderer == nil:
		return nil, errors.New("renderer is required")
	case deps.Fallback == nil:
		return nil, errors.New("fallback exporter is required")
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Events == nil {
		deps.Events = progress.Discard
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if cfg.ArtifactPrefix == "" {
		cfg.ArtifactPrefix = DefaultArtifactPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger.Named("orchestrator")}, nil
}

// run carries the in-flight state of one job between steps.
type run struct {
	id       string
	req      job.Request
	started  time.Time
	mode     crawler.Mode
	target   string
	expander crawler.SitemapExpander
	found    int
	pages    []crawler.PageRecord
	rendered []crawler.RenderedPage
	artifact crawler.Artifact
	base     string
}

type step struct {
	status job.Status
	pct    float64
	label  string
	fn     func(context.Context, *run) error
}

// Run executes job id to a terminal state. The returned error is the cause
// recorded on a failed job; nil means the job completed.
func (o *Orchestrator) Run(ctx context.Context, id string) (err error) {
	ctx, span := tracer.Start(ctx, "snapshot.run", trace.WithAttributes(attribute.String("job.id", id)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	ctx, cancel := context.WithTimeout(ctx, o.cfg.JobTimeout)
	defer cancel()

	rec, err := o.deps.Store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load job %s: %w", id, err)
	}
	r := &run{id: id, req: rec.Request, started: o.deps.Clock.Now()}
	logger := o.logger.With(zap.String("job_id", id), zap.String("url", rec.URL))
	logger.Info("job started", zap.String("mode", string(r.req.Mode)), zap.String("format", string(r.req.Format)))
	o.emit(progress.Event{JobID: id, Stage: progress.StageJobStart, URL: rec.URL, Mode: string(r.req.Mode)})

	steps := []step{
		{job.StatusAnalyzing, 5, "Analyzing website structure", o.analyze},
		{job.StatusCrawling, 0, "Crawling pages", o.crawl},
		{job.StatusProcessing, 50, "Processing pages", o.process},
		{job.StatusGenerating, 80, "Generating document", o.generate},
	}
	for _, s := range steps {
		stepCtx, stepSpan := tracer.Start(ctx, "snapshot."+string(s.status))
		err := o.enter(stepCtx, r, s)
		if err == nil {
			err = s.fn(stepCtx, r)
		}
		stepSpan.End()
		if err != nil {
			return o.fail(ctx, r, o.timeoutCause(ctx, err), logger)
		}
	}
	if err := o.complete(ctx, r); err != nil {
		return o.fail(ctx, r, o.timeoutCause(ctx, err), logger)
	}
	span.SetAttributes(attribute.String("job.mode", string(r.mode)), attribute.Int("job.pages", len(r.rendered)))
	logger.Info("job completed",
		zap.Int("pages", len(r.rendered)),
		zap.String("result", r.artifact.Locator),
		zap.Duration("dur", o.deps.Clock.Now().Sub(r.started)),
	)
	return nil
}

func (o *Orchestrator) enter(ctx context.Context, r *run, s step) error {
	now := o.deps.Clock.Now()
	_, err := o.update(ctx, r.id, func(rec *job.Record) error {
		if err := rec.Transition(s.status, now); err != nil {
			return err //nolint:wrapcheck // wrapped by update
		}
		rec.SetProgress(s.pct, s.label)
		rec.AppendLog(now, s.label)
		return nil
	})
	if err != nil {
		return err
	}
	o.emit(progress.Event{JobID: r.id, Stage: progress.StageJobStatus, Status: string(s.status), Mode: string(r.mode)})
	return nil
}

func (o *Orchestrator) complete(ctx context.Context, r *run) error {
	now := o.deps.Clock.Now()
	name := export.DownloadName(o.cfg.NamePrefix, r.base, r.artifact.Kind)
	rec, err := o.update(ctx, r.id, func(rec *job.Record) error {
		if err := rec.Complete(r.artifact, name, now); err != nil {
			return err //nolint:wrapcheck // wrapped by update
		}
		rec.AppendLog(now, fmt.Sprintf("Snapshot ready: %s (%d pages)", name, len(r.rendered)))
		return nil
	})
	if err != nil {
		return err
	}
	o.emit(progress.Event{
		JobID:      r.id,
		Stage:      progress.StageJobDone,
		Status:     string(rec.Status),
		URL:        rec.URL,
		Mode:       string(r.mode),
		ResultFile: rec.ResultFile,
		Dur:        now.Sub(r.started),
	})
	return nil
}

// fail records cause on the job. The store write ignores ctx cancellation so
// timed-out jobs still reach FAILED.
func (o *Orchestrator) fail(ctx context.Context, r *run, cause error, logger *zap.Logger) error {
	logger.Error("job failed", zap.Error(cause))
	now := o.deps.Clock.Now()
	rec, err := o.update(context.WithoutCancel(ctx), r.id, func(rec *job.Record) error {
		rec.Fail(cause, now)
		return nil
	})
	if err != nil {
		logger.Error("record job failure", zap.Error(err))
	}
	o.emit(progress.Event{
		JobID:  r.id,
		Stage:  progress.StageJobError,
		Status: string(rec.Status),
		URL:    r.req.URL,
		Mode:   string(r.mode),
		Dur:    now.Sub(r.started),
		Note:   job.Truncate(cause.Error(), job.MaxErrorLength),
	})
	return cause
}

func (o *Orchestrator) timeoutCause(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("job exceeded timeout of %s: %w", o.cfg.JobTimeout, err)
	}
	return err
}

func (o *Orchestrator) update(ctx context.Context, id string, fn job.UpdateFunc) (job.Record, error) {
	rec, err := o.deps.Store.Update(ctx, id, fn)
	if err != nil {
		return rec, fmt.Errorf("update job %s: %w", id, err)
	}
	return rec, nil
}

// logf appends a job-visible log line; failures only reach the process log.
func (o *Orchestrator) logf(ctx context.Context, id, format string, args ...any) {
	now := o.deps.Clock.Now()
	msg := fmt.Sprintf(format, args...)
	if _, err := o.update(ctx, id, func(rec *job.Record) error {
		rec.AppendLog(now, msg)
		return nil
	}); err != nil {
		o.logger.Warn("append job log", zap.String("job_id", id), zap.Error(err))
	}
}

func (o *Orchestrator) emit(evt progress.Event) {
	if evt.TS.IsZero() {
		evt.TS = o.deps.Clock.Now().UTC()
	}
	o.deps.Events.Emit(evt)
}

func (o *Orchestrator) artifactPrefix(id string) string {
	return path.Join(o.cfg.ArtifactPrefix, id)
}
