package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/export"
	"github.com/JakeFAU/sitesnap/internal/job"
	"github.com/JakeFAU/sitesnap/internal/metrics"
	"github.com/JakeFAU/sitesnap/internal/progress"
)

var formatKinds = map[job.Format]crawler.ArtifactKind{
	job.FormatPDF:      crawler.ArtifactPDF,
	job.FormatMarkdown: crawler.ArtifactMarkdown,
	job.FormatHTML:     crawler.ArtifactHTMLDir,
}

// analyze resolves the crawl mode, the crawl target and, for sitemap modes,
// the URL source.
func (o *Orchestrator) analyze(ctx context.Context, r *run) error {
	r.mode, r.target = r.req.Mode, r.req.URL
	var desc *crawler.SitemapDescriptor

	switch r.req.Mode {
	case crawler.ModeAuto:
		if o.deps.Detector == nil {
			return errors.New("auto mode requires a detector")
		}
		r.mode, desc = o.deps.Detector.Detect(ctx, r.req.URL)
		if desc != nil {
			r.target = desc.URL
		}
	case crawler.ModeSitemapURL:
		desc = &crawler.SitemapDescriptor{URL: r.req.SitemapURL, Valid: true, Source: crawler.SitemapSourceUser}
		r.target = r.req.SitemapURL
	case crawler.ModeSitemapUpload:
		if o.deps.Sitemaps == nil {
			return errors.New("sitemap upload requires a sitemap client")
		}
		uploaded, err := o.deps.Sitemaps.NewUploaded([]byte(r.req.SitemapXML))
		if err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
		d := uploaded.Descriptor()
		desc, r.expander = &d, uploaded
	}

	_, err := o.update(ctx, r.id, func(rec *job.Record) error {
		rec.Strategy = r.mode
		rec.Sitemap = desc
		msg := fmt.Sprintf("Using strategy: %s", r.mode)
		if desc != nil && desc.URL != "" {
			msg = fmt.Sprintf("Using strategy: %s (%s, ~%d URLs)", r.mode, desc.URL, desc.URLCount)
		}
		rec.AppendLog(o.deps.Clock.Now(), msg)
		return nil
	})
	return err
}

// crawl consumes the chosen engine, then the single-page fallback when the
// engine produced nothing.
func (o *Orchestrator) crawl(ctx context.Context, r *run) error {
	cfg := r.req.Config
	if err := o.consume(ctx, r, r.mode, r.target, r.expander); err != nil {
		return err
	}
	if r.found == 0 && ctx.Err() == nil {
		o.logger.Info("crawl produced no pages, falling back to single page",
			zap.String("job_id", r.id), zap.String("mode", string(r.mode)))
		o.logf(ctx, r.id, "No pages found with %s, trying single page", r.mode)
		if err := o.consume(ctx, r, crawler.ModeSinglePage, r.req.URL, nil); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	if len(r.pages) == 0 {
		return ErrNoPages
	}
	o.logf(ctx, r.id, "Crawl finished: %d pages found, %d usable (max %d)", r.found, len(r.pages), cfg.MaxURLs)
	return nil
}

func (o *Orchestrator) consume(ctx context.Context, r *run, mode crawler.Mode, target string, expander crawler.SitemapExpander) error {
	engine, err := o.deps.Engines.New(mode, r.req.Config, expander)
	if err != nil {
		return fmt.Errorf("build %s engine: %w", mode, err)
	}
	maxURLs := r.req.Config.MaxURLs
	if maxURLs <= 0 {
		maxURLs = crawler.DefaultMaxURLs
	}
	var updateErr error
	for page := range engine.Crawl(ctx, target) {
		r.found++
		if page.Status == crawler.PageStatusSuccess {
			r.pages = append(r.pages, page)
		}
		now := o.deps.Clock.Now()
		found := r.found
		_, updateErr = o.update(ctx, r.id, func(rec *job.Record) error {
			rec.AddPage(page)
			rec.SetProgress(float64(found)/float64(maxURLs)*50, fmt.Sprintf("Found %d pages", found))
			if page.Status == crawler.PageStatusSuccess {
				rec.AppendLog(now, "Found: "+page.URL)
			} else {
				rec.AppendLog(now, fmt.Sprintf("Failed: %s (status %d)", page.URL, page.StatusCode))
			}
			return nil
		})
		if updateErr != nil {
			break
		}
		o.emit(progress.Event{
			JobID:      r.id,
			Stage:      progress.StagePageFound,
			URL:        page.URL,
			Bytes:      int64(page.Size),
			StatusCode: page.StatusCode,
		})
		if r.found >= maxURLs {
			break
		}
	}
	return updateErr
}

// process renders every successful page. Any render failure fails the job.
func (o *Orchestrator) process(ctx context.Context, r *run) error {
	total := len(r.pages)
	r.rendered = make([]crawler.RenderedPage, 0, total)
	for i, page := range r.pages {
		rendered, err := o.deps.Renderer.Render(ctx, page.URL, r.req.Config.IncludeImages)
		if err != nil {
			return fmt.Errorf("render %s: %w", page.URL, err)
		}
		r.rendered = append(r.rendered, rendered)
		done := i + 1
		if _, err := o.update(ctx, r.id, func(rec *job.Record) error {
			rec.PagesProcessed = done
			rec.SetProgress(50+float64(done)/float64(total)*30, fmt.Sprintf("Processing page %d/%d", done, total))
			return nil
		}); err != nil {
			return err
		}
		o.emit(progress.Event{JobID: r.id, Stage: progress.StagePageRendered, URL: page.URL})
	}
	return nil
}

// generate exports the rendered pages, falling back to an HTML directory
// when the primary exporter fails.
func (o *Orchestrator) generate(ctx context.Context, r *run) error {
	r.base = export.BaseName(r.rendered, r.req.URL, r.id)
	opts := crawler.ExportOptions{
		IncludeTOC:   o.cfg.IncludeTOC,
		IncludeCover: o.cfg.IncludeCover,
		Prefix:       o.artifactPrefix(r.id),
		Progress: func(pct float64, label string) {
			if _, err := o.update(ctx, r.id, func(rec *job.Record) error {
				rec.SetProgress(pct, label)
				return nil
			}); err != nil {
				o.logger.Warn("record export progress", zap.String("job_id", r.id), zap.Error(err))
			}
		},
	}

	primary, ok := o.deps.Exporters[r.req.Format]
	if !ok {
		primary = o.deps.Fallback
	}
	kind := formatKinds[r.req.Format]
	art, err := primary.Export(ctx, r.rendered, r.base+"."+export.Extension(kind), opts)
	metrics.ObserveExport(string(kind), err)
	if err == nil {
		r.artifact = art
		return nil
	}
	if primary == o.deps.Fallback || ctx.Err() != nil {
		return fmt.Errorf("export %s: %w", r.req.Format, err)
	}

	o.logger.Warn("export failed, falling back to html",
		zap.String("job_id", r.id), zap.String("format", string(r.req.Format)), zap.Error(err))
	o.logf(ctx, r.id, "Export failed (%s), saving HTML pages instead", job.Truncate(err.Error(), job.MaxDetailLength))
	art, fbErr := o.deps.Fallback.Export(ctx, r.rendered, r.base+"."+export.Extension(crawler.ArtifactHTMLDir), opts)
	metrics.ObserveExport(string(crawler.ArtifactHTMLDir), fbErr)
	if fbErr != nil {
		return fmt.Errorf("export %s: %w; html fallback: %w", r.req.Format, err, fbErr)
	}
	r.artifact = art
	return nil
}
