package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/sitesnap/internal/app"
	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/export"
	"github.com/JakeFAU/sitesnap/internal/job"
)

type snapshotOptions struct {
	mode        string
	sitemapURL  string
	sitemapFile string
	format      string
	maxURLs     int
	maxDepth    int
	delay       time.Duration
	exclude     []string
	images      bool
	canonical   bool
	out         string
}

func newSnapshotCmd() *cobra.Command {
	var opts snapshotOptions
	cmd := &cobra.Command{
		Use:   "snapshot URL",
		Short: "Run one snapshot job in the foreground",
		Long: `Runs a snapshot job without the HTTP API, using the same detection,
crawl, render and export steps as the service. The job record goes to the
configured store, so a running server can serve the download afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			req, err := opts.request(cmd, args[0], instance)
			if err != nil {
				return err
			}
			return runSnapshot(cmd.Context(), cmd.OutOrStdout(), instance, req, opts.out)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.mode, "mode", string(crawler.ModeAuto), "auto, sitemap_url, sitemap_upload, recursive or single_page")
	f.StringVar(&opts.sitemapURL, "sitemap-url", "", "sitemap to crawl in sitemap_url mode")
	f.StringVar(&opts.sitemapFile, "sitemap-file", "", "local sitemap XML for sitemap_upload mode")
	f.StringVar(&opts.format, "format", "", "pdf, markdown or html (default export.default_format)")
	f.IntVar(&opts.maxURLs, "max-urls", 0, "maximum pages to capture")
	f.IntVar(&opts.maxDepth, "max-depth", 0, "maximum link depth for recursive crawls")
	f.DurationVar(&opts.delay, "delay", 0, "pause between requests")
	f.StringSliceVar(&opts.exclude, "exclude", nil, "regular expressions for URLs to skip")
	f.BoolVar(&opts.images, "images", false, "keep images in rendered pages")
	f.BoolVar(&opts.canonical, "canonical", false, "follow rel=canonical links")
	f.StringVarP(&opts.out, "output", "o", "", "also write the artifact to this local file")
	return cmd
}

// request merges flags over the configured defaults. Only flags the user set
// override a default.
func (o snapshotOptions) request(cmd *cobra.Command, rawURL string, instance *app.App) (job.Request, error) {
	cfg := instance.Config.Crawler.Defaults.Clone()
	flags := cmd.Flags()
	if flags.Changed("max-urls") {
		cfg.MaxURLs = o.maxURLs
	}
	if flags.Changed("max-depth") {
		cfg.MaxDepth = o.maxDepth
	}
	if flags.Changed("delay") {
		cfg.RequestDelay = o.delay
	}
	if flags.Changed("exclude") {
		cfg.ExcludePatterns = o.exclude
	}
	if flags.Changed("images") {
		cfg.IncludeImages = o.images
	}
	if flags.Changed("canonical") {
		cfg.RespectCanonical = o.canonical
	}

	req := job.Request{
		URL:        rawURL,
		Mode:       crawler.Mode(o.mode),
		SitemapURL: o.sitemapURL,
		Format:     job.Format(o.format),
		Config:     cfg,
	}
	if req.Format == "" {
		req.Format = instance.Config.Export.DefaultFormat
	}
	if o.sitemapFile != "" {
		data, err := os.ReadFile(o.sitemapFile)
		if err != nil {
			return job.Request{}, fmt.Errorf("read sitemap file: %w", err)
		}
		req.SitemapXML = string(data)
	}
	if err := req.Validate(); err != nil {
		return job.Request{}, fmt.Errorf("invalid snapshot request: %w", err)
	}
	return req, nil
}

func runSnapshot(ctx context.Context, w io.Writer, instance *app.App, req job.Request, outPath string) error {
	id, err := instance.IDs.NewID()
	if err != nil {
		return err //nolint:wrapcheck // already describes the step
	}
	if err := instance.Store.Create(ctx, job.NewRecord(id, req, instance.Clock.Now())); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	fmt.Fprintf(w, "Job %s started (%s, %s)\n", id, req.Mode, req.Format)

	runErr := instance.Orchestrator.Run(ctx, id)
	rec, err := instance.Store.Get(context.WithoutCancel(ctx), id)
	if err != nil {
		return errors.Join(runErr, fmt.Errorf("load job: %w", err))
	}
	if rec.Status != job.StatusCompleted {
		if rec.Error != "" {
			return fmt.Errorf("snapshot %s failed: %s", id, rec.Error)
		}
		return fmt.Errorf("snapshot %s failed: %w", id, runErr)
	}

	fmt.Fprintf(w, "Captured %d pages using %s\n", rec.PagesFound, rec.Strategy)
	fmt.Fprintf(w, "Artifact: %s\n", rec.ResultFile)
	fmt.Fprintf(w, "Download name: %s\n", rec.ResultFilename)
	if outPath == "" || rec.Artifact == nil {
		return nil
	}
	if err := writeArtifact(ctx, instance.Blobs, *rec.Artifact, outPath); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote %s\n", outPath)
	return nil
}

// writeArtifact copies the primary object to path, zipping HTML directories
// the same way the download endpoint does.
func writeArtifact(ctx context.Context, store crawler.BlobStore, art crawler.Artifact, path string) (err error) {
	f, err := os.Create(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close output file: %w", closeErr)
		}
	}()

	if art.Kind == crawler.ArtifactHTMLDir {
		return export.WriteZip(ctx, store, art, f) //nolint:wrapcheck // already describes the step
	}
	rc, err := store.GetObject(ctx, art.Key)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer rc.Close() //nolint:errcheck // read side
	if _, err := io.Copy(f, rc); err != nil {
		return fmt.Errorf("copy artifact: %w", err)
	}
	return nil
}
