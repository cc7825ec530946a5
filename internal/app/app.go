// Package app builds the long-lived sitesnap services from configuration and
// owns their shutdown. Both the server and the one-shot CLI commands run on
// the same graph.
package app

import (
	"context"
	"errors"
	"fmt"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/clock/system"
	"github.com/JakeFAU/sitesnap/internal/config"
	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/detector"
	"github.com/JakeFAU/sitesnap/internal/export"
	collyfetcher "github.com/JakeFAU/sitesnap/internal/fetcher/colly"
	"github.com/JakeFAU/sitesnap/internal/hash/sha256"
	"github.com/JakeFAU/sitesnap/internal/id/uuid"
	"github.com/JakeFAU/sitesnap/internal/job"
	"github.com/JakeFAU/sitesnap/internal/orchestrator"
	"github.com/JakeFAU/sitesnap/internal/policy/ratelimit"
	"github.com/JakeFAU/sitesnap/internal/progress"
	"github.com/JakeFAU/sitesnap/internal/progress/sinks"
	"github.com/JakeFAU/sitesnap/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/sitesnap/internal/queue/memory"
	queuepubsub "github.com/JakeFAU/sitesnap/internal/queue/pubsub"
	"github.com/JakeFAU/sitesnap/internal/render"
	"github.com/JakeFAU/sitesnap/internal/sitemap"
	"github.com/JakeFAU/sitesnap/internal/storage/gcs"
	"github.com/JakeFAU/sitesnap/internal/storage/local"
	"github.com/JakeFAU/sitesnap/internal/storage/memory"
	"github.com/JakeFAU/sitesnap/internal/storage/postgres"
	"github.com/JakeFAU/sitesnap/internal/telemetry"
)

// Options override process-wide defaults, mainly for tests.
type Options struct {
	// Registerer receives the progress collectors; nil uses the default.
	Registerer prometheus.Registerer
	// Store replaces the configured job store.
	Store job.Store
	// Blobs replaces the configured artifact store.
	Blobs crawler.BlobStore
}

// JobQueue is a crawler.Queue that can stop accepting work.
type JobQueue interface {
	crawler.Queue
	Close()
}

// App holds the shared services.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Store        job.Store
	Blobs        crawler.BlobStore
	Detector     *detector.Detector
	Orchestrator *orchestrator.Orchestrator
	IDs          crawler.IDGenerator
	Clock        crawler.Clock
	Hub          *progress.Hub
	Queue        JobQueue

	pinger  func(context.Context) error
	pubsub  *gpubsub.Client
	closers []func(context.Context) error
}

// New wires every service described by cfg. It fails fast when a configured
// backend cannot be reached; anything already opened is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		Config: cfg,
		Logger: logger,
		IDs:    uuid.New(),
		Clock:  system.New(),
	}
	defer func() {
		if err != nil {
			if closeErr := a.Close(context.WithoutCancel(ctx)); closeErr != nil {
				logger.Warn("close after failed start", zap.Error(closeErr))
			}
		}
	}()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.onClose(shutdownTracing)

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: cfg.Crawler.RespectRobots,
		Timeout:       cfg.Crawler.RequestTimeout,
	})
	sitemaps := sitemap.New(fetcher, sitemap.Config{
		MaxDepth:      cfg.Sitemap.MaxDepth,
		MaxChildren:   cfg.Sitemap.MaxChildren,
		IndexEstimate: cfg.Sitemap.IndexEstimate,
	}, logger)
	a.Detector = detector.New(fetcher, sitemaps, detector.Config{ProbeTimeout: cfg.Detector.ProbeTimeout}, logger)

	if a.Store, err = a.openStore(ctx, opts.Store); err != nil {
		return nil, err
	}
	if a.Blobs, err = a.openBlobs(ctx, opts.Blobs); err != nil {
		return nil, err
	}

	chrome, err := render.NewChrome(render.ChromeConfig{
		MaxParallel:       cfg.Render.MaxParallel,
		UserAgent:         cfg.Crawler.UserAgent,
		NavigationTimeout: cfg.Render.NavTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	a.onClose(func(context.Context) error {
		chrome.Close()
		return nil
	})
	var renderer crawler.Renderer = render.NewStatic(fetcher, logger)
	if cfg.Render.Headless {
		renderer = chrome
	}

	hasher := sha256.New()
	htmlDir := export.NewHTMLDir(a.Blobs, hasher, logger)
	exporters := map[job.Format]crawler.Exporter{
		job.FormatPDF:      export.NewPDF(chrome, a.Blobs, hasher, a.Clock, logger),
		job.FormatMarkdown: export.NewMarkdown(a.Blobs, hasher, logger),
		job.FormatHTML:     htmlDir,
	}

	if a.Hub, err = a.openHub(ctx, opts.Registerer); err != nil {
		return nil, err
	}
	if a.Queue, err = a.openQueue(ctx); err != nil {
		return nil, err
	}

	a.Orchestrator, err = orchestrator.New(orchestrator.Deps{
		Store:    a.Store,
		Detector: a.Detector,
		Engines: crawler.Factory{
			Fetcher:        fetcher,
			Expander:       sitemaps,
			NewPacer:       ratelimit.Factory,
			RecordFailures: cfg.Crawler.SitemapRecordFailures,
			Logger:         logger,
		},
		Sitemaps:  sitemaps,
		Renderer:  renderer,
		Exporters: exporters,
		Fallback:  htmlDir,
		Clock:     a.Clock,
		Events:    a.Hub,
	}, orchestrator.Config{
		JobTimeout:     cfg.Crawler.JobTimeout,
		ArtifactPrefix: cfg.Export.Prefix,
		NamePrefix:     cfg.Export.NamePrefix,
		IncludeTOC:     cfg.Export.IncludeTOC,
		IncludeCover:   cfg.Export.IncludeCover,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context, override job.Store) (job.Store, error) {
	if override != nil {
		return override, nil
	}
	if a.Config.DB.DSN == "" {
		a.Logger.Info("using in-memory job store")
		return memory.NewJobStore(), nil
	}
	store, err := postgres.NewJobStore(ctx, postgres.Config{
		DSN:      a.Config.DB.DSN,
		Table:    a.Config.DB.Table,
		MaxConns: a.Config.DB.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	a.onClose(func(context.Context) error {
		store.Close()
		return nil
	})
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err //nolint:wrapcheck // already describes the step
	}
	a.pinger = store.Ping
	a.Logger.Info("using postgres job store", zap.String("table", a.Config.DB.Table))
	return store, nil
}

func (a *App) openBlobs(ctx context.Context, override crawler.BlobStore) (crawler.BlobStore, error) {
	if override != nil {
		return override, nil
	}
	if bucket := a.Config.Export.GCSBucket; bucket != "" {
		store, err := gcs.Open(ctx, gcs.Config{Bucket: bucket}, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("open artifact bucket: %w", err)
		}
		a.onClose(func(context.Context) error { return store.Close() })
		a.Logger.Info("writing artifacts to gcs", zap.String("bucket", bucket))
		return store, nil
	}
	store, err := local.New(local.Config{BaseDir: a.Config.Export.Dir})
	if err != nil {
		return nil, fmt.Errorf("open artifact dir: %w", err)
	}
	a.Logger.Info("writing artifacts to local disk", zap.String("dir", a.Config.Export.Dir))
	return store, nil
}

func (a *App) openHub(ctx context.Context, reg prometheus.Registerer) (*progress.Hub, error) {
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, err //nolint:wrapcheck // already describes the step
	}
	hubSinks := []progress.Sink{sinks.NewLogSink(a.Logger), promSink}

	if topic := a.Config.PubSub.TopicName; topic != "" {
		client, err := a.pubsubClient(ctx)
		if err != nil {
			return nil, err
		}
		pub, err := pubsub.New(client)
		if err != nil {
			return nil, err //nolint:wrapcheck // validation message
		}
		a.onClose(func(context.Context) error {
			pub.Close()
			return nil
		})
		notify, err := sinks.NewNotifySink(pub, topic, a.Logger)
		if err != nil {
			return nil, err //nolint:wrapcheck // validation message
		}
		hubSinks = append(hubSinks, notify)
		a.Logger.Info("publishing job notifications", zap.String("topic", topic))
	}

	hub := progress.NewHub(a.Config.Progress, a.Logger, hubSinks...)
	a.onClose(hub.Close)
	return hub, nil
}

func (a *App) openQueue(ctx context.Context) (JobQueue, error) {
	ps := a.Config.PubSub
	if ps.JobTopic == "" {
		return queuememory.NewQueue(a.Config.Crawler.QueueDepth), nil
	}
	client, err := a.pubsubClient(ctx)
	if err != nil {
		return nil, err
	}
	q, err := queuepubsub.New(ctx, client, queuepubsub.Config{
		Topic:          ps.JobTopic,
		Subscription:   ps.JobSubscription,
		MaxOutstanding: a.Config.Crawler.Concurrency,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("open job queue: %w", err)
	}
	a.onClose(func(context.Context) error {
		q.Close()
		return nil
	})
	a.Logger.Info("using pubsub job queue", zap.String("topic", ps.JobTopic), zap.String("subscription", ps.JobSubscription))
	return q, nil
}

// pubsubClient opens one client shared by notifications and the job queue.
func (a *App) pubsubClient(ctx context.Context) (*gpubsub.Client, error) {
	if a.pubsub != nil {
		return a.pubsub, nil
	}
	client, err := gpubsub.NewClient(ctx, a.Config.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	a.onClose(func(context.Context) error { return client.Close() })
	a.pubsub = client
	return client, nil
}

// Ready reports whether the job store answers.
func (a *App) Ready(ctx context.Context) error {
	if a.pinger == nil {
		return nil
	}
	return a.pinger(ctx)
}

// Close shuts services down in reverse start order and joins their errors.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}
