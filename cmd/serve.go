package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sitesnap/internal/api"
	"github.com/JakeFAU/sitesnap/internal/app"
	"github.com/JakeFAU/sitesnap/internal/dispatcher"
)

const readHeaderTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the snapshot HTTP API and its worker pool",
		Long: `Starts the HTTP API and a fixed pool of workers fed by the job queue:
a bounded in-memory queue, or a Pub/Sub subscription shared with other
replicas when pubsub.job_topic is set. On SIGINT or SIGTERM the listener stops accepting requests,
queued jobs drain until server.shutdown_timeout, and then running jobs are
canceled and marked failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			instance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if addr == "" {
				addr = instance.Config.Server.Addr()
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			return serve(cmd.Context(), instance, ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :server.port)")
	return cmd
}

// serve blocks until ctx ends or the listener fails, then shuts down in
// order: HTTP first, then the queue, then the workers.
func serve(ctx context.Context, instance *app.App, ln net.Listener) error {
	cfg := instance.Config
	logger := instance.Logger

	queue := instance.Queue
	pool := dispatcher.NewPool(queue, instance.Orchestrator, cfg.Crawler.Concurrency, logger)

	apiServer, err := api.NewServer(api.Deps{
		Store:    instance.Store,
		Blobs:    instance.Blobs,
		Queue:    pool,
		Analyzer: instance.Detector,
		IDs:      instance.IDs,
		Clock:    instance.Clock,
		Ready:    instance.Ready,
	}, api.Config{
		RequestTimeout: cfg.Server.RequestTimeout,
		Defaults:       cfg.Crawler.Defaults,
		DefaultFormat:  cfg.Export.DefaultFormat,
	}, logger)
	if err != nil {
		return fmt.Errorf("build api server: %w", err)
	}
	srv := &http.Server{
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Workers outlive ctx so queued jobs can drain during shutdown.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	drained := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(drained)
		logger.Info("dispatcher started", zap.Int("workers", pool.Workers()))
		pool.Run(workCtx)
		return nil
	})
	g.Go(func() error {
		logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
		queue.Close()
		select {
		case <-drained:
		case <-shutdownCtx.Done():
			logger.Warn("shutdown timeout reached, canceling running jobs")
			cancelWork()
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err //nolint:wrapcheck // already wrapped by the failing goroutine
}
