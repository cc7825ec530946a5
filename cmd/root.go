// Package cmd defines the sitesnap command line: the HTTP service plus
// one-shot analyze and snapshot commands that share its service graph.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitesnap/internal/app"
	"github.com/JakeFAU/sitesnap/internal/config"
	"github.com/JakeFAU/sitesnap/internal/logging"
)

const closeTimeout = 10 * time.Second

type appKeyType string

const appKey appKeyType = "app"

// newApp is swapped in tests to inject a private metrics registry.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger, app.Options{})
}

// newRootCmd builds the command tree. The returned func releases whatever
// PersistentPreRunE opened and must run after Execute, even on error.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cfgFile  string
		instance *app.App
	)

	cmd := &cobra.Command{
		Use:   "sitesnap",
		Short: "Capture websites as PDF, Markdown or HTML snapshots.",
		Long: `sitesnap crawls a site through its sitemap, a bounded link walk or a
single page, renders what it finds and exports one downloadable snapshot.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err //nolint:wrapcheck // already describes the step
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			instance, err = newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, instance))
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file; SITESNAP_* env vars override it")

	cmd.AddCommand(newServeCmd(), newAnalyzeCmd(), newSnapshotCmd())

	cleanup := func() {
		if instance == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := instance.Close(ctx); err != nil {
			instance.Logger.Warn("failed to close services", zap.Error(err))
		}
		_ = instance.Logger.Sync()
	}
	return cmd, cleanup
}

// Execute runs the CLI until it finishes or the process is signaled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	root, cleanup := newRootCmd()
	err := root.ExecuteContext(ctx)
	cleanup()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	instance, ok := ctx.Value(appKey).(*app.App)
	if !ok || instance == nil {
		return nil, errors.New("application services not initialized")
	}
	return instance, nil
}
