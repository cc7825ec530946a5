package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/sitesnap/internal/crawler"
	"github.com/JakeFAU/sitesnap/internal/metrics"
)

// DefaultNavigationTimeout bounds a single browser task.
const DefaultNavigationTimeout = 45 * time.Second

// ChromeConfig controls the headless browser.
type ChromeConfig struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// PDFOptions controls PrintPDF output.
type PDFOptions struct {
	// PaperWidth and PaperHeight are in inches.
	PaperWidth  float64
	PaperHeight float64
	// Margin applies to all four sides, in inches.
	Margin          float64
	PrintBackground bool
}

// A4 with 10mm margins.
var A4 = PDFOptions{
	PaperWidth:      8.27,
	PaperHeight:     11.69,
	Margin:          0.3937,
	PrintBackground: true,
}

// Chrome renders pages and prints PDFs in one shared headless browser, one
// tab per task. At most MaxParallel tabs run at once.
type Chrome struct {
	cfg           ChromeConfig
	sem           *semaphore.Weighted
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger

	mu      sync.Mutex
	started bool
}

// NewChrome prepares the browser context. The Chrome process itself launches
// on the first Render or PrintPDF.
func NewChrome(cfg ChromeConfig, logger *zap.Logger) (*Chrome, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.MaxParallel == 0 {
		cfg.MaxParallel = 1
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return &Chrome{
		cfg:           cfg,
		sem:           semaphore.NewWeighted(int64(cfg.MaxParallel)),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger.Named("render_chrome"),
	}, nil
}

// Close shuts the browser down.
func (c *Chrome) Close() {
	c.browserCancel()
	c.allocCancel()
}

// browser launches the shared process once. A failed launch is retried by the
// next task.
func (c *Chrome) browser() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.browserCtx.Err(); err != nil {
		return nil, fmt.Errorf("browser closed: %w", err)
	}
	if !c.started {
		if err := chromedp.Run(c.browserCtx); err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		c.started = true
		c.logger.Info("headless browser started")
	}
	return c.browserCtx, nil
}

// Render implements crawler.Renderer using the live DOM after scripts run.
func (c *Chrome) Render(ctx context.Context, url string, includeImages bool) (crawler.RenderedPage, error) {
	start := time.Now()
	out, err := c.render(ctx, url, includeImages)
	metrics.ObserveRender("chrome", err, time.Since(start))
	return out, err
}

func (c *Chrome) render(ctx context.Context, url string, includeImages bool) (crawler.RenderedPage, error) {
	var html string
	err := c.run(ctx, func(taskCtx context.Context) error {
		return chromedp.Run(taskCtx,
			c.setupAction(),
			chromedp.Navigate(url),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(500*time.Millisecond),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
	})
	if err != nil {
		return crawler.RenderedPage{}, fmt.Errorf("render %s: %w", url, err)
	}
	out, err := Clean(url, []byte(html), includeImages)
	if err != nil {
		return crawler.RenderedPage{}, fmt.Errorf("render %s: %w", url, err)
	}
	c.logger.Debug("page rendered", zap.String("url", url), zap.Int("images", len(out.Images)))
	return out, nil
}

// PrintPDF loads html into a blank tab and prints it.
func (c *Chrome) PrintPDF(ctx context.Context, html string, opts PDFOptions) ([]byte, error) {
	var pdf []byte
	err := c.run(ctx, func(taskCtx context.Context) error {
		return chromedp.Run(taskCtx,
			chromedp.Navigate("about:blank"),
			chromedp.ActionFunc(func(ctx context.Context) error {
				tree, err := page.GetFrameTree().Do(ctx)
				if err != nil {
					return fmt.Errorf("get frame tree: %w", err)
				}
				if err := page.SetDocumentContent(tree.Frame.ID, html).Do(ctx); err != nil {
					return fmt.Errorf("set document content: %w", err)
				}
				return nil
			}),
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.ActionFunc(func(ctx context.Context) error {
				buf, _, err := page.PrintToPDF().
					WithPrintBackground(opts.PrintBackground).
					WithPaperWidth(opts.PaperWidth).
					WithPaperHeight(opts.PaperHeight).
					WithMarginTop(opts.Margin).
					WithMarginBottom(opts.Margin).
					WithMarginLeft(opts.Margin).
					WithMarginRight(opts.Margin).
					Do(ctx)
				if err != nil {
					return fmt.Errorf("print to pdf: %w", err)
				}
				pdf = buf
				return nil
			}),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return pdf, nil
}

func (c *Chrome) run(ctx context.Context, task func(context.Context) error) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("browser slot wait canceled: %w", err)
	}
	defer c.sem.Release(1)

	browserCtx, err := c.browser()
	if err != nil {
		return err
	}
	taskCtx, taskCancel := chromedp.NewContext(browserCtx)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, c.cfg.NavigationTimeout)
	defer cancel()

	// Tie the tab to the caller's context as well as the browser's.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return task(taskCtx)
}

func (c *Chrome) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}
