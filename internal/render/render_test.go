package render

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

const article = `<html><head>
<title> Release Notes </title>
<meta property="og:description" content="What changed">
<script>track()</script>
</head><body>
<header>Site header</header>
<nav><a href="/home">Home</a></nav>
<div class="content">outer</div>
<main>
  <h1>Version 2</h1>
  <p>See <a href="../guide/#install">the guide</a> for details.</p>
  <img src="/img/chart.png" alt="Chart" title="Growth">
  <img src="data:image/png;base64,AAAA">
  <style>.x{}</style>
</main>
<footer>Copyright</footer>
</body></html>`

type fakeFetcher struct {
	status int
	body   string
	err    error
}

func (f fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	if f.err != nil {
		return crawler.FetchResponse{}, f.err
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: f.status, Body: []byte(f.body)}, nil
}

func TestCleanExtractsMainContent(t *testing.T) {
	t.Parallel()

	page, err := Clean("https://docs.test/notes/v2", []byte(article), true)
	require.NoError(t, err)
	require.Equal(t, "Release Notes", page.Title)
	require.Equal(t, map[string]string{
		"title":       "Release Notes",
		"url":         "https://docs.test/notes/v2",
		"description": "What changed",
	}, page.Metadata)

	require.Contains(t, page.HTML, `<main>`)
	require.Contains(t, page.HTML, `href="https://docs.test/guide/"`)
	require.Contains(t, page.HTML, `src="https://docs.test/img/chart.png"`)
	require.NotContains(t, page.HTML, "outer")
	require.NotContains(t, page.HTML, "<style>")

	require.Equal(t, []crawler.Image{{Src: "https://docs.test/img/chart.png", Alt: "Chart", Title: "Growth"}}, page.Images)

	require.Contains(t, page.Text, "Version 2")
	require.Contains(t, page.Text, "the guide")
	require.NotContains(t, page.Text, "Site header")
	require.NotContains(t, page.Text, "Copyright")
}

func TestCleanDropsImagesWhenExcluded(t *testing.T) {
	t.Parallel()

	page, err := Clean("https://docs.test/notes/v2", []byte(article), false)
	require.NoError(t, err)
	require.Empty(t, page.Images)
	require.NotContains(t, page.HTML, "<img")
}

func TestCleanFallsBackToBody(t *testing.T) {
	t.Parallel()

	body := `<html><head><meta name="description" content="Plain"></head><body><h1>Heading</h1><p>text</p></body></html>`
	page, err := Clean("https://docs.test/", []byte(body), true)
	require.NoError(t, err)
	require.Equal(t, "Heading", page.Title)
	require.Equal(t, "Plain", page.Metadata["description"])
	require.Contains(t, page.HTML, "<body>")
}

func TestCleanRejectsBadURL(t *testing.T) {
	t.Parallel()

	_, err := Clean("not a url", []byte(article), true)
	require.Error(t, err)
}

func TestStaticRender(t *testing.T) {
	t.Parallel()

	page, err := NewStatic(fakeFetcher{status: http.StatusOK, body: article}, nil).
		Render(context.Background(), "https://docs.test/notes/v2", true)
	require.NoError(t, err)
	require.Equal(t, "https://docs.test/notes/v2", page.URL)
	require.Len(t, page.Images, 1)

	_, err = NewStatic(fakeFetcher{status: http.StatusInternalServerError}, nil).
		Render(context.Background(), "https://docs.test/", true)
	require.ErrorContains(t, err, "status 500")

	_, err = NewStatic(fakeFetcher{err: errors.New("reset")}, nil).
		Render(context.Background(), "https://docs.test/", true)
	require.ErrorContains(t, err, "reset")
}

func TestNewChromeValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChrome(ChromeConfig{MaxParallel: -1}, nil)
	require.Error(t, err)

	chrome, err := NewChrome(ChromeConfig{}, nil)
	require.NoError(t, err)
	defer chrome.Close()
	require.Equal(t, DefaultNavigationTimeout, chrome.cfg.NavigationTimeout)
	require.Equal(t, 1, chrome.cfg.MaxParallel)
}

func TestChromeRunHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	chrome, err := NewChrome(ChromeConfig{MaxParallel: 1, NavigationTimeout: time.Second}, nil)
	require.NoError(t, err)
	defer chrome.Close()

	require.True(t, chrome.sem.TryAcquire(1))
	defer chrome.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = chrome.Render(ctx, "https://docs.test/", true)
	require.ErrorIs(t, err, context.Canceled)
}

func TestChromeClosedRejectsTasks(t *testing.T) {
	t.Parallel()

	chrome, err := NewChrome(ChromeConfig{NavigationTimeout: time.Second}, nil)
	require.NoError(t, err)
	chrome.Close()

	_, err = chrome.Render(context.Background(), "https://docs.test/", true)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorContains(t, err, "browser closed")
	require.False(t, chrome.started)

	_, err = chrome.PrintPDF(context.Background(), "<p>x</p>", A4)
	require.ErrorIs(t, err, context.Canceled)
}
