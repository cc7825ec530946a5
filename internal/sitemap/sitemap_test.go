package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	calls  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: make(map[string][]byte)}
}

func (f *fakeFetcher) set(url, body string) {
	f.bodies[url] = []byte(body)
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.URL)
	body, ok := f.bodies[req.URL]
	if !ok {
		return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusNotFound}, nil
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusOK, Body: body}, nil
}

func urlset(urls ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, u := range urls {
		b.WriteString("<url><loc>" + u + "</loc></url>")
	}
	b.WriteString("</urlset>")
	return b.String()
}

func index(children ...string) string {
	var b strings.Builder
	b.WriteString(`<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, c := range children {
		b.WriteString("<sitemap><loc> " + c + " </loc></sitemap>")
	}
	b.WriteString("</sitemapindex>")
	return b.String()
}

func TestParseURLSetAndIndex(t *testing.T) {
	t.Parallel()

	doc, err := Parse(strings.NewReader(urlset("https://a.test/1", "https://a.test/2")))
	require.NoError(t, err)
	require.False(t, doc.IsIndex())
	require.Equal(t, []string{"https://a.test/1", "https://a.test/2"}, doc.URLs)
	require.Equal(t, 2, doc.EstimatedURLs(50))

	doc, err = Parse(strings.NewReader(index("https://a.test/s1.xml", "https://a.test/s2.xml")))
	require.NoError(t, err)
	require.True(t, doc.IsIndex())
	require.Equal(t, []string{"https://a.test/s1.xml", "https://a.test/s2.xml"}, doc.Children)
	require.Equal(t, 100, doc.EstimatedURLs(50))

	_, err = Parse(strings.NewReader("not xml at all <"))
	require.Error(t, err)
}

func TestParseWithoutNamespace(t *testing.T) {
	t.Parallel()

	doc, err := Parse(strings.NewReader(`<urlset><url><loc>https://a.test/</loc></url><url></url></urlset>`))
	require.NoError(t, err)
	require.Equal(t, 2, doc.Entries)
	require.Equal(t, []string{"https://a.test/"}, doc.URLs)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.set("https://a.test/three.xml", urlset("https://a.test/1", "https://a.test/2", "https://a.test/3"))
	fetcher.set("https://a.test/index.xml", index("https://a.test/s1.xml", "https://a.test/s2.xml"))
	fetcher.set("https://a.test/empty.xml", urlset())
	fetcher.set("https://a.test/broken.xml", "<urlset><url")
	client := New(fetcher, Config{}, nil)
	ctx := context.Background()

	desc := client.Validate(ctx, "https://a.test/three.xml", crawler.SitemapSourceRobots)
	require.Equal(t, crawler.SitemapDescriptor{
		URL:      "https://a.test/three.xml",
		URLCount: 3,
		Valid:    true,
		Source:   crawler.SitemapSourceRobots,
	}, desc)

	desc = client.Validate(ctx, "https://a.test/index.xml", crawler.SitemapSourceCommon)
	require.True(t, desc.Valid)
	require.Equal(t, 100, desc.URLCount)

	require.False(t, client.Validate(ctx, "https://a.test/empty.xml", crawler.SitemapSourceCommon).Valid)
	require.False(t, client.Validate(ctx, "https://a.test/broken.xml", crawler.SitemapSourceCommon).Valid)
	require.False(t, client.Validate(ctx, "https://a.test/missing.xml", crawler.SitemapSourceCommon).Valid)
}

func TestValidateGzip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(urlset("https://a.test/1")))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	fetcher := newFakeFetcher()
	fetcher.set("https://a.test/sitemap.xml.gz", buf.String())
	desc := New(fetcher, Config{}, nil).Validate(context.Background(), "https://a.test/sitemap.xml.gz", crawler.SitemapSourceUser)
	require.True(t, desc.Valid)
	require.Equal(t, 1, desc.URLCount)
}

func TestExpandCapsChildrenPerLevel(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	var children []string
	for i := range 15 {
		child := fmt.Sprintf("https://a.test/s%d.xml", i)
		children = append(children, child)
		fetcher.set(child, urlset(fmt.Sprintf("https://a.test/page%d", i)))
	}
	fetcher.set("https://a.test/index.xml", index(children...))

	urls, err := New(fetcher, Config{}, nil).Expand(context.Background(), "https://a.test/index.xml", 100)
	require.NoError(t, err)
	require.Len(t, urls, 10)
	require.Len(t, fetcher.calls, 11)
}

func TestExpandStopsAtDepthLimit(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.set("https://a.test/l0.xml", index("https://a.test/l1.xml"))
	fetcher.set("https://a.test/l1.xml", index("https://a.test/l2.xml"))
	fetcher.set("https://a.test/l2.xml", index("https://a.test/l3.xml"))
	fetcher.set("https://a.test/l3.xml", index("https://a.test/l4.xml"))
	fetcher.set("https://a.test/l4.xml", urlset("https://a.test/too-deep"))
	client := New(fetcher, Config{}, nil)

	urls, err := client.Expand(context.Background(), "https://a.test/l0.xml", 100)
	require.NoError(t, err)
	require.Empty(t, urls)
	require.NotContains(t, fetcher.calls, "https://a.test/l4.xml")

	fetcher.set("https://a.test/l3.xml", urlset("https://a.test/deepest"))
	urls, err = client.Expand(context.Background(), "https://a.test/l0.xml", 100)
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.test/deepest"}, urls)
}

func TestExpandStopsAtLimitAndSkipsBrokenChildren(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.set("https://a.test/index.xml", index("https://a.test/broken.xml", "https://a.test/a.xml", "https://a.test/b.xml"))
	fetcher.set("https://a.test/a.xml", urlset("https://a.test/1", "https://a.test/2", "https://a.test/3"))
	fetcher.set("https://a.test/b.xml", urlset("https://a.test/4"))

	urls, err := New(fetcher, Config{}, nil).Expand(context.Background(), "https://a.test/index.xml", 2)
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.test/1", "https://a.test/2"}, urls)
	require.NotContains(t, fetcher.calls, "https://a.test/b.xml")
}

func TestExpandRootFailure(t *testing.T) {
	t.Parallel()

	_, err := New(newFakeFetcher(), Config{}, nil).Expand(context.Background(), "https://a.test/none.xml", 10)
	require.Error(t, err)
}

func TestUploadedExpand(t *testing.T) {
	t.Parallel()

	client := New(newFakeFetcher(), Config{}, nil)
	up, err := client.NewUploaded([]byte(urlset("https://a.test/1", "https://a.test/2")))
	require.NoError(t, err)
	require.Equal(t, crawler.SitemapDescriptor{URLCount: 2, Valid: true, Source: crawler.SitemapSourceUpload}, up.Descriptor())

	urls, err := up.Expand(context.Background(), "", 1)
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.test/1"}, urls)

	_, err = client.NewUploaded([]byte("<<<"))
	require.Error(t, err)
}
