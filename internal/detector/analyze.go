package detector

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

// Analysis is the pre-flight report returned before a job is submitted.
type Analysis struct {
	URL             string                     `json:"url"`
	Domain          string                     `json:"domain"`
	SuggestedMode   crawler.Mode               `json:"suggested_mode"`
	SitemapDetected bool                       `json:"sitemap_detected"`
	Sitemap         *crawler.SitemapDescriptor `json:"sitemap,omitempty"`
	RobotsTxtFound  bool                       `json:"robots_txt_found"`
	Title           string                     `json:"title,omitempty"`
	Description     string                     `json:"description,omitempty"`
	EstimatedPages  int                        `json:"estimated_pages,omitempty"`
}

// Analyze runs detection and summarizes the site's root page.
func (d *Detector) Analyze(ctx context.Context, rawURL string) (Analysis, error) {
	u, err := crawler.ParseHTTPURL(rawURL)
	if err != nil {
		return Analysis{}, fmt.Errorf("analyze: %w", err)
	}
	startURL := u.String()
	det := d.detect(ctx, startURL)

	if det.Mode == crawler.ModeSinglePage {
		// The single-page branch skips robots.txt; report it anyway.
		_, det.RobotsFound = d.robotsSitemap(ctx, crawler.Domain(startURL))
	}

	out := Analysis{
		URL:            startURL,
		Domain:         crawler.Domain(startURL),
		SuggestedMode:  det.Mode,
		Sitemap:        det.Sitemap,
		RobotsTxtFound: det.RobotsFound,
	}
	if det.Sitemap != nil {
		out.SitemapDetected = true
		out.EstimatedPages = det.Sitemap.URLCount
	}
	if det.Root != nil {
		out.Title, out.Description = pageSummary(det.Root.Body)
	}
	return out, nil
}

func pageSummary(body []byte) (string, string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", ""
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	desc, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	if strings.TrimSpace(desc) == "" {
		desc, _ = doc.Find(`meta[property="og:description"]`).First().Attr("content")
	}
	return title, strings.TrimSpace(desc)
}
