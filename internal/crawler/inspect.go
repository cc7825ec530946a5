package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	titlePattern = regexp.MustCompile(`(?i)<title[^>]*>([^<]+)</title>`)
	imgMarker    = []byte("<img")
)

// boilerplateSelector lists elements excluded from word counts.
const boilerplateSelector = "script, style, noscript, nav, header, footer"

// Inspection is what an engine learns from a fetched document.
type Inspection struct {
	Title     string
	HasImages bool
	WordCount int
	Links     []string
	// Canonical is the resolved link[rel=canonical] target, if any.
	Canonical string
}

// InspectDocument parses body with goquery, extracting the title, image
// presence, a boilerplate-free word count and every same-domain link.
func InspectDocument(pageURL string, body []byte) (Inspection, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Inspection{}, fmt.Errorf("parse document: %w", err)
	}
	out := Inspection{
		Title:     strings.TrimSpace(doc.Find("title").First().Text()),
		HasImages: doc.Find("img").Length() > 0,
		Links:     ExtractLinks(doc, pageURL),
	}
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		if base, err := url.Parse(pageURL); err == nil {
			out.Canonical, _ = Resolve(base, href)
		}
	}
	doc.Find(boilerplateSelector).Remove()
	out.WordCount = len(strings.Fields(doc.Text()))
	return out, nil
}

// InspectLight is the cheaper inspection used for sitemap crawls: a regex
// title, an <img substring test and a raw text word count.
func InspectLight(body []byte) Inspection {
	out := Inspection{
		HasImages: bytes.Contains(bytes.ToLower(body), imgMarker),
	}
	if m := titlePattern.FindSubmatch(body); m != nil {
		out.Title = strings.TrimSpace(string(m[1]))
	}
	if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
		out.WordCount = len(strings.Fields(doc.Text()))
	}
	return out
}

// ExtractLinks resolves every a[href] in doc against pageURL and keeps the
// same-domain HTTP links, fragments stripped, in document order.
func ExtractLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, ok := Resolve(base, href)
		if !ok || !SameDomain(abs, pageURL) {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}
