// Package render turns crawled URLs into cleaned, export-ready pages.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jaytaylor/html2text"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

const boilerplateSelector = "script, style, nav, footer, header, iframe, noscript"

// mainContentSelectors are tried in order; the first match wins.
var mainContentSelectors = []string{
	"main",
	"article",
	".content",
	"#content",
	".main-content",
	".post-content",
	".entry-content",
	`[role="main"]`,
}

// Clean extracts the main content of an HTML document. Relative image and
// link targets are made absolute against pageURL.
func Clean(pageURL string, body []byte, includeImages bool) (crawler.RenderedPage, error) {
	base, err := crawler.ParseHTTPURL(pageURL)
	if err != nil {
		return crawler.RenderedPage{}, fmt.Errorf("clean page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.RenderedPage{}, fmt.Errorf("clean page: parse document: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	metadata := map[string]string{
		"title":       title,
		"url":         pageURL,
		"description": description(doc),
	}

	doc.Find(boilerplateSelector).Remove()
	content := mainContent(doc)

	content.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if abs, ok := crawler.Resolve(base, href); ok {
			s.SetAttr("href", abs)
		}
	})

	var images []crawler.Image
	if includeImages {
		content.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
			src, _ := s.Attr("src")
			abs, ok := crawler.Resolve(base, src)
			if !ok {
				return
			}
			s.SetAttr("src", abs)
			alt, _ := s.Attr("alt")
			imgTitle, _ := s.Attr("title")
			images = append(images, crawler.Image{Src: abs, Alt: alt, Title: imgTitle})
		})
	} else {
		content.Find("img").Remove()
	}

	html, err := goquery.OuterHtml(content)
	if err != nil {
		return crawler.RenderedPage{}, fmt.Errorf("clean page: serialize content: %w", err)
	}
	text, err := html2text.FromString(html, html2text.Options{OmitLinks: true})
	if err != nil {
		return crawler.RenderedPage{}, fmt.Errorf("clean page: extract text: %w", err)
	}

	return crawler.RenderedPage{
		URL:      pageURL,
		Title:    title,
		HTML:     html,
		Text:     strings.TrimSpace(text),
		Images:   images,
		Metadata: metadata,
	}, nil
}

func mainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range mainContentSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	if body := doc.Find("body").First(); body.Length() > 0 {
		return body
	}
	return doc.Selection
}

func description(doc *goquery.Document) string {
	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok && strings.TrimSpace(desc) != "" {
		return strings.TrimSpace(desc)
	}
	desc, _ := doc.Find(`meta[property="og:description"]`).First().Attr("content")
	return strings.TrimSpace(desc)
}
