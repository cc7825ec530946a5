package detector

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var spaMarkers = [][]byte{
	[]byte("react"),
	[]byte("vue.js"),
	[]byte("vue.min.js"),
	[]byte("angular"),
	[]byte("ng-app"),
	[]byte("data-react-root"),
	[]byte("__next"),
	[]byte("_next/static"),
	[]byte("nuxt"),
}

// Single-page thresholds.
const (
	strongNavigationRatio   = 0.8
	moderateNavigationRatio = 0.6
	moderateMaxPaths        = 2
	spaNavigationRatio      = 0.7
	spaMaxPaths             = 3
	spaMinMarkers           = 2
)

// LinkStats summarizes the anchors of a page.
type LinkStats struct {
	Total    int `json:"total"`
	Anchor   int `json:"anchor"`
	SamePage int `json:"same_page"`
	External int `json:"external"`
	// InternalPaths counts distinct same-host paths other than the page's own.
	InternalPaths int `json:"internal_paths"`
	SPAMarkers    int `json:"spa_markers"`
}

// Navigation is the number of links that stay on the current page.
func (s LinkStats) Navigation() int {
	return s.Anchor + s.SamePage
}

// NavigationRatio is Navigation over Total, or 0 without links.
func (s LinkStats) NavigationRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Navigation()) / float64(s.Total)
}

// SinglePage applies the single-page rules.
func (s LinkStats) SinglePage() bool {
	if s.Total == 0 {
		return true
	}
	ratio := s.NavigationRatio()
	switch {
	case ratio >= strongNavigationRatio:
		return true
	case s.InternalPaths <= moderateMaxPaths && ratio >= moderateNavigationRatio:
		return true
	case s.SPAMarkers >= spaMinMarkers && s.InternalPaths <= spaMaxPaths && ratio >= spaNavigationRatio:
		return true
	default:
		return false
	}
}

// ClassifyLinks parses body and buckets every a[href] relative to pageURL.
func ClassifyLinks(body []byte, pageURL string) LinkStats {
	stats := LinkStats{SPAMarkers: countSPAMarkers(body)}
	base, err := url.Parse(pageURL)
	if err != nil {
		return stats
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return stats
	}
	currentPath := strings.TrimRight(base.Path, "/")
	internal := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		stats.Total++
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		switch {
		case href == "" || href == "#":
			stats.SamePage++
			return
		case strings.HasPrefix(href, "#"):
			stats.Anchor++
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			stats.External++
			return
		}
		abs := base.ResolveReference(ref)
		scheme := strings.ToLower(abs.Scheme)
		if (scheme != "http" && scheme != "https") || !strings.EqualFold(abs.Host, base.Host) {
			stats.External++
			return
		}
		path := strings.TrimRight(abs.Path, "/")
		if path == currentPath || path == "" {
			if ref.Fragment != "" {
				stats.Anchor++
			} else {
				stats.SamePage++
			}
			return
		}
		internal[path] = struct{}{}
	})
	stats.InternalPaths = len(internal)
	return stats
}

func countSPAMarkers(body []byte) int {
	lower := bytes.ToLower(body)
	n := 0
	for _, marker := range spaMarkers {
		if bytes.Contains(lower, marker) {
			n++
		}
	}
	return n
}
