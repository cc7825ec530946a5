package crawler

import "strings"

// Gate is the admission check shared by every engine. It is owned by a
// single engine and is not safe for concurrent use.
type Gate struct {
	maxURLs  int
	excludes []string
	visited  map[string]struct{}
}

// NewGate builds a Gate from the crawl limits.
func NewGate(cfg CrawlConfig) *Gate {
	excludes := make([]string, 0, len(cfg.ExcludePatterns))
	for _, p := range cfg.ExcludePatterns {
		if p = strings.TrimSpace(p); p != "" {
			excludes = append(excludes, p)
		}
	}
	return &Gate{
		maxURLs:  cfg.MaxURLs,
		excludes: excludes,
		visited:  make(map[string]struct{}),
	}
}

// Allow reports whether url may be crawled: it has not been visited, it
// contains no exclude substring, and the visited count is below the limit.
func (g *Gate) Allow(url string) bool {
	if _, seen := g.visited[visitKey(url)]; seen {
		return false
	}
	for _, p := range g.excludes {
		if strings.Contains(url, p) {
			return false
		}
	}
	return len(g.visited) < g.maxURLs
}

// Visit marks url as visited.
func (g *Gate) Visit(url string) {
	g.visited[visitKey(url)] = struct{}{}
}

// Admit combines Allow and Visit.
func (g *Gate) Admit(url string) bool {
	if !g.Allow(url) {
		return false
	}
	g.Visit(url)
	return true
}

// Visited reports whether url was already admitted.
func (g *Gate) Visited(url string) bool {
	_, ok := g.visited[visitKey(url)]
	return ok
}

// Count returns the number of visited URLs.
func (g *Gate) Count() int {
	return len(g.visited)
}

func visitKey(url string) string {
	if normalized, err := NormalizeURL(url); err == nil {
		return normalized
	}
	return url
}
