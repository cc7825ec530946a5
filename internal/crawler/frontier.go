package crawler

import "github.com/bits-and-blooms/bloom/v3"

const (
	frontierMinCapacity = 1024
	frontierLinksPerURL = 20
	frontierFPRate      = 0.001
)

type frontierItem struct {
	url   string
	depth int
}

// Frontier is the FIFO queue of a breadth-first crawl. A bloom filter answers
// most "already queued" checks; its positives are confirmed against an exact
// set, so every new URL is queued exactly once.
type Frontier struct {
	items []frontierItem
	seen  *bloom.BloomFilter
	exact map[string]struct{}
}

// NewFrontier sizes the filter for a crawl capped at maxURLs pages.
func NewFrontier(maxURLs int) *Frontier {
	n := uint(maxURLs * frontierLinksPerURL)
	if n < frontierMinCapacity {
		n = frontierMinCapacity
	}
	return &Frontier{
		seen:  bloom.NewWithEstimates(n, frontierFPRate),
		exact: make(map[string]struct{}),
	}
}

// Push queues url at depth unless it was queued before. It returns true when
// the URL was added.
func (f *Frontier) Push(url string, depth int) bool {
	key := visitKey(StripFragment(url))
	if f.has(key) {
		return false
	}
	f.add(key)
	f.items = append(f.items, frontierItem{url: url, depth: depth})
	return true
}

// Mark records url as seen without queueing it.
func (f *Frontier) Mark(url string) {
	f.add(visitKey(StripFragment(url)))
}

// Queued reports whether url was queued or marked already.
func (f *Frontier) Queued(url string) bool {
	return f.has(visitKey(StripFragment(url)))
}

func (f *Frontier) has(key string) bool {
	if !f.seen.TestString(key) {
		return false
	}
	_, ok := f.exact[key]
	return ok
}

func (f *Frontier) add(key string) {
	f.seen.AddString(key)
	f.exact[key] = struct{}{}
}

// Pop removes the oldest entry.
func (f *Frontier) Pop() (string, int, bool) {
	if len(f.items) == 0 {
		return "", 0, false
	}
	item := f.items[0]
	f.items[0] = frontierItem{}
	f.items = f.items[1:]
	return item.url, item.depth, true
}

// Len returns the number of queued entries.
func (f *Frontier) Len() int {
	return len(f.items)
}
