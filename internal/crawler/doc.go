// Package crawler defines the shared types and contracts of the snapshot
// pipeline together with the bounded crawl engines (single page, recursive
// BFS and sitemap driven) and the admission gate they share.
package crawler
