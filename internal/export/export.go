// Package export assembles rendered pages into downloadable artifacts and
// writes them through a crawler.BlobStore.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

// ErrNoPages is returned when an exporter is handed nothing to export.
var ErrNoPages = errors.New("no pages to export")

// blobPath joins an optional prefix and name into a slash-separated key.
func blobPath(prefix string, parts ...string) string {
	elems := make([]string, 0, len(parts)+1)
	if p := strings.Trim(prefix, "/"); p != "" {
		elems = append(elems, p)
	}
	elems = append(elems, parts...)
	return path.Join(elems...)
}

// writer stores objects and hashes the primary one.
type writer struct {
	store  crawler.BlobStore
	hasher crawler.Hasher
}

func (w writer) put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	locator, err := w.store.PutObject(ctx, key, contentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return locator, nil
}

func (w writer) digest(data []byte) string {
	if w.hasher == nil {
		return ""
	}
	sum, err := w.hasher.Hash(data)
	if err != nil {
		return ""
	}
	return sum
}

// trimExt removes a trailing .ext from filename.
func trimExt(filename string) string {
	return strings.TrimSuffix(filename, path.Ext(filename))
}
