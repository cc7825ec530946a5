package export

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

// WriteZip streams every part of art from store into a zip archive on w.
// Entries are named by their base file name.
func WriteZip(ctx context.Context, store crawler.BlobStore, art crawler.Artifact, w io.Writer) error {
	parts := art.Parts
	if len(parts) == 0 {
		parts = []string{art.Key}
	}
	zw := zip.NewWriter(w)
	for _, part := range parts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("write zip: %w", err)
		}
		if err := copyPart(ctx, store, zw, part); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	return nil
}

func copyPart(ctx context.Context, store crawler.BlobStore, zw *zip.Writer, part string) error {
	rc, err := store.GetObject(ctx, part)
	if err != nil {
		return fmt.Errorf("open %s: %w", part, err)
	}
	defer rc.Close() //nolint:errcheck // read side

	entry, err := zw.Create(path.Base(part))
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", part, err)
	}
	if _, err := io.Copy(entry, rc); err != nil {
		return fmt.Errorf("zip copy %s: %w", part, err)
	}
	return nil
}
