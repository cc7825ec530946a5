package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/JakeFAU/sitesnap/internal/crawler"
)

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/page.html", "text/html", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://path/page.html" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'

	rc, err := store.GetObject(context.Background(), "path/page.html")
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", got)
	}
	if keys := store.Keys(); len(keys) != 1 || keys[0] != "path/page.html" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestBlobStoreMissingObject(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().GetObject(context.Background(), "nope")
	if !errors.Is(err, crawler.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}
