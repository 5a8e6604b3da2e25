package storage

import (
	"context"
	"time"
)

// TagStore owns the per-library tag lists. The tag feature exposes only this
// minimal contract to the core.
type TagStore interface {
	// GetLibraryTags returns the library's tags in insertion order.
	GetLibraryTags(ctx context.Context, libraryID string) ([]string, error)
	// ReplaceLibraryTags swaps the full tag list atomically.
	ReplaceLibraryTags(ctx context.Context, libraryID string, tags []string, at time.Time) error
}
