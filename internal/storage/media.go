package storage

import (
	"context"
	"time"
)

// Media is one uploaded binary asset, currently cover images.
type Media struct {
	ID        string
	LibraryID string
	// Filename is the client-provided name, kept for downloads.
	Filename  string
	MIME      string
	SizeBytes int64
	// Path locates the stored bytes in the file store.
	Path      string
	CreatedAt time.Time
}

// MediaStore owns media rows. The bytes live in the file store; rows carry
// the metadata and location.
type MediaStore interface {
	PutMedia(ctx context.Context, media Media) error
	GetMedia(ctx context.Context, id string) (Media, error)
	DeleteMedia(ctx context.Context, id string) error
	// MediaBytesByLibrary sums the stored bytes of one library's media rows.
	MediaBytesByLibrary(ctx context.Context, libraryID string) (int64, error)
}
