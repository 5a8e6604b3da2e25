package storage

import (
	"context"
	"time"
)

// Search entity types.
const (
	SearchEntityBlock = "block"
	SearchEntityTag   = "tag"
)

// SearchDocument is one denormalized search row keyed by
// (entity_type, entity_id).
type SearchDocument struct {
	EntityType string
	EntityID   string
	// LibraryID scopes the document for per-library search (optional).
	LibraryID string
	// Text is the full pre-rendered searchable text.
	Text string
	// Snippet is the 200-character excerpt shown in result lists.
	Snippet string
	// EventVersion guards against out-of-order updates; writes with an older
	// or equal version are rejected.
	EventVersion int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SearchStore owns the denormalized search table.
type SearchStore interface {
	// UpsertSearchDocument writes the document unless an existing row carries
	// a strictly greater or equal event_version. Returns whether the write
	// was accepted.
	UpsertSearchDocument(ctx context.Context, doc SearchDocument) (bool, error)
	// GetSearchDocument returns one row by its composite key.
	GetSearchDocument(ctx context.Context, entityType, entityID string) (SearchDocument, error)
	// DeleteSearchDocument removes the row. Missing rows are not an error;
	// the delete may race a superseding delete.
	DeleteSearchDocument(ctx context.Context, entityType, entityID string) error
}
