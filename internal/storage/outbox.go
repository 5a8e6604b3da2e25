package storage

import (
	"context"
	"time"
)

// OutboxKind selects which of the two identical outbox tables a call targets.
type OutboxKind string

const (
	// OutboxKindChronicle feeds the chronicle_entries projection.
	OutboxKindChronicle OutboxKind = "chronicle"
	// OutboxKindSearch feeds the external search engine.
	OutboxKindSearch OutboxKind = "search"
)

// Outbox row statuses.
const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessing = "processing"
	OutboxStatusDone       = "done"
	OutboxStatusFailed     = "failed"
)

// Outbox operations.
const (
	OutboxOpUpsert = "upsert"
	OutboxOpDelete = "delete"
)

// OutboxEvent is one pending side-effect row. The chronicle and search outbox
// tables share this skeleton.
type OutboxEvent struct {
	ID         string
	EntityType string
	EntityID   string
	// Op is upsert or delete.
	Op string
	// EventVersion is the monotone per-entity ordinal derived from
	// occurred_at microseconds.
	EventVersion int64
	Status       string
	// Owner identifies the worker holding the lease; empty when unclaimed.
	Owner               string
	LeaseUntil          *time.Time
	ProcessingStartedAt *time.Time
	Attempts            int
	NextRetryAt         *time.Time
	// ErrorReason is the stable failure classification (transient, permanent,
	// deterministic); Error carries the raw message.
	ErrorReason string
	Error       string
	ReplayCount int
	ProcessedAt *time.Time
	// Traceparent and Tracestate carry W3C trace context across the outbox
	// boundary so worker spans join the originating request trace.
	Traceparent string
	Tracestate  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OutboxStats is the per-tick gauge snapshot a worker exports.
type OutboxStats struct {
	// Lag counts rows not yet terminally processed (pending + processing +
	// failed rows without processed_at).
	Lag int
	// Inflight counts rows currently in processing.
	Inflight int
	// OldestAge is the age of the oldest unprocessed row.
	OldestAge time.Duration
	// Stuck counts processing rows past the max processing deadline.
	Stuck int
}

// OutboxStore drains one outbox table. All mutating calls are guarded by
// status and owner so two workers can never act on the same lease.
type OutboxStore interface {
	// EnqueueOutboxEvent inserts a pending row.
	EnqueueOutboxEvent(ctx context.Context, kind OutboxKind, event OutboxEvent) error
	// GetOutboxEvent returns one row by ID.
	GetOutboxEvent(ctx context.Context, kind OutboxKind, id string) (OutboxEvent, error)
	// ClaimOutboxEvents leases up to limit due rows for one owner. A row is
	// due when status=pending and next_retry_at is unset or elapsed. Claimed
	// rows move to processing with owner, lease_until and
	// processing_started_at set, all inside one transaction.
	ClaimOutboxEvents(ctx context.Context, kind OutboxKind, owner string, limit int, now time.Time, lease time.Duration) ([]OutboxEvent, error)
	// RenewOutboxLeases extends lease_until for rows still owned by owner.
	RenewOutboxLeases(ctx context.Context, kind OutboxKind, owner string, ids []string, leaseUntil time.Time) error
	// MarkOutboxDone finishes a leased row: status=done, processed_at set,
	// lease cleared.
	MarkOutboxDone(ctx context.Context, kind OutboxKind, id, owner string, processedAt time.Time) error
	// MarkOutboxRetry returns a leased row to pending with attempts+1 and a
	// next_retry_at deadline.
	MarkOutboxRetry(ctx context.Context, kind OutboxKind, id, owner string, nextRetryAt time.Time, reason, errMsg string) error
	// MarkOutboxFailed terminates a leased row: status=failed, attempts+1,
	// processed_at set, lease cleared.
	MarkOutboxFailed(ctx context.Context, kind OutboxKind, id, owner string, reason, errMsg string, processedAt time.Time) error
	// SanitizeTerminalOutboxRows clears stray owner/lease values from rows
	// already in a terminal status. Returns the number of rows repaired.
	SanitizeTerminalOutboxRows(ctx context.Context, kind OutboxKind, now time.Time) (int, error)
	// ReclaimStuckOutboxEvents returns rows stuck in processing beyond
	// maxProcessing to pending with the lease cleared. Attempts are not
	// bumped; a reclaim is not a failure.
	ReclaimStuckOutboxEvents(ctx context.Context, kind OutboxKind, now time.Time, maxProcessing time.Duration) (int, error)
	// ReleaseOwnedOutboxEvents returns every row still leased by owner to
	// pending. Used on shutdown.
	ReleaseOwnedOutboxEvents(ctx context.Context, kind OutboxKind, owner string, now time.Time) (int, error)
	// OutboxStats computes the gauge snapshot for one table.
	OutboxStats(ctx context.Context, kind OutboxKind, now time.Time, maxProcessing time.Duration) (OutboxStats, error)
}
