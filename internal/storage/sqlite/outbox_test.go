package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/wordloom/wordloom/internal/storage"
)

func pendingOutboxEvent(id string, version int64, createdAt time.Time) storage.OutboxEvent {
	return storage.OutboxEvent{
		ID:           id,
		EntityType:   "chronicle_event",
		EntityID:     "evt-" + id,
		Op:           storage.OutboxOpUpsert,
		EventVersion: version,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func TestClaimOutboxEventsLeasesAtMostOnce(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		event := pendingOutboxEvent(fmt.Sprintf("ob-%d", i), int64(i+1), now)
		if err := store.EnqueueOutboxEvent(ctx, storage.OutboxKindChronicle, event); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	first, err := store.ClaimOutboxEvents(ctx, storage.OutboxKindChronicle, "worker-1", 2, now, 30*time.Second)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("claimed = %d, want 2", len(first))
	}
	for _, event := range first {
		if event.Status != storage.OutboxStatusProcessing || event.Owner != "worker-1" {
			t.Fatalf("claimed row = %+v, want processing by worker-1", event)
		}
		if event.LeaseUntil == nil || event.ProcessingStartedAt == nil {
			t.Fatal("expected lease and processing timestamps")
		}
	}
	// Claims drain in event_version order.
	if first[0].EventVersion != 1 || first[1].EventVersion != 2 {
		t.Fatalf("claim order = %d, %d; want 1, 2", first[0].EventVersion, first[1].EventVersion)
	}

	second, err := store.ClaimOutboxEvents(ctx, storage.OutboxKindChronicle, "worker-2", 10, now, 30*time.Second)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("second claim = %d rows, want only the unleased one", len(second))
	}
	if second[0].ID != "ob-2" {
		t.Fatalf("second claim id = %q, want ob-2", second[0].ID)
	}
}

func TestMarkOutboxDoneRequiresOwner(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.EnqueueOutboxEvent(ctx, storage.OutboxKindChronicle, pendingOutboxEvent("ob-1", 1, now)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	claimed, err := store.ClaimOutboxEvents(ctx, storage.OutboxKindChronicle, "worker-1", 1, now, 30*time.Second)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim = %v rows, err %v", len(claimed), err)
	}

	if err := store.MarkOutboxDone(ctx, storage.OutboxKindChronicle, "ob-1", "worker-2", now); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("wrong-owner ack err = %v, want ErrNotFound", err)
	}

	if err := store.MarkOutboxDone(ctx, storage.OutboxKindChronicle, "ob-1", "worker-1", now); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	got, err := store.GetOutboxEvent(ctx, storage.OutboxKindChronicle, "ob-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != storage.OutboxStatusDone || got.ProcessedAt == nil {
		t.Fatalf("row = %+v, want done with processed_at", got)
	}
	if got.Owner != "" || got.LeaseUntil != nil {
		t.Fatal("terminal row must carry no lease")
	}
}

func TestMarkOutboxRetryAndFailed(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.EnqueueOutboxEvent(ctx, storage.OutboxKindSearch, pendingOutboxEvent("ob-1", 1, now)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.ClaimOutboxEvents(ctx, storage.OutboxKindSearch, "worker-1", 1, now, 30*time.Second); err != nil {
		t.Fatalf("claim: %v", err)
	}

	retryAt := now.Add(time.Minute)
	if err := store.MarkOutboxRetry(ctx, storage.OutboxKindSearch, "ob-1", "worker-1", retryAt, "transient", "es timeout"); err != nil {
		t.Fatalf("mark retry: %v", err)
	}
	got, err := store.GetOutboxEvent(ctx, storage.OutboxKindSearch, "ob-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != storage.OutboxStatusPending || got.Attempts != 1 {
		t.Fatalf("row = %+v, want pending with attempts=1", got)
	}
	if got.NextRetryAt == nil || !got.NextRetryAt.Equal(retryAt) {
		t.Fatalf("next_retry_at = %v, want %v", got.NextRetryAt, retryAt)
	}

	// A row with a future retry deadline is not claimable yet.
	early, err := store.ClaimOutboxEvents(ctx, storage.OutboxKindSearch, "worker-1", 1, now, 30*time.Second)
	if err != nil {
		t.Fatalf("early claim: %v", err)
	}
	if len(early) != 0 {
		t.Fatalf("early claim = %d rows, want 0", len(early))
	}

	due, err := store.ClaimOutboxEvents(ctx, storage.OutboxKindSearch, "worker-1", 1, retryAt, 30*time.Second)
	if err != nil || len(due) != 1 {
		t.Fatalf("due claim = %d rows, err %v; want 1", len(due), err)
	}

	if err := store.MarkOutboxFailed(ctx, storage.OutboxKindSearch, "ob-1", "worker-1", "permanent", "mapping rejected", retryAt); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	got, err = store.GetOutboxEvent(ctx, storage.OutboxKindSearch, "ob-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != storage.OutboxStatusFailed || got.Attempts != 2 {
		t.Fatalf("row = %+v, want failed with attempts=2", got)
	}
	if got.ErrorReason != "permanent" || got.Owner != "" || got.LeaseUntil != nil {
		t.Fatalf("row = %+v, want permanent reason and no lease", got)
	}
}

func TestReclaimStuckOutboxEvents(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.EnqueueOutboxEvent(ctx, storage.OutboxKindChronicle, pendingOutboxEvent("ob-1", 1, now)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.ClaimOutboxEvents(ctx, storage.OutboxKindChronicle, "worker-1", 1, now, 30*time.Second); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Not yet past the deadline: nothing moves.
	reclaimed, err := store.ReclaimStuckOutboxEvents(ctx, storage.OutboxKindChronicle, now.Add(time.Minute), 2*time.Minute)
	if err != nil {
		t.Fatalf("reclaim early: %v", err)
	}
	if reclaimed != 0 {
		t.Fatalf("early reclaim = %d, want 0", reclaimed)
	}

	reclaimed, err = store.ReclaimStuckOutboxEvents(ctx, storage.OutboxKindChronicle, now.Add(3*time.Minute), 2*time.Minute)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("reclaim = %d, want 1", reclaimed)
	}

	got, err := store.GetOutboxEvent(ctx, storage.OutboxKindChronicle, "ob-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != storage.OutboxStatusPending || got.Owner != "" {
		t.Fatalf("row = %+v, want pending with no owner", got)
	}
	if got.Attempts != 0 {
		t.Fatalf("attempts = %d, want unchanged by reclaim", got.Attempts)
	}
	if got.ReplayCount != 1 {
		t.Fatalf("replay_count = %d, want 1", got.ReplayCount)
	}
}

func TestReleaseOwnedOutboxEvents(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if err := store.EnqueueOutboxEvent(ctx, storage.OutboxKindChronicle, pendingOutboxEvent(fmt.Sprintf("ob-%d", i), int64(i+1), now)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if _, err := store.ClaimOutboxEvents(ctx, storage.OutboxKindChronicle, "worker-1", 1, now, 30*time.Second); err != nil {
		t.Fatalf("claim worker-1: %v", err)
	}
	if _, err := store.ClaimOutboxEvents(ctx, storage.OutboxKindChronicle, "worker-2", 1, now, 30*time.Second); err != nil {
		t.Fatalf("claim worker-2: %v", err)
	}

	released, err := store.ReleaseOwnedOutboxEvents(ctx, storage.OutboxKindChronicle, "worker-1", now)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want only worker-1's row", released)
	}

	other, err := store.GetOutboxEvent(ctx, storage.OutboxKindChronicle, "ob-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if other.Owner != "worker-2" || other.Status != storage.OutboxStatusProcessing {
		t.Fatalf("row = %+v, want worker-2's lease untouched", other)
	}
}

func TestSanitizeTerminalOutboxRows(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Simulate a terminal row that kept its lease, which violates hygiene.
	processedAt := now
	event := pendingOutboxEvent("ob-1", 1, now)
	event.Status = storage.OutboxStatusDone
	event.Owner = "worker-ghost"
	lease := now.Add(time.Minute)
	event.LeaseUntil = &lease
	event.ProcessedAt = &processedAt
	if err := store.EnqueueOutboxEvent(ctx, storage.OutboxKindChronicle, event); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	repaired, err := store.SanitizeTerminalOutboxRows(ctx, storage.OutboxKindChronicle, now)
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("repaired = %d, want 1", repaired)
	}

	got, err := store.GetOutboxEvent(ctx, storage.OutboxKindChronicle, "ob-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Owner != "" || got.LeaseUntil != nil {
		t.Fatalf("row = %+v, want owner and lease cleared", got)
	}
}

func TestOutboxStats(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		event := pendingOutboxEvent(fmt.Sprintf("ob-%d", i), int64(i+1), now.Add(time.Duration(i)*time.Second))
		if err := store.EnqueueOutboxEvent(ctx, storage.OutboxKindChronicle, event); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if _, err := store.ClaimOutboxEvents(ctx, storage.OutboxKindChronicle, "worker-1", 1, now, 30*time.Second); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkOutboxDone(ctx, storage.OutboxKindChronicle, "ob-0", "worker-1", now); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	if _, err := store.ClaimOutboxEvents(ctx, storage.OutboxKindChronicle, "worker-1", 1, now, 30*time.Second); err != nil {
		t.Fatalf("claim second: %v", err)
	}

	statsAt := now.Add(10 * time.Second)
	stats, err := store.OutboxStats(ctx, storage.OutboxKindChronicle, statsAt, 5*time.Minute)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Lag != 2 {
		t.Fatalf("lag = %d, want 2 unprocessed rows", stats.Lag)
	}
	if stats.Inflight != 1 {
		t.Fatalf("inflight = %d, want 1", stats.Inflight)
	}
	if stats.Stuck != 0 {
		t.Fatalf("stuck = %d, want 0", stats.Stuck)
	}
	if stats.OldestAge <= 0 {
		t.Fatalf("oldest age = %v, want positive", stats.OldestAge)
	}
}
