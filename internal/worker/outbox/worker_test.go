package outbox

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/wordloom/wordloom/internal/storage"
)

type fakeOutboxStore struct {
	storage.OutboxStore
	mu   sync.Mutex
	rows map[string]*storage.OutboxEvent
}

func newFakeOutboxStore() *fakeOutboxStore {
	return &fakeOutboxStore{rows: make(map[string]*storage.OutboxEvent)}
}

func (f *fakeOutboxStore) add(row storage.OutboxEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := row
	f.rows[row.ID] = &copied
}

func (f *fakeOutboxStore) get(id string) storage.OutboxEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[id]
}

func (f *fakeOutboxStore) owned(id, owner string) (*storage.OutboxEvent, error) {
	row, ok := f.rows[id]
	if !ok || row.Status != storage.OutboxStatusProcessing || row.Owner != owner {
		return nil, storage.ErrNotFound
	}
	return row, nil
}

func (f *fakeOutboxStore) ClaimOutboxEvents(_ context.Context, _ storage.OutboxKind, owner string, limit int, now time.Time, lease time.Duration) ([]storage.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []*storage.OutboxEvent
	for _, row := range f.rows {
		if row.Status != storage.OutboxStatusPending {
			continue
		}
		if row.NextRetryAt != nil && row.NextRetryAt.After(now) {
			continue
		}
		due = append(due, row)
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].EventVersion != due[j].EventVersion {
			return due[i].EventVersion < due[j].EventVersion
		}
		return due[i].ID < due[j].ID
	})
	if len(due) > limit {
		due = due[:limit]
	}
	claimed := make([]storage.OutboxEvent, 0, len(due))
	for _, row := range due {
		leaseUntil := now.Add(lease)
		started := now
		row.Status = storage.OutboxStatusProcessing
		row.Owner = owner
		row.LeaseUntil = &leaseUntil
		row.ProcessingStartedAt = &started
		claimed = append(claimed, *row)
	}
	return claimed, nil
}

func (f *fakeOutboxStore) MarkOutboxDone(_ context.Context, _ storage.OutboxKind, id, owner string, processedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, err := f.owned(id, owner)
	if err != nil {
		return err
	}
	row.Status = storage.OutboxStatusDone
	row.ProcessedAt = &processedAt
	row.Owner = ""
	row.LeaseUntil = nil
	row.ProcessingStartedAt = nil
	return nil
}

func (f *fakeOutboxStore) MarkOutboxRetry(_ context.Context, _ storage.OutboxKind, id, owner string, nextRetryAt time.Time, reason, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, err := f.owned(id, owner)
	if err != nil {
		return err
	}
	row.Status = storage.OutboxStatusPending
	row.Attempts++
	row.NextRetryAt = &nextRetryAt
	row.ErrorReason = reason
	row.Error = errMsg
	row.Owner = ""
	row.LeaseUntil = nil
	row.ProcessingStartedAt = nil
	return nil
}

func (f *fakeOutboxStore) MarkOutboxFailed(_ context.Context, _ storage.OutboxKind, id, owner string, reason, errMsg string, processedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, err := f.owned(id, owner)
	if err != nil {
		return err
	}
	row.Status = storage.OutboxStatusFailed
	row.Attempts++
	row.ErrorReason = reason
	row.Error = errMsg
	row.ProcessedAt = &processedAt
	row.Owner = ""
	row.LeaseUntil = nil
	row.ProcessingStartedAt = nil
	return nil
}

func (f *fakeOutboxStore) RenewOutboxLeases(_ context.Context, _ storage.OutboxKind, owner string, ids []string, leaseUntil time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		if row, err := f.owned(id, owner); err == nil {
			until := leaseUntil
			row.LeaseUntil = &until
		}
	}
	return nil
}

func (f *fakeOutboxStore) SanitizeTerminalOutboxRows(context.Context, storage.OutboxKind, time.Time) (int, error) {
	return 0, nil
}

func (f *fakeOutboxStore) ReclaimStuckOutboxEvents(_ context.Context, _ storage.OutboxKind, now time.Time, maxProcessing time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, row := range f.rows {
		if row.Status != storage.OutboxStatusProcessing || row.ProcessingStartedAt == nil {
			continue
		}
		if row.ProcessingStartedAt.Add(maxProcessing).After(now) {
			continue
		}
		row.Status = storage.OutboxStatusPending
		row.Owner = ""
		row.LeaseUntil = nil
		row.ProcessingStartedAt = nil
		row.ReplayCount++
		count++
	}
	return count, nil
}

func (f *fakeOutboxStore) ReleaseOwnedOutboxEvents(_ context.Context, _ storage.OutboxKind, owner string, _ time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, row := range f.rows {
		if row.Status != storage.OutboxStatusProcessing || row.Owner != owner {
			continue
		}
		row.Status = storage.OutboxStatusPending
		row.Owner = ""
		row.LeaseUntil = nil
		row.ProcessingStartedAt = nil
		count++
	}
	return count, nil
}

func (f *fakeOutboxStore) OutboxStats(context.Context, storage.OutboxKind, time.Time, time.Duration) (storage.OutboxStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := storage.OutboxStats{}
	for _, row := range f.rows {
		if row.ProcessedAt == nil {
			stats.Lag++
		}
		if row.Status == storage.OutboxStatusProcessing {
			stats.Inflight++
		}
	}
	return stats, nil
}

type recordingProcessor struct {
	mu        sync.Mutex
	processed []string
	errs      map[string]error
}

func (p *recordingProcessor) Process(_ context.Context, row storage.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed = append(p.processed, row.ID)
	if p.errs != nil {
		return p.errs[row.ID]
	}
	return nil
}

func testConfig() Config {
	return Config{
		WorkerID:                "w1",
		BatchSize:               10,
		Concurrency:             1,
		PollIntervalSeconds:     1,
		LeaseSeconds:            30,
		ReclaimIntervalSeconds:  10,
		MaxProcessingSeconds:    120,
		MaxAttempts:             3,
		BaseBackoffSeconds:      1,
		MaxBackoffSeconds:       60,
		ShutdownGraceSeconds:    1,
		HealthMaxSilenceSeconds: 30,
		DBPingTimeoutSeconds:    1,
		DBPingMaxFailures:       3,
	}
}

func pendingRow(id string, version int64) storage.OutboxEvent {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return storage.OutboxEvent{
		ID:           id,
		EntityType:   "chronicle_event",
		EntityID:     "evt-" + id,
		Op:           storage.OutboxOpUpsert,
		EventVersion: version,
		Status:       storage.OutboxStatusPending,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func newTestLoop(cfg Config, store storage.OutboxStore, proc Processor) *Loop {
	metrics := NewMetrics(prometheus.NewRegistry())
	loop := NewLoop(cfg, storage.OutboxKindChronicle, store, proc, func(context.Context) error { return nil }, metrics)
	loop.jitter = func() float64 { return 0.5 }
	return loop
}

func TestTickClaimsAndAcksBatch(t *testing.T) {
	store := newFakeOutboxStore()
	store.add(pendingRow("ob-1", 100))
	store.add(pendingRow("ob-2", 200))
	proc := &recordingProcessor{}
	loop := newTestLoop(testConfig(), store, proc)
	loop.setState(StateRunning)

	if err := loop.tick(context.Background(), context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if len(proc.processed) != 2 || proc.processed[0] != "ob-1" || proc.processed[1] != "ob-2" {
		t.Fatalf("processed = %v, want version order", proc.processed)
	}
	for _, id := range []string{"ob-1", "ob-2"} {
		row := store.get(id)
		if row.Status != storage.OutboxStatusDone || row.ProcessedAt == nil || row.Owner != "" {
			t.Fatalf("row %s = %+v, want done with lease cleared", id, row)
		}
	}
	if got := testutil.ToFloat64(loop.metrics.Processed.WithLabelValues(storage.OutboxOpUpsert)); got != 2 {
		t.Fatalf("processed counter = %v, want 2", got)
	}
}

func TestTransientErrorSchedulesBackoffRetry(t *testing.T) {
	store := newFakeOutboxStore()
	store.add(pendingRow("ob-1", 100))
	proc := &recordingProcessor{errs: map[string]error{"ob-1": errors.New("connection reset")}}
	loop := newTestLoop(testConfig(), store, proc)

	if err := loop.tick(context.Background(), context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	row := store.get("ob-1")
	if row.Status != storage.OutboxStatusPending {
		t.Fatalf("status = %q, want pending", row.Status)
	}
	if row.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", row.Attempts)
	}
	if row.ErrorReason != "transient" {
		t.Fatalf("reason = %q, want transient", row.ErrorReason)
	}
	if row.NextRetryAt == nil {
		t.Fatal("expected next_retry_at")
	}
	if got := testutil.ToFloat64(loop.metrics.RetrySched); got != 1 {
		t.Fatalf("retry counter = %v, want 1", got)
	}
}

func TestRetriesExhaustToFailed(t *testing.T) {
	store := newFakeOutboxStore()
	row := pendingRow("ob-1", 100)
	row.Attempts = 2 // next failure is attempt 3 of max 3
	store.add(row)
	proc := &recordingProcessor{errs: map[string]error{"ob-1": errors.New("still down")}}
	loop := newTestLoop(testConfig(), store, proc)

	if err := loop.tick(context.Background(), context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	got := store.get("ob-1")
	if got.Status != storage.OutboxStatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.ErrorReason != "max_attempts" {
		t.Fatalf("reason = %q, want max_attempts", got.ErrorReason)
	}
	if got.ProcessedAt == nil {
		t.Fatal("expected processed_at on terminal failure")
	}
	if tf := testutil.ToFloat64(loop.metrics.TerminalFails); tf != 1 {
		t.Fatalf("terminal counter = %v, want 1", tf)
	}
}

func TestDeterministicErrorFailsImmediately(t *testing.T) {
	store := newFakeOutboxStore()
	store.add(pendingRow("ob-1", 100))
	proc := &recordingProcessor{errs: map[string]error{
		"ob-1": Deterministic("missing_source_event", errors.New("no such event")),
	}}
	loop := newTestLoop(testConfig(), store, proc)

	if err := loop.tick(context.Background(), context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	row := store.get("ob-1")
	if row.Status != storage.OutboxStatusFailed {
		t.Fatalf("status = %q, want failed on first attempt", row.Status)
	}
	if row.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", row.Attempts)
	}
	if row.ErrorReason != "missing_source_event" {
		t.Fatalf("reason = %q", row.ErrorReason)
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	loop := newTestLoop(testConfig(), newFakeOutboxStore(), &recordingProcessor{})
	// jitter pinned to 0.5 makes the spread factor exactly 1.0.
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{7, 60 * time.Second},
		{20, 60 * time.Second},
	}
	for _, tc := range tests {
		if got := loop.backoff(tc.attempt); got != tc.want {
			t.Fatalf("backoff(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestBackoffJitterStaysWithinSpread(t *testing.T) {
	loop := newTestLoop(testConfig(), newFakeOutboxStore(), &recordingProcessor{})
	for _, j := range []float64{0, 0.25, 0.75, 0.999} {
		loop.jitter = func() float64 { return j }
		got := loop.backoff(2)
		if got < 1600*time.Millisecond || got > 2400*time.Millisecond {
			t.Fatalf("backoff(2) with jitter %v = %s, want within ±20%% of 2s", j, got)
		}
	}
}

func TestFaultInjectionForcesFailures(t *testing.T) {
	cfg := testConfig()
	cfg.FaultInjectKind = FaultKindDeterministic
	cfg.FaultInjectEntityID = "evt-ob-1"

	store := newFakeOutboxStore()
	store.add(pendingRow("ob-1", 100))
	store.add(pendingRow("ob-2", 200))
	proc := &recordingProcessor{}
	loop := newTestLoop(cfg, store, proc)

	if err := loop.tick(context.Background(), context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if store.get("ob-1").Status != storage.OutboxStatusFailed {
		t.Fatal("expected injected deterministic fault to fail the targeted row")
	}
	if store.get("ob-2").Status != storage.OutboxStatusDone {
		t.Fatal("expected untargeted row to process normally")
	}
	if len(proc.processed) != 1 || proc.processed[0] != "ob-2" {
		t.Fatalf("processed = %v, want only ob-2", proc.processed)
	}
}

// gatedProcessor blocks every Process call until released, then reports the
// state of the context it was handed.
type gatedProcessor struct {
	started chan struct{}
	release chan struct{}
}

func (p *gatedProcessor) Process(ctx context.Context, _ storage.OutboxEvent) error {
	close(p.started)
	<-p.release
	return ctx.Err()
}

func TestStopSignalStillAcksCompletedInflightRow(t *testing.T) {
	store := newFakeOutboxStore()
	store.add(pendingRow("ob-1", 100))
	proc := &gatedProcessor{started: make(chan struct{}), release: make(chan struct{})}
	loop := newTestLoop(testConfig(), store, proc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	// Stop arrives while the row is mid-processing, then processing finishes
	// cleanly inside the grace window.
	<-proc.started
	cancel()
	close(proc.release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	row := store.get("ob-1")
	if row.Status != storage.OutboxStatusDone {
		t.Fatalf("status = %q, want done after grace-window ack", row.Status)
	}
	if row.ProcessedAt == nil {
		t.Fatal("expected processed_at on the drained row")
	}
}

// barrierProcessor parks every Process call at a shared gate after announcing
// its arrival, so a test can observe how many run at once.
type barrierProcessor struct {
	arrivals chan string
	gate     chan struct{}
}

func (p *barrierProcessor) Process(_ context.Context, row storage.OutboxEvent) error {
	p.arrivals <- row.ID
	<-p.gate
	return nil
}

func TestConcurrencyBoundsParallelProcessing(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 3

	store := newFakeOutboxStore()
	store.add(pendingRow("ob-1", 100))
	store.add(pendingRow("ob-2", 200))
	store.add(pendingRow("ob-3", 300))
	proc := &barrierProcessor{arrivals: make(chan string, 3), gate: make(chan struct{})}
	loop := newTestLoop(cfg, store, proc)

	done := make(chan error, 1)
	go func() { done <- loop.tick(context.Background(), context.Background()) }()

	// With three workers all rows reach the gate before any completes. A
	// sequential loop would park the first row and never start the rest.
	for i := 0; i < 3; i++ {
		select {
		case <-proc.arrivals:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of 3 rows started processing concurrently", i)
		}
	}
	close(proc.gate)

	if err := <-done; err != nil {
		t.Fatalf("tick: %v", err)
	}
	for _, id := range []string{"ob-1", "ob-2", "ob-3"} {
		if got := store.get(id).Status; got != storage.OutboxStatusDone {
			t.Fatalf("row %s status = %q, want done", id, got)
		}
	}
}

func TestShutdownReleasesOwnedClaims(t *testing.T) {
	store := newFakeOutboxStore()
	store.add(pendingRow("ob-1", 100))
	loop := newTestLoop(testConfig(), store, &recordingProcessor{})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := store.ClaimOutboxEvents(context.Background(), storage.OutboxKindChronicle, "w1", 10, now, 30*time.Second); err != nil {
		t.Fatalf("claim: %v", err)
	}

	loop.shutdown(nil)

	row := store.get("ob-1")
	if row.Status != storage.OutboxStatusPending || row.Owner != "" {
		t.Fatalf("row = %+v, want released to pending", row)
	}
	if loop.State() != StateStopped {
		t.Fatalf("state = %q, want stopped", loop.State())
	}
}

func TestHealthAndReadiness(t *testing.T) {
	loop := newTestLoop(testConfig(), newFakeOutboxStore(), &recordingProcessor{})

	if loop.Healthy() {
		t.Fatal("expected unhealthy before the first tick")
	}
	if loop.Ready() {
		t.Fatal("expected not ready before running")
	}

	loop.setState(StateRunning)
	if err := loop.tick(context.Background(), context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !loop.Healthy() {
		t.Fatal("expected healthy after a tick")
	}
	if !loop.Ready() {
		t.Fatal("expected ready while running with a good ping")
	}

	loop.setState(StateDraining)
	if loop.Ready() {
		t.Fatal("expected not ready while draining")
	}
}

func TestConsecutivePingFailuresAreFatal(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	cfg := testConfig()
	loop := NewLoop(cfg, storage.OutboxKindChronicle, newFakeOutboxStore(), &recordingProcessor{},
		func(context.Context) error { return errors.New("dial refused") }, metrics)
	loop.jitter = func() float64 { return 0.5 }

	var fatal error
	for i := 0; i < cfg.DBPingMaxFailures; i++ {
		fatal = loop.tick(context.Background(), context.Background())
	}
	if fatal == nil {
		t.Fatal("expected fatal error after max consecutive ping failures")
	}
	if loop.Ready() {
		t.Fatal("expected not ready after ping failures")
	}
}
