package outbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/wordloom/wordloom/internal/storage"
)

// State is the worker lifecycle phase exposed on /readyz.
type State string

const (
	// StateRunning means the loop is ticking and claiming work.
	StateRunning State = "running"
	// StateDraining means the loop stopped claiming and is finishing up.
	StateDraining State = "draining"
	// StateStopped means the loop has released its claims and exited.
	StateStopped State = "stopped"
)

// Loop drains one outbox table with the lease protocol: claim a batch, process
// each row, ack the outcome. Multiple replicas are safe; every mutating store
// call is owner-guarded.
type Loop struct {
	cfg     Config
	kind    storage.OutboxKind
	store   storage.OutboxStore
	proc    Processor
	ping    func(ctx context.Context) error
	metrics *Metrics

	now    func() time.Time
	jitter func() float64

	mu           sync.Mutex
	state        State
	lastTick     time.Time
	lastPingOK   bool
	pingFailures int
	lastReclaim  time.Time
}

// NewLoop assembles a worker loop. ping is called once per tick to drive
// readiness; pass the store's DB ping.
func NewLoop(cfg Config, kind storage.OutboxKind, store storage.OutboxStore, proc Processor, ping func(ctx context.Context) error, metrics *Metrics) *Loop {
	return &Loop{
		cfg:     cfg,
		kind:    kind,
		store:   store,
		proc:    proc,
		ping:    ping,
		metrics: metrics,
		now:     time.Now,
		jitter:  rand.Float64,
		state:   StateStopped,
	}
}

// Run ticks until ctx is cancelled or the run-seconds cap elapses, then drains
// and releases any rows still leased by this worker. Rows already claimed when
// the stop arrives keep processing and acking under the shutdown grace window;
// only rows still unprocessed when it expires are released.
func (l *Loop) Run(ctx context.Context) error {
	if limit := l.cfg.RunLimit(); limit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	// workCtx carries in-flight processing and acks. It outlives ctx by the
	// shutdown grace so a row that completes during drain is marked done
	// instead of being released and redone after restart.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	stopGrace := context.AfterFunc(ctx, func() {
		timer := time.NewTimer(l.cfg.ShutdownGrace())
		defer timer.Stop()
		select {
		case <-workCtx.Done():
		case <-timer.C:
			cancelWork()
		}
	})
	defer stopGrace()

	l.setState(StateRunning)
	log.Printf("outbox worker %s started (table=%s, batch=%d, poll=%s)",
		l.cfg.WorkerID, l.kind, l.cfg.BatchSize, l.cfg.PollInterval())

	ticker := time.NewTicker(l.cfg.PollInterval())
	defer ticker.Stop()

	for {
		if err := l.tick(ctx, workCtx); err != nil {
			l.shutdown(err)
			return err
		}
		select {
		case <-ctx.Done():
			l.shutdown(nil)
			return nil
		case <-ticker.C:
		}
	}
}

// tick runs one poll cycle. ctx gates claiming and loop control; workCtx
// gates processing and acks so claimed rows can drain past a stop signal.
// A non-nil return is fatal for the loop; transient store errors are logged
// and absorbed.
func (l *Loop) tick(ctx, workCtx context.Context) error {
	now := l.now().UTC()
	l.mu.Lock()
	l.lastTick = now
	l.mu.Unlock()

	if err := l.pingOnce(ctx); err != nil {
		return err
	}

	l.reclaimIfDue(ctx, now)
	l.exportStats(ctx, now)

	rows, err := l.store.ClaimOutboxEvents(ctx, l.kind, l.cfg.WorkerID, l.cfg.BatchSize, now, l.cfg.Lease())
	if err != nil {
		log.Printf("outbox worker %s: claim failed: %v", l.cfg.WorkerID, err)
		return nil
	}
	if len(rows) == 0 {
		return nil
	}
	l.processBatch(workCtx, rows)
	return nil
}

func (l *Loop) pingOnce(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, l.cfg.DBPingTimeout())
	err := l.ping(pingCtx)
	cancel()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.lastPingOK = false
		l.pingFailures++
		log.Printf("outbox worker %s: db ping failed (%d/%d): %v",
			l.cfg.WorkerID, l.pingFailures, l.cfg.DBPingMaxFailures, err)
		if l.pingFailures >= l.cfg.DBPingMaxFailures {
			return fmt.Errorf("database unreachable after %d consecutive pings: %w", l.pingFailures, err)
		}
		return nil
	}
	l.lastPingOK = true
	l.pingFailures = 0
	return nil
}

func (l *Loop) reclaimIfDue(ctx context.Context, now time.Time) {
	l.mu.Lock()
	due := l.lastReclaim.IsZero() || now.Sub(l.lastReclaim) >= l.cfg.ReclaimInterval()
	if due {
		l.lastReclaim = now
	}
	l.mu.Unlock()
	if !due {
		return
	}

	if repaired, err := l.store.SanitizeTerminalOutboxRows(ctx, l.kind, now); err != nil {
		log.Printf("outbox worker %s: sanitize failed: %v", l.cfg.WorkerID, err)
	} else if repaired > 0 {
		log.Printf("outbox worker %s: repaired %d terminal rows with stray leases", l.cfg.WorkerID, repaired)
	}

	if reclaimed, err := l.store.ReclaimStuckOutboxEvents(ctx, l.kind, now, l.cfg.MaxProcessing()); err != nil {
		log.Printf("outbox worker %s: reclaim failed: %v", l.cfg.WorkerID, err)
	} else if reclaimed > 0 {
		log.Printf("outbox worker %s: reclaimed %d stuck rows", l.cfg.WorkerID, reclaimed)
	}
}

func (l *Loop) exportStats(ctx context.Context, now time.Time) {
	stats, err := l.store.OutboxStats(ctx, l.kind, now, l.cfg.MaxProcessing())
	if err != nil {
		log.Printf("outbox worker %s: stats failed: %v", l.cfg.WorkerID, err)
		return
	}
	l.metrics.Lag.Set(float64(stats.Lag))
	l.metrics.Inflight.Set(float64(stats.Inflight))
	l.metrics.OldestAge.Set(stats.OldestAge.Seconds())
	l.metrics.Stuck.Set(float64(stats.Stuck))
}

func (l *Loop) processBatch(ctx context.Context, rows []storage.OutboxEvent) {
	pass := rows[:0:0]
	for _, row := range rows {
		if err := l.injectedFault(row); err != nil {
			l.applyOutcome(ctx, row, err)
			continue
		}
		pass = append(pass, row)
	}
	if len(pass) == 0 {
		return
	}

	if batcher, ok := l.proc.(BatchProcessor); ok {
		byID := make(map[string]storage.OutboxEvent, len(pass))
		for _, row := range pass {
			byID[row.ID] = row
		}
		for _, outcome := range batcher.ProcessBatch(ctx, pass) {
			row, ok := byID[outcome.ID]
			if !ok {
				log.Printf("outbox worker %s: batch outcome for unknown row %s", l.cfg.WorkerID, outcome.ID)
				continue
			}
			l.applyOutcome(ctx, row, outcome.Err)
		}
		return
	}

	// Bounded pool sized by the concurrency knob. Per-entity ordering is the
	// processor's concern (the search publisher holds keyed locks).
	sem := make(chan struct{}, l.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, row := range pass {
		sem <- struct{}{}
		wg.Add(1)
		go func(row storage.OutboxEvent) {
			defer wg.Done()
			defer func() { <-sem }()
			l.applyOutcome(ctx, row, l.proc.Process(ctx, row))
		}(row)
	}
	wg.Wait()
}

func (l *Loop) applyOutcome(ctx context.Context, row storage.OutboxEvent, procErr error) {
	now := l.now().UTC()

	if procErr == nil {
		if err := l.store.MarkOutboxDone(ctx, l.kind, row.ID, l.cfg.WorkerID, now); err != nil {
			log.Printf("outbox worker %s: ack done %s failed: %v", l.cfg.WorkerID, row.ID, err)
			return
		}
		l.metrics.Processed.WithLabelValues(row.Op).Inc()
		l.metrics.LastSuccess.Set(float64(now.Unix()))
		return
	}

	if det, ok := AsDeterministic(procErr); ok {
		if err := l.store.MarkOutboxFailed(ctx, l.kind, row.ID, l.cfg.WorkerID, det.Reason, procErr.Error(), now); err != nil {
			log.Printf("outbox worker %s: mark failed %s failed: %v", l.cfg.WorkerID, row.ID, err)
			return
		}
		l.metrics.Failed.WithLabelValues(row.Op, det.Reason).Inc()
		l.metrics.TerminalFails.Inc()
		log.Printf("outbox worker %s: row %s failed deterministically: %v", l.cfg.WorkerID, row.ID, procErr)
		return
	}

	attempt := row.Attempts + 1
	if attempt >= l.cfg.MaxAttempts {
		if err := l.store.MarkOutboxFailed(ctx, l.kind, row.ID, l.cfg.WorkerID, "max_attempts", procErr.Error(), now); err != nil {
			log.Printf("outbox worker %s: mark failed %s failed: %v", l.cfg.WorkerID, row.ID, err)
			return
		}
		l.metrics.Failed.WithLabelValues(row.Op, "max_attempts").Inc()
		l.metrics.TerminalFails.Inc()
		log.Printf("outbox worker %s: row %s exhausted %d attempts: %v", l.cfg.WorkerID, row.ID, attempt, procErr)
		return
	}

	delay := l.backoff(attempt)
	if err := l.store.MarkOutboxRetry(ctx, l.kind, row.ID, l.cfg.WorkerID, now.Add(delay), "transient", procErr.Error()); err != nil {
		log.Printf("outbox worker %s: schedule retry %s failed: %v", l.cfg.WorkerID, row.ID, err)
		return
	}
	l.metrics.Failed.WithLabelValues(row.Op, "transient").Inc()
	l.metrics.RetrySched.Inc()
	log.Printf("outbox worker %s: row %s attempt %d failed, retry in %s: %v",
		l.cfg.WorkerID, row.ID, attempt, delay.Round(time.Millisecond), procErr)
}

// backoff computes the delay before the given attempt's retry: exponential
// growth capped at the max, with a ±20% jitter spread.
func (l *Loop) backoff(attempt int) time.Duration {
	seconds := l.cfg.BaseBackoffSeconds * math.Pow(2, float64(attempt-1))
	if seconds > l.cfg.MaxBackoffSeconds {
		seconds = l.cfg.MaxBackoffSeconds
	}
	factor := 0.8 + 0.4*l.jitter()
	return time.Duration(seconds * factor * float64(time.Second))
}

func (l *Loop) injectedFault(row storage.OutboxEvent) error {
	if l.cfg.FaultInjectEntityID == "" || row.EntityID != l.cfg.FaultInjectEntityID {
		return nil
	}
	switch l.cfg.FaultInjectKind {
	case FaultKindTransient:
		return errors.New("injected transient fault")
	case FaultKindDeterministic:
		return Deterministic("fault_injection", errors.New("injected deterministic fault"))
	default:
		return nil
	}
}

func (l *Loop) shutdown(cause error) {
	l.setState(StateDraining)
	if cause != nil {
		log.Printf("outbox worker %s: draining after fatal error: %v", l.cfg.WorkerID, cause)
	}

	graceCtx, cancel := context.WithTimeout(context.Background(), l.cfg.ShutdownGrace())
	defer cancel()
	released, err := l.store.ReleaseOwnedOutboxEvents(graceCtx, l.kind, l.cfg.WorkerID, l.now().UTC())
	if err != nil {
		log.Printf("outbox worker %s: releasing claims on shutdown failed: %v", l.cfg.WorkerID, err)
	} else if released > 0 {
		log.Printf("outbox worker %s: released %d unprocessed claims", l.cfg.WorkerID, released)
	}

	l.setState(StateStopped)
	log.Printf("outbox worker %s stopped", l.cfg.WorkerID)
}

func (l *Loop) setState(state State) {
	l.mu.Lock()
	l.state = state
	l.mu.Unlock()
}

// State returns the lifecycle phase.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Healthy reports whether the loop ticked within the max-silence window.
func (l *Loop) Healthy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastTick.IsZero() {
		return false
	}
	return l.now().UTC().Sub(l.lastTick) <= l.cfg.HealthMaxSilence()
}

// Ready reports whether the worker is running with a reachable database.
func (l *Loop) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == StateRunning && l.lastPingOK
}
