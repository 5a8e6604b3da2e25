// Package outbox runs the generic lease-drain loop shared by the chronicle
// projection worker and the search publisher.
package outbox

import (
	"fmt"
	"os"
	"time"
)

// Fault injection kinds accepted by OUTBOX_FAULT_INJECT_KIND.
const (
	FaultKindTransient     = "transient"
	FaultKindDeterministic = "deterministic"
)

// Config tunes one worker loop. All knobs come from OUTBOX_* environment
// variables; zero RunSeconds means run until signalled.
type Config struct {
	WorkerID                string  `env:"OUTBOX_WORKER_ID"`
	BatchSize               int     `env:"OUTBOX_BATCH_SIZE" envDefault:"25"`
	Concurrency             int     `env:"OUTBOX_CONCURRENCY" envDefault:"1"`
	PollIntervalSeconds     int     `env:"OUTBOX_POLL_INTERVAL_SECONDS" envDefault:"1"`
	LeaseSeconds            int     `env:"OUTBOX_LEASE_SECONDS" envDefault:"30"`
	ReclaimIntervalSeconds  int     `env:"OUTBOX_RECLAIM_INTERVAL_SECONDS" envDefault:"10"`
	MaxProcessingSeconds    int     `env:"OUTBOX_MAX_PROCESSING_SECONDS" envDefault:"120"`
	MaxAttempts             int     `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"5"`
	BaseBackoffSeconds      float64 `env:"OUTBOX_BASE_BACKOFF_SECONDS" envDefault:"1"`
	MaxBackoffSeconds       float64 `env:"OUTBOX_MAX_BACKOFF_SECONDS" envDefault:"60"`
	RunSeconds              int     `env:"OUTBOX_RUN_SECONDS" envDefault:"0"`
	ShutdownGraceSeconds    int     `env:"OUTBOX_SHUTDOWN_GRACE_SECONDS" envDefault:"10"`
	HealthMaxSilenceSeconds int     `env:"OUTBOX_HEALTH_MAX_SILENCE_SECONDS" envDefault:"30"`
	DBPingTimeoutSeconds    int     `env:"OUTBOX_DB_PING_TIMEOUT_SECONDS" envDefault:"2"`
	DBPingMaxFailures       int     `env:"OUTBOX_DB_PING_MAX_FAILURES" envDefault:"3"`
	MetricsPort             int     `env:"OUTBOX_METRICS_PORT" envDefault:"9090"`
	HTTPPort                int     `env:"OUTBOX_HTTP_PORT" envDefault:"8081"`

	// Fault injection forces a processing failure for one entity id. Dev only.
	FaultInjectKind     string `env:"OUTBOX_FAULT_INJECT_KIND"`
	FaultInjectEntityID string `env:"OUTBOX_FAULT_INJECT_ENTITY_ID"`
}

// Normalize fills derived defaults and validates the knobs.
func (c *Config) Normalize() error {
	if c.WorkerID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "worker"
		}
		c.WorkerID = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("OUTBOX_CONCURRENCY must be positive, got %d", c.Concurrency)
	}
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("OUTBOX_POLL_INTERVAL_SECONDS must be positive, got %d", c.PollIntervalSeconds)
	}
	if c.LeaseSeconds <= 0 {
		return fmt.Errorf("OUTBOX_LEASE_SECONDS must be positive, got %d", c.LeaseSeconds)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("OUTBOX_MAX_ATTEMPTS must be positive, got %d", c.MaxAttempts)
	}
	if c.BaseBackoffSeconds <= 0 || c.MaxBackoffSeconds < c.BaseBackoffSeconds {
		return fmt.Errorf("backoff bounds invalid: base=%v max=%v", c.BaseBackoffSeconds, c.MaxBackoffSeconds)
	}
	switch c.FaultInjectKind {
	case "", FaultKindTransient, FaultKindDeterministic:
	default:
		return fmt.Errorf("OUTBOX_FAULT_INJECT_KIND must be transient or deterministic, got %q", c.FaultInjectKind)
	}
	return nil
}

// PollInterval returns the tick period.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Lease returns the claim lease duration.
func (c Config) Lease() time.Duration {
	return time.Duration(c.LeaseSeconds) * time.Second
}

// ReclaimInterval returns how often terminal-row hygiene and reclaim run.
func (c Config) ReclaimInterval() time.Duration {
	return time.Duration(c.ReclaimIntervalSeconds) * time.Second
}

// MaxProcessing returns the stuck-row reclaim deadline.
func (c Config) MaxProcessing() time.Duration {
	return time.Duration(c.MaxProcessingSeconds) * time.Second
}

// ShutdownGrace returns how long in-flight rows may drain after a stop signal.
func (c Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// HealthMaxSilence returns how stale the last tick may be before /healthz fails.
func (c Config) HealthMaxSilence() time.Duration {
	return time.Duration(c.HealthMaxSilenceSeconds) * time.Second
}

// DBPingTimeout bounds each readiness ping.
func (c Config) DBPingTimeout() time.Duration {
	return time.Duration(c.DBPingTimeoutSeconds) * time.Second
}

// RunLimit returns the optional total runtime cap; zero means unlimited.
func (c Config) RunLimit() time.Duration {
	return time.Duration(c.RunSeconds) * time.Second
}
