// Package main starts the chronicle projection worker process.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wordloom/wordloom/internal/platform/config"
	"github.com/wordloom/wordloom/internal/platform/otel"
	"github.com/wordloom/wordloom/internal/storage"
	"github.com/wordloom/wordloom/internal/storage/sqlite"
	"github.com/wordloom/wordloom/internal/worker/chronicleproj"
	"github.com/wordloom/wordloom/internal/worker/outbox"
)

type workerConfig struct {
	DatabaseURL string `env:"DATABASE_URL"`

	Loop outbox.Config
}

func main() {
	log.SetPrefix("[CHRONICLE-WORKER] ")
	config.LoadDotEnv()

	var cfg workerConfig
	if err := config.ParseEnv(&cfg); err != nil {
		config.ExitMisconfigured("chronicle-worker: %v", err)
	}
	if cfg.DatabaseURL == "" {
		config.ExitMisconfigured("chronicle-worker: DATABASE_URL is required")
	}
	if err := cfg.Loop.Normalize(); err != nil {
		config.ExitMisconfigured("chronicle-worker: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
}

func run(ctx context.Context, cfg workerConfig) error {
	shutdownTracing, err := otel.Setup(ctx, "wordloom-chronicle-worker")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Printf("flush traces: %v", err)
		}
	}()

	store, err := sqlite.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	metrics := outbox.NewMetrics(reg)
	proj := chronicleproj.NewProjector(store, store)
	loop := outbox.NewLoop(cfg.Loop, storage.OutboxKindChronicle, store, proj, store.Ping, metrics)

	serveApp(fmt.Sprintf(":%d", cfg.Loop.HTTPPort), outbox.NewHealthApp(loop))
	serveApp(fmt.Sprintf(":%d", cfg.Loop.MetricsPort), outbox.NewMetricsApp(reg))

	return loop.Run(ctx)
}

func serveApp(addr string, app interface{ Listen(string) error }) {
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Printf("listen %s: %v", addr, err)
		}
	}()
}
