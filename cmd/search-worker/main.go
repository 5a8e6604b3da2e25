// Package main starts the search outbox publisher process.
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
	"github.com/wordloom/wordloom/internal/worker/outbox"
	"github.com/wordloom/wordloom/internal/worker/searchpub"
)

type workerConfig struct {
	DatabaseURL string `env:"DATABASE_URL"`

	Search searchpub.Config
}

func main() {
	log.SetPrefix("[SEARCH-WORKER] ")
	config.LoadDotEnv()

	var cfg workerConfig
	if err := config.ParseEnv(&cfg); err != nil {
		config.ExitMisconfigured("search-worker: %v", err)
	}
	if cfg.DatabaseURL == "" {
		config.ExitMisconfigured("search-worker: DATABASE_URL is required")
	}
	if err := cfg.Search.Normalize(); err != nil {
		config.ExitMisconfigured("search-worker: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
}

func run(ctx context.Context, cfg workerConfig) error {
	shutdownTracing, err := otel.Setup(ctx, "wordloom-search-worker")
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

	bulker, err := searchpub.NewESClient(cfg.Search.ElasticURL, cfg.Search.ElasticIndex)
	if err != nil {
		return fmt.Errorf("connect search engine: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := outbox.NewMetrics(reg)
	pub := searchpub.NewPublisher(cfg.Search, store, store, bulker, metrics)
	loop := outbox.NewLoop(cfg.Search.Loop, storage.OutboxKindSearch, store, pub, store.Ping, metrics)

	serveApp(fmt.Sprintf(":%d", cfg.Search.Loop.HTTPPort), outbox.NewHealthApp(loop))
	serveApp(fmt.Sprintf(":%d", cfg.Search.Loop.MetricsPort), outbox.NewMetricsApp(reg))

	return loop.Run(ctx)
}

func serveApp(addr string, app interface{ Listen(string) error }) {
	go func() {
		if err := app.Listen(addr); err != nil {
			log.Printf("listen %s: %v", addr, err)
		}
	}()
}
