// Package main starts the Wordloom HTTP API process.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wordloom/wordloom/internal/api"
	"github.com/wordloom/wordloom/internal/app"
	"github.com/wordloom/wordloom/internal/chronicle"
	"github.com/wordloom/wordloom/internal/eventbus"
	"github.com/wordloom/wordloom/internal/platform/config"
	"github.com/wordloom/wordloom/internal/platform/filestore"
	"github.com/wordloom/wordloom/internal/platform/otel"
	"github.com/wordloom/wordloom/internal/search"
	"github.com/wordloom/wordloom/internal/storage/sqlite"
)

type apiConfig struct {
	DatabaseURL string `env:"DATABASE_URL"`
	Port        int    `env:"WORDLOOM_API_PORT" envDefault:"8080"`
	TxMode      string `env:"WORDLOOM_EVENT_BUS_TX_MODE"`

	App app.Config
}

func main() {
	log.SetPrefix("[API] ")
	config.LoadDotEnv()

	var cfg apiConfig
	if err := config.ParseEnv(&cfg); err != nil {
		config.ExitMisconfigured("api: %v", err)
	}
	if cfg.DatabaseURL == "" {
		config.ExitMisconfigured("api: DATABASE_URL is required")
	}
	mode, err := eventbus.ParseTxMode(cfg.TxMode)
	if err != nil {
		config.ExitMisconfigured("api: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, mode); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}

func run(ctx context.Context, cfg apiConfig, mode eventbus.TxMode) error {
	shutdownTracing, err := otel.Setup(ctx, "wordloom-api")
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

	bus, err := eventbus.New(store.DB(), mode)
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	files, err := filestore.NewDisk(cfg.App.MediaDir)
	if err != nil {
		return fmt.Errorf("open media store: %w", err)
	}

	svc := app.NewService(cfg.App, app.Stores{
		Libraries:   store,
		Bookshelves: store,
		Books:       store,
		Blocks:      store,
		Basement:    store,
		Media:       store,
		Tags:        store,
		Chronicle:   store,
	}, files, chronicle.NewRecorder(store), bus)
	svc.RegisterCascades(bus)
	search.NewIndexer(store, store, store, store).Register(bus)

	router := fiber.New(fiber.Config{DisableStartupMessage: true})
	router.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	api.NewServer(svc, store.Ping).Register(router)

	errc := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.Printf("listening on %s (event bus mode=%s)", addr, mode)
		if err := router.Listen(addr); err != nil {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Printf("shutting down")
	if err := router.ShutdownWithTimeout(10 * time.Second); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
