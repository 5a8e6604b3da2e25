// Package searchpub drains the search outbox into the external search engine.
package searchpub

import (
	"fmt"

	"github.com/wordloom/wordloom/internal/worker/outbox"
)

// Config extends the generic worker knobs with the search-engine connection.
type Config struct {
	Loop outbox.Config

	ElasticURL   string `env:"ELASTIC_URL"`
	ElasticIndex string `env:"ELASTIC_INDEX" envDefault:"wordloom"`
	// UseESBulk coalesces each claimed batch into one _bulk request.
	UseESBulk bool `env:"OUTBOX_USE_ES_BULK" envDefault:"false"`
	// BulkSize caps items per bulk request; zero falls back to the batch size.
	BulkSize int `env:"OUTBOX_BULK_SIZE" envDefault:"0"`
}

// Normalize validates and fills derived defaults.
func (c *Config) Normalize() error {
	if err := c.Loop.Normalize(); err != nil {
		return err
	}
	if c.ElasticURL == "" {
		return fmt.Errorf("ELASTIC_URL is required")
	}
	if c.ElasticIndex == "" {
		return fmt.Errorf("ELASTIC_INDEX must not be empty")
	}
	if c.BulkSize <= 0 {
		c.BulkSize = c.Loop.BatchSize
	}
	return nil
}
