package searchpub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"
)

// BulkItem is one operation in a bulk request.
type BulkItem struct {
	// Op is upsert or delete.
	Op    string
	DocID string
	// Doc is the document body for upserts; ignored for deletes.
	Doc any
}

// BulkResult is the per-item status from a bulk response, in request order.
type BulkResult struct {
	DocID  string
	Status int
}

// Bulker sends one bulk request. Satisfied by ESClient and by test fakes.
type Bulker interface {
	Bulk(ctx context.Context, items []BulkItem) ([]BulkResult, error)
}

// ESClient talks to Elasticsearch through the official client.
type ESClient struct {
	es    *elasticsearch.Client
	index string
}

// NewESClient connects to the engine at url and targets index.
func NewESClient(url, index string) (*ESClient, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{url},
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &ESClient{es: client, index: index}, nil
}

// Bulk sends items as one NDJSON _bulk request and returns per-item statuses
// in request order.
func (c *ESClient) Bulk(ctx context.Context, items []BulkItem) ([]BulkResult, error) {
	var body bytes.Buffer
	for _, item := range items {
		switch item.Op {
		case "delete":
			action := map[string]any{"delete": map[string]any{"_index": c.index, "_id": item.DocID}}
			if err := json.NewEncoder(&body).Encode(action); err != nil {
				return nil, fmt.Errorf("encode bulk action: %w", err)
			}
		default:
			action := map[string]any{"index": map[string]any{"_index": c.index, "_id": item.DocID}}
			if err := json.NewEncoder(&body).Encode(action); err != nil {
				return nil, fmt.Errorf("encode bulk action: %w", err)
			}
			if err := json.NewEncoder(&body).Encode(item.Doc); err != nil {
				return nil, fmt.Errorf("encode bulk document: %w", err)
			}
		}
	}

	res, err := c.es.Bulk(bytes.NewReader(body.Bytes()), c.es.Bulk.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		payload, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("bulk request rejected: %s: %s", res.Status(), payload)
	}

	var parsed struct {
		Items []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode bulk response: %w", err)
	}

	results := make([]BulkResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		for _, status := range item {
			results = append(results, BulkResult{DocID: status.ID, Status: status.Status})
		}
	}
	return results, nil
}

// classifyStatus maps one bulk-item HTTP status to a result class.
// Deleting an already-absent document is a success.
func classifyStatus(op string, status int) string {
	switch {
	case status >= 200 && status < 300:
		return "success"
	case status == 404 && op == "delete":
		return "success"
	case status == 429 || status >= 500:
		return "transient"
	default:
		return "permanent"
	}
}
