// Package qdrant is a minimal REST client to Qdrant implementing index.Index.
// It assumes cosine distance and creates the collection if missing.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/krakenhq/kraken/core"
	"github.com/krakenhq/kraken/index"
	"github.com/krakenhq/kraken/retry"
)

// Config holds connection settings for a Qdrant collection.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Index is a Qdrant-backed vector index.
type Index struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

var _ index.Index = (*Index)(nil)

// New creates a Qdrant index client.
func New(cfg Config) (*Index, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant url required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Index{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// EnsureCollection creates the collection with cosine distance if it does not
// exist. Qdrant returns 200 when the collection already exists with the same
// schema.
func (s *Index) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return s.do(ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s", s.url, s.collection), body, nil)
}

// Dimension reads the collection's configured vector size.
func (s *Index) Dimension(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodGet,
		fmt.Sprintf("%s/collections/%s", s.url, s.collection), nil, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Result.Config.Params.Vectors.Size, nil
}

// Upsert writes items as points keyed by the hash of their external ID.
// Re-upserting the same external ID overwrites the point in place.
func (s *Index) Upsert(ctx context.Context, items []*core.Item) error {
	if len(items) == 0 {
		return nil
	}
	points := make([]map[string]any, len(items))
	for i, item := range items {
		points[i] = map[string]any{
			"id":     uint64(item.ID()),
			"vector": item.Vector,
			"payload": map[string]any{
				"external_id": item.ExternalID,
				"content":     item.Content,
				"author":      item.Author,
				"channel":     item.Channel,
				"created_at":  item.CreatedAt.UTC().Format(time.RFC3339Nano),
				"thread_ref":  item.ThreadRef,
				"permalink":   item.Permalink,
				"metadata":    item.Metadata,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut,
		fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body, nil)
}

// Search queries the collection and maps payloads back to items.
// Qdrant's score_threshold is inclusive, so results are post-filtered to the
// strict similarity > threshold contract and ties re-broken by CreatedAt.
func (s *Index) Search(ctx context.Context, vector []float32, threshold float32, limit int) ([]*core.SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	req := map[string]any{
		"vector":          vector,
		"limit":           limit,
		"with_payload":    true,
		"score_threshold": threshold,
	}
	var resp struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp)
	if err != nil {
		return nil, err
	}

	results := make([]*core.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		if r.Score <= threshold {
			continue
		}
		results = append(results, &core.SearchResult{
			Item:       itemFromPayload(r.Payload),
			Similarity: r.Score,
		})
	}

	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if a.Similarity != b.Similarity {
			if a.Similarity > b.Similarity {
				return -1
			}
			return 1
		}
		return b.Item.CreatedAt.Compare(a.Item.CreatedAt)
	})

	return results, nil
}

func itemFromPayload(payload map[string]any) *core.Item {
	item := &core.Item{}
	if v, ok := payload["external_id"].(string); ok {
		item.ExternalID = v
	}
	if v, ok := payload["content"].(string); ok {
		item.Content = v
	}
	if v, ok := payload["author"].(string); ok {
		item.Author = v
	}
	if v, ok := payload["channel"].(string); ok {
		item.Channel = v
	}
	if v, ok := payload["created_at"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			item.CreatedAt = t
		}
	}
	if v, ok := payload["thread_ref"].(string); ok {
		item.ThreadRef = v
	}
	if v, ok := payload["permalink"].(string); ok {
		item.Permalink = v
	}
	if v, ok := payload["metadata"].(map[string]any); ok {
		item.Metadata = make(map[string]string, len(v))
		for key, val := range v {
			if str, ok := val.(string); ok {
				item.Metadata[key] = str
			}
		}
	}
	return item
}

// do performs one REST call, classifying failures for the retry policy.
func (s *Index) do(ctx context.Context, method, endpoint string, body, out any) error {
	op := "qdrant " + method + " " + s.collection

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return retry.Permanent(op, err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return retry.Permanent(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return retry.Transient(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		err := fmt.Errorf("%s %s failed: %s", method, endpoint, resp.Status)
		if retry.KindFromStatus(resp.StatusCode) == retry.KindTransient {
			return retry.Transient(op, err)
		}
		return retry.Permanent(op, err)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(op, err)
		}
	}
	return nil
}
