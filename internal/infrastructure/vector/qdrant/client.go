package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/getclever/docqa-assistant/internal/core/domain"
)

const (
	defaultBatchSize     = 1000
	defaultBatchInterval = 100 * time.Millisecond
	defaultCeiling       = 0.8
)

// Embedder produces dense vectors for texts. Satisfied by the ollama
// embedding client.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Options tunes batching and result filtering.
type Options struct {
	// BatchSize caps how many points one upsert carries.
	BatchSize int
	// BatchInterval paces successive upsert batches.
	BatchInterval time.Duration
	// DissimilarityCeiling drops search hits whose cosine distance from the
	// query exceeds it. The filter relaxes when it would starve the caller.
	DissimilarityCeiling float64
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.BatchInterval <= 0 {
		o.BatchInterval = defaultBatchInterval
	}
	if o.DissimilarityCeiling <= 0 || o.DissimilarityCeiling > 1 {
		o.DissimilarityCeiling = defaultCeiling
	}
	return o
}

// Client talks to qdrant over its HTTP API and owns embedding of both chunks
// and queries.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	embed      Embedder
	limiter    *rate.Limiter
	logger     *slog.Logger
	opts       Options

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, embed Embedder, logger *slog.Logger, opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		embed:      embed,
		limiter:    rate.NewLimiter(rate.Every(opts.BatchInterval), 1),
		logger:     logger,
		opts:       opts,
	}
}

// Add embeds and upserts chunks in paced batches. A 429 from qdrant gets one
// retry after the limiter interval.
func (c *Client) Add(ctx context.Context, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += c.opts.BatchSize {
		end := start + c.opts.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("batch pacing: %w", err)
		}
		if err := c.addBatch(ctx, chunks[start:end]); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (c *Client) addBatch(ctx context.Context, chunks []domain.Chunk) error {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := c.embed.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: %d texts, %d vectors", len(chunks), len(vectors))
	}
	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	points := make([]point, 0, len(chunks))
	for i, ch := range chunks {
		points = append(points, point{
			ID:     uuid.NewString(),
			Vector: vectors[i],
			Payload: map[string]any{
				"chunk_id": ch.ID,
				"text":     ch.Text,
				"source":   ch.Source,
				"page":     ch.Page,
				"ordinal":  ch.Ordinal,
				"format":   string(ch.Format),
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	status, err := c.doJSON(ctx, http.MethodPut, path, map[string]any{"points": points}, nil)
	if status == http.StatusTooManyRequests {
		c.logger.Warn("qdrant_rate_limited", "batch", len(points))
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit backoff: %w", err)
		}
		status, err = c.doJSON(ctx, http.MethodPut, path, map[string]any{"points": points}, nil)
	}
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("qdrant upsert status: %d", status)
	}
	return nil
}

// Search embeds the query and returns hits sorted by similarity. Hits whose
// cosine distance exceeds the dissimilarity ceiling are dropped unless that
// would leave fewer than max(3, k/2) results, in which case the filter is
// relaxed and a warning logged.
func (c *Client) Search(ctx context.Context, query string, k int, filter map[string]string) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	vector, err := c.embed.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if cond := filterConditions(filter); len(cond) > 0 {
		reqBody["filter"] = map[string]any{"must": cond}
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	status, err := c.doJSON(ctx, http.MethodPost, path, reqBody, &searchResp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		// Collection does not exist yet; nothing ingested.
		return nil, nil
	}
	if status >= 300 {
		return nil, fmt.Errorf("qdrant search status: %d", status)
	}

	all := make([]domain.ScoredChunk, 0, len(searchResp.Result))
	kept := make([]domain.ScoredChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		hit := domain.ScoredChunk{
			Chunk: domain.Chunk{
				ID:      payloadString(r.Payload, "chunk_id"),
				Text:    payloadString(r.Payload, "text"),
				Source:  payloadString(r.Payload, "source"),
				Page:    payloadInt(r.Payload, "page"),
				Ordinal: payloadInt(r.Payload, "ordinal"),
				Format:  domain.SourceFormat(payloadString(r.Payload, "format")),
			},
			Score:  r.Score,
			Origin: domain.OriginVector,
		}
		all = append(all, hit)
		if 1-r.Score <= c.opts.DissimilarityCeiling {
			kept = append(kept, hit)
		}
	}

	floor := k / 2
	if floor < 3 {
		floor = 3
	}
	if len(kept) < floor && len(all) > len(kept) {
		c.logger.Warn("similarity_filter_relaxed",
			"kept", len(kept),
			"floor", floor,
			"total", len(all),
		)
		return all, nil
	}
	return kept, nil
}

func (c *Client) Count(ctx context.Context) (int, error) {
	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", c.collection)
	status, err := c.doJSON(ctx, http.MethodPost, path, map[string]any{"exact": true}, &countResp)
	if err != nil {
		return 0, err
	}
	if status == http.StatusNotFound {
		return 0, nil
	}
	if status >= 300 {
		return 0, fmt.Errorf("qdrant count status: %d", status)
	}
	return countResp.Result.Count, nil
}

// DeleteAll drops the collection. It is recreated lazily on the next Add.
func (c *Client) DeleteAll(ctx context.Context) error {
	path := fmt.Sprintf("/collections/%s", c.collection)
	status, err := c.doJSON(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	if status >= 300 && status != http.StatusNotFound {
		return fmt.Errorf("qdrant delete collection status: %d", status)
	}

	c.ensureMu.Lock()
	c.ensuredCollection = false
	c.ensuredVectorSize = 0
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	path := fmt.Sprintf("/collections/%s", c.collection)
	status, err := c.doJSON(ctx, http.MethodPut, path, reqBody, nil)
	if err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	// 409 means it already exists, which is fine.
	if status >= 300 && status != http.StatusConflict {
		return fmt.Errorf("qdrant ensure collection status: %d", status)
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func filterConditions(filter map[string]string) []map[string]any {
	if len(filter) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(filter))
	for key, value := range filter {
		out = append(out, map[string]any{
			"key":   key,
			"match": map[string]any{"value": value},
		})
	}
	return out
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func payloadInt(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	if f, ok := v.(float64); ok {
		return int(f)
	}
	if i, ok := v.(int); ok {
		return i
	}
	return 0
}
