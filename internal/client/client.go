// Package client calls a running lookup server, splitting long key lists
// into paced batches and reassembling the results in input order.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"kge/internal/domain"
)

// ErrResponseMismatch is returned when a response's lists are not aligned
// with the request that produced it.
var ErrResponseMismatch = errors.New("response does not match request")

// Options configures a Client.
type Options struct {
	URL       string
	BatchSize int           // keys per list per request, default 20
	Interval  time.Duration // minimum spacing between requests, 0 disables pacing
	Timeout   time.Duration // per request

	HTTPClient *http.Client
}

// Client is safe for concurrent use; all requests share one pacing limiter.
type Client struct {
	url       string
	batchSize int
	limiter   *rate.Limiter
	http      *http.Client
	logger    *slog.Logger
}

// New creates a client for the endpoint at opts.URL.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		url:       opts.URL,
		batchSize: opts.BatchSize,
		limiter:   rate.NewLimiter(limit, 1),
		http:      httpClient,
		logger:    logger.With("component", "client"),
	}
}

// Lookup resolves req in batches of at most BatchSize entities and
// BatchSize relations each, waiting for the limiter before every request.
// Results are index-aligned with req and keyed by the raw request URIs.
func (c *Client) Lookup(ctx context.Context, req domain.BatchRequest) (domain.BatchResult, error) {
	out := domain.BatchResult{
		Entities:  make([]domain.EntityResult, 0, len(req.Entities)),
		Relations: make([]domain.RelationResult, 0, len(req.Relations)),
	}

	batches := max(ceilDiv(len(req.Entities), c.batchSize), ceilDiv(len(req.Relations), c.batchSize))
	for i := 0; i < batches; i++ {
		batch := domain.BatchRequest{
			Entities:  window(req.Entities, i, c.batchSize),
			Relations: window(req.Relations, i, c.batchSize),
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return domain.BatchResult{}, err
		}
		res, err := c.Do(ctx, batch)
		if err != nil {
			return domain.BatchResult{}, fmt.Errorf("batch %d/%d: %w", i+1, batches, err)
		}

		out.Entities = append(out.Entities, res.Entities...)
		out.Relations = append(out.Relations, res.Relations...)
		c.logger.Debug("batch resolved", "batch", i+1, "of", batches,
			"entities", len(batch.Entities), "relations", len(batch.Relations))
	}

	return out, nil
}

// Do sends req as a single request without batching or pacing.
func (c *Client) Do(ctx context.Context, req domain.BatchRequest) (domain.BatchResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("failed to call %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.BatchResult{}, fmt.Errorf("failed to read response: %w", err)
	}

	var payload struct {
		domain.BatchResponse
		domain.ErrorResponse
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		if resp.StatusCode != http.StatusOK {
			return domain.BatchResult{}, fmt.Errorf("server returned %s: %s", resp.Status, truncate(data, 200))
		}
		return domain.BatchResult{}, fmt.Errorf("failed to decode response: %w", err)
	}

	// the error marker is checked before the status code
	if payload.Error != "" {
		if payload.Error == domain.ErrorCodeMalformed {
			return domain.BatchResult{}, fmt.Errorf("%w: %s", domain.ErrMalformedRequest, payload.Message)
		}
		return domain.BatchResult{}, fmt.Errorf("server error %s: %s", payload.Error, payload.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.BatchResult{}, fmt.Errorf("server returned %s", resp.Status)
	}

	if len(payload.EntityEmbeddings) != len(req.Entities) || len(payload.RelationEmbeddings) != len(req.Relations) {
		return domain.BatchResult{}, fmt.Errorf("%w: sent %d entities and %d relations, got %d and %d",
			ErrResponseMismatch, len(req.Entities), len(req.Relations),
			len(payload.EntityEmbeddings), len(payload.RelationEmbeddings))
	}

	return payload.BatchResponse.Result(req), nil
}

func ceilDiv(n, size int) int {
	return (n + size - 1) / size
}

// window returns the i-th chunk of keys, or an empty list past the end.
func window(keys []string, i, size int) []string {
	start := i * size
	if start >= len(keys) {
		return []string{}
	}
	return keys[start:min(start+size, len(keys))]
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
