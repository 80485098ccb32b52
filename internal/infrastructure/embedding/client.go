package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"CurateAI/internal/domain"
	"CurateAI/internal/ports"
)

// Client talks to an OpenAI-compatible embeddings endpoint.
type Client struct {
	endpoint string
	model    string
	apiKey   string
	dims     int
	http     *http.Client
}

var _ ports.Embedder = (*Client)(nil)

// NewClient creates a reusable HTTP embedding client.
func NewClient(endpoint, model, apiKey string, dims int) *Client {
	return &Client{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		dims:     dims,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Embed requests a vector for the text. Upstream failures surface as
// EmbeddingServiceError so skippable stages can pass the item through.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]any{
		"model": c.model,
		"input": []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.EmbeddingServiceError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.EmbeddingServiceError{Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	var parsed struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &domain.EmbeddingServiceError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.Data) == 0 {
		return nil, &domain.EmbeddingServiceError{Err: fmt.Errorf("empty embedding response")}
	}

	raw := parsed.Data[0].Embedding
	if c.dims > 0 && len(raw) != c.dims {
		return nil, &domain.EmbeddingServiceError{Err: fmt.Errorf("expected %d dimensions, got %d", c.dims, len(raw))}
	}

	vector := make([]float32, len(raw))
	for i, v := range raw {
		vector[i] = float32(v)
	}
	return vector, nil
}

// Dimensions returns the configured vector length.
func (c *Client) Dimensions() int {
	return c.dims
}
