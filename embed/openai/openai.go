// Package openai implements strata.Embedder over the OpenAI-compatible
// /v1/embeddings endpoint. It works with the official API and any
// compatible server (Ollama, vLLM, LM Studio) by overriding the base URL.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	strata "github.com/hexleaf/strata"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Option configures an Embedder.
type Option func(*Embedder)

// WithBaseURL points the client at a compatible server.
func WithBaseURL(url string) Option {
	return func(e *Embedder) { e.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Embedder) { e.httpClient = c }
}

// Embedder calls /v1/embeddings with the whole batch in one request.
type Embedder struct {
	apiKey     string
	model      string
	dims       int
	baseURL    string
	httpClient *http.Client
}

var _ strata.Embedder = (*Embedder)(nil)

// New creates an OpenAI-compatible embedder.
func New(apiKey, model string, dims int, opts ...Option) *Embedder {
	e := &Embedder{
		apiKey:     apiKey,
		model:      model,
		dims:       dims,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Name returns "openai".
func (e *Embedder) Name() string { return "openai" }

// Dimensions returns the configured embedding dimensionality.
func (e *Embedder) Dimensions() int { return e.dims }

type embeddingItem struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type embeddingsResponse struct {
	Data []embeddingItem `json:"data"`
}

// Embed embeds the batch in a single request. Vectors are reordered by
// the response index field so output order matches input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body := map[string]any{
		"model": e.model,
		"input": texts,
	}
	if e.dims > 0 {
		body["dimensions"] = e.dims
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal embeddings body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai: create embeddings request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: embeddings request failed: %w", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("openai: read embeddings response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &strata.ErrHTTP{
			Status:     resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: strata.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var parsed embeddingsResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("openai: parse embeddings response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("openai: got %d embeddings for %d inputs", len(parsed.Data), len(texts))
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })
	vectors := make([][]float32, len(parsed.Data))
	for i, item := range parsed.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}
