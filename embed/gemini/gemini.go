// Package gemini implements strata.Embedder for the Gemini embedding API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	strata "github.com/hexleaf/strata"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Option configures an Embedder.
type Option func(*Embedder)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(e *Embedder) { e.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Embedder) { e.httpClient = c }
}

// Embedder calls the Gemini embedContent endpoint, one request per text.
type Embedder struct {
	apiKey     string
	model      string
	dims       int
	baseURL    string
	httpClient *http.Client
}

var _ strata.Embedder = (*Embedder)(nil)

// New creates a Gemini embedder for the given model and output
// dimensionality.
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

// Name returns "gemini".
func (e *Embedder) Name() string { return "gemini" }

// Dimensions returns the configured embedding dimensionality.
func (e *Embedder) Dimensions() int { return e.dims }

type embedValues struct {
	Values []float64 `json:"values"`
}

type embedResponse struct {
	Embedding *embedValues `json:"embedding"`
}

// Embed embeds each text sequentially and returns the vectors in input
// order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", e.baseURL, e.model, e.apiKey)

	embeddings := make([][]float32, 0, len(texts))
	for _, text := range texts {
		body := map[string]any{
			"content": map[string]any{
				"parts": []map[string]any{
					{"text": text},
				},
			},
			"outputDimensionality": e.dims,
		}
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gemini: marshal embed body: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
		if err != nil {
			return nil, fmt.Errorf("gemini: create embed request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := e.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("gemini: embed request failed: %w", err)
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("gemini: read embed response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &strata.ErrHTTP{
				Status:     resp.StatusCode,
				Body:       string(respBody),
				RetryAfter: strata.ParseRetryAfter(resp.Header.Get("Retry-After")),
			}
		}

		var parsed embedResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("gemini: parse embed response: %w", err)
		}
		if parsed.Embedding == nil {
			return nil, fmt.Errorf("gemini: missing embedding.values in response")
		}

		vec := make([]float32, len(parsed.Embedding.Values))
		for i, v := range parsed.Embedding.Values {
			vec[i] = float32(v)
		}
		embeddings = append(embeddings, vec)
	}
	return embeddings, nil
}
