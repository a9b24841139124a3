package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	strata "github.com/hexleaf/strata"
)

func TestEmbedPerText(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/models/gemini-embedding-001:embedContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["outputDimensionality"] != float64(3) {
			t.Errorf("outputDimensionality = %v", body["outputDimensionality"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float64{0.1, 0.2, 0.3}},
		})
	}))
	defer srv.Close()

	e := New("test-key", "gemini-embedding-001", 3, WithBaseURL(srv.URL))
	vectors, err := e.Embed(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected one request per text, got %d", calls)
	}
	if len(vectors) != 2 || len(vectors[0]) != 3 {
		t.Errorf("vectors = %v", vectors)
	}
}

func TestEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	e := New("k", "m", 3, WithBaseURL(srv.URL))
	_, err := e.Embed(context.Background(), []string{"text"})
	var httpErr *strata.ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.Status != 503 {
		t.Fatalf("expected 503 ErrHTTP, got %v", err)
	}
	if !strata.IsTransient(err) {
		t.Error("503 must be classified transient")
	}
}

func TestEmbedMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unexpected": true}`))
	}))
	defer srv.Close()

	e := New("k", "m", 3, WithBaseURL(srv.URL))
	if _, err := e.Embed(context.Background(), []string{"text"}); err == nil {
		t.Error("response without embedding.values must be an error")
	}
}
