package strata

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakyEmbedder fails with the queued errors before succeeding.
type flakyEmbedder struct {
	errs  []error
	calls int
}

func (f *flakyEmbedder) Name() string    { return "flaky" }
func (f *flakyEmbedder) Dimensions() int { return 4 }

func (f *flakyEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) {
		return nil, f.errs[i]
	}
	out := make([][]float32, len(texts))
	for j := range out {
		out[j] = []float32{1, 2, 3, 4}
	}
	return out, nil
}

func TestRetryRecoversFromTransient(t *testing.T) {
	inner := &flakyEmbedder{errs: []error{
		&ErrHTTP{Status: 429, Body: "rate limited"},
		&ErrHTTP{Status: 503, Body: "unavailable"},
	}}
	e := WithEmbedderRetry(inner, RetryMaxAttempts(3), RetryBaseDelay(time.Millisecond))

	vectors, err := e.Embed(context.Background(), []string{"text"})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(vectors) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(vectors))
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestRetryPermanentErrorNotRetried(t *testing.T) {
	inner := &flakyEmbedder{errs: []error{
		&ErrHTTP{Status: 400, Body: "malformed input"},
	}}
	e := WithEmbedderRetry(inner, RetryMaxAttempts(5), RetryBaseDelay(time.Millisecond))

	_, err := e.Embed(context.Background(), []string{"text"})
	var httpErr *ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.Status != 400 {
		t.Fatalf("expected the 400 to pass through, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("permanent error retried: %d calls", inner.calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	inner := &flakyEmbedder{errs: []error{
		&ErrHTTP{Status: 429, Body: "1"},
		&ErrHTTP{Status: 429, Body: "2"},
		&ErrHTTP{Status: 429, Body: "3"},
	}}
	e := WithEmbedderRetry(inner, RetryMaxAttempts(2), RetryBaseDelay(time.Millisecond))

	_, err := e.Embed(context.Background(), []string{"text"})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if inner.calls != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", inner.calls)
	}
	var httpErr *ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.Body != "2" {
		t.Errorf("expected the last error to be returned, got %v", err)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	inner := &flakyEmbedder{errs: []error{
		&ErrHTTP{Status: 429, Body: "rate limited"},
	}}
	e := WithEmbedderRetry(inner, RetryMaxAttempts(3), RetryBaseDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := e.Embed(ctx, []string{"text"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled during backoff wait, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&ErrHTTP{Status: 429}, true},
		{&ErrHTTP{Status: 503}, true},
		{&ErrHTTP{Status: 500}, false},
		{&ErrHTTP{Status: 400}, false},
		{errors.New("plain"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRetryDelayUsesRetryAfter(t *testing.T) {
	err := &ErrHTTP{Status: 429, RetryAfter: time.Minute}
	if d := retryDelay(time.Millisecond, 0, err); d < time.Minute {
		t.Errorf("delay %v should respect Retry-After of 1m", d)
	}
	if d := retryDelay(time.Second, 0, &ErrHTTP{Status: 429}); d < time.Second {
		t.Errorf("delay %v should be at least the base backoff", d)
	}
}

func TestCheckDimensions(t *testing.T) {
	if err := CheckDimensions([][]float32{{1, 2, 3}}, 3); err != nil {
		t.Errorf("matching dimensions rejected: %v", err)
	}
	err := CheckDimensions([][]float32{{1, 2, 3}, {1, 2}}, 3)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError for mismatched vector, got %v", err)
	}
}
