package strata

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Sentinel errors shared across the engine and backends.
var (
	// ErrUnsupportedFormat marks a file no registered parser can handle.
	// Per-file and non-fatal: the ingestion task records the file as
	// skipped and continues with the rest of the batch.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrDuplicate marks content whose hash is already present in the
	// target database.
	ErrDuplicate = errors.New("content already present")

	// ErrNotFound marks a lookup (task, dataset, document) that matched
	// nothing. Distinct from an empty query result, which is success.
	ErrNotFound = errors.New("not found")

	// ErrNoBackend marks a query against a database whose store or
	// embedder is unavailable.
	ErrNoBackend = errors.New("no backend available")
)

// ConfigError is a configuration problem detected at strategy-resolution
// time: an unknown component type, chunk_overlap >= chunk_size, or an
// embedding dimensionality that does not match the store. It always fails
// fast, never mid-batch.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// ParseError wraps a parser failure for one file. The router's fallback
// chain consumes these; only the last one survives when every candidate
// parser has been exhausted.
type ParseError struct {
	Parser string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse (%s): %v", e.Parser, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractionError records a single metadata extractor failing on a single
// chunk. The chunk proceeds with whatever metadata was produced before the
// failure.
type ExtractionError struct {
	Extractor string
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract (%s): %v", e.Extractor, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StoreError wraps a vector store failure. The engine never retries these
// automatically: store consistency must not be guessed at.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ErrHTTP carries an HTTP failure from an embedding backend. Status 429
// and 503 are treated as transient and retried with backoff; everything
// else is permanent.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses an HTTP Retry-After header value given in
// seconds. Returns 0 for empty or unparsable values; the HTTP-date form
// is not supported.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
