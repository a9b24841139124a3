package strata

import (
	"context"
	"fmt"
)

// FilterOp is a metadata predicate operator. Exact match and numeric
// ranges compose with vector similarity in store queries.
type FilterOp string

const (
	OpEq  FilterOp = "eq"
	OpNeq FilterOp = "neq"
	OpLt  FilterOp = "lt"
	OpLte FilterOp = "lte"
	OpGt  FilterOp = "gt"
	OpGte FilterOp = "gte"
)

// Filter is a single metadata predicate. A result matches a filter list
// only when every predicate holds.
type Filter struct {
	Key   string   `json:"key"`
	Op    FilterOp `json:"op"`
	Value any      `json:"value"`
}

// Eq builds an exact-match filter.
func Eq(key string, value any) Filter { return Filter{Key: key, Op: OpEq, Value: value} }

// Matches reports whether md satisfies the predicate. Missing keys never
// match. Numeric comparisons coerce both sides to float64; non-numeric
// values only support eq/neq.
func (f Filter) Matches(md Metadata) bool {
	v, ok := md[f.Key]
	if !ok {
		return false
	}
	switch f.Op {
	case OpEq:
		return equalValues(v, f.Value)
	case OpNeq:
		return !equalValues(v, f.Value)
	case OpLt, OpLte, OpGt, OpGte:
		a, aok := toFloat(v)
		b, bok := toFloat(f.Value)
		if !aok || !bok {
			return false
		}
		switch f.Op {
		case OpLt:
			return a < b
		case OpLte:
			return a <= b
		case OpGt:
			return a > b
		default:
			return a >= b
		}
	}
	return false
}

// MatchesAll reports whether md satisfies every filter.
func MatchesAll(md Metadata, filters []Filter) bool {
	for _, f := range filters {
		if !f.Matches(md) {
			return false
		}
	}
	return true
}

func equalValues(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// VectorStore abstracts chunk persistence with vector search. All
// implementations are safe for concurrent use; a chunk becomes visible to
// queries only after its Upsert returns.
type VectorStore interface {
	// Init creates any required schema.
	Init(ctx context.Context) error
	// Close releases the underlying connection or memory.
	Close() error

	// Dimensions returns the configured vector size, or 0 when the store
	// accepts any dimensionality.
	Dimensions() int

	// PutDocument records a document. Returns false without modifying
	// anything when a document with the same content hash already exists:
	// upsert is idempotent by content hash, concurrent duplicate
	// submissions included.
	PutDocument(ctx context.Context, doc Document) (bool, error)
	// HasDocument reports whether a document with the hash is stored.
	HasDocument(ctx context.Context, hash string) (bool, error)
	// DeleteDocument removes a document and cascades to all its chunks,
	// leaving no orphaned vectors.
	DeleteDocument(ctx context.Context, hash string) error
	// DocumentsByDataset lists document hashes ingested under a dataset.
	DocumentsByDataset(ctx context.Context, dataset string) ([]string, error)

	// Upsert stores a chunk with its embedding. Returns false when a chunk
	// with the same content hash is already present.
	Upsert(ctx context.Context, chunk Chunk) (bool, error)
	// Delete removes chunks by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error
	// Query returns the topK chunks nearest to embedding that match every
	// filter, ranked by similarity. Zero matches is a valid empty result.
	Query(ctx context.Context, embedding []float32, topK int, filters []Filter) ([]ScoredChunk, error)
	// ChunksByDocument returns a document's chunks ordered by chunk index.
	ChunksByDocument(ctx context.Context, hash string) ([]Chunk, error)
	// CountChunks returns the total number of stored chunks.
	CountChunks(ctx context.Context) (int, error)
}

// KeywordSearcher is an optional VectorStore capability for sparse
// full-text search. Stores that support it (e.g. postgres tsvector,
// sqlite FTS) implement this interface; the hybrid retriever discovers it
// via type assertion and falls back to in-process term overlap otherwise.
type KeywordSearcher interface {
	SearchKeyword(ctx context.Context, query string, topK int) ([]ScoredChunk, error)
}
