// Package memory implements strata.VectorStore entirely in process.
// Vector search is brute-force cosine similarity. Intended for tests,
// development, and small corpora; the sqlite and postgres stores cover
// everything durable.
package memory

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"

	strata "github.com/hexleaf/strata"
)

// Option configures a memory Store.
type Option func(*Store)

// WithDimensions fixes the vector size. Upserts with a different
// dimensionality fail with ConfigError. Zero accepts any size.
func WithDimensions(n int) Option {
	return func(s *Store) { s.dims = n }
}

// WithLogger sets a structured logger for store operations.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is an in-memory VectorStore. Safe for concurrent use; a single
// mutex serializes writes, so concurrent duplicate upserts cannot race
// past the hash check.
type Store struct {
	mu          sync.RWMutex
	docs        map[string]strata.Document // by content hash
	chunks      map[string]strata.Chunk    // by chunk ID
	chunkByHash map[string]string          // chunk content hash -> chunk ID
	dims        int
	logger      *slog.Logger
}

var _ strata.VectorStore = (*Store)(nil)

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		docs:        make(map[string]strata.Document),
		chunks:      make(map[string]strata.Chunk),
		chunkByHash: make(map[string]string),
		logger:      strata.NopLogger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Init(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }
func (s *Store) Dimensions() int            { return s.dims }

func (s *Store) PutDocument(_ context.Context, doc strata.Document) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.Hash]; exists {
		return false, nil
	}
	s.docs[doc.Hash] = doc
	s.logger.Debug("memory: document stored", "hash", doc.Hash, "filename", doc.Filename)
	return true, nil
}

func (s *Store) HasDocument(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[hash]
	return ok, nil
}

func (s *Store) DeleteDocument(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, hash)
	for id, c := range s.chunks {
		if c.DocumentHash == hash {
			delete(s.chunkByHash, c.Hash)
			delete(s.chunks, id)
		}
	}
	return nil
}

func (s *Store) DocumentsByDataset(_ context.Context, dataset string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hashes []string
	for h, d := range s.docs {
		if d.Dataset == dataset {
			hashes = append(hashes, h)
		}
	}
	sort.Strings(hashes)
	return hashes, nil
}

func (s *Store) Upsert(_ context.Context, chunk strata.Chunk) (bool, error) {
	if s.dims > 0 && len(chunk.Embedding) != s.dims {
		return false, strata.CheckDimensions([][]float32{chunk.Embedding}, s.dims)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.chunkByHash[chunk.Hash]; exists {
		return false, nil
	}
	s.chunks[chunk.ID] = chunk
	s.chunkByHash[chunk.Hash] = chunk.ID
	return true, nil
}

func (s *Store) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			delete(s.chunkByHash, c.Hash)
			delete(s.chunks, id)
		}
	}
	return nil
}

func (s *Store) Query(_ context.Context, embedding []float32, topK int, filters []strata.Filter) ([]strata.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]strata.ScoredChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		if !strata.MatchesAll(c.Metadata, filters) {
			continue
		}
		scored = append(scored, strata.ScoredChunk{
			Chunk: c,
			Score: cosine(embedding, c.Embedding),
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func (s *Store) ChunksByDocument(_ context.Context, hash string) ([]strata.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []strata.Chunk
	for _, c := range s.chunks {
		if c.DocumentHash == hash {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (s *Store) CountChunks(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// cosine maps cosine similarity into [0, 1].
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return float32((sim + 1) / 2)
}
