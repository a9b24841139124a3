// Package postgres implements strata.VectorStore backed by PostgreSQL
// with the pgvector extension. Vector search runs server-side through an
// HNSW index; keyword search uses a tsvector GIN index.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	strata "github.com/hexleaf/strata"
)

// Option configures a Postgres Store.
type Option func(*Store)

// WithLogger sets a structured logger for store operations.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithHNSW tunes the HNSW index build parameters used by Init.
func WithHNSW(m, efConstruction int) Option {
	return func(s *Store) {
		s.hnswM = m
		s.hnswEF = efConstruction
	}
}

// Store implements strata.VectorStore over pgx/pgvector.
type Store struct {
	pool   *pgxpool.Pool
	dims   int
	hnswM  int
	hnswEF int
	logger *slog.Logger
}

var _ strata.VectorStore = (*Store)(nil)
var _ strata.KeywordSearcher = (*Store)(nil)

// New connects to connString and prepares a store for vectors of the
// given dimensionality. Dimensions are mandatory here: pgvector columns
// are declared with a fixed size.
func New(ctx context.Context, connString string, dimensions int, opts ...Option) (*Store, error) {
	if dimensions <= 0 {
		return nil, &strata.ConfigError{Field: "embedding.dimensions", Reason: "postgres store requires a fixed dimensionality"}
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	s := &Store{
		pool:   pool,
		dims:   dimensions,
		hnswM:  16,
		hnswEF: 64,
		logger: strata.NopLogger,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Init enables pgvector and creates tables and indexes.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			hash TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			format TEXT NOT NULL DEFAULT '',
			size BIGINT NOT NULL DEFAULT 0,
			dataset TEXT NOT NULL DEFAULT '',
			ingested_at BIGINT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_hash TEXT NOT NULL REFERENCES documents(hash) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			hash TEXT NOT NULL UNIQUE,
			text TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d)
		)`, s.dims),
		`CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks(document_hash)`,
		`CREATE INDEX IF NOT EXISTS documents_dataset_idx ON documents(dataset)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks
			USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d)`, s.hnswM, s.hnswEF),
		`CREATE INDEX IF NOT EXISTS chunks_text_fts_idx ON chunks
			USING gin (to_tsvector('english', text))`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}
	s.logger.Debug("postgres: init complete", "dimensions", s.dims, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Dimensions returns the fixed vector size.
func (s *Store) Dimensions() int { return s.dims }

// PutDocument inserts a document unless its content hash already exists.
// ON CONFLICT DO NOTHING makes concurrent duplicate submissions resolve
// to exactly one row.
func (s *Store) PutDocument(ctx context.Context, doc strata.Document) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO documents (hash, filename, format, size, dataset, ingested_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (hash) DO NOTHING`,
		doc.Hash, doc.Filename, doc.Format, doc.Size, doc.Dataset, doc.IngestedAt)
	if err != nil {
		return false, fmt.Errorf("put document: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) HasDocument(ctx context.Context, hash string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM documents WHERE hash = $1`, hash).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has document: %w", err)
	}
	return true, nil
}

// DeleteDocument removes a document; chunks cascade via the FK.
func (s *Store) DeleteDocument(ctx context.Context, hash string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE hash = $1`, hash); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *Store) DocumentsByDataset(ctx context.Context, dataset string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT hash FROM documents WHERE dataset = $1 ORDER BY hash`, dataset)
	if err != nil {
		return nil, fmt.Errorf("documents by dataset: %w", err)
	}
	defer rows.Close()
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

// Upsert stores a chunk unless its content hash is already present.
func (s *Store) Upsert(ctx context.Context, chunk strata.Chunk) (bool, error) {
	if err := strata.CheckDimensions([][]float32{chunk.Embedding}, s.dims); err != nil {
		return false, err
	}
	var metaJSON []byte
	if len(chunk.Metadata) > 0 {
		var err error
		if metaJSON, err = json.Marshal(chunk.Metadata); err != nil {
			return false, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO chunks (id, document_hash, chunk_index, hash, text, metadata, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::vector)
		 ON CONFLICT (hash) DO NOTHING`,
		chunk.ID, chunk.DocumentHash, chunk.ChunkIndex, chunk.Hash, chunk.Text, metaJSON, serializeEmbedding(chunk.Embedding))
	if err != nil {
		return false, fmt.Errorf("insert chunk: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// Query runs a cosine-distance HNSW search, applying metadata filters in
// SQL over the JSONB column. Cosine distance d in [0, 2] is mapped to a
// similarity score 1 - d/2 in [0, 1].
func (s *Store) Query(ctx context.Context, embedding []float32, topK int, filters []strata.Filter) ([]strata.ScoredChunk, error) {
	start := time.Now()
	emb := serializeEmbedding(embedding)
	where, args := filterClauses(filters, 3)
	query := `SELECT id, document_hash, chunk_index, hash, text, metadata,
			1 - (embedding <=> $1::vector) / 2 AS score
		 FROM chunks` + where + `
		 ORDER BY score DESC, id ASC LIMIT $2`
	allArgs := append([]any{emb, topK}, args...)

	rows, err := s.pool.Query(ctx, query, allArgs...)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer rows.Close()

	results, err := scanScored(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("postgres: vector query",
		"top_k", topK, "results", len(results), "duration_ms", time.Since(start).Milliseconds())
	return results, nil
}

// SearchKeyword runs a tsvector full-text search ranked by ts_rank.
func (s *Store) SearchKeyword(ctx context.Context, query string, topK int) ([]strata.ScoredChunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_hash, chunk_index, hash, text, metadata,
			ts_rank(to_tsvector('english', text), plainto_tsquery('english', $1)) AS score
		 FROM chunks
		 WHERE to_tsvector('english', text) @@ plainto_tsquery('english', $1)
		 ORDER BY score DESC, id ASC LIMIT $2`, query, topK)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()
	return scanScored(rows)
}

func (s *Store) ChunksByDocument(ctx context.Context, hash string) ([]strata.Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_hash, chunk_index, hash, text, metadata
		 FROM chunks WHERE document_hash = $1 ORDER BY chunk_index`, hash)
	if err != nil {
		return nil, fmt.Errorf("chunks by document: %w", err)
	}
	defer rows.Close()
	var out []strata.Chunk
	for rows.Next() {
		var c strata.Chunk
		var metaJSON []byte
		if err := rows.Scan(&c.ID, &c.DocumentHash, &c.ChunkIndex, &c.Hash, &c.Text, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &c.Metadata)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CountChunks(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func scanScored(rows pgx.Rows) ([]strata.ScoredChunk, error) {
	var results []strata.ScoredChunk
	for rows.Next() {
		var c strata.Chunk
		var metaJSON []byte
		var score float64
		if err := rows.Scan(&c.ID, &c.DocumentHash, &c.ChunkIndex, &c.Hash, &c.Text, &metaJSON, &score); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &c.Metadata)
		}
		results = append(results, strata.ScoredChunk{Chunk: c, Score: float32(score)})
	}
	return results, rows.Err()
}

// filterClauses translates metadata filters into JSONB predicates.
// Equality compares the JSONB text representation; ordered operators cast
// to numeric. Placeholder numbering starts at next.
func filterClauses(filters []strata.Filter, next int) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	var preds []string
	var args []any
	for _, f := range filters {
		keyArg := len(args) + next
		valArg := keyArg + 1
		switch f.Op {
		case strata.OpEq:
			preds = append(preds, fmt.Sprintf("metadata->>$%d = $%d", keyArg, valArg))
		case strata.OpNeq:
			preds = append(preds, fmt.Sprintf("metadata->>$%d IS DISTINCT FROM $%d", keyArg, valArg))
		case strata.OpLt:
			preds = append(preds, fmt.Sprintf("(metadata->>$%d)::numeric < $%d::numeric", keyArg, valArg))
		case strata.OpLte:
			preds = append(preds, fmt.Sprintf("(metadata->>$%d)::numeric <= $%d::numeric", keyArg, valArg))
		case strata.OpGt:
			preds = append(preds, fmt.Sprintf("(metadata->>$%d)::numeric > $%d::numeric", keyArg, valArg))
		case strata.OpGte:
			preds = append(preds, fmt.Sprintf("(metadata->>$%d)::numeric >= $%d::numeric", keyArg, valArg))
		default:
			continue
		}
		args = append(args, f.Key, filterValueString(f.Value))
	}
	if len(preds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(preds, " AND "), args
}

func filterValueString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// serializeEmbedding renders a vector in pgvector's text format.
func serializeEmbedding(embedding []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
