// Package sqlite implements strata.VectorStore using pure-Go SQLite with
// in-process brute-force vector search. Zero CGO required. Embeddings
// are stored as JSON text; keyword search uses an FTS5 index.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	strata "github.com/hexleaf/strata"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Option configures a SQLite Store.
type Option func(*Store)

// WithLogger sets a structured logger for store operations, including
// timing and row counts at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithDimensions fixes the vector size. Upserts with a different
// dimensionality fail with ConfigError. Zero accepts any size.
func WithDimensions(n int) Option {
	return func(s *Store) { s.dims = n }
}

// Store implements strata.VectorStore backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	dims   int
	logger *slog.Logger
}

var _ strata.VectorStore = (*Store)(nil)
var _ strata.KeywordSearcher = (*Store)(nil)

// New creates a Store using a local SQLite file at dbPath. It opens a
// shared pool with SetMaxOpenConns(1) so all goroutines serialize through
// one connection, eliminating SQLITE_BUSY errors from concurrent writers.
func New(dbPath string, opts ...Option) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: strata.NopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the document and chunk tables plus the FTS index.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			hash TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			format TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			dataset TEXT NOT NULL DEFAULT '',
			ingested_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_hash TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			hash TEXT NOT NULL UNIQUE,
			text TEXT NOT NULL,
			metadata TEXT,
			embedding TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks(document_hash)`,
		`CREATE INDEX IF NOT EXISTS documents_dataset_idx ON documents(dataset)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}
	// FTS5 full-text index for keyword search over chunks.
	_, _ = s.db.ExecContext(ctx, `CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(chunk_id UNINDEXED, text)`)
	s.logger.Debug("sqlite: init complete", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Dimensions returns the configured vector size (0 = any).
func (s *Store) Dimensions() int { return s.dims }

// PutDocument inserts a document unless its content hash already exists.
// INSERT OR IGNORE plus the single write connection makes concurrent
// duplicate submissions resolve to exactly one row.
func (s *Store) PutDocument(ctx context.Context, doc strata.Document) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO documents (hash, filename, format, size, dataset, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.Hash, doc.Filename, doc.Format, doc.Size, doc.Dataset, doc.IngestedAt)
	if err != nil {
		return false, fmt.Errorf("put document: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) HasDocument(ctx context.Context, hash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE hash = ?`, hash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has document: %w", err)
	}
	return true, nil
}

// DeleteDocument removes a document, its chunks, and their FTS entries.
func (s *Store) DeleteDocument(ctx context.Context, hash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks_fts WHERE chunk_id IN (SELECT id FROM chunks WHERE document_hash = ?)`, hash); err != nil {
		return fmt.Errorf("delete document fts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_hash = ?`, hash); err != nil {
		return fmt.Errorf("delete document chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE hash = ?`, hash); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return tx.Commit()
}

func (s *Store) DocumentsByDataset(ctx context.Context, dataset string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash FROM documents WHERE dataset = ? ORDER BY hash`, dataset)
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
	if s.dims > 0 {
		if err := strata.CheckDimensions([][]float32{chunk.Embedding}, s.dims); err != nil {
			return false, err
		}
	}
	embJSON, err := json.Marshal(chunk.Embedding)
	if err != nil {
		return false, fmt.Errorf("marshal embedding: %w", err)
	}
	var metaJSON []byte
	if len(chunk.Metadata) > 0 {
		if metaJSON, err = json.Marshal(chunk.Metadata); err != nil {
			return false, fmt.Errorf("marshal metadata: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("upsert: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO chunks (id, document_hash, chunk_index, hash, text, metadata, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		chunk.ID, chunk.DocumentHash, chunk.ChunkIndex, chunk.Hash, chunk.Text, nullable(metaJSON), string(embJSON))
	if err != nil {
		return false, fmt.Errorf("insert chunk: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Same content hash already stored; nothing to update.
		return false, tx.Commit()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chunks_fts(chunk_id, text) VALUES (?, ?)`, chunk.ID, chunk.Text); err != nil {
		return false, fmt.Errorf("insert chunk fts: %w", err)
	}
	return true, tx.Commit()
}

func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks_fts WHERE chunk_id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("delete fts: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// Query loads candidate chunks and ranks them in-process by cosine
// similarity. Metadata filters are applied before scoring.
func (s *Store) Query(ctx context.Context, embedding []float32, topK int, filters []strata.Filter) ([]strata.ScoredChunk, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_hash, chunk_index, hash, text, metadata, embedding FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var scored []strata.ScoredChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		if len(c.Embedding) == 0 || !strata.MatchesAll(c.Metadata, filters) {
			continue
		}
		scored = append(scored, strata.ScoredChunk{Chunk: c, Score: cosine(embedding, c.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
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
	s.logger.Debug("sqlite: vector query",
		"top_k", topK, "results", len(scored), "duration_ms", time.Since(start).Milliseconds())
	return scored, nil
}

// SearchKeyword performs FTS5 full-text search over chunk text. Rank is
// negated into a positive score (FTS5 rank is more negative = better).
func (s *Store) SearchKeyword(ctx context.Context, query string, topK int) ([]strata.ScoredChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.document_hash, c.chunk_index, c.hash, c.text, c.metadata, c.embedding, f.rank
		 FROM chunks_fts f
		 JOIN chunks c ON c.id = f.chunk_id
		 WHERE chunks_fts MATCH ?
		 ORDER BY f.rank LIMIT ?`, ftsQuery(query), topK)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []strata.ScoredChunk
	for rows.Next() {
		var c strata.Chunk
		var metaJSON, embJSON sql.NullString
		var rank float64
		if err := rows.Scan(&c.ID, &c.DocumentHash, &c.ChunkIndex, &c.Hash, &c.Text, &metaJSON, &embJSON, &rank); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		decodeChunkJSON(&c, metaJSON, embJSON)
		results = append(results, strata.ScoredChunk{Chunk: c, Score: float32(-rank)})
	}
	return results, rows.Err()
}

// ftsQuery quotes each term so user input cannot inject FTS5 syntax.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, ``) + `"`
	}
	return strings.Join(fields, " OR ")
}

func (s *Store) ChunksByDocument(ctx context.Context, hash string) ([]strata.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_hash, chunk_index, hash, text, metadata, embedding
		 FROM chunks WHERE document_hash = ? ORDER BY chunk_index`, hash)
	if err != nil {
		return nil, fmt.Errorf("chunks by document: %w", err)
	}
	defer rows.Close()
	var out []strata.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CountChunks(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func scanChunk(rows *sql.Rows) (strata.Chunk, error) {
	var c strata.Chunk
	var metaJSON, embJSON sql.NullString
	if err := rows.Scan(&c.ID, &c.DocumentHash, &c.ChunkIndex, &c.Hash, &c.Text, &metaJSON, &embJSON); err != nil {
		return c, fmt.Errorf("scan chunk: %w", err)
	}
	decodeChunkJSON(&c, metaJSON, embJSON)
	return c, nil
}

func decodeChunkJSON(c *strata.Chunk, metaJSON, embJSON sql.NullString) {
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &c.Metadata)
	}
	if embJSON.Valid && embJSON.String != "" {
		_ = json.Unmarshal([]byte(embJSON.String), &c.Embedding)
	}
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
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
