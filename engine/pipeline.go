package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	strata "github.com/hexleaf/strata"
	"github.com/hexleaf/strata/enrich"
	"github.com/hexleaf/strata/parse"
)

// Pipeline is one resolved (strategy × database) combination: the format
// router with its parser chains, the extractor pipeline, and the target
// database. Pipelines are stateless per file and safe for concurrent use.
type Pipeline struct {
	strategy string
	router   *parse.Router
	enrich   *enrich.Pipeline
	db       *Database
	maxBatch int
	logger   *slog.Logger
}

// Database returns the database this pipeline ingests into.
func (p *Pipeline) Database() *Database { return p.db }

// sniffLen is how much of the file head feeds content sniffing.
const sniffLen = 512

// ProcessFile runs the full write path for one file: hash, dedup check,
// route, parse with fallback, enrich, embed, store. The returned outcome
// is always filled in; per-file problems land in the outcome, never in a
// panic or a batch-level error.
func (p *Pipeline) ProcessFile(ctx context.Context, dataset, filename string, content []byte) FileOutcome {
	out := FileOutcome{Filename: filename, ContentHash: strata.HashBytes(content)}
	start := time.Now()

	dup, err := p.db.Store.HasDocument(ctx, out.ContentHash)
	if err != nil {
		return out.fail(&strata.StoreError{Op: "has-document", Err: err})
	}
	if dup {
		out.Status = FileSkippedDuplicate
		p.logger.Debug("file skipped, content already ingested",
			"file", filename, "hash", out.ContentHash)
		return out
	}

	head := content
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	candidates, err := p.router.Candidates(filename, head)
	if err != nil {
		if errors.Is(err, strata.ErrUnsupportedFormat) {
			out.Status = FileSkippedUnsupported
			p.logger.Debug("file skipped, no parser registered", "file", filename)
			return out
		}
		return out.fail(err)
	}

	raw, parserName, err := parse.ParseWithFallback(ctx, candidates, content)
	if err != nil {
		return out.fail(err)
	}
	out.Parser = parserName

	chunks := make([]strata.Chunk, len(raw))
	for i, rc := range raw {
		meta := rc.Meta
		if meta == nil {
			meta = strata.Metadata{}
		}
		meta["filename"] = filename
		meta["dataset"] = dataset
		chunks[i] = strata.Chunk{
			ID:           strata.NewID(),
			DocumentHash: out.ContentHash,
			ChunkIndex:   i,
			Text:         rc.Text,
			Hash:         strata.HashChunk(out.ContentHash, i, rc.Text),
			Metadata:     meta,
		}
		for _, exErr := range p.enrich.Run(ctx, &chunks[i]) {
			out.ExtractionErrors++
			p.logger.Warn("extractor error", "file", filename, "chunk_index", i, "error", exErr)
		}
	}

	// The document row goes in first so chunk rows always have a backing
	// document. On any later failure it is rolled back, cascading chunks,
	// so a rerun is not mistaken for a duplicate.
	inserted, err := p.db.Store.PutDocument(ctx, strata.Document{
		Hash:       out.ContentHash,
		Filename:   filename,
		Format:     parserName,
		Size:       int64(len(content)),
		Dataset:    dataset,
		IngestedAt: strata.NowUnix(),
	})
	if err != nil {
		return out.fail(&strata.StoreError{Op: "put-document", Err: err})
	}
	if !inserted {
		// Another worker ingested the same content concurrently.
		out.Status = FileSkippedDuplicate
		return out
	}

	if err := p.embedChunks(ctx, chunks, &out); err != nil {
		_ = p.db.Store.DeleteDocument(ctx, out.ContentHash)
		return out.fail(err)
	}

	for i := range chunks {
		if len(chunks[i].Embedding) == 0 {
			continue // chunk failed embedding, already counted
		}
		stored, err := p.db.Store.Upsert(ctx, chunks[i])
		if err != nil {
			_ = p.db.Store.DeleteDocument(ctx, out.ContentHash)
			return out.fail(&strata.StoreError{Op: "upsert", Err: err})
		}
		if stored {
			out.ChunksStored++
		} else {
			out.ChunksDeduped++
		}
	}

	if out.ChunksStored == 0 && out.ChunksFailed > 0 {
		_ = p.db.Store.DeleteDocument(ctx, out.ContentHash)
		return out.fail(errors.New("every chunk failed embedding"))
	}

	out.Status = FileProcessed
	p.logger.Info("file ingested",
		"file", filename,
		"parser", parserName,
		"chunks_stored", out.ChunksStored,
		"chunks_deduped", out.ChunksDeduped,
		"chunks_failed", out.ChunksFailed,
		"duration_ms", time.Since(start).Milliseconds())
	return out
}

// embedChunks fills Embedding on each chunk, batching up to maxBatch
// texts per backend call. A failed batch marks its chunks failed and the
// remaining batches continue; only a fully failed file aborts.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []strata.Chunk, out *FileOutcome) error {
	batch := p.maxBatch
	if batch <= 0 {
		batch = len(chunks)
	}
	for lo := 0; lo < len(chunks); lo += batch {
		hi := min(lo+batch, len(chunks))
		if err := ctx.Err(); err != nil {
			return err
		}
		texts := make([]string, hi-lo)
		for i := lo; i < hi; i++ {
			texts[i-lo] = chunks[i].Text
		}
		vectors, err := p.db.Embedder.Embed(ctx, texts)
		if err != nil {
			if strata.IsTransient(err) {
				// Retries are already exhausted inside the embedder
				// wrapper; a still-transient error fails the whole file
				// so a later rerun can pick it up.
				return err
			}
			out.ChunksFailed += hi - lo
			p.logger.Warn("embedding batch failed, continuing",
				"chunks", hi-lo, "error", err)
			continue
		}
		if len(vectors) != len(texts) {
			return &strata.ConfigError{Field: "embedding", Reason: "backend returned wrong vector count"}
		}
		for i := lo; i < hi; i++ {
			chunks[i].Embedding = vectors[i-lo]
		}
	}
	return nil
}
