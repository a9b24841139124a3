package memory

import (
	"context"
	"errors"
	"testing"

	strata "github.com/hexleaf/strata"
)

func chunk(id, docHash, text string, idx int, emb []float32) strata.Chunk {
	return strata.Chunk{
		ID:           id,
		DocumentHash: docHash,
		Text:         text,
		Hash:         strata.HashString(text),
		ChunkIndex:   idx,
		Embedding:    emb,
	}
}

func TestPutDocumentIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	doc := strata.Document{Hash: "h1", Filename: "a.txt", Dataset: "ds"}

	inserted, err := s.PutDocument(ctx, doc)
	if err != nil || !inserted {
		t.Fatalf("first put = (%v, %v), want (true, nil)", inserted, err)
	}
	inserted, err = s.PutDocument(ctx, doc)
	if err != nil || inserted {
		t.Fatalf("second put = (%v, %v), want (false, nil)", inserted, err)
	}
	has, err := s.HasDocument(ctx, "h1")
	if err != nil || !has {
		t.Errorf("HasDocument = (%v, %v), want (true, nil)", has, err)
	}
}

func TestUpsertDedupesByContentHash(t *testing.T) {
	s := New()
	ctx := context.Background()

	c := chunk("c1", "h1", "same text", 0, []float32{1, 0})
	inserted, err := s.Upsert(ctx, c)
	if err != nil || !inserted {
		t.Fatalf("first upsert = (%v, %v)", inserted, err)
	}

	// Same content under a different chunk ID is still a duplicate.
	dup := chunk("c2", "h1", "same text", 1, []float32{1, 0})
	inserted, err = s.Upsert(ctx, dup)
	if err != nil || inserted {
		t.Fatalf("duplicate upsert = (%v, %v), want (false, nil)", inserted, err)
	}
	if n, _ := s.CountChunks(ctx); n != 1 {
		t.Errorf("chunk count = %d, want 1", n)
	}
}

func TestUpsertEnforcesDimensions(t *testing.T) {
	s := New(WithDimensions(3))
	_, err := s.Upsert(context.Background(), chunk("c1", "h1", "t", 0, []float32{1, 2}))
	var cfgErr *strata.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigError for 2-dim vector in 3-dim store, got %v", err)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutDocument(ctx, strata.Document{Hash: "h1", Dataset: "ds"})
	s.PutDocument(ctx, strata.Document{Hash: "h2", Dataset: "ds"})
	s.Upsert(ctx, chunk("c1", "h1", "one", 0, []float32{1, 0}))
	s.Upsert(ctx, chunk("c2", "h1", "two", 1, []float32{0, 1}))
	s.Upsert(ctx, chunk("c3", "h2", "three", 0, []float32{1, 1}))

	if err := s.DeleteDocument(ctx, "h1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if has, _ := s.HasDocument(ctx, "h1"); has {
		t.Error("document row should be gone")
	}
	if n, _ := s.CountChunks(ctx); n != 1 {
		t.Errorf("cascade left %d chunks, want 1", n)
	}

	// The deleted chunks' hashes are free again: re-ingestion must work.
	inserted, err := s.Upsert(ctx, chunk("c4", "h1", "one", 0, []float32{1, 0}))
	if err != nil || !inserted {
		t.Errorf("re-upsert after cascade = (%v, %v), want (true, nil)", inserted, err)
	}
}

func TestQueryOrdersByScore(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Upsert(ctx, chunk("far", "h1", "far", 0, []float32{-1, 0}))
	s.Upsert(ctx, chunk("near", "h1", "near", 1, []float32{1, 0}))
	s.Upsert(ctx, chunk("mid", "h1", "mid", 2, []float32{0, 1}))

	got, err := s.Query(ctx, []float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[0].ID != "near" || got[2].ID != "far" {
		t.Errorf("order = %s, %s, %s", got[0].ID, got[1].ID, got[2].ID)
	}
	if got[0].Score != 1 || got[2].Score != 0 {
		t.Errorf("scores must map into [0,1]: near=%v far=%v", got[0].Score, got[2].Score)
	}
}

func TestQueryTieBreaksByID(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Upsert(ctx, chunk("b", "h1", "second", 0, []float32{1, 0}))
	s.Upsert(ctx, chunk("a", "h1", "first", 1, []float32{1, 0}))

	got, err := s.Query(ctx, []float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("equal scores must order by ID: got %s, %s", got[0].ID, got[1].ID)
	}
}

func TestQueryAppliesFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	en := chunk("c1", "h1", "english", 0, []float32{1, 0})
	en.Metadata = strata.Metadata{"lang": "en", "year": 2024}
	de := chunk("c2", "h1", "german", 1, []float32{1, 0})
	de.Metadata = strata.Metadata{"lang": "de", "year": 2020}
	s.Upsert(ctx, en)
	s.Upsert(ctx, de)

	got, err := s.Query(ctx, []float32{1, 0}, 10, []strata.Filter{
		strata.Eq("lang", "en"),
		{Key: "year", Op: strata.OpGte, Value: 2023},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c1" {
		t.Errorf("filters not applied: %+v", got)
	}

	// No matches is an empty result, not an error.
	got, err = s.Query(ctx, []float32{1, 0}, 10, []strata.Filter{strata.Eq("lang", "fr")})
	if err != nil || len(got) != 0 {
		t.Errorf("empty filter result = (%v, %v), want ([], nil)", got, err)
	}
}

func TestQueryRespectsTopK(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i, id := range []string{"c1", "c2", "c3", "c4"} {
		s.Upsert(ctx, chunk(id, "h1", id, i, []float32{1, float32(i)}))
	}
	got, err := s.Query(ctx, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("topK not enforced: got %d results", len(got))
	}
}

func TestChunksByDocumentOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()
	// Insert out of order; retrieval must come back by chunk index.
	s.Upsert(ctx, chunk("c3", "h1", "third", 2, []float32{1}))
	s.Upsert(ctx, chunk("c1", "h1", "first", 0, []float32{1}))
	s.Upsert(ctx, chunk("c2", "h1", "second", 1, []float32{1}))
	s.Upsert(ctx, chunk("x", "other", "unrelated", 0, []float32{1}))

	got, err := s.ChunksByDocument(ctx, "h1")
	if err != nil {
		t.Fatalf("ChunksByDocument: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	for i, want := range []string{"first", "second", "third"} {
		if got[i].Text != want {
			t.Errorf("position %d = %q, want %q", i, got[i].Text, want)
		}
	}
}

func TestDocumentsByDataset(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.PutDocument(ctx, strata.Document{Hash: "h2", Dataset: "a"})
	s.PutDocument(ctx, strata.Document{Hash: "h1", Dataset: "a"})
	s.PutDocument(ctx, strata.Document{Hash: "h3", Dataset: "b"})

	got, err := s.DocumentsByDataset(ctx, "a")
	if err != nil {
		t.Fatalf("DocumentsByDataset: %v", err)
	}
	if len(got) != 2 || got[0] != "h1" || got[1] != "h2" {
		t.Errorf("expected sorted hashes of dataset a, got %v", got)
	}
}

func TestDeleteByIDs(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Upsert(ctx, chunk("c1", "h1", "one", 0, []float32{1}))
	s.Upsert(ctx, chunk("c2", "h1", "two", 1, []float32{1}))

	if err := s.Delete(ctx, []string{"c1", "missing"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := s.CountChunks(ctx); n != 1 {
		t.Errorf("chunk count = %d, want 1", n)
	}
}
