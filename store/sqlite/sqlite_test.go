package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	strata "github.com/hexleaf/strata"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

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

func TestInitIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Init(context.Background()); err != nil {
		t.Errorf("second Init should be a no-op: %v", err)
	}
}

func TestPutDocumentDedupes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := strata.Document{Hash: "h1", Filename: "a.txt", Dataset: "ds", IngestedAt: 1}

	inserted, err := s.PutDocument(ctx, doc)
	if err != nil || !inserted {
		t.Fatalf("first put = (%v, %v), want (true, nil)", inserted, err)
	}
	inserted, err = s.PutDocument(ctx, doc)
	if err != nil || inserted {
		t.Fatalf("second put = (%v, %v), want (false, nil)", inserted, err)
	}
	if has, err := s.HasDocument(ctx, "h1"); err != nil || !has {
		t.Errorf("HasDocument = (%v, %v)", has, err)
	}
	if has, _ := s.HasDocument(ctx, "absent"); has {
		t.Error("HasDocument reported a missing hash")
	}
}

func TestUpsertQueryRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := chunk("c1", "h1", "the quick brown fox", 0, []float32{1, 0})
	c.Metadata = strata.Metadata{"lang": "en"}
	inserted, err := s.Upsert(ctx, c)
	if err != nil || !inserted {
		t.Fatalf("Upsert = (%v, %v)", inserted, err)
	}

	got, err := s.Query(ctx, []float32{1, 0}, 10, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	r := got[0]
	if r.ID != "c1" || r.Text != "the quick brown fox" || r.DocumentHash != "h1" {
		t.Errorf("chunk fields lost in roundtrip: %+v", r.Chunk)
	}
	if r.Metadata["lang"] != "en" {
		t.Errorf("metadata lost in roundtrip: %v", r.Metadata)
	}
	if r.Score != 1 {
		t.Errorf("identical vector should score 1, got %v", r.Score)
	}
}

func TestUpsertDedupesByContentHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, chunk("c1", "h1", "same text", 0, []float32{1})); err != nil {
		t.Fatal(err)
	}
	inserted, err := s.Upsert(ctx, chunk("c2", "h1", "same text", 1, []float32{1}))
	if err != nil || inserted {
		t.Fatalf("duplicate upsert = (%v, %v), want (false, nil)", inserted, err)
	}
	if n, _ := s.CountChunks(ctx); n != 1 {
		t.Errorf("chunk count = %d, want 1", n)
	}
}

func TestUpsertEnforcesDimensions(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "dims.db"), WithDimensions(3))
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := s.Upsert(ctx, chunk("c1", "h1", "t", 0, []float32{1, 2})); err == nil {
		t.Error("2-dim vector in 3-dim store must be rejected")
	}
}

func TestQueryAppliesFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	en := chunk("c1", "h1", "english text", 0, []float32{1, 0})
	en.Metadata = strata.Metadata{"lang": "en", "year": 2024}
	de := chunk("c2", "h1", "german text", 1, []float32{1, 0})
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
}

func TestSearchKeyword(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Upsert(ctx, chunk("c1", "h1", "postgres replication and failover", 0, []float32{1}))
	s.Upsert(ctx, chunk("c2", "h1", "cooking pasta at home", 1, []float32{1}))

	got, err := s.SearchKeyword(ctx, "replication failover", 10)
	if err != nil {
		t.Fatalf("SearchKeyword: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("expected only the matching chunk, got %+v", got)
	}
	if got[0].Score <= 0 {
		t.Errorf("rank should map to a positive score, got %v", got[0].Score)
	}
}

func TestSearchKeywordQuotesInput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Upsert(ctx, chunk("c1", "h1", "plain content", 0, []float32{1}))

	// FTS5 operators in user input must not be interpreted as syntax.
	if _, err := s.SearchKeyword(ctx, `"unbalanced AND NEAR(`, 10); err != nil {
		t.Errorf("hostile query string should not break the search: %v", err)
	}
}

func TestChunksByDocumentOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

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

func TestDeleteDocumentCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.PutDocument(ctx, strata.Document{Hash: "h1", Filename: "a.txt", IngestedAt: 1})
	s.Upsert(ctx, chunk("c1", "h1", "searchable text one", 0, []float32{1}))
	s.Upsert(ctx, chunk("c2", "h1", "searchable text two", 1, []float32{1}))

	if err := s.DeleteDocument(ctx, "h1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if has, _ := s.HasDocument(ctx, "h1"); has {
		t.Error("document row should be gone")
	}
	if n, _ := s.CountChunks(ctx); n != 0 {
		t.Errorf("cascade left %d chunks", n)
	}
	// FTS entries must go with the chunks.
	if got, err := s.SearchKeyword(ctx, "searchable", 10); err != nil || len(got) != 0 {
		t.Errorf("FTS rows survived the cascade: (%v, %v)", got, err)
	}
	// Deleted content can be re-ingested.
	inserted, err := s.Upsert(ctx, chunk("c3", "h1", "searchable text one", 0, []float32{1}))
	if err != nil || !inserted {
		t.Errorf("re-upsert after delete = (%v, %v), want (true, nil)", inserted, err)
	}
}

func TestDeleteByIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Upsert(ctx, chunk("c1", "h1", "keep me", 0, []float32{1}))
	s.Upsert(ctx, chunk("c2", "h1", "drop me", 1, []float32{1}))

	if err := s.Delete(ctx, []string{"c2"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := s.CountChunks(ctx); n != 1 {
		t.Errorf("chunk count = %d, want 1", n)
	}
	if err := s.Delete(ctx, nil); err != nil {
		t.Errorf("empty delete should be a no-op: %v", err)
	}
}

func TestDocumentsByDataset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.PutDocument(ctx, strata.Document{Hash: "h2", Filename: "b", Dataset: "a", IngestedAt: 1})
	s.PutDocument(ctx, strata.Document{Hash: "h1", Filename: "a", Dataset: "a", IngestedAt: 1})
	s.PutDocument(ctx, strata.Document{Hash: "h3", Filename: "c", Dataset: "b", IngestedAt: 1})

	got, err := s.DocumentsByDataset(ctx, "a")
	if err != nil {
		t.Fatalf("DocumentsByDataset: %v", err)
	}
	if len(got) != 2 || got[0] != "h1" || got[1] != "h2" {
		t.Errorf("expected sorted hashes of dataset a, got %v", got)
	}
}

func TestFTSQueryQuoting(t *testing.T) {
	if got := ftsQuery(`hello world`); got != `"hello" OR "world"` {
		t.Errorf("ftsQuery = %q", got)
	}
	if got := ftsQuery(`a"b`); got != `"ab"` {
		t.Errorf("embedded quotes must be stripped, got %q", got)
	}
}
