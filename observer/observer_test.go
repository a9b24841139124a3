package observer

import (
	"context"
	"testing"

	strata "github.com/hexleaf/strata"
)

// The global OTEL providers default to no-ops, so these tests exercise
// the wrappers without a collector.

func testInstruments(t *testing.T) *Instruments {
	t.Helper()
	inst, err := NewInstruments()
	if err != nil {
		t.Fatalf("NewInstruments: %v", err)
	}
	return inst
}

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) Name() string    { return "fake" }
func (f *fakeEmbedder) Dimensions() int { return 3 }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeStore struct {
	strata.VectorStore
	upserts int
	queries int
}

func (f *fakeStore) Upsert(context.Context, strata.Chunk) (bool, error) {
	f.upserts++
	return true, nil
}

func (f *fakeStore) Query(context.Context, []float32, int, []strata.Filter) ([]strata.ScoredChunk, error) {
	f.queries++
	return []strata.ScoredChunk{{Chunk: strata.Chunk{ID: "a", Text: "hit"}, Score: 0.9}}, nil
}

type fakeKeywordStore struct{ fakeStore }

func (f *fakeKeywordStore) SearchKeyword(context.Context, string, int) ([]strata.ScoredChunk, error) {
	return []strata.ScoredChunk{{Chunk: strata.Chunk{ID: "kw"}, Score: 1}}, nil
}

func TestWrapEmbedderDelegates(t *testing.T) {
	inner := &fakeEmbedder{}
	e := WrapEmbedder(inner, testInstruments(t))

	if e.Name() != "fake" || e.Dimensions() != 3 {
		t.Errorf("identity not delegated: %s/%d", e.Name(), e.Dimensions())
	}
	vectors, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 2 || inner.calls != 1 {
		t.Errorf("inner embedder saw %d calls, returned %d vectors", inner.calls, len(vectors))
	}
}

func TestWrapStoreDelegates(t *testing.T) {
	inner := &fakeStore{}
	s := WrapStore(inner, testInstruments(t))

	if _, err := s.Upsert(context.Background(), strata.Chunk{ID: "c"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	results, err := s.Query(context.Background(), []float32{1, 0, 0}, 5, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if inner.upserts != 1 || inner.queries != 1 || len(results) != 1 {
		t.Errorf("delegation broken: upserts=%d queries=%d results=%d",
			inner.upserts, inner.queries, len(results))
	}
	if _, ok := s.(strata.KeywordSearcher); ok {
		t.Error("wrapper must not claim keyword search the inner store lacks")
	}
}

func TestWrapStorePreservesKeywordSearch(t *testing.T) {
	s := WrapStore(&fakeKeywordStore{}, testInstruments(t))
	ks, ok := s.(strata.KeywordSearcher)
	if !ok {
		t.Fatal("keyword capability lost through wrapping")
	}
	results, err := ks.SearchKeyword(context.Background(), "q", 5)
	if err != nil || len(results) != 1 || results[0].ID != "kw" {
		t.Errorf("SearchKeyword = (%v, %v)", results, err)
	}
}

func TestWrapRetrieverDelegates(t *testing.T) {
	inner := strata.NewSemanticRetriever(&fakeStore{}, &fakeEmbedder{})
	r := WrapRetriever(inner, "semantic", testInstruments(t))

	results, err := r.Retrieve(context.Background(), "query", strata.QueryOptions{TopK: 1})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 1 || results[0].ChunkID != "a" {
		t.Errorf("results not delegated: %+v", results)
	}
}
