package strata

import (
	"context"
	"fmt"
)

// fakeEmbedder returns a fixed vector for every text.
type fakeEmbedder struct {
	dims   int
	vector []float32
	calls  int
	err    error
}

var _ Embedder = (*fakeEmbedder)(nil)

func (f *fakeEmbedder) Name() string    { return "fake" }
func (f *fakeEmbedder) Dimensions() int { return f.dims }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := f.vector
		if v == nil {
			v = make([]float32, f.dims)
		}
		out[i] = v
	}
	return out, nil
}

// fakeStore returns canned query results, applying filters and topK the
// way a real store would. It records the topK of the last query.
type fakeStore struct {
	results   []ScoredChunk
	lastTopK  int
	queryErr  error
	dims      int
	documents map[string]Document
}

var _ VectorStore = (*fakeStore)(nil)

func (f *fakeStore) Init(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }
func (f *fakeStore) Dimensions() int            { return f.dims }

func (f *fakeStore) PutDocument(_ context.Context, doc Document) (bool, error) {
	if f.documents == nil {
		f.documents = make(map[string]Document)
	}
	if _, ok := f.documents[doc.Hash]; ok {
		return false, nil
	}
	f.documents[doc.Hash] = doc
	return true, nil
}

func (f *fakeStore) HasDocument(_ context.Context, hash string) (bool, error) {
	_, ok := f.documents[hash]
	return ok, nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, hash string) error {
	delete(f.documents, hash)
	return nil
}

func (f *fakeStore) DocumentsByDataset(context.Context, string) ([]string, error) { return nil, nil }

func (f *fakeStore) Upsert(context.Context, Chunk) (bool, error) { return true, nil }
func (f *fakeStore) Delete(context.Context, []string) error      { return nil }

func (f *fakeStore) Query(_ context.Context, _ []float32, topK int, filters []Filter) ([]ScoredChunk, error) {
	f.lastTopK = topK
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []ScoredChunk
	for _, sc := range f.results {
		if MatchesAll(sc.Metadata, filters) {
			out = append(out, sc)
		}
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (f *fakeStore) ChunksByDocument(context.Context, string) ([]Chunk, error) { return nil, nil }
func (f *fakeStore) CountChunks(context.Context) (int, error)                  { return len(f.results), nil }

// fakeKeywordStore adds a canned sparse leg on top of fakeStore.
type fakeKeywordStore struct {
	fakeStore
	keyword []ScoredChunk
}

var _ KeywordSearcher = (*fakeKeywordStore)(nil)

func (f *fakeKeywordStore) SearchKeyword(_ context.Context, _ string, topK int) ([]ScoredChunk, error) {
	out := f.keyword
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func scoredChunk(id, text string, score float32) ScoredChunk {
	return ScoredChunk{
		Chunk: Chunk{ID: id, DocumentHash: "doc-" + id, Text: text, Hash: HashString(text)},
		Score: score,
	}
}

// reverseScorer scores texts in reverse input order, guaranteeing the
// rerank pass changes the ranking.
type reverseScorer struct{}

var _ PairScorer = (*reverseScorer)(nil)

func (reverseScorer) Score(_ context.Context, _ string, texts []string) ([]float32, error) {
	out := make([]float32, len(texts))
	for i := range texts {
		out[i] = float32(i+1) / float32(len(texts)+1)
	}
	return out, nil
}

type failingScorer struct{}

func (failingScorer) Score(context.Context, string, []string) ([]float32, error) {
	return nil, fmt.Errorf("scorer unavailable")
}
