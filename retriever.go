package strata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Retriever searches a database and returns ranked results. Strategies are
// stateless per call; the same instance may serve concurrent queries.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts QueryOptions) ([]RetrievalResult, error)
}

// PairScorer rescores (query, text) pairs with a more expensive, more
// accurate relevance model. Used by the reranked strategy after an
// oversized semantic candidate fetch.
type PairScorer interface {
	// Score returns one relevance score in [0, 1] per text.
	Score(ctx context.Context, query string, texts []string) ([]float32, error)
}

// --- Semantic ---

// SemanticRetriever embeds the query and returns the nearest stored
// vectors by the store's distance metric.
type SemanticRetriever struct {
	store    VectorStore
	embedder Embedder
}

var _ Retriever = (*SemanticRetriever)(nil)

// NewSemanticRetriever creates the dense-similarity retrieval strategy.
func NewSemanticRetriever(store VectorStore, embedder Embedder) *SemanticRetriever {
	return &SemanticRetriever{store: store, embedder: embedder}
}

func (r *SemanticRetriever) Retrieve(ctx context.Context, query string, opts QueryOptions) ([]RetrievalResult, error) {
	scored, err := denseSearch(ctx, r.store, r.embedder, query, topKOf(opts), opts.Filters)
	if err != nil {
		return nil, err
	}
	return finishResults(toResults(scored), opts), nil
}

// --- Filtered ---

// FilteredRetriever is semantic search constrained to a fixed metadata
// predicate, composed with any per-call filters. Zero matching chunks is a
// valid empty result, not an error.
type FilteredRetriever struct {
	store    VectorStore
	embedder Embedder
	filters  []Filter
}

var _ Retriever = (*FilteredRetriever)(nil)

// NewFilteredRetriever creates a retriever whose every query carries the
// given metadata predicates.
func NewFilteredRetriever(store VectorStore, embedder Embedder, filters []Filter) *FilteredRetriever {
	return &FilteredRetriever{store: store, embedder: embedder, filters: filters}
}

func (r *FilteredRetriever) Retrieve(ctx context.Context, query string, opts QueryOptions) ([]RetrievalResult, error) {
	filters := append(append([]Filter{}, r.filters...), opts.Filters...)
	scored, err := denseSearch(ctx, r.store, r.embedder, query, topKOf(opts), filters)
	if err != nil {
		return nil, err
	}
	return finishResults(toResults(scored), opts), nil
}

// --- Hybrid ---

// HybridOption configures a HybridRetriever.
type HybridOption func(*hybridConfig)

type hybridConfig struct {
	denseWeight  float32
	sparseWeight float32
	overfetch    int
}

// WithDenseWeight sets the weight of the dense similarity score.
// Weights need not sum to 1. Default 0.7.
func WithDenseWeight(w float32) HybridOption {
	return func(c *hybridConfig) { c.denseWeight = w }
}

// WithSparseWeight sets the weight of the sparse lexical score. Default 0.3.
func WithSparseWeight(w float32) HybridOption {
	return func(c *hybridConfig) { c.sparseWeight = w }
}

// WithHybridOverfetch sets how many times topK candidates each leg
// fetches before fusion. Default 3.
func WithHybridOverfetch(n int) HybridOption {
	return func(c *hybridConfig) { c.overfetch = n }
}

// HybridRetriever fuses dense similarity with a sparse lexical score.
// Both score sets are min-max normalized to [0, 1] before the weighted
// sum; candidates with equal combined scores are ordered by dense score,
// then chunk ID, so ranking is deterministic.
type HybridRetriever struct {
	store    VectorStore
	embedder Embedder
	cfg      hybridConfig
}

var _ Retriever = (*HybridRetriever)(nil)

// NewHybridRetriever creates the dense+sparse fusion strategy. If the
// store implements KeywordSearcher its full-text index supplies the
// sparse leg; otherwise term overlap is computed in-process over the
// dense candidates.
func NewHybridRetriever(store VectorStore, embedder Embedder, opts ...HybridOption) *HybridRetriever {
	cfg := hybridConfig{denseWeight: 0.7, sparseWeight: 0.3, overfetch: 3}
	for _, o := range opts {
		o(&cfg)
	}
	return &HybridRetriever{store: store, embedder: embedder, cfg: cfg}
}

func (r *HybridRetriever) Retrieve(ctx context.Context, query string, opts QueryOptions) ([]RetrievalResult, error) {
	topK := topKOf(opts)
	fetchK := max(topK*r.cfg.overfetch, topK)

	dense, err := denseSearch(ctx, r.store, r.embedder, query, fetchK, opts.Filters)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(dense))
	for _, sc := range dense {
		seen[sc.ID] = true
	}

	sparse := make(map[string]float32)
	var kwOnly []ScoredChunk
	if ks, ok := r.store.(KeywordSearcher); ok {
		if kw, err := ks.SearchKeyword(ctx, query, fetchK); err == nil {
			for _, sc := range kw {
				if !MatchesAll(sc.Metadata, opts.Filters) {
					continue
				}
				sparse[sc.ID] = sc.Score
				if !seen[sc.ID] {
					kwOnly = append(kwOnly, sc)
				}
			}
		}
	}
	if len(sparse) == 0 {
		// In-process term overlap over the dense candidates.
		qTokens := foldTokens(query)
		for _, sc := range dense {
			sparse[sc.ID] = termOverlap(qTokens, foldTokens(sc.Text))
		}
	}

	denseNorm := normalizeScores(dense)
	sparseNorm := normalizeMap(sparse)

	type fused struct {
		chunk    Chunk
		dense    float32
		combined float32
	}
	merged := make(map[string]*fused, len(dense)+len(kwOnly))
	for _, sc := range dense {
		merged[sc.ID] = &fused{
			chunk:    sc.Chunk,
			dense:    denseNorm[sc.ID],
			combined: r.cfg.denseWeight*denseNorm[sc.ID] + r.cfg.sparseWeight*sparseNorm[sc.ID],
		}
	}
	// A chunk surfaced only by the keyword index still competes; its
	// dense leg contributes nothing.
	for _, sc := range kwOnly {
		merged[sc.ID] = &fused{
			chunk:    sc.Chunk,
			combined: r.cfg.sparseWeight * sparseNorm[sc.ID],
		}
	}

	ranked := make([]*fused, 0, len(merged))
	for _, f := range merged {
		ranked = append(ranked, f)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].combined != ranked[j].combined {
			return ranked[i].combined > ranked[j].combined
		}
		if ranked[i].dense != ranked[j].dense {
			return ranked[i].dense > ranked[j].dense
		}
		return ranked[i].chunk.ID < ranked[j].chunk.ID
	})

	results := make([]RetrievalResult, 0, len(ranked))
	for _, f := range ranked {
		results = append(results, RetrievalResult{
			Text:         f.chunk.Text,
			Score:        f.combined,
			ChunkID:      f.chunk.ID,
			DocumentHash: f.chunk.DocumentHash,
			Metadata:     f.chunk.Metadata,
		})
	}
	return finishResults(results, opts), nil
}

// --- Reranked ---

// RerankOption configures a RerankedRetriever.
type RerankOption func(*rerankConfig)

type rerankConfig struct {
	overfetch int
}

// WithRerankOverfetch sets the candidate multiplier fetched before
// rescoring. Default 4 (reranking 4×topK candidates).
func WithRerankOverfetch(n int) RerankOption {
	return func(c *rerankConfig) { c.overfetch = n }
}

// RerankedRetriever retrieves an oversized semantic candidate set, then
// rescores it with a pairwise scorer and returns topK by rescored order.
// Strictly more expensive than the other strategies; the resolver never
// selects it implicitly.
type RerankedRetriever struct {
	store    VectorStore
	embedder Embedder
	scorer   PairScorer
	cfg      rerankConfig
}

var _ Retriever = (*RerankedRetriever)(nil)

// NewRerankedRetriever creates the two-pass rescoring strategy.
func NewRerankedRetriever(store VectorStore, embedder Embedder, scorer PairScorer, opts ...RerankOption) *RerankedRetriever {
	cfg := rerankConfig{overfetch: 4}
	for _, o := range opts {
		o(&cfg)
	}
	return &RerankedRetriever{store: store, embedder: embedder, scorer: scorer, cfg: cfg}
}

func (r *RerankedRetriever) Retrieve(ctx context.Context, query string, opts QueryOptions) ([]RetrievalResult, error) {
	topK := topKOf(opts)
	fetchK := max(topK*r.cfg.overfetch, topK)

	scored, err := denseSearch(ctx, r.store, r.embedder, query, fetchK, opts.Filters)
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return nil, nil
	}

	texts := make([]string, len(scored))
	for i, sc := range scored {
		texts[i] = sc.Text
	}
	rescored, err := r.scorer.Score(ctx, query, texts)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	results := toResults(scored)
	for i := range results {
		if i < len(rescored) {
			results[i].Score = rescored[i]
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return finishResults(results, opts), nil
}

// --- LexicalPairScorer ---

// LexicalPairScorer scores query/text pairs by case-folded term overlap.
// It makes no external calls; useful as a baseline reranker and in tests.
type LexicalPairScorer struct{}

var _ PairScorer = (*LexicalPairScorer)(nil)

func (LexicalPairScorer) Score(_ context.Context, query string, texts []string) ([]float32, error) {
	qTokens := foldTokens(query)
	scores := make([]float32, len(texts))
	for i, t := range texts {
		scores[i] = termOverlap(qTokens, foldTokens(t))
	}
	return scores, nil
}

// --- shared helpers ---

func topKOf(opts QueryOptions) int {
	if opts.TopK > 0 {
		return opts.TopK
	}
	return DefaultTopK
}

func denseSearch(ctx context.Context, store VectorStore, embedder Embedder, query string, topK int, filters []Filter) ([]ScoredChunk, error) {
	if store == nil || embedder == nil {
		return nil, ErrNoBackend
	}
	embs, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(embs) == 0 {
		return nil, fmt.Errorf("embed query: no embedding returned")
	}
	scored, err := store.Query(ctx, embs[0], topK, filters)
	if err != nil {
		return nil, &StoreError{Op: "query", Err: err}
	}
	return scored, nil
}

func toResults(scored []ScoredChunk) []RetrievalResult {
	results := make([]RetrievalResult, len(scored))
	for i, sc := range scored {
		results[i] = RetrievalResult{
			Text:         sc.Text,
			Score:        sc.Score,
			ChunkID:      sc.ID,
			DocumentHash: sc.DocumentHash,
			Metadata:     sc.Metadata,
		}
	}
	return results
}

func finishResults(results []RetrievalResult, opts QueryOptions) []RetrievalResult {
	if opts.ScoreThreshold > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= opts.ScoreThreshold {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	if topK := topKOf(opts); len(results) > topK {
		results = results[:topK]
	}
	return results
}

// normalizeScores min-max normalizes scored chunks to [0, 1] keyed by ID.
// A single candidate (or all-equal scores) normalizes to 1.
func normalizeScores(scored []ScoredChunk) map[string]float32 {
	m := make(map[string]float32, len(scored))
	for _, sc := range scored {
		m[sc.ID] = sc.Score
	}
	return normalizeMap(m)
}

func normalizeMap(m map[string]float32) map[string]float32 {
	if len(m) == 0 {
		return m
	}
	var lo, hi float32
	first := true
	for _, v := range m {
		if first {
			lo, hi = v, v
			first = false
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	out := make(map[string]float32, len(m))
	if hi == lo {
		for k := range m {
			out[k] = 1
		}
		return out
	}
	for k, v := range m {
		out[k] = (v - lo) / (hi - lo)
	}
	return out
}

var caseFolder = cases.Fold()

// foldTokens splits s into case-folded word tokens.
func foldTokens(s string) map[string]bool {
	folded := caseFolder.String(s)
	tokens := make(map[string]bool)
	for _, t := range strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		tokens[t] = true
	}
	return tokens
}

// termOverlap returns |q ∩ t| / |q|, the fraction of query terms present
// in the text. Empty queries score 0.
func termOverlap(q, t map[string]bool) float32 {
	if len(q) == 0 {
		return 0
	}
	var hit int
	for tok := range q {
		if t[tok] {
			hit++
		}
	}
	return float32(hit) / float32(len(q))
}
