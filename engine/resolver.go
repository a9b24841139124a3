package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	strata "github.com/hexleaf/strata"
	"github.com/hexleaf/strata/enrich"
	"github.com/hexleaf/strata/observer"
	"github.com/hexleaf/strata/parse"
)

// Database is a resolved vector-store binding: the instantiated store,
// the embedder, and the named retrieval strategies, all wired and
// dimension-checked.
type Database struct {
	Name             string
	Store            strata.VectorStore
	Embedder         strata.Embedder
	Retrievers       map[string]strata.Retriever
	DefaultRetrieval string
}

// Retriever returns the named retrieval strategy, falling back to the
// database default when name is empty.
func (db *Database) Retriever(name string) (strata.Retriever, error) {
	if name == "" {
		name = db.DefaultRetrieval
	}
	if name == "" {
		return nil, &strata.ConfigError{Field: "retrieval", Reason: "database " + db.Name + " has no default retrieval strategy; name one explicitly"}
	}
	r, ok := db.Retrievers[name]
	if !ok {
		return nil, &strata.ConfigError{Field: "retrieval", Reason: fmt.Sprintf("database %s has no retrieval strategy %q", db.Name, name)}
	}
	return r, nil
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the structured logger passed down to resolved
// components.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// WithPairScorer sets the pairwise scorer used by reranked retrieval
// strategies. Default is the in-process lexical scorer.
func WithPairScorer(s strata.PairScorer) ResolverOption {
	return func(r *Resolver) { r.scorer = s }
}

// WithInstruments wires OTEL instrumentation into every resolved
// component: the embedder, the store, and each retriever are wrapped so
// ingestion and queries emit traces, metrics, and logs.
func WithInstruments(inst *observer.Instruments) ResolverOption {
	return func(r *Resolver) { r.inst = inst }
}

// Resolver maps (strategy name, database name) pairs from configuration
// to fully wired pipelines, caching each combination after the first
// resolution. Resolution fails fast on unknown component types,
// impossible chunk sizing, or dimensionality mismatches, before any
// ingestion work starts.
type Resolver struct {
	cfg    Config
	logger *slog.Logger
	scorer strata.PairScorer
	inst   *observer.Instruments

	mu        sync.Mutex
	databases map[string]*Database
	pipelines map[string]*Pipeline
}

// NewResolver creates a resolver over the config. The config is validated
// eagerly so startup fails before any request does.
func NewResolver(cfg Config, opts ...ResolverOption) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Resolver{
		cfg:       cfg,
		logger:    strata.NopLogger,
		scorer:    strata.LexicalPairScorer{},
		databases: make(map[string]*Database),
		pipelines: make(map[string]*Pipeline),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Database resolves (or returns the cached) database binding by name,
// opening the store backend on first use.
func (r *Resolver) Database(ctx context.Context, name string) (*Database, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.databaseLocked(ctx, name)
}

func (r *Resolver) databaseLocked(ctx context.Context, name string) (*Database, error) {
	if db, ok := r.databases[name]; ok {
		return db, nil
	}
	dbc, ok := r.cfg.Database(name)
	if !ok {
		return nil, &strata.ConfigError{Field: "database", Reason: fmt.Sprintf("unknown database %q", name)}
	}

	embedder, err := r.buildEmbedder(dbc.Embedding)
	if err != nil {
		return nil, err
	}
	// The embedder's dimensionality and the configured store size must
	// agree; catching it here keeps malformed vectors out of the store.
	if embedder.Dimensions() != dbc.Embedding.Dimensions {
		return nil, &strata.ConfigError{
			Field:  "embedding.dimensions",
			Reason: fmt.Sprintf("backend %s produces %d-dimension vectors, database %s configured for %d", embedder.Name(), embedder.Dimensions(), name, dbc.Embedding.Dimensions),
		}
	}

	store, err := storeFactories[dbc.Store.Type](ctx, dbc.Store, dbc.Embedding.Dimensions, r.logger)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, &strata.StoreError{Op: "init", Err: err}
	}
	if r.inst != nil {
		// WrapStore preserves the KeywordSearcher capability, so hybrid
		// retrieval still finds the sparse leg through the wrapper.
		store = observer.WrapStore(store, r.inst)
	}

	db := &Database{
		Name:             name,
		Store:            store,
		Embedder:         embedder,
		Retrievers:       make(map[string]strata.Retriever, len(dbc.Retrieval)),
		DefaultRetrieval: dbc.DefaultRetrieval,
	}
	for rname, rc := range dbc.Retrieval {
		ret, err := r.buildRetriever(rc, store, embedder)
		if err != nil {
			store.Close()
			return nil, err
		}
		if r.inst != nil {
			ret = observer.WrapRetriever(ret, rname, r.inst)
		}
		db.Retrievers[rname] = ret
	}

	r.databases[name] = db
	r.logger.Info("database resolved",
		"database", name,
		"store", dbc.Store.Type,
		"embedder", embedder.Name(),
		"dimensions", dbc.Embedding.Dimensions,
		"retrieval_strategies", len(db.Retrievers))
	return db, nil
}

func (r *Resolver) buildEmbedder(cfg EmbeddingConfig) (strata.Embedder, error) {
	embedder, err := embedderFactories[cfg.Type](cfg)
	if err != nil {
		return nil, err
	}
	var retryOpts []strata.RetryOption
	if cfg.RetryAttempts > 0 {
		retryOpts = append(retryOpts, strata.RetryMaxAttempts(cfg.RetryAttempts))
	}
	retryOpts = append(retryOpts, strata.RetryLogger(r.logger))
	wrapped := strata.WithEmbedderRetry(embedder, retryOpts...)
	if r.inst != nil {
		return observer.WrapEmbedder(wrapped, r.inst), nil
	}
	return wrapped, nil
}

func (r *Resolver) buildRetriever(rc RetrievalConfig, store strata.VectorStore, embedder strata.Embedder) (strata.Retriever, error) {
	switch rc.Type {
	case "semantic":
		return strata.NewSemanticRetriever(store, embedder), nil
	case "filtered":
		filters := make([]strata.Filter, 0, len(rc.Filters))
		for _, fc := range rc.Filters {
			f, err := filterFromConfig(fc)
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)
		}
		return strata.NewFilteredRetriever(store, embedder, filters), nil
	case "hybrid":
		var opts []strata.HybridOption
		if rc.DenseWeight > 0 {
			opts = append(opts, strata.WithDenseWeight(float32(rc.DenseWeight)))
		}
		if rc.SparseWeight > 0 {
			opts = append(opts, strata.WithSparseWeight(float32(rc.SparseWeight)))
		}
		if rc.Overfetch > 0 {
			opts = append(opts, strata.WithHybridOverfetch(rc.Overfetch))
		}
		return strata.NewHybridRetriever(store, embedder, opts...), nil
	case "reranked":
		var opts []strata.RerankOption
		if rc.Overfetch > 0 {
			opts = append(opts, strata.WithRerankOverfetch(rc.Overfetch))
		}
		return strata.NewRerankedRetriever(store, embedder, r.scorer, opts...), nil
	default:
		return nil, &strata.ConfigError{Field: "retrieval.type", Reason: fmt.Sprintf("unknown retrieval strategy %q", rc.Type)}
	}
}

// Resolve returns the cached pipeline for (strategy × database), wiring
// it on first use. The composite key caches the full combination: the
// same strategy resolved against two databases yields two pipelines.
func (r *Resolver) Resolve(ctx context.Context, strategyName, databaseName string) (*Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strategyName + "\x00" + databaseName
	if p, ok := r.pipelines[key]; ok {
		return p, nil
	}

	sc, ok := r.cfg.Strategy(strategyName)
	if !ok {
		return nil, &strata.ConfigError{Field: "strategy", Reason: fmt.Sprintf("unknown processing strategy %q", strategyName)}
	}
	db, err := r.databaseLocked(ctx, databaseName)
	if err != nil {
		return nil, err
	}

	p, err := r.buildPipeline(sc, db)
	if err != nil {
		return nil, err
	}
	r.pipelines[key] = p
	r.logger.Info("pipeline resolved", "strategy", strategyName, "database", databaseName)
	return p, nil
}

func (r *Resolver) buildPipeline(sc StrategyConfig, db *Database) (*Pipeline, error) {
	router := parse.NewRouter()
	for _, pc := range sc.Parsers {
		cfg := pc.chunkConfig(db.Embedder.Embed)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		router.Register(pc.Type, parserFactories[pc.Type].New(cfg), formatsOf(pc)...)
		// A declared fallback registers under the same extensions, after
		// the primary, forming the per-format chain.
		for _, fb := range pc.Fallbacks {
			p, ok := router.Parser(fb)
			if !ok {
				p = parserFactories[fb].New(cfg)
			}
			router.Register(fb, p, formatsOf(pc)...)
		}
	}
	for _, rt := range sc.Routes {
		router.AddRoute(rt.Pattern, rt.Parsers...)
	}

	extractors := make([]enrich.Extractor, 0, len(sc.Extractors))
	for _, ec := range sc.Extractors {
		extractors = append(extractors, extractorFactories[ec.Type](ec))
	}
	pipeOpts := []enrich.PipelineOption{enrich.WithLogger(r.logger)}
	if sc.MergePolicy != "" {
		pipeOpts = append(pipeOpts, enrich.WithMergePolicy(enrich.MergePolicy(sc.MergePolicy)))
	}

	return &Pipeline{
		strategy: sc.Name,
		router:   router,
		enrich:   enrich.NewPipeline(extractors, pipeOpts...),
		db:       db,
		maxBatch: r.maxBatchFor(db.Name),
		logger:   r.logger,
	}, nil
}

func (r *Resolver) maxBatchFor(database string) int {
	if dbc, ok := r.cfg.Database(database); ok {
		return dbc.Embedding.MaxBatch
	}
	return 0
}

// Close shuts down every opened store. Safe to call once at process exit.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for name, db := range r.databases {
		if err := db.Store.Close(); err != nil && first == nil {
			first = fmt.Errorf("close database %s: %w", name, err)
		}
	}
	r.databases = make(map[string]*Database)
	r.pipelines = make(map[string]*Pipeline)
	return first
}
