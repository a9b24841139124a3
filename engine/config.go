// Package engine turns declarative configuration into wired ingestion and
// retrieval pipelines: databases (store + embedder + retrieval strategies)
// crossed with processing strategies (routing + parsers + extractors),
// resolved and cached per combination, plus the asynchronous ingestion
// task orchestrator and the dataset/query APIs.
package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	strata "github.com/hexleaf/strata"
	"github.com/hexleaf/strata/parse"
)

// Config is the declarative schema the engine consumes: named databases
// and named data-processing strategies, composed at resolution time.
type Config struct {
	Databases  []DatabaseConfig `toml:"databases"`
	Strategies []StrategyConfig `toml:"data_processing_strategies"`
}

// DatabaseConfig declares a named vector-store binding.
type DatabaseConfig struct {
	Name             string                     `toml:"name"`
	Store            StoreConfig                `toml:"store"`
	Embedding        EmbeddingConfig            `toml:"embedding"`
	Retrieval        map[string]RetrievalConfig `toml:"retrieval"`
	DefaultRetrieval string                     `toml:"default_retrieval"`
}

// StoreConfig selects and parameterizes a store backend.
type StoreConfig struct {
	// Type is a registered store backend: "memory", "sqlite", "postgres".
	Type string `toml:"type"`
	// DSN is the backend address: a file path for sqlite, a connection
	// string for postgres. Unused by memory.
	DSN string `toml:"dsn"`
}

// EmbeddingConfig selects and parameterizes an embedding backend.
type EmbeddingConfig struct {
	// Type is a registered embedding backend: "gemini", "openai", "static".
	Type       string `toml:"type"`
	Model      string `toml:"model"`
	APIKey     string `toml:"api_key"`
	BaseURL    string `toml:"base_url"`
	Dimensions int    `toml:"dimensions"`
	// MaxBatch caps how many texts go to the backend per Embed call.
	// Zero means no cap.
	MaxBatch int `toml:"max_batch"`
	// RetryAttempts bounds transient-error retries. Zero means default (3).
	RetryAttempts int `toml:"retry_attempts"`
}

// RetrievalConfig declares one named retrieval strategy of a database.
type RetrievalConfig struct {
	// Type is a strategy: "semantic", "hybrid", "filtered", "reranked".
	Type string `toml:"type"`
	// DenseWeight and SparseWeight tune hybrid fusion. They need not sum
	// to 1; zero values keep the defaults (0.7 / 0.3).
	DenseWeight  float64 `toml:"dense_weight"`
	SparseWeight float64 `toml:"sparse_weight"`
	// Overfetch multiplies top_k for the candidate fetch of hybrid and
	// reranked strategies. Zero keeps the per-strategy default.
	Overfetch int `toml:"overfetch"`
	// Filters are the fixed metadata predicates of a filtered strategy.
	Filters []FilterConfig `toml:"filters"`
}

// FilterConfig is one metadata predicate in configuration form.
type FilterConfig struct {
	Key string `toml:"key"`
	// Op is one of eq, neq, lt, lte, gt, gte. Empty means eq.
	Op    string `toml:"op"`
	Value any    `toml:"value"`
}

// StrategyConfig declares a named data-processing strategy: directory
// routing rules, the parser set with per-format chunking config, and the
// ordered extractor list.
type StrategyConfig struct {
	Name        string            `toml:"name"`
	Routes      []RouteConfig     `toml:"routes"`
	Parsers     []ParserConfig    `toml:"parsers"`
	Extractors  []ExtractorConfig `toml:"extractors"`
	MergePolicy string            `toml:"merge_policy"`
}

// RouteConfig maps a path glob to an ordered parser chain.
type RouteConfig struct {
	Pattern string   `toml:"pattern"`
	Parsers []string `toml:"parsers"`
}

// ParserConfig declares one parser instance within a strategy.
type ParserConfig struct {
	// Type is a registered parser backend: "text", "markdown",
	// "readability", "html-strip", "pdf", "csv", "json", "docx".
	Type string `toml:"type"`
	// Formats lists the file extensions this parser handles. Empty uses
	// the backend's default extensions.
	Formats []string `toml:"formats"`
	// Chunking selects the split strategy: fixed, paragraph, sentence,
	// heading, semantic. Empty means paragraph.
	Chunking     string `toml:"chunking"`
	ChunkSize    int    `toml:"chunk_size"`
	ChunkOverlap int    `toml:"chunk_overlap"`
	// BreakpointPercentile tunes semantic chunking. Zero means default.
	BreakpointPercentile int `toml:"breakpoint_percentile"`
	// Fallbacks names parser types tried, in order, when this parser
	// errors or yields nothing for a non-empty file.
	Fallbacks []string `toml:"fallbacks"`
}

// ExtractorConfig declares one metadata extractor within a strategy.
type ExtractorConfig struct {
	// Type is a registered extractor: "statistics", "entities",
	// "keywords", "headings".
	Type string `toml:"type"`
	// TopN bounds keyword extraction. Zero means default.
	TopN int `toml:"top_n"`
}

// Load reads a TOML config file.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Database returns the named database config.
func (c Config) Database(name string) (DatabaseConfig, bool) {
	for _, db := range c.Databases {
		if db.Name == name {
			return db, true
		}
	}
	return DatabaseConfig{}, false
}

// Strategy returns the named processing strategy config.
func (c Config) Strategy(name string) (StrategyConfig, bool) {
	for _, s := range c.Strategies {
		if s.Name == name {
			return s, true
		}
	}
	return StrategyConfig{}, false
}

// Validate checks every database and strategy without instantiating
// backends. The resolver revalidates on resolution; this exists so
// operators can fail fast at startup.
func (c Config) Validate() error {
	seen := make(map[string]bool)
	for _, db := range c.Databases {
		if db.Name == "" {
			return &strata.ConfigError{Field: "databases.name", Reason: "must not be empty"}
		}
		if seen[db.Name] {
			return &strata.ConfigError{Field: "databases.name", Reason: "duplicate database " + db.Name}
		}
		seen[db.Name] = true
		if err := db.validate(); err != nil {
			return err
		}
	}
	seen = make(map[string]bool)
	for _, s := range c.Strategies {
		if s.Name == "" {
			return &strata.ConfigError{Field: "data_processing_strategies.name", Reason: "must not be empty"}
		}
		if seen[s.Name] {
			return &strata.ConfigError{Field: "data_processing_strategies.name", Reason: "duplicate strategy " + s.Name}
		}
		seen[s.Name] = true
		if err := s.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (db DatabaseConfig) validate() error {
	if _, ok := storeFactories[db.Store.Type]; !ok {
		return &strata.ConfigError{Field: "store.type", Reason: fmt.Sprintf("unknown store backend %q", db.Store.Type)}
	}
	if _, ok := embedderFactories[db.Embedding.Type]; !ok {
		return &strata.ConfigError{Field: "embedding.type", Reason: fmt.Sprintf("unknown embedding backend %q", db.Embedding.Type)}
	}
	if db.Embedding.Dimensions <= 0 {
		return &strata.ConfigError{Field: "embedding.dimensions", Reason: "must be positive"}
	}
	if len(db.Retrieval) == 0 {
		return &strata.ConfigError{Field: "retrieval", Reason: "database " + db.Name + " declares no retrieval strategies"}
	}
	for name, rc := range db.Retrieval {
		switch rc.Type {
		case "semantic", "hybrid", "filtered", "reranked":
		default:
			return &strata.ConfigError{Field: "retrieval.type", Reason: fmt.Sprintf("unknown retrieval strategy %q (%s)", rc.Type, name)}
		}
		for _, f := range rc.Filters {
			if _, err := filterFromConfig(f); err != nil {
				return err
			}
		}
	}
	if db.DefaultRetrieval != "" {
		rc, ok := db.Retrieval[db.DefaultRetrieval]
		if !ok {
			return &strata.ConfigError{Field: "default_retrieval", Reason: fmt.Sprintf("database %s has no retrieval strategy %q", db.Name, db.DefaultRetrieval)}
		}
		// Reranking is strictly more expensive and must be an explicit
		// per-query choice, never the database default.
		if rc.Type == "reranked" {
			return &strata.ConfigError{Field: "default_retrieval", Reason: "reranked retrieval must be selected explicitly, not as default"}
		}
	}
	return nil
}

func (s StrategyConfig) validate() error {
	if len(s.Parsers) == 0 {
		return &strata.ConfigError{Field: "parsers", Reason: "strategy " + s.Name + " declares no parsers"}
	}
	declared := make(map[string]bool, len(s.Parsers))
	for _, pc := range s.Parsers {
		if _, ok := parserFactories[pc.Type]; !ok {
			return &strata.ConfigError{Field: "parsers.type", Reason: fmt.Sprintf("unknown parser backend %q", pc.Type)}
		}
		declared[pc.Type] = true
		// Semantic chunking gets its embedder from the database at
		// resolution time; a stub satisfies sizing validation here.
		var embed parse.EmbedFunc
		if pc.Chunking == string(parse.StrategySemantic) {
			embed = func(context.Context, []string) ([][]float32, error) { return nil, nil }
		}
		if err := pc.chunkConfig(embed).Validate(); err != nil {
			return err
		}
	}
	for _, pc := range s.Parsers {
		for _, fb := range pc.Fallbacks {
			if _, ok := parserFactories[fb]; !ok {
				return &strata.ConfigError{Field: "parsers.fallbacks", Reason: fmt.Sprintf("unknown fallback parser %q", fb)}
			}
		}
	}
	for _, rt := range s.Routes {
		for _, name := range rt.Parsers {
			if !declared[name] {
				return &strata.ConfigError{Field: "routes.parsers", Reason: fmt.Sprintf("route %q references undeclared parser %q", rt.Pattern, name)}
			}
		}
	}
	for _, ec := range s.Extractors {
		if _, ok := extractorFactories[ec.Type]; !ok {
			return &strata.ConfigError{Field: "extractors.type", Reason: fmt.Sprintf("unknown extractor %q", ec.Type)}
		}
	}
	switch s.MergePolicy {
	case "", "last-write-wins", "reject-conflicts":
	default:
		return &strata.ConfigError{Field: "merge_policy", Reason: fmt.Sprintf("unknown merge policy %q", s.MergePolicy)}
	}
	return nil
}

// chunkConfig converts parser-level sizing into a parse.Config. embed is
// only consulted by the semantic strategy.
func (pc ParserConfig) chunkConfig(embed parse.EmbedFunc) parse.Config {
	return parse.Config{
		ChunkSize:            pc.ChunkSize,
		ChunkOverlap:         pc.ChunkOverlap,
		Strategy:             parse.Strategy(pc.Chunking),
		Embed:                embed,
		BreakpointPercentile: pc.BreakpointPercentile,
	}
}

// filterFromConfig converts a FilterConfig into a strata.Filter.
func filterFromConfig(fc FilterConfig) (strata.Filter, error) {
	var op strata.FilterOp
	switch fc.Op {
	case "", "eq":
		op = strata.OpEq
	case "neq":
		op = strata.OpNeq
	case "lt":
		op = strata.OpLt
	case "lte":
		op = strata.OpLte
	case "gt":
		op = strata.OpGt
	case "gte":
		op = strata.OpGte
	default:
		return strata.Filter{}, &strata.ConfigError{Field: "filters.op", Reason: fmt.Sprintf("unknown operator %q", fc.Op)}
	}
	if fc.Key == "" {
		return strata.Filter{}, &strata.ConfigError{Field: "filters.key", Reason: "must not be empty"}
	}
	return strata.Filter{Key: fc.Key, Op: op, Value: fc.Value}, nil
}
