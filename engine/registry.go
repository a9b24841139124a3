package engine

import (
	"context"
	"log/slog"
	"strings"

	strata "github.com/hexleaf/strata"
	"github.com/hexleaf/strata/embed/gemini"
	"github.com/hexleaf/strata/embed/openai"
	"github.com/hexleaf/strata/embed/static"
	"github.com/hexleaf/strata/enrich"
	"github.com/hexleaf/strata/parse"
	"github.com/hexleaf/strata/store/memory"
	"github.com/hexleaf/strata/store/postgres"
	"github.com/hexleaf/strata/store/sqlite"
)

// The registries map configuration type names to constructors. Adding a
// backend means adding one entry here; the resolver never special-cases
// concrete types.

// StoreFactory builds a VectorStore from its config.
type StoreFactory func(ctx context.Context, cfg StoreConfig, dims int, logger *slog.Logger) (strata.VectorStore, error)

// EmbedderFactory builds an Embedder from its config.
type EmbedderFactory func(cfg EmbeddingConfig) (strata.Embedder, error)

// ParserFactory builds a Parser with its chunking config. defaultExts
// are the extensions routed to it when the strategy lists none.
type ParserFactory struct {
	New         func(cfg parse.Config) parse.Parser
	DefaultExts []string
}

// ExtractorFactory builds an Extractor from its config.
type ExtractorFactory func(cfg ExtractorConfig) enrich.Extractor

var storeFactories = map[string]StoreFactory{
	"memory": func(_ context.Context, _ StoreConfig, dims int, logger *slog.Logger) (strata.VectorStore, error) {
		return memory.New(memory.WithDimensions(dims), memory.WithLogger(logger)), nil
	},
	"sqlite": func(_ context.Context, cfg StoreConfig, dims int, logger *slog.Logger) (strata.VectorStore, error) {
		return sqlite.New(cfg.DSN, sqlite.WithDimensions(dims), sqlite.WithLogger(logger)), nil
	},
	"postgres": func(ctx context.Context, cfg StoreConfig, dims int, logger *slog.Logger) (strata.VectorStore, error) {
		return postgres.New(ctx, cfg.DSN, dims, postgres.WithLogger(logger))
	},
}

var embedderFactories = map[string]EmbedderFactory{
	"gemini": func(cfg EmbeddingConfig) (strata.Embedder, error) {
		var opts []gemini.Option
		if cfg.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
		}
		return gemini.New(cfg.APIKey, cfg.Model, cfg.Dimensions, opts...), nil
	},
	"openai": func(cfg EmbeddingConfig) (strata.Embedder, error) {
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(cfg.APIKey, cfg.Model, cfg.Dimensions, opts...), nil
	},
	"static": func(cfg EmbeddingConfig) (strata.Embedder, error) {
		return static.New(cfg.Dimensions), nil
	},
}

var parserFactories = map[string]ParserFactory{
	"text": {
		New:         func(cfg parse.Config) parse.Parser { return parse.NewTextParser(cfg) },
		DefaultExts: []string{"txt", "log", "text"},
	},
	"markdown": {
		New:         func(cfg parse.Config) parse.Parser { return parse.NewMarkdownParser(cfg) },
		DefaultExts: []string{"md", "markdown"},
	},
	"readability": {
		New:         func(cfg parse.Config) parse.Parser { return parse.NewReadabilityParser(cfg) },
		DefaultExts: []string{"html", "htm"},
	},
	"html-strip": {
		New:         func(cfg parse.Config) parse.Parser { return parse.NewStripParser(cfg) },
		DefaultExts: []string{"html", "htm"},
	},
	"pdf": {
		New:         func(cfg parse.Config) parse.Parser { return parse.NewPDFParser(cfg) },
		DefaultExts: []string{"pdf"},
	},
	"csv": {
		New:         func(cfg parse.Config) parse.Parser { return parse.NewCSVParser(cfg) },
		DefaultExts: []string{"csv", "tsv"},
	},
	"json": {
		New:         func(cfg parse.Config) parse.Parser { return parse.NewJSONParser(cfg) },
		DefaultExts: []string{"json", "jsonl"},
	},
	"docx": {
		New:         func(cfg parse.Config) parse.Parser { return parse.NewDOCXParser(cfg) },
		DefaultExts: []string{"docx"},
	},
}

var extractorFactories = map[string]ExtractorFactory{
	"statistics": func(ExtractorConfig) enrich.Extractor { return enrich.NewStatisticsExtractor() },
	"entities":   func(ExtractorConfig) enrich.Extractor { return enrich.NewEntityExtractor() },
	"headings":   func(ExtractorConfig) enrich.Extractor { return enrich.NewHeadingExtractor() },
	"keywords": func(cfg ExtractorConfig) enrich.Extractor {
		return enrich.NewKeywordExtractor(cfg.TopN)
	},
}

// RegisterStore adds a store backend to the registry. Call before
// building a Resolver; not safe concurrently with resolution.
func RegisterStore(name string, f StoreFactory) { storeFactories[name] = f }

// RegisterEmbedder adds an embedding backend to the registry.
func RegisterEmbedder(name string, f EmbedderFactory) { embedderFactories[name] = f }

// RegisterParser adds a parser backend to the registry.
func RegisterParser(name string, f ParserFactory) { parserFactories[name] = f }

// RegisterExtractor adds a metadata extractor to the registry.
func RegisterExtractor(name string, f ExtractorFactory) { extractorFactories[name] = f }

// formatsOf returns the extensions a parser instance is registered under.
func formatsOf(pc ParserConfig) []string {
	if len(pc.Formats) > 0 {
		exts := make([]string, 0, len(pc.Formats))
		for _, f := range pc.Formats {
			exts = append(exts, strings.ToLower(strings.TrimPrefix(f, ".")))
		}
		return exts
	}
	return parserFactories[pc.Type].DefaultExts
}
