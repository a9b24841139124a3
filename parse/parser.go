// Package parse routes files to format-specific parsers and splits the
// extracted text into ordered, embeddable chunks.
//
// A Parser owns one format: it extracts text (and any format-local
// metadata such as headings or page numbers) and emits RawChunks in
// document order. The Router selects candidate parsers for a file by
// directory rule, extension, and content sniffing, and drives the
// fallback chain when a parser fails or produces nothing.
package parse

import (
	"context"
	"fmt"
	"io"

	strata "github.com/hexleaf/strata"
)

// RawChunk is one parsed span of a document, before enrichment and
// embedding. Order of emission is the canonical chunk order.
type RawChunk struct {
	Text string
	Meta strata.Metadata
}

// Parser converts one file format into an ordered sequence of raw chunks.
// Implementations must preserve source ordering; document reconstruction
// relies on it.
type Parser interface {
	// Name returns the registry name of this parser.
	Name() string
	// Parse reads the file content from r and returns its chunks.
	// A nil slice with nil error means the file was genuinely empty.
	Parse(ctx context.Context, r io.Reader) ([]RawChunk, error)
}

// Strategy selects how extracted text is split into chunks.
type Strategy string

const (
	StrategyFixed     Strategy = "fixed"
	StrategyParagraph Strategy = "paragraph"
	StrategySentence  Strategy = "sentence"
	StrategyHeading   Strategy = "heading"
	StrategySemantic  Strategy = "semantic"
)

// EmbedFunc embeds texts into vectors. Matches strata.Embedder.Embed so a
// backend's method can be passed directly to the semantic chunker.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Config governs chunk sizing for a parser. Sizes are in characters.
type Config struct {
	// ChunkSize is the maximum chunk length. Default 2048.
	ChunkSize int
	// ChunkOverlap is the overlap carried between consecutive chunks.
	// Must be strictly less than ChunkSize. Default 200.
	ChunkOverlap int
	// Strategy selects the chunking algorithm. Default paragraph.
	Strategy Strategy
	// Embed supplies embeddings for the semantic strategy. Ignored by the
	// other strategies.
	Embed EmbedFunc
	// BreakpointPercentile tunes semantic split detection. Default 25.
	BreakpointPercentile int
}

// DefaultConfig returns the default chunking configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:            2048,
		ChunkOverlap:         200,
		Strategy:             StrategyParagraph,
		BreakpointPercentile: 25,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ChunkSize == 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.Strategy == "" {
		c.Strategy = d.Strategy
	}
	if c.BreakpointPercentile == 0 {
		c.BreakpointPercentile = d.BreakpointPercentile
	}
	return c
}

// Validate rejects impossible chunk sizing. Called at strategy-resolution
// time so misconfiguration never surfaces mid-ingestion.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.ChunkSize <= 0 {
		return &strata.ConfigError{Field: "chunk_size", Reason: "must be positive"}
	}
	if c.ChunkOverlap < 0 {
		return &strata.ConfigError{Field: "chunk_overlap", Reason: "must not be negative"}
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return &strata.ConfigError{
			Field:  "chunk_overlap",
			Reason: fmt.Sprintf("overlap %d must be strictly less than chunk_size %d", c.ChunkOverlap, c.ChunkSize),
		}
	}
	switch c.Strategy {
	case StrategyFixed, StrategyParagraph, StrategySentence, StrategyHeading, StrategySemantic:
	default:
		return &strata.ConfigError{Field: "chunking", Reason: fmt.Sprintf("unknown strategy %q", c.Strategy)}
	}
	if c.Strategy == StrategySemantic && c.Embed == nil {
		return &strata.ConfigError{Field: "chunking", Reason: "semantic strategy requires an embedder"}
	}
	return nil
}

// chunker builds the Chunker for this config.
func (c Config) chunker() Chunker {
	c = c.withDefaults()
	switch c.Strategy {
	case StrategyFixed:
		return NewFixedChunker(c.ChunkSize, c.ChunkOverlap)
	case StrategySentence:
		return NewSentenceChunker(c.ChunkSize, c.ChunkOverlap)
	case StrategyHeading:
		return NewHeadingChunker(c.ChunkSize, c.ChunkOverlap)
	case StrategySemantic:
		return NewSemanticChunker(c.Embed, c.ChunkSize, c.ChunkOverlap, c.BreakpointPercentile)
	default:
		return NewParagraphChunker(c.ChunkSize, c.ChunkOverlap)
	}
}

// chunkAll runs the config's chunker over text, using ChunkContext when
// the chunker supports it.
func (c Config) chunkAll(ctx context.Context, text string) ([]string, error) {
	ch := c.chunker()
	if cc, ok := ch.(ContextChunker); ok {
		return cc.ChunkContext(ctx, text)
	}
	return ch.Chunk(text), nil
}

// textChunks converts chunk texts into RawChunks carrying shared metadata.
func textChunks(texts []string, meta strata.Metadata) []RawChunk {
	out := make([]RawChunk, 0, len(texts))
	for _, t := range texts {
		out = append(out, RawChunk{Text: t, Meta: meta.Clone()})
	}
	return out
}
