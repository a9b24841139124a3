// Package enrich runs ordered metadata extractors over parsed chunks.
//
// Each Extractor inspects a chunk (with the metadata accumulated by the
// extractors before it) and returns additional metadata to merge in. A
// failing extractor is recorded and skipped; the chunk proceeds with
// whatever metadata was produced before the failure.
package enrich

import (
	"context"
	"fmt"
	"log/slog"

	strata "github.com/hexleaf/strata"
)

// Extractor produces metadata for a single chunk.
type Extractor interface {
	// Name returns the registry name of this extractor.
	Name() string
	// Extract returns metadata to merge into the chunk. It must not
	// mutate the chunk.
	Extract(ctx context.Context, chunk *strata.Chunk) (strata.Metadata, error)
}

// MergePolicy decides what happens when an extractor produces a key an
// earlier extractor (or the parser) already set.
type MergePolicy string

const (
	// LastWriteWins lets later extractors override earlier keys. This is
	// the default policy, chosen deliberately: extractors declared later
	// are considered more specific.
	LastWriteWins MergePolicy = "last-write-wins"
	// RejectConflicts treats a duplicate key as an extractor failure;
	// the conflicting metadata is dropped and recorded, earlier values
	// stay.
	RejectConflicts MergePolicy = "reject-conflicts"
)

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithMergePolicy sets the key-conflict policy. Default LastWriteWins.
func WithMergePolicy(p MergePolicy) PipelineOption {
	return func(pl *Pipeline) { pl.policy = p }
}

// WithLogger sets a structured logger for per-chunk extractor failures.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(pl *Pipeline) { pl.logger = l }
}

// Pipeline applies extractors in declared order.
type Pipeline struct {
	extractors []Extractor
	policy     MergePolicy
	logger     *slog.Logger
}

// NewPipeline creates a pipeline running the given extractors in order.
func NewPipeline(extractors []Extractor, opts ...PipelineOption) *Pipeline {
	pl := &Pipeline{
		extractors: extractors,
		policy:     LastWriteWins,
		logger:     strata.NopLogger,
	}
	for _, o := range opts {
		o(pl)
	}
	return pl
}

// Run enriches the chunk in place and returns the extraction errors
// encountered. Errors are per-extractor and never abort the pipeline.
func (pl *Pipeline) Run(ctx context.Context, chunk *strata.Chunk) []error {
	var errs []error
	for _, ex := range pl.extractors {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			return errs
		}
		md, err := ex.Extract(ctx, chunk)
		if err != nil {
			errs = append(errs, &strata.ExtractionError{Extractor: ex.Name(), Err: err})
			pl.logger.Warn("extractor failed, continuing with partial metadata",
				"extractor", ex.Name(),
				"chunk", chunk.ID,
				"error", err)
			continue
		}
		if err := pl.merge(chunk, md, ex.Name()); err != nil {
			errs = append(errs, err)
			pl.logger.Warn("metadata merge rejected",
				"extractor", ex.Name(),
				"chunk", chunk.ID,
				"error", err)
		}
	}
	return errs
}

func (pl *Pipeline) merge(chunk *strata.Chunk, md strata.Metadata, name string) error {
	if len(md) == 0 {
		return nil
	}
	if chunk.Metadata == nil {
		chunk.Metadata = make(strata.Metadata, len(md))
	}
	if pl.policy == RejectConflicts {
		for k := range md {
			if _, exists := chunk.Metadata[k]; exists {
				return &strata.ExtractionError{
					Extractor: name,
					Err:       fmt.Errorf("metadata key %q already set", k),
				}
			}
		}
	}
	for k, v := range md {
		chunk.Metadata[k] = v
	}
	return nil
}
