package enrich

import (
	"context"
	"regexp"
	"strings"

	strata "github.com/hexleaf/strata"
)

var leadingHeadingRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// HeadingExtractor fills in "heading" metadata for chunks whose parser
// did not provide it, by reading a markdown-style heading off the first
// line of the chunk. Chunks that already carry a heading are left alone
// regardless of merge policy.
type HeadingExtractor struct{}

var _ Extractor = (*HeadingExtractor)(nil)

// NewHeadingExtractor creates a heading extractor.
func NewHeadingExtractor() *HeadingExtractor { return &HeadingExtractor{} }

func (HeadingExtractor) Name() string { return "headings" }

func (HeadingExtractor) Extract(_ context.Context, chunk *strata.Chunk) (strata.Metadata, error) {
	if _, ok := chunk.Metadata["heading"]; ok {
		return nil, nil
	}
	firstLine, _, _ := strings.Cut(strings.TrimSpace(chunk.Text), "\n")
	m := leadingHeadingRe.FindStringSubmatch(strings.TrimSpace(firstLine))
	if m == nil {
		return nil, nil
	}
	return strata.Metadata{
		"heading":       strings.TrimSpace(m[2]),
		"heading_level": len(m[1]),
	}, nil
}
