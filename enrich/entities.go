package enrich

import (
	"context"
	"regexp"
	"strings"

	strata "github.com/hexleaf/strata"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	urlRe   = regexp.MustCompile(`https?://[^\s<>"')\]]+`)
	dateRe  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4})\b`)
)

// EntityExtractor pulls surface-level entities (emails, URLs, dates) out
// of the chunk text with pattern matching. Each entity kind is stored as
// a comma-joined string under its own key, only when at least one match
// exists.
type EntityExtractor struct{}

var _ Extractor = (*EntityExtractor)(nil)

// NewEntityExtractor creates an entity extractor.
func NewEntityExtractor() *EntityExtractor { return &EntityExtractor{} }

func (EntityExtractor) Name() string { return "entities" }

func (EntityExtractor) Extract(_ context.Context, chunk *strata.Chunk) (strata.Metadata, error) {
	md := strata.Metadata{}
	if v := dedupeMatches(emailRe.FindAllString(chunk.Text, -1)); v != "" {
		md["emails"] = v
	}
	if v := dedupeMatches(urlRe.FindAllString(chunk.Text, -1)); v != "" {
		md["urls"] = v
	}
	if v := dedupeMatches(dateRe.FindAllString(chunk.Text, -1)); v != "" {
		md["dates"] = v
	}
	return md, nil
}

func dedupeMatches(matches []string) string {
	if len(matches) == 0 {
		return ""
	}
	seen := make(map[string]bool, len(matches))
	var uniq []string
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			uniq = append(uniq, m)
		}
	}
	return strings.Join(uniq, ", ")
}
