package enrich

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	strata "github.com/hexleaf/strata"
)

// stopwords excluded from keyword extraction.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "but": true, "by": true, "for": true,
	"from": true, "has": true, "have": true, "in": true, "is": true,
	"it": true, "its": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "this": true, "to": true, "was": true,
	"were": true, "will": true, "with": true, "not": true, "which": true,
}

// KeywordExtractor stores the most frequent non-stopword terms of a chunk
// under "keywords". Ties break alphabetically so output is deterministic.
type KeywordExtractor struct {
	topN int
}

var _ Extractor = (*KeywordExtractor)(nil)

// NewKeywordExtractor creates a keyword extractor keeping the topN terms.
// topN <= 0 defaults to 8.
func NewKeywordExtractor(topN int) *KeywordExtractor {
	if topN <= 0 {
		topN = 8
	}
	return &KeywordExtractor{topN: topN}
}

func (KeywordExtractor) Name() string { return "keywords" }

var keywordFolder = cases.Fold()

func (e KeywordExtractor) Extract(_ context.Context, chunk *strata.Chunk) (strata.Metadata, error) {
	freq := make(map[string]int)
	folded := keywordFolder.String(chunk.Text)
	for _, tok := range strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		freq[tok]++
	}
	if len(freq) == 0 {
		return nil, nil
	}

	terms := make([]string, 0, len(freq))
	for t := range freq {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > e.topN {
		terms = terms[:e.topN]
	}
	return strata.Metadata{"keywords": strings.Join(terms, ", ")}, nil
}
