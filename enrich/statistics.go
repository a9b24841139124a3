package enrich

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	strata "github.com/hexleaf/strata"
)

// StatisticsExtractor records basic size statistics: character, word, and
// sentence counts. Counts are stored as ints so range filters work on
// them.
type StatisticsExtractor struct{}

var _ Extractor = (*StatisticsExtractor)(nil)

// NewStatisticsExtractor creates a statistics extractor.
func NewStatisticsExtractor() *StatisticsExtractor { return &StatisticsExtractor{} }

func (StatisticsExtractor) Name() string { return "statistics" }

func (StatisticsExtractor) Extract(_ context.Context, chunk *strata.Chunk) (strata.Metadata, error) {
	text := chunk.Text
	return strata.Metadata{
		"char_count":     utf8.RuneCountInString(text),
		"word_count":     len(strings.Fields(text)),
		"sentence_count": countSentences(text),
	}, nil
}

func countSentences(text string) int {
	n := 0
	for _, r := range text {
		switch r {
		case '.', '!', '?', '。', '！', '？':
			n++
		}
	}
	if n == 0 && strings.IndexFunc(text, func(r rune) bool { return !unicode.IsSpace(r) }) >= 0 {
		n = 1
	}
	return n
}
