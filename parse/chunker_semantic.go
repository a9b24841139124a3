package parse

import (
	"context"
	"math"
	"sort"
	"strings"
)

// SemanticChunker splits text at boundaries detected by embedding
// similarity drops between consecutive sentences. Sentences whose cosine
// similarity to the next sentence falls below the Nth percentile become
// chunk boundaries.
type SemanticChunker struct {
	embed      EmbedFunc
	size       int
	percentile int
	fallback   *ParagraphChunker
}

var _ Chunker = (*SemanticChunker)(nil)
var _ ContextChunker = (*SemanticChunker)(nil)

// NewSemanticChunker creates a SemanticChunker. The embed function is
// called once per ChunkContext call to embed all sentences; pass an
// Embedder's Embed method directly.
func NewSemanticChunker(embed EmbedFunc, size, overlap, percentile int) *SemanticChunker {
	return &SemanticChunker{
		embed:      embed,
		size:       size,
		percentile: percentile,
		fallback:   NewParagraphChunker(size, overlap),
	}
}

// Chunk implements Chunker with context.Background(). Prefer ChunkContext.
func (sc *SemanticChunker) Chunk(text string) []string {
	chunks, _ := sc.ChunkContext(context.Background(), text)
	return chunks
}

// ChunkContext embeds all sentences, computes consecutive cosine
// similarities, and splits where similarity drops below the percentile
// threshold. On embedding failure it degrades to paragraph chunking.
func (sc *SemanticChunker) ChunkContext(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if len(text) <= sc.size {
		return []string{text}, nil
	}

	sentences := SplitSentences(text)
	if len(sentences) <= 1 {
		return sc.fallback.Chunk(text), nil
	}

	embeddings, err := sc.embed(ctx, sentences)
	if err != nil || len(embeddings) != len(sentences) {
		return sc.fallback.Chunk(text), nil
	}

	similarities := make([]float32, len(sentences)-1)
	for i := range similarities {
		similarities[i] = cosineSim(embeddings[i], embeddings[i+1])
	}
	threshold := percentileThreshold(similarities, sc.percentile)

	var groups []string
	var current strings.Builder
	for i, s := range sentences {
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(s)
		if i < len(similarities) && similarities[i] < threshold {
			groups = append(groups, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if current.Len() > 0 {
		groups = append(groups, strings.TrimSpace(current.String()))
	}

	return sc.packGroups(groups), nil
}

// packGroups merges small semantic groups up to the size limit and
// paragraph-splits oversized ones.
func (sc *SemanticChunker) packGroups(groups []string) []string {
	var chunks []string
	var current strings.Builder
	for _, g := range groups {
		if len(g) > sc.size {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			chunks = append(chunks, sc.fallback.Chunk(g)...)
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(g) > sc.size {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(g)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func cosineSim(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// percentileThreshold returns the p-th percentile of the similarity
// values. Splits happen below this value, so a lower percentile means
// fewer splits.
func percentileThreshold(values []float32, p int) float32 {
	sorted := make([]float32, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
