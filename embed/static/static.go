// Package static implements a deterministic, dependency-free
// strata.Embedder. Vectors come from hashed token features, so identical
// text always embeds identically and similar texts land near each other.
// Useful for tests, offline development, and pipelines that only need
// lexical-ish similarity without an embedding service.
package static

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	strata "github.com/hexleaf/strata"
)

// DefaultDimensions is the vector size when none is given.
const DefaultDimensions = 256

// Embedder produces hashed bag-of-words vectors, L2-normalized.
type Embedder struct {
	dims int
}

var _ strata.Embedder = (*Embedder)(nil)

// New creates a static embedder. dims <= 0 uses DefaultDimensions.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dims: dims}
}

// Name returns "static".
func (e *Embedder) Name() string { return "static" }

// Dimensions returns the vector size.
func (e *Embedder) Dimensions() int { return e.dims }

var folder = cases.Fold()

// Embed maps each text to a normalized hashed-token vector. Never fails
// and never blocks on the network.
func (e *Embedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.embedOne(text)
	}
	return vectors, nil
}

func (e *Embedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dims)
	tokens := strings.FieldsFunc(folder.String(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		sum := sha256.Sum256([]byte(tok))
		idx := binary.BigEndian.Uint32(sum[:4]) % uint32(e.dims)
		// Second hash word picks a sign so common tokens do not all
		// push the same direction.
		if binary.BigEndian.Uint32(sum[4:8])&1 == 0 {
			vec[idx]++
		} else {
			vec[idx]--
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}
