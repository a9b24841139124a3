package strata

import (
	"context"
	"fmt"
)

// Embedder converts batches of text into fixed-length vectors.
// All chunks destined for one database must be embedded by the same
// model/dimensionality; stores reject mismatched vectors at upsert time.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding vector size.
	Dimensions() int
	// Name returns the backend name.
	Name() string
}

// CheckDimensions verifies that every vector has the expected length.
// A mismatch is a ConfigError: the database and embedder were wired with
// incompatible dimensionalities, never a reason to truncate silently.
func CheckDimensions(vectors [][]float32, want int) error {
	for i, v := range vectors {
		if len(v) != want {
			return &ConfigError{
				Field:  "embedding.dimensions",
				Reason: fmt.Sprintf("vector %d has dimension %d, store expects %d", i, len(v), want),
			}
		}
	}
	return nil
}
