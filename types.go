package strata

// Metadata is the key-value map accumulated on a chunk by the extractor
// pipeline and used for filtered retrieval. Values are strings, numbers,
// or booleans; stores persist it as JSON.
type Metadata map[string]any

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Document is a source file identified by its content hash. Documents are
// immutable once hashed: re-uploading identical content is recognized as a
// duplicate and skipped.
type Document struct {
	Hash       string `json:"hash"`
	Filename   string `json:"filename"`
	Format     string `json:"format"`
	Size       int64  `json:"size"`
	Dataset    string `json:"dataset"`
	IngestedAt int64  `json:"ingested_at"`
}

// Chunk is a contiguous span of text produced by a parser from one
// Document. ChunkIndex records the original ordering within the document;
// Hash is the chunk-level content hash used for chunk-level dedup.
type Chunk struct {
	ID           string    `json:"id"`
	DocumentHash string    `json:"document_hash"`
	ChunkIndex   int       `json:"chunk_index"`
	Text         string    `json:"text"`
	Hash         string    `json:"hash"`
	Metadata     Metadata  `json:"metadata,omitempty"`
	Embedding    []float32 `json:"-"`
}

// ScoredChunk pairs a stored chunk with a similarity score from a store
// query. Score is in [0, 1]; higher means more similar.
type ScoredChunk struct {
	Chunk
	Score float32 `json:"score"`
}

// RetrievalResult is a scored piece of content returned by a retrieval
// strategy.
type RetrievalResult struct {
	Text         string   `json:"text"`
	Score        float32  `json:"score"`
	ChunkID      string   `json:"chunk_id"`
	DocumentHash string   `json:"document_hash"`
	Metadata     Metadata `json:"metadata,omitempty"`
}

// QueryOptions carries the caller-facing knobs of a retrieval call.
type QueryOptions struct {
	// TopK is the number of results requested. Zero means DefaultTopK.
	TopK int
	// Filters constrains results to chunks whose metadata matches every
	// predicate. Empty means no constraint.
	Filters []Filter
	// ScoreThreshold drops results scoring below it. Zero disables.
	ScoreThreshold float32
}

// DefaultTopK is used when QueryOptions.TopK is zero.
const DefaultTopK = 10
