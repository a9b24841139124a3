package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for ingestion and retrieval spans and metrics.
var (
	AttrEmbedBackend    = attribute.Key("rag.embed.backend")
	AttrEmbedTextCount  = attribute.Key("rag.embed.text_count")
	AttrEmbedDimensions = attribute.Key("rag.embed.dimensions")

	AttrStoreOp    = attribute.Key("rag.store.op")
	AttrChunkCount = attribute.Key("rag.store.chunk_count")

	AttrQueryTopK    = attribute.Key("rag.query.top_k")
	AttrQueryResults = attribute.Key("rag.query.results")

	AttrStatus = attribute.Key("status")
)
