// Package strata is a configurable retrieval-augmented-generation engine.
//
// It ingests heterogeneous documents, routes them to format-specific
// parsers, enriches the extracted chunks with metadata, embeds them through
// swappable embedding backends, and persists them in a vector store keyed
// by content hash. The same stored data is then served through multiple
// retrieval strategies (semantic, hybrid, filtered, reranked).
//
// The root package holds the core domain types and the capability
// interfaces every backend implements: Embedder, VectorStore, Retriever.
// Concrete backends live in subpackages (store/sqlite, store/postgres,
// store/memory, embed/gemini, embed/openai, embed/static). The engine
// package wires parsers, extractors, embedders, and stores together from
// declarative configuration and runs asynchronous ingestion tasks.
package strata
