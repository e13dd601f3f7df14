// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Capability Interfaces
//
// Each external ML service is consumed through a single-operation interface
// so the pipeline can be tested with mocks and backends swapped freely:
//
//   - Embedder: texts to vectors
//   - Scorer: (query, passage) to a relevance score in [0,1]
//   - Generator: prompt to text
//   - QueryRewriter: query plus context to a refined query
//
// # Storage Interfaces
//
//   - VectorIndex: Atomic per-document chunk sets with nearest-neighbour search
//   - DocumentStore: Raw document bytes and metadata
//   - ConfigStore: Application configuration
//   - PromptStore: Prompt templates
//
// # Ingestion Interfaces
//
//   - Extractor: Parses one document type into chunk drafts and slices page ranges
//   - ExtractorRegistry: Selects the extractor for a document type
//   - PostProcessor: Transforms chunk drafts (cleaning, windowing)
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, extractor, or post-processor package
package driven
