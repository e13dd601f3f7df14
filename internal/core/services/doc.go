// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The query path is Retriever, Reranker, an optional single Refiner pass
// and the Synthesizer, with the Aggregator building the citation table.
// The index path is extraction, post-processing, batched embedding and an
// atomic per-document upsert, serialised per document by a KeyedMutex.
//
// Services depend only on domain and ports, plus the OpenTelemetry API
// for spans (a no-op unless a provider is installed).
package services
