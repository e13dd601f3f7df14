// Package domain defines the core business entities for sercha-rag.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A stored source document (pdf or tabular) with metadata
//   - Chunk: An indexed unit of text with page or block provenance
//   - RetrievalHit / RankedHit: Candidates flowing through the query pipeline
//   - Reference: A citation pointing back into a document
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
