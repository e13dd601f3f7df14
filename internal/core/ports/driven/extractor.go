package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// Extractor parses one document type.
type Extractor interface {
	// Type returns the document type this extractor handles.
	Type() domain.DocumentType

	// Extract parses content into ordered chunk drafts.
	// Returns domain.ErrUnsupportedFormat if content does not parse
	// and domain.ErrEmptyDocument if no text is found.
	Extract(ctx context.Context, content []byte) (*ExtractResult, error)

	// Slice re-encodes the inclusive page or block range as a standalone document.
	Slice(ctx context.Context, content []byte, from, to int) ([]byte, error)
}

// ExtractResult contains the output of extraction.
type ExtractResult struct {
	// Extent is the number of pages or blocks in the document.
	Extent int

	// Drafts are the extracted texts in document order.
	Drafts []domain.ChunkDraft
}

// ExtractorRegistry selects the extractor for a document type.
type ExtractorRegistry interface {
	// Get returns the extractor for t, or false if none is registered.
	Get(t domain.DocumentType) (Extractor, bool)

	// Register adds or replaces the extractor for its type.
	Register(extractor Extractor)

	// SupportedTypes returns all registered document types.
	SupportedTypes() []domain.DocumentType
}
