package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// IndexRequest carries a document to ingest.
type IndexRequest struct {
	// Name is the unique document key.
	Name string

	// Content is the raw document bytes.
	Content []byte

	// Type is the declared document type. Empty means detect from Name.
	Type domain.DocumentType

	// Author is free-form metadata.
	Author string

	// Comment is free-form metadata.
	Comment string
}

// IndexService ingests documents.
type IndexService interface {
	// Index parses, embeds and atomically (re)indexes a document.
	// Failures affect only the named document.
	Index(ctx context.Context, req IndexRequest) (*domain.Document, error)
}
