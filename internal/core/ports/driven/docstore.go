package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// DocumentStore persists raw document bytes alongside their metadata.
type DocumentStore interface {
	// SaveDocument stores or replaces a document and its raw bytes.
	SaveDocument(ctx context.Context, doc *domain.Document, content []byte) error

	// GetDocument retrieves document metadata by name.
	// Returns domain.ErrNotFound when the name is unknown.
	GetDocument(ctx context.Context, name string) (*domain.Document, error)

	// GetContent retrieves the raw bytes of a document.
	// Returns domain.ErrNotFound when the name is unknown.
	GetContent(ctx context.Context, name string) ([]byte, error)

	// ListDocuments returns all documents ordered by name.
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// DeleteDocument removes a document. Returns domain.ErrNotFound when the name is unknown.
	DeleteDocument(ctx context.Context, name string) error
}
