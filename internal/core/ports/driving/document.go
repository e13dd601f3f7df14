package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// DocumentService manages stored documents.
type DocumentService interface {
	// List returns all indexed documents.
	List(ctx context.Context) ([]domain.Document, error)

	// Get retrieves document metadata by name.
	Get(ctx context.Context, name string) (*domain.Document, error)

	// Delete removes a document's index entries, raw bytes and metadata.
	Delete(ctx context.Context, name string) error
}
