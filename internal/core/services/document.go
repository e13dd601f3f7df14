package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService manages stored documents.
type DocumentService struct {
	docStore driven.DocumentStore
	index    driven.VectorIndex
	locks    *KeyedMutex
}

// NewDocumentService creates a new document service. locks must be the
// same KeyedMutex given to the IndexService.
func NewDocumentService(docStore driven.DocumentStore, index driven.VectorIndex, locks *KeyedMutex) *DocumentService {
	return &DocumentService{
		docStore: docStore,
		index:    index,
		locks:    locks,
	}
}

// List returns all indexed documents.
func (s *DocumentService) List(ctx context.Context) ([]domain.Document, error) {
	return s.docStore.ListDocuments(ctx)
}

// Get retrieves document metadata by name.
func (s *DocumentService) Get(ctx context.Context, name string) (*domain.Document, error) {
	return s.docStore.GetDocument(ctx, name)
}

// Delete removes the document's index entries first, then its bytes and metadata.
// Index entries of a name unknown to the store are still cleared.
func (s *DocumentService) Delete(ctx context.Context, name string) error {
	unlock, err := s.locks.Lock(ctx, name)
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	defer unlock()

	if err := s.index.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete %s: %w", name, indexError(ctx, "delete", err))
	}
	if err := s.docStore.DeleteDocument(ctx, name); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	logger.Info("Deleted %s", name)
	return nil
}
