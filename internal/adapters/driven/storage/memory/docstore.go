package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

type storedDocument struct {
	doc     domain.Document
	content []byte
}

// DocumentStore is an in-memory implementation of driven.DocumentStore.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]storedDocument
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]storedDocument),
	}
}

// SaveDocument stores or replaces a document and its bytes.
func (s *DocumentStore) SaveDocument(_ context.Context, doc *domain.Document, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.Name] = storedDocument{doc: *doc, content: slices.Clone(content)}
	return nil
}

// GetDocument retrieves document metadata by name.
func (s *DocumentStore) GetDocument(_ context.Context, name string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.documents[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc := stored.doc
	return &doc, nil
}

// GetContent returns a copy of the document's raw bytes.
func (s *DocumentStore) GetContent(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.documents[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return slices.Clone(stored.content), nil
}

// ListDocuments returns all documents ordered by name.
func (s *DocumentStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Document, 0, len(s.documents))
	for _, stored := range s.documents {
		result = append(result, stored.doc)
	}
	slices.SortFunc(result, func(a, b domain.Document) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

// DeleteDocument removes a document.
func (s *DocumentStore) DeleteDocument(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[name]; !ok {
		return domain.ErrNotFound
	}
	delete(s.documents, name)
	return nil
}
