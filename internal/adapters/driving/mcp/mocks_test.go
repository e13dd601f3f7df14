package mcp

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	answer *domain.Answer
	err    error

	gotText string
	gotOpts domain.QueryOptions
}

func (m *mockQueryService) Query(
	_ context.Context,
	text string,
	opts domain.QueryOptions,
) (*domain.Answer, error) {
	m.gotText = text
	m.gotOpts = opts
	return m.answer, m.err
}

// mockReferenceService is a mock implementation of driving.ReferenceService.
type mockReferenceService struct {
	content *domain.ReferenceContent

	gotName     string
	gotFrom     int
	gotTo       int
	calledTimes int
}

func (m *mockReferenceService) GetReference(
	_ context.Context,
	docName string,
	pageFrom, pageTo int,
) *domain.ReferenceContent {
	m.gotName = docName
	m.gotFrom = pageFrom
	m.gotTo = pageTo
	m.calledTimes++
	return m.content
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	documents []domain.Document
	err       error
}

func (m *mockDocumentService) List(_ context.Context) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, name string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.documents {
		if m.documents[i].Name == name {
			return &m.documents[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) Delete(_ context.Context, _ string) error {
	return m.err
}

var (
	_ driving.QueryService     = (*mockQueryService)(nil)
	_ driving.ReferenceService = (*mockReferenceService)(nil)
	_ driving.DocumentService  = (*mockDocumentService)(nil)
)
