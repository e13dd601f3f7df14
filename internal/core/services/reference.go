package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure ReferenceService implements the interface.
var _ driving.ReferenceService = (*ReferenceService)(nil)

// ReferenceService resolves citations back to displayable document excerpts.
type ReferenceService struct {
	docStore   driven.DocumentStore
	extractors driven.ExtractorRegistry
}

// NewReferenceService creates a new reference service.
func NewReferenceService(docStore driven.DocumentStore, extractors driven.ExtractorRegistry) *ReferenceService {
	return &ReferenceService{
		docStore:   docStore,
		extractors: extractors,
	}
}

// GetReference returns pages (pdf) or blocks (tabular) pageFrom..pageTo as a
// standalone document, or nil when no preview can be produced.
func (s *ReferenceService) GetReference(ctx context.Context, docName string, pageFrom, pageTo int) *domain.ReferenceContent {
	ctx, span := startSpan(ctx, "get_reference",
		attribute.String("doc_name", docName),
		attribute.Int("page_from", pageFrom),
		attribute.Int("page_to", pageTo),
	)
	defer span.End()
	defer logger.Elapsed("get_reference", time.Now())

	ref, err := s.resolve(ctx, docName, pageFrom, pageTo)
	if err != nil {
		span.SetAttributes(attribute.String("no_preview", err.Error()))
		logger.Warn("No preview for %s [%d-%d]: %v", docName, pageFrom, pageTo, err)
		return nil
	}
	return ref
}

var errOutOfRange = errors.New("range outside document")

func (s *ReferenceService) resolve(ctx context.Context, docName string, pageFrom, pageTo int) (*domain.ReferenceContent, error) {
	doc, err := s.docStore.GetDocument(ctx, docName)
	if err != nil {
		return nil, err
	}
	if !doc.Contains(pageFrom, pageTo) {
		return nil, errOutOfRange
	}

	extractor, ok := s.extractors.Get(doc.Type)
	if !ok {
		return nil, domain.ErrUnsupportedFormat
	}

	content, err := s.docStore.GetContent(ctx, docName)
	if err != nil {
		return nil, err
	}

	excerpt, err := extractor.Slice(ctx, content, pageFrom, pageTo)
	if err != nil {
		return nil, err
	}

	return &domain.ReferenceContent{
		DocName:   doc.Name,
		PageFrom:  pageFrom,
		PageTo:    pageTo,
		MediaType: doc.Type.MediaType(),
		Content:   excerpt,
	}, nil
}
