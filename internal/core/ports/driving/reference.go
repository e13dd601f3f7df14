package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// ReferenceService resolves citations back to document bytes.
type ReferenceService interface {
	// GetReference returns the inclusive page or block range as a standalone
	// document, or nil when no preview is available (unknown document,
	// out-of-range, or unparseable bytes). It never fails for those cases.
	GetReference(ctx context.Context, docName string, pageFrom, pageTo int) *domain.ReferenceContent
}
