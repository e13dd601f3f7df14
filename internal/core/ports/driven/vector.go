package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// VectorIndex stores chunk embeddings grouped by document.
//
// Upsert builds the new entry set aside and swaps it in atomically, so a
// concurrent Search observes either the complete old set or the complete
// new set for a document. Backend failures are reported as
// domain.ErrIndexUnavailable and are not retried.
type VectorIndex interface {
	// Upsert replaces every entry of docName with entries.
	Upsert(ctx context.Context, docName string, entries []domain.IndexEntry) error

	// Search returns at most k hits ordered by descending similarity.
	// Ties are broken by insertion order.
	Search(ctx context.Context, query []float32, k int) ([]domain.VectorHit, error)

	// Delete removes every entry of docName. Deleting an unknown name is not an error.
	Delete(ctx context.Context, docName string) error

	// Close releases resources.
	Close() error
}
