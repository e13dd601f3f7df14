package driving

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// QueryService answers questions grounded in indexed documents.
type QueryService interface {
	// Query retrieves, reranks, optionally refines, and synthesises an answer.
	// An empty selection is not an error; the answer is still produced.
	Query(ctx context.Context, text string, opts domain.QueryOptions) (*domain.Answer, error)
}
