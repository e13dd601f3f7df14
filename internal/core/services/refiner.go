package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// DefaultRefinePassages is how many top selected passages inform the rewrite.
const DefaultRefinePassages = 3

var errNothingToRefine = errors.New("no passages to refine from")

// Refiner derives a refined query from the original and the top passages.
type Refiner struct {
	rewriter    driven.QueryRewriter
	timeout     time.Duration
	maxPassages int
}

// NewRefiner creates a refiner.
func NewRefiner(rewriter driven.QueryRewriter, timeout time.Duration, maxPassages int) *Refiner {
	if maxPassages <= 0 {
		maxPassages = DefaultRefinePassages
	}
	return &Refiner{
		rewriter:    rewriter,
		timeout:     timeout,
		maxPassages: maxPassages,
	}
}

// Refine returns the rewritten query. It fails when there is nothing to
// refine from, when the rewrite call fails, or when it returns nothing.
func (r *Refiner) Refine(ctx context.Context, query string, selected []domain.RankedHit) (refined string, err error) {
	ctx, span := startSpan(ctx, "refine")
	defer func() { endSpan(span, err) }()

	if len(selected) == 0 {
		return "", errNothingToRefine
	}

	n := min(len(selected), r.maxPassages)
	passages := make([]string, n)
	for i := range n {
		passages[i] = selected[i].Chunk.Content
	}

	err = callService(ctx, "query rewrite", r.timeout, func(ctx context.Context) error {
		var rewriteErr error
		refined, rewriteErr = r.rewriter.RewriteQuery(ctx, query, passages)
		return rewriteErr
	})
	if err != nil {
		return "", fmt.Errorf("refine: %w", err)
	}

	refined = strings.TrimSpace(refined)
	if refined == "" {
		return "", fmt.Errorf("refine: %w: empty rewrite", domain.ErrServiceError)
	}
	logger.Debug("Refined query: %q", refined)
	return refined, nil
}
