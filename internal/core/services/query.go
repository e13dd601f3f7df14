package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// QueryService answers questions: retrieve, rerank, optionally refine once,
// then synthesise, with the selection feeding the citation table.
type QueryService struct {
	retriever   *Retriever
	reranker    *Reranker
	refiner     *Refiner
	synthesizer *Synthesizer
}

// NewQueryService creates a new query service.
// refiner may be nil, in which case refinement requests are ignored.
func NewQueryService(retriever *Retriever, reranker *Reranker, refiner *Refiner, synthesizer *Synthesizer) *QueryService {
	return &QueryService{
		retriever:   retriever,
		reranker:    reranker,
		refiner:     refiner,
		synthesizer: synthesizer,
	}
}

// Query answers text. Retrieval and reranking failures abort the query.
// Refinement failures fall back to the first pass. Generation failures
// yield the could-not-answer text with the references still attached.
func (s *QueryService) Query(ctx context.Context, text string, opts domain.QueryOptions) (answer *domain.Answer, err error) {
	ctx, span := startSpan(ctx, "query",
		attribute.Int("n_retrieve", opts.NRetrieve),
		attribute.Int("n_select", opts.NSelect),
		attribute.String("strategy", opts.Strategy.String()),
		attribute.Float64("min_score", opts.MinScore),
		attribute.Bool("use_refinement", opts.UseRefinement),
	)
	defer func() { endSpan(span, err) }()

	logger.Section("Query")
	logger.Debug("Query: %q", text)
	defer logger.Elapsed("query", time.Now())

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("query: %w: empty query", domain.ErrInvalidInput)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	selected, err := s.pass(ctx, text, opts)
	if err != nil {
		logger.Warn("Query failed: %v", err)
		return nil, fmt.Errorf("query: %w", err)
	}

	answer = &domain.Answer{Query: text}
	if opts.UseRefinement {
		selected, answer.RefinedQuery = s.refine(ctx, text, opts, selected)
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
	}

	answer.Selected = selected
	answer.References = AggregateReferences(selected)
	if len(selected) == 0 {
		logger.Info("No candidate cleared min score %.2f", opts.MinScore)
	}

	answer.Text, err = s.synthesizer.Synthesize(ctx, text, selected)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("query: %w", ctx.Err())
		}
		logger.Error("Answer generation failed: %v", err)
		answer.Text = domain.CouldNotAnswer
		err = nil
	}

	logger.Info("Answer grounded on %d passages, %d references", len(selected), len(answer.References))
	return answer, nil
}

// pass runs one retrieve and rerank round.
func (s *QueryService) pass(ctx context.Context, query string, opts domain.QueryOptions) ([]domain.RankedHit, error) {
	hits, err := s.retriever.Retrieve(ctx, query, opts.NRetrieve)
	if err != nil {
		return nil, err
	}
	return s.reranker.Rerank(ctx, query, hits, opts.Strategy, opts.MinScore, opts.NSelect)
}

// refine runs exactly one extra pass with a rewritten query. Any failure
// keeps the first pass. The returned query is empty when the first pass is kept.
func (s *QueryService) refine(
	ctx context.Context, query string, opts domain.QueryOptions, first []domain.RankedHit,
) ([]domain.RankedHit, string) {
	if s.refiner == nil {
		logger.Warn("Refinement requested but no query rewriter is configured")
		return first, ""
	}

	refined, err := s.refiner.Refine(ctx, query, first)
	if err != nil {
		if errors.Is(err, errNothingToRefine) {
			logger.Debug("Skipping refinement: %v", err)
		} else {
			logger.Warn("Refinement failed, keeping first pass: %v", err)
		}
		return first, ""
	}
	if strings.EqualFold(refined, query) {
		logger.Debug("Refined query unchanged, keeping first pass")
		return first, ""
	}

	second, err := s.pass(ctx, refined, opts)
	if err != nil {
		logger.Warn("Refined pass failed, keeping first pass: %v", err)
		return first, ""
	}
	return second, refined
}
