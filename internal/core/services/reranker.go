package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// DefaultScoringConcurrency bounds parallel cross-encoder calls.
const DefaultScoringConcurrency = 4

// scoreFunc scores every hit, returning scores aligned with hits.
type scoreFunc func(ctx context.Context, query string, hits []domain.RetrievalHit) ([]float64, error)

// Reranker rescores retrieval candidates and selects the best.
type Reranker struct {
	scorer      driven.Scorer
	timeout     time.Duration
	concurrency int
	strategies  map[domain.RerankStrategy]scoreFunc
}

// NewReranker creates a reranker. scorer may be nil, in which case the
// cross_encoder strategy fails with domain.ErrNotConfigured.
func NewReranker(scorer driven.Scorer, timeout time.Duration, concurrency int) *Reranker {
	if concurrency <= 0 {
		concurrency = DefaultScoringConcurrency
	}
	r := &Reranker{
		scorer:      scorer,
		timeout:     timeout,
		concurrency: concurrency,
	}
	r.strategies = map[domain.RerankStrategy]scoreFunc{
		domain.RerankCrossEncoder: r.crossEncoderScores,
		domain.RerankNone:         similarityScores,
	}
	return r
}

// Rerank scores hits with strategy, drops scores below minScore, sorts by
// descending score with ascending retrieval rank breaking ties, and keeps at
// most nSelect. An empty result is valid.
func (r *Reranker) Rerank(
	ctx context.Context,
	query string,
	hits []domain.RetrievalHit,
	strategy domain.RerankStrategy,
	minScore float64,
	nSelect int,
) (selected []domain.RankedHit, err error) {
	ctx, span := startSpan(ctx, "rerank",
		attribute.String("strategy", strategy.String()),
		attribute.Int("candidates", len(hits)),
		attribute.Float64("min_score", minScore),
		attribute.Int("n_select", nSelect),
	)
	defer func() { endSpan(span, err) }()
	defer logger.Elapsed("rerank", time.Now())

	score, ok := r.strategies[strategy]
	if !ok {
		return nil, fmt.Errorf("rerank: %w: unknown strategy %q", domain.ErrInvalidInput, strategy)
	}
	if nSelect <= 0 {
		return nil, fmt.Errorf("rerank: %w: n_select must be positive", domain.ErrInvalidInput)
	}
	if len(hits) == 0 {
		return []domain.RankedHit{}, nil
	}

	scores, err := score(ctx, query, hits)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}

	selected = selectHits(hits, scores, minScore, nSelect)
	logger.Debug("Rerank (%s): %d candidates, %d above %.2f, kept %d",
		strategy, len(hits), countAtLeast(scores, minScore), minScore, len(selected))
	span.SetAttributes(attribute.Int("selected", len(selected)))
	return selected, nil
}

// selectHits applies the filter, ordering and truncation rules.
func selectHits(hits []domain.RetrievalHit, scores []float64, minScore float64, nSelect int) []domain.RankedHit {
	ranked := make([]domain.RankedHit, 0, len(hits))
	for i, h := range hits {
		if scores[i] < minScore {
			continue
		}
		ranked = append(ranked, domain.RankedHit{RetrievalHit: h, Score: scores[i]})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Rank < ranked[j].Rank
	})

	if len(ranked) > nSelect {
		ranked = ranked[:nSelect]
	}
	for i := range ranked {
		ranked[i].Selected = true
	}
	return ranked
}

func countAtLeast(scores []float64, minScore float64) int {
	n := 0
	for _, s := range scores {
		if s >= minScore {
			n++
		}
	}
	return n
}

func similarityScores(_ context.Context, _ string, hits []domain.RetrievalHit) ([]float64, error) {
	scores := make([]float64, len(hits))
	for i, h := range hits {
		scores[i] = h.Similarity
	}
	return scores, nil
}

func (r *Reranker) crossEncoderScores(ctx context.Context, query string, hits []domain.RetrievalHit) ([]float64, error) {
	if r.scorer == nil {
		return nil, fmt.Errorf("cross encoder: %w", domain.ErrNotConfigured)
	}

	scores := make([]float64, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, h := range hits {
		g.Go(func() error {
			return callService(gctx, "scoring", r.timeout, func(ctx context.Context) error {
				s, err := r.scorer.Score(ctx, query, h.Chunk.Content)
				if err != nil {
					return err
				}
				if math.IsNaN(s) || s < 0 || s > 1 {
					return fmt.Errorf("score %v for chunk %s outside [0,1]", s, h.Chunk.ID)
				}
				scores[i] = s
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return scores, nil
}
