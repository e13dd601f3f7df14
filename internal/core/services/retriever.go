package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Retriever embeds a query once and fetches nearest chunks from the index.
type Retriever struct {
	embedder driven.Embedder
	index    driven.VectorIndex
	timeout  time.Duration
}

// NewRetriever creates a retriever. timeout bounds the embedding call.
func NewRetriever(embedder driven.Embedder, index driven.VectorIndex, timeout time.Duration) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		timeout:  timeout,
	}
}

// Retrieve returns up to n candidates ordered by descending similarity.
// Duplicate chunk ids keep their highest similarity. Ranks are assigned
// from 0 after deduplication.
func (r *Retriever) Retrieve(ctx context.Context, query string, n int) (hits []domain.RetrievalHit, err error) {
	ctx, span := startSpan(ctx, "retrieve", attribute.Int("n_retrieve", n))
	defer func() { endSpan(span, err) }()
	defer logger.Elapsed("retrieve", time.Now())

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("retrieve: %w: empty query", domain.ErrInvalidInput)
	}
	if n <= 0 {
		return nil, fmt.Errorf("retrieve: %w: n must be positive", domain.ErrInvalidInput)
	}

	var vectors [][]float32
	err = callService(ctx, "embedding", r.timeout, func(ctx context.Context) error {
		var embedErr error
		vectors, embedErr = r.embedder.Embed(ctx, []string{query})
		return embedErr
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed query: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("retrieve: embed query: %w: got %d vectors", domain.ErrServiceError, len(vectors))
	}

	raw, err := r.index.Search(ctx, vectors[0], n)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", indexError(ctx, "search", err))
	}
	logger.Debug("Index returned %d hits for n=%d", len(raw), n)

	hits = dedupeHits(raw, n)
	span.SetAttributes(attribute.Int("hits", len(hits)))
	return hits, nil
}

// dedupeHits keeps the best similarity per chunk id, then orders by
// similarity with the index order breaking ties, and truncates to n.
func dedupeHits(raw []domain.VectorHit, n int) []domain.RetrievalHit {
	best := make(map[string]int, len(raw))
	unique := make([]domain.VectorHit, 0, len(raw))
	for _, h := range raw {
		if i, ok := best[h.Chunk.ID]; ok {
			if h.Similarity > unique[i].Similarity {
				unique[i] = h
			}
			continue
		}
		best[h.Chunk.ID] = len(unique)
		unique = append(unique, h)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Similarity > unique[j].Similarity
	})
	if len(unique) > n {
		unique = unique[:n]
	}

	hits := make([]domain.RetrievalHit, len(unique))
	for i, h := range unique {
		hits[i] = domain.RetrievalHit{
			Chunk:      h.Chunk,
			Similarity: h.Similarity,
			Rank:       i,
		}
	}
	return hits
}
