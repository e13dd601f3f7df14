package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func candidates(sims ...float64) []domain.RetrievalHit {
	hits := make([]domain.RetrievalHit, len(sims))
	for i, s := range sims {
		id := string(rune('a' + i))
		hits[i] = domain.RetrievalHit{
			Chunk:      domain.Chunk{ID: id, DocName: "spec.pdf", Content: id},
			Similarity: s,
			Rank:       i,
		}
	}
	return hits
}

// scoresByContent returns a scorer that looks passages up in scores.
func scoresByContent(scores map[string]float64) *stubScorer {
	return &stubScorer{fn: func(_, passage string) (float64, error) {
		return scores[passage], nil
	}}
}

func ids(hits []domain.RankedHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ChunkID()
	}
	return out
}

func TestReranker_NonePassesSimilarity(t *testing.T) {
	r := NewReranker(nil, time.Second, 2)

	got, err := r.Rerank(context.Background(), "q", candidates(0.9, 0.2, 0.7, 0.1), domain.RerankNone, 0.15, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, ids(got))
	assert.InDelta(t, 0.9, got[0].Score, 1e-9)
	for _, h := range got {
		assert.True(t, h.Selected)
	}
}

func TestReranker_CrossEncoder(t *testing.T) {
	scorer := scoresByContent(map[string]float64{"a": 0.2, "b": 0.8, "c": 0.5, "d": 0.1})
	r := NewReranker(scorer, time.Second, 2)

	got, err := r.Rerank(context.Background(), "q", candidates(0.9, 0.8, 0.7, 0.6), domain.RerankCrossEncoder, 0.15, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(got))
	assert.Equal(t, int32(4), scorer.calls.Load())
}

func TestReranker_TiesBrokenByRank(t *testing.T) {
	scorer := scoresByContent(map[string]float64{"a": 0.5, "b": 0.7, "c": 0.5, "d": 0.7})
	r := NewReranker(scorer, time.Second, 4)

	got, err := r.Rerank(context.Background(), "q", candidates(0.1, 0.1, 0.1, 0.1), domain.RerankCrossEncoder, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids(got))
}

func TestReranker_MinScoreIsInclusive(t *testing.T) {
	r := NewReranker(nil, time.Second, 1)

	got, err := r.Rerank(context.Background(), "q", candidates(0.15, 0.149), domain.RerankNone, 0.15, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(got))
}

func TestReranker_EmptySelectionIsValid(t *testing.T) {
	scorer := scoresByContent(map[string]float64{})
	r := NewReranker(scorer, time.Second, 2)

	got, err := r.Rerank(context.Background(), "q", candidates(0.9, 0.8), domain.RerankCrossEncoder, 0.15, 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = r.Rerank(context.Background(), "q", nil, domain.RerankCrossEncoder, 0.15, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(2), scorer.calls.Load())
}

func TestReranker_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		scorer   *stubScorer
		strategy domain.RerankStrategy
		nSelect  int
		timeout  time.Duration
		wantErr  error
	}{
		{
			name:     "unknown strategy",
			strategy: "bm25",
			nSelect:  5,
			wantErr:  domain.ErrInvalidInput,
		},
		{
			name:     "non-positive n_select",
			strategy: domain.RerankNone,
			nSelect:  0,
			wantErr:  domain.ErrInvalidInput,
		},
		{
			name:     "cross encoder without scorer",
			strategy: domain.RerankCrossEncoder,
			nSelect:  5,
			wantErr:  domain.ErrNotConfigured,
		},
		{
			name: "scorer failure",
			scorer: &stubScorer{fn: func(string, string) (float64, error) {
				return 0, errors.New("model not loaded")
			}},
			strategy: domain.RerankCrossEncoder,
			nSelect:  5,
			wantErr:  domain.ErrServiceError,
		},
		{
			name: "score out of range",
			scorer: &stubScorer{fn: func(string, string) (float64, error) {
				return 4.2, nil
			}},
			strategy: domain.RerankCrossEncoder,
			nSelect:  5,
			wantErr:  domain.ErrServiceError,
		},
		{
			name: "scorer timeout",
			scorer: &stubScorer{fn: func(string, string) (float64, error) {
				time.Sleep(100 * time.Millisecond)
				return 0.5, nil
			}},
			strategy: domain.RerankCrossEncoder,
			nSelect:  5,
			timeout:  10 * time.Millisecond,
			wantErr:  domain.ErrServiceTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timeout := tt.timeout
			if timeout == 0 {
				timeout = time.Second
			}
			var r *Reranker
			if tt.scorer != nil {
				r = NewReranker(tt.scorer, timeout, 2)
			} else {
				r = NewReranker(nil, timeout, 2)
			}
			_, err := r.Rerank(ctx, "q", candidates(0.9, 0.8), tt.strategy, 0.15, tt.nSelect)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
