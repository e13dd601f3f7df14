package services

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	storemem "github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/memory"
	vecmem "github.com/custodia-labs/sercha-rag/internal/adapters/driven/vector/memory"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/extractors"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors"
)

// --- Mock implementations ---

// keywordEmbedder maps a text to term counts over a fixed vocabulary, so
// texts sharing words with a query land close to it.
type keywordEmbedder struct {
	vocab []string
	delay time.Duration

	mu      sync.Mutex
	batches [][]string
	err     error
}

func newKeywordEmbedder(vocab ...string) *keywordEmbedder {
	return &keywordEmbedder{vocab: vocab}
}

func (e *keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches = append(e.batches, append([]string(nil), texts...))
	err := e.err
	e.mu.Unlock()

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, len(e.vocab)+1)
	for i, w := range e.vocab {
		v[i] = float32(strings.Count(lower, w))
	}
	v[len(e.vocab)] = 0.01
	return v
}

func (e *keywordEmbedder) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

func (e *keywordEmbedder) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.batches)
}

// stubScorer scores with fn and counts calls.
type stubScorer struct {
	fn    func(query, passage string) (float64, error)
	calls atomic.Int32
}

func (s *stubScorer) Score(ctx context.Context, query, passage string) (float64, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	score, err := s.fn(query, passage)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, ctxErr
	}
	return score, err
}

// overlapScorer scores by the share of query words found in the passage.
func overlapScorer() *stubScorer {
	return &stubScorer{fn: func(query, passage string) (float64, error) {
		words := strings.Fields(strings.ToLower(query))
		lower := strings.ToLower(passage)
		hit := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				hit++
			}
		}
		return float64(hit) / float64(len(words)), nil
	}}
}

// stubLLM records prompts and answers with fixed text.
type stubLLM struct {
	answer     string
	answerErr  error
	rewrite    string
	rewriteErr error

	mu       sync.Mutex
	prompts  []string
	rewrites []string
}

func (l *stubLLM) Generate(_ context.Context, prompt string) (string, error) {
	l.mu.Lock()
	l.prompts = append(l.prompts, prompt)
	l.mu.Unlock()
	if l.answerErr != nil {
		return "", l.answerErr
	}
	return l.answer, nil
}

func (l *stubLLM) RewriteQuery(_ context.Context, query string, passages []string) (string, error) {
	l.mu.Lock()
	l.rewrites = append(l.rewrites, query)
	l.mu.Unlock()
	if l.rewriteErr != nil {
		return "", l.rewriteErr
	}
	return l.rewrite, nil
}

// faultyIndex wraps an index and injects errors.
type faultyIndex struct {
	driven.VectorIndex
	upsertErr error
	searchErr error
	deleteErr error
}

func (f *faultyIndex) Upsert(ctx context.Context, docName string, entries []domain.IndexEntry) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.VectorIndex.Upsert(ctx, docName, entries)
}

func (f *faultyIndex) Search(ctx context.Context, query []float32, k int) ([]domain.VectorHit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.VectorIndex.Search(ctx, query, k)
}

func (f *faultyIndex) Delete(ctx context.Context, docName string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.VectorIndex.Delete(ctx, docName)
}

// failingSaveStore wraps a document store whose writes fail.
type failingSaveStore struct {
	driven.DocumentStore
	err error
}

func (f *failingSaveStore) SaveDocument(context.Context, *domain.Document, []byte) error {
	return f.err
}

// --- Test environment ---

// testEnv wires every service over in-memory adapters.
type testEnv struct {
	embedder *keywordEmbedder
	scorer   *stubScorer
	llm      *stubLLM
	index    *faultyIndex
	mem      *vecmem.Index
	docs     *storemem.DocumentStore
	locks    *KeyedMutex

	indexer   *IndexService
	query     *QueryService
	refs      *ReferenceService
	documents *DocumentService
}

var testVocab = []string{"alpha", "beta", "gamma", "delta", "revenue", "widget", "warranty", "latency"}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	registry := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(registry)
	pipeline, err := registry.BuildPipeline(domain.DefaultPipelineConfig())
	require.NoError(t, err)

	env := &testEnv{
		embedder: newKeywordEmbedder(testVocab...),
		scorer:   overlapScorer(),
		llm:      &stubLLM{answer: "grounded answer"},
		mem:      vecmem.NewIndex(),
		docs:     storemem.NewDocumentStore(),
		locks:    NewKeyedMutex(),
	}
	env.index = &faultyIndex{VectorIndex: env.mem}
	extractorRegistry := extractors.NewDefaultRegistry(2)

	env.indexer = NewIndexService(extractorRegistry, pipeline, env.embedder, env.index, env.docs, env.locks, IndexConfig{
		BatchSize:    2,
		Concurrency:  2,
		EmbedTimeout: time.Second,
	})
	env.query = NewQueryService(
		NewRetriever(env.embedder, env.index, time.Second),
		NewReranker(env.scorer, time.Second, 4),
		NewRefiner(env.llm, time.Second, 0),
		NewSynthesizer(env.llm, time.Second),
	)
	env.refs = NewReferenceService(env.docs, extractorRegistry)
	env.documents = NewDocumentService(env.docs, env.index, env.locks)
	return env
}

// chunk builds a chunk for direct service tests.
func chunk(doc string, pos int, content string, from, to int) domain.Chunk {
	return domain.Chunk{
		ID:       ChunkID(doc, pos, content),
		DocName:  doc,
		Position: pos,
		Content:  content,
		PageFrom: from,
		PageTo:   to,
	}
}
