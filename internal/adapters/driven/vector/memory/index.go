// Package memory provides an in-process vector index.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/vector"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

type docEntries struct {
	seq     int64
	entries []domain.IndexEntry
}

// snapshot is immutable once published.
type snapshot struct {
	dim  int
	docs map[string]docEntries
}

// Index is a brute-force cosine index. Readers load an immutable snapshot;
// writers build a new one and publish it with a single pointer swap.
type Index struct {
	mu   sync.Mutex // serialises writers
	snap atomic.Pointer[snapshot]
	seq  int64
}

// NewIndex creates an empty index. The dimension is fixed by the first upsert.
func NewIndex() *Index {
	idx := &Index{}
	idx.snap.Store(&snapshot{docs: map[string]docEntries{}})
	return idx
}

// Upsert replaces every entry of docName.
func (i *Index) Upsert(ctx context.Context, docName string, entries []domain.IndexEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	cur := i.snap.Load()
	dim, ok := vector.CheckDimensions(entries, cur.dim)
	if !ok {
		return fmt.Errorf("%w: embedding dimension mismatch for %s (index uses %d)",
			domain.ErrInvalidInput, docName, cur.dim)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	next := &snapshot{dim: dim, docs: maps.Clone(cur.docs)}
	if len(entries) == 0 {
		delete(next.docs, docName)
	} else {
		i.seq++
		owned := make([]domain.IndexEntry, len(entries))
		copy(owned, entries)
		next.docs[docName] = docEntries{seq: i.seq, entries: owned}
	}
	i.snap.Store(next)
	return nil
}

// Search returns at most k hits ordered by descending cosine similarity.
func (i *Index) Search(ctx context.Context, query []float32, k int) ([]domain.VectorHit, error) {
	snap := i.snap.Load()
	if len(snap.docs) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != snap.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index uses %d",
			domain.ErrInvalidInput, len(query), snap.dim)
	}

	var cands []vector.Candidate
	for _, doc := range snap.docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, e := range doc.entries {
			cands = append(cands, vector.Candidate{
				Hit: domain.VectorHit{Chunk: e.Chunk, Similarity: vector.Cosine(query, e.Embedding)},
				Seq: doc.seq,
			})
		}
	}
	return vector.TopK(cands, k), nil
}

// Delete removes every entry of docName.
func (i *Index) Delete(_ context.Context, docName string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	cur := i.snap.Load()
	if _, ok := cur.docs[docName]; !ok {
		return nil
	}
	next := &snapshot{dim: cur.dim, docs: maps.Clone(cur.docs)}
	delete(next.docs, docName)
	i.snap.Store(next)
	return nil
}

// Len returns the number of indexed chunks.
func (i *Index) Len() int {
	n := 0
	for _, doc := range i.snap.Load().docs {
		n += len(doc.entries)
	}
	return n
}

// Close is a no-op.
func (i *Index) Close() error {
	return nil
}
