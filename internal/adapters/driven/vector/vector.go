// Package vector holds the similarity and ordering rules shared by the
// vector index backends.
//
// Backends live in subpackages:
//
//   - memory: copy-on-write snapshots, for tests and ephemeral runs
//   - qdrant: a Qdrant collection reached over gRPC
//
// The SQLite backend lives with the SQLite store so it can share its database.
package vector

import (
	"math"
	"slices"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// Candidate is a scored chunk awaiting ordering.
type Candidate struct {
	Hit domain.VectorHit

	// Seq orders documents by when their current entries were inserted.
	Seq int64
}

// Cosine returns the cosine similarity of two equal-length vectors.
// A zero vector has similarity 0 with everything.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK orders candidates by descending similarity and returns at most k hits.
// Equal similarities keep insertion order: older documents first, then
// chunk position.
func TopK(cands []Candidate, k int) []domain.VectorHit {
	if k <= 0 || len(cands) == 0 {
		return nil
	}
	slices.SortStableFunc(cands, func(a, b Candidate) int {
		switch {
		case a.Hit.Similarity > b.Hit.Similarity:
			return -1
		case a.Hit.Similarity < b.Hit.Similarity:
			return 1
		case a.Seq != b.Seq:
			if a.Seq < b.Seq {
				return -1
			}
			return 1
		default:
			return a.Hit.Chunk.Position - b.Hit.Chunk.Position
		}
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	hits := make([]domain.VectorHit, len(cands))
	for i, c := range cands {
		hits[i] = c.Hit
	}
	return hits
}

// CheckDimensions verifies every entry embedding has length dim.
// A dim of 0 adopts the first entry's length. Returns the dimension in use.
func CheckDimensions(entries []domain.IndexEntry, dim int) (int, bool) {
	for _, e := range entries {
		if dim == 0 {
			dim = len(e.Embedding)
		}
		if len(e.Embedding) != dim || dim == 0 {
			return dim, false
		}
	}
	return dim, true
}
