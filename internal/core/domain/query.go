package domain

import (
	"fmt"
	"strings"
)

// RerankStrategy selects how retrieval candidates are rescored.
// The set is closed: each value has exactly one handler in the reranker.
type RerankStrategy string

// Available rerank strategies.
const (
	// RerankCrossEncoder scores each (query, passage) pair with an external cross-encoder.
	RerankCrossEncoder RerankStrategy = "cross_encoder"

	// RerankNone passes the retrieval similarity through as the score.
	RerankNone RerankStrategy = "none"
)

// IsValid returns true if the strategy is recognised.
func (s RerankStrategy) IsValid() bool {
	switch s {
	case RerankCrossEncoder, RerankNone:
		return true
	default:
		return false
	}
}

// RequiresScorer returns true if this strategy needs a scoring service.
func (s RerankStrategy) RequiresScorer() bool {
	return s == RerankCrossEncoder
}

// String returns the string representation.
func (s RerankStrategy) String() string {
	return string(s)
}

// Description returns a human-readable description of the strategy.
func (s RerankStrategy) Description() string {
	switch s {
	case RerankCrossEncoder:
		return "Cross-encoder (pairwise query/passage scoring)"
	case RerankNone:
		return "None (retrieval similarity)"
	default:
		return "Unknown"
	}
}

// AllRerankStrategies returns all available rerank strategies.
func AllRerankStrategies() []RerankStrategy {
	return []RerankStrategy{RerankCrossEncoder, RerankNone}
}

// QueryOptions controls a single query.
type QueryOptions struct {
	// NRetrieve is the number of candidates fetched from the index.
	NRetrieve int

	// NSelect is the maximum number of candidates kept after reranking.
	NSelect int

	// Strategy is the rerank strategy.
	Strategy RerankStrategy

	// MinScore drops candidates scoring below it. Must be in [0,1].
	MinScore float64

	// UseRefinement runs one extra retrieve+rerank pass with a rewritten query.
	UseRefinement bool
}

// Validate checks the option invariants.
func (o QueryOptions) Validate() error {
	if o.NRetrieve <= 0 {
		return fmt.Errorf("%w: n_retrieve must be positive", ErrInvalidInput)
	}
	if o.NSelect <= 0 {
		return fmt.Errorf("%w: n_select must be positive", ErrInvalidInput)
	}
	if o.NSelect > o.NRetrieve {
		return fmt.Errorf("%w: n_select (%d) exceeds n_retrieve (%d)", ErrInvalidInput, o.NSelect, o.NRetrieve)
	}
	if !o.Strategy.IsValid() {
		return fmt.Errorf("%w: unknown rerank strategy %q", ErrInvalidInput, o.Strategy)
	}
	if o.MinScore < 0 || o.MinScore > 1 {
		return fmt.Errorf("%w: min score %v outside [0,1]", ErrInvalidInput, o.MinScore)
	}
	return nil
}

// DefaultQueryOptions returns the interactive defaults.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		NRetrieve:     70,
		NSelect:       5,
		Strategy:      RerankCrossEncoder,
		MinScore:      0.15,
		UseRefinement: false,
	}
}

// ServerQueryOptions returns the defaults used by tool integrations.
func ServerQueryOptions() QueryOptions {
	return QueryOptions{
		NRetrieve:     100,
		NSelect:       10,
		Strategy:      RerankCrossEncoder,
		MinScore:      0.2,
		UseRefinement: true,
	}
}

// VectorHit is a raw nearest-neighbour result from the index.
type VectorHit struct {
	Chunk      Chunk
	Similarity float64
}

// RetrievalHit is a deduplicated candidate with its retrieval rank (0-based).
type RetrievalHit struct {
	Chunk      Chunk
	Similarity float64
	Rank       int
}

// ChunkID returns the id of the candidate chunk.
func (h RetrievalHit) ChunkID() string {
	return h.Chunk.ID
}

// RankedHit is a candidate after reranking.
type RankedHit struct {
	RetrievalHit

	// Score is the rerank score in [0,1].
	Score float64

	// Selected is true when the hit survived filtering and truncation.
	Selected bool
}

// Reference is a citation row: a page or block range of one document.
type Reference struct {
	DocName  string
	PageFrom int
	PageTo   int
	Score    float64
}

// ReferenceTable is an ordered list of deduplicated references.
type ReferenceTable []Reference

// Markdown renders the table for display after an answer.
func (t ReferenceTable) Markdown() string {
	if len(t) == 0 {
		return NoGroundingFound + "\n"
	}
	var b strings.Builder
	b.WriteString("| Document | Page From | Page To | Score |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, r := range t {
		fmt.Fprintf(&b, "| %s | %d | %d | %.3f |\n", escapeCell(r.DocName), r.PageFrom, r.PageTo, r.Score)
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// Answer is the result of a query.
type Answer struct {
	// Query is the text as asked.
	Query string

	// RefinedQuery is the rewritten query, empty when refinement was not applied.
	RefinedQuery string

	// Text is the generated answer.
	Text string

	// Selected holds the hits the answer was grounded on, in rerank order.
	Selected []RankedHit

	// References is the aggregated citation table.
	References ReferenceTable
}

// ReferenceContent is a standalone excerpt of a document.
type ReferenceContent struct {
	DocName   string
	PageFrom  int
	PageTo    int
	MediaType string
	Content   []byte
}
