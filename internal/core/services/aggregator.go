package services

import (
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// AggregateReferences builds the citation table from the selected hits.
//
// Rows keep the order in which their document range first appears in the
// selection, which is descending score. Ranges of the same document that
// overlap or touch are merged into one row carrying the highest score.
func AggregateReferences(selected []domain.RankedHit) domain.ReferenceTable {
	table := make(domain.ReferenceTable, 0, len(selected))
	for _, h := range selected {
		ref := domain.Reference{
			DocName:  h.Chunk.DocName,
			PageFrom: h.Chunk.PageFrom,
			PageTo:   h.Chunk.PageTo,
			Score:    h.Score,
		}
		table = mergeInto(table, ref)
	}
	return table
}

// mergeInto folds ref into the first mergeable row, then keeps folding that
// row into later rows it now touches, until no two rows of the document touch.
func mergeInto(table domain.ReferenceTable, ref domain.Reference) domain.ReferenceTable {
	target := -1
	for i := range table {
		if touches(table[i], ref) {
			target = i
			break
		}
	}
	if target < 0 {
		return append(table, ref)
	}

	table[target] = union(table[target], ref)
	for {
		merged := false
		for j := target + 1; j < len(table); j++ {
			if touches(table[target], table[j]) {
				table[target] = union(table[target], table[j])
				table = append(table[:j], table[j+1:]...)
				merged = true
				break
			}
		}
		if !merged {
			return table
		}
	}
}

func touches(a, b domain.Reference) bool {
	return a.DocName == b.DocName && b.PageFrom <= a.PageTo+1 && a.PageFrom <= b.PageTo+1
}

func union(a, b domain.Reference) domain.Reference {
	return domain.Reference{
		DocName:  a.DocName,
		PageFrom: min(a.PageFrom, b.PageFrom),
		PageTo:   max(a.PageTo, b.PageTo),
		Score:    max(a.Score, b.Score),
	}
}
