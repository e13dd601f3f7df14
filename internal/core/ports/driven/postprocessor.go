package driven

import (
	"context"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// PostProcessor transforms extracted chunk drafts.
// PostProcessors are chained in a pipeline (e.g., whitespace cleaning, windowing).
type PostProcessor interface {
	// Name returns the processor name for logging and configuration.
	Name() string

	// Process receives drafts and returns the transformed drafts.
	// Provenance (page range) must be preserved or narrowed, never widened
	// beyond the input draft.
	Process(ctx context.Context, doc *domain.Document, drafts []domain.ChunkDraft) ([]domain.ChunkDraft, error)
}

// PostProcessorPipeline chains multiple PostProcessors.
type PostProcessorPipeline interface {
	// Process runs the drafts through all processors in order.
	Process(ctx context.Context, doc *domain.Document, drafts []domain.ChunkDraft) ([]domain.ChunkDraft, error)
}
