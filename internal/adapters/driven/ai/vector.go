package ai

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/vector/memory"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/vector/qdrant"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// CreateVectorIndex returns the index for the configured backend. local is
// the sqlite-backed index opened alongside the document store and is used
// for the sqlite backend.
func CreateVectorIndex(ctx context.Context, settings *domain.VectorSettings, local driven.VectorIndex) (driven.VectorIndex, error) {
	switch settings.Backend {
	case domain.VectorBackendSQLite, "":
		if local == nil {
			return nil, fmt.Errorf("%w: sqlite vector index", domain.ErrNotConfigured)
		}
		return local, nil

	case domain.VectorBackendMemory:
		return memory.NewIndex(), nil

	case domain.VectorBackendQdrant:
		idx, err := qdrant.New(ctx, qdrant.Config{
			Host:       settings.QdrantHost,
			Port:       settings.QdrantPort,
			APIKey:     settings.QdrantAPIKey,
			Collection: settings.Collection,
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant %s:%d: %w", settings.QdrantHost, settings.QdrantPort, err)
		}
		return idx, nil

	default:
		return nil, fmt.Errorf("%w: vector backend %q", domain.ErrInvalidInput, settings.Backend)
	}
}
