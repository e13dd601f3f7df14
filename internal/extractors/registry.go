package extractors

import (
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/extractors/pdf"
	"github.com/custodia-labs/sercha-rag/internal/extractors/tabular"
)

// Ensure Registry implements the interface.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry maps document types to extractors.
type Registry struct {
	mu         sync.RWMutex
	extractors map[domain.DocumentType]driven.Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		extractors: make(map[domain.DocumentType]driven.Extractor),
	}
}

// NewDefaultRegistry creates a registry with the pdf and tabular extractors.
func NewDefaultRegistry(rowsPerBlock int) *Registry {
	r := NewRegistry()
	r.Register(pdf.New())
	r.Register(tabular.New(tabular.WithRowsPerBlock(rowsPerBlock)))
	return r
}

// Get returns the extractor for t.
func (r *Registry) Get(t domain.DocumentType) (driven.Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[t]
	return e, ok
}

// Register adds or replaces the extractor for its type.
func (r *Registry) Register(extractor driven.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[extractor.Type()] = extractor
}

// SupportedTypes returns all registered document types, sorted.
func (r *Registry) SupportedTypes() []domain.DocumentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]domain.DocumentType, 0, len(r.extractors))
	for t := range r.extractors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
