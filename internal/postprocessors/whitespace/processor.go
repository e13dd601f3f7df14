// Package whitespace provides a processor that normalises extracted text.
package whitespace

import (
	"context"
	"strings"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// Processor collapses runs of whitespace and drops drafts left empty.
// Line breaks are kept as single newlines since table rows and PDF
// paragraphs rely on them.
type Processor struct{}

// New creates a whitespace processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "whitespace"
}

// Process normalises the content of every draft.
func (p *Processor) Process(
	_ context.Context, _ *domain.Document, drafts []domain.ChunkDraft,
) ([]domain.ChunkDraft, error) {
	out := make([]domain.ChunkDraft, 0, len(drafts))
	for _, d := range drafts {
		text := Normalise(d.Content)
		if text == "" {
			continue
		}
		d.Content = text
		out = append(out, d)
	}
	return out, nil
}

// Normalise trims each line, collapses inner spaces and removes blank lines.
func Normalise(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
