package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure Synthesizer accepts custom prompts.
var _ driven.PromptStoreAware = (*Synthesizer)(nil)

// defaultAnswerPrompt expects the context block then the question.
const defaultAnswerPrompt = `You answer questions using only the numbered context passages below.
Each passage names the document and the pages or blocks it comes from.
If the passages do not contain the answer, say that the documents do not cover it.

Context:
%s

Question: %s

Answer:`

// Synthesizer builds a grounded prompt and calls the generator.
type Synthesizer struct {
	generator driven.Generator
	prompts   driven.PromptStore
	timeout   time.Duration
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(generator driven.Generator, timeout time.Duration) *Synthesizer {
	return &Synthesizer{
		generator: generator,
		timeout:   timeout,
	}
}

// SetPromptStore sets the prompt store for the answer template.
func (s *Synthesizer) SetPromptStore(store driven.PromptStore) {
	s.prompts = store
}

// Synthesize generates the answer text for query from the selected hits.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, selected []domain.RankedHit) (answer string, err error) {
	ctx, span := startSpan(ctx, "synthesize", attribute.Int("passages", len(selected)))
	defer func() { endSpan(span, err) }()
	defer logger.Elapsed("synthesize", time.Now())

	if s.generator == nil {
		return "", fmt.Errorf("synthesize: %w", domain.ErrNotConfigured)
	}

	prompt := s.BuildPrompt(query, selected)
	logger.Debug("Answer prompt: %d characters", len(prompt))

	err = callService(ctx, "generation", s.timeout, func(ctx context.Context) error {
		var genErr error
		answer, genErr = s.generator.Generate(ctx, prompt)
		return genErr
	})
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

// BuildPrompt renders the answer template with provenance-tagged passages.
func (s *Synthesizer) BuildPrompt(query string, selected []domain.RankedHit) string {
	return fmt.Sprintf(s.template(), formatContext(selected), query)
}

func (s *Synthesizer) template() string {
	if s.prompts == nil {
		return defaultAnswerPrompt
	}
	tmpl, err := s.prompts.Load(driven.PromptAnswer)
	if err != nil || strings.Count(tmpl, "%s") != 2 {
		logger.Warn("Answer prompt unusable, using default: %v", err)
		return defaultAnswerPrompt
	}
	return tmpl
}

func formatContext(selected []domain.RankedHit) string {
	if len(selected) == 0 {
		return "(no relevant passages were found)"
	}
	var b strings.Builder
	for i, h := range selected {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s, %s:\n%s", i+1, h.Chunk.DocName, unitLabel(h.Chunk), h.Chunk.Content)
	}
	return b.String()
}

// unitLabel describes a chunk's provenance. Document types are not carried on
// chunks, so the file name decides between pages and blocks.
func unitLabel(c domain.Chunk) string {
	unit := "page"
	if t, ok := domain.DetectDocumentType(c.DocName); ok && t == domain.DocumentTypeTabular {
		unit = "block"
	}
	if c.PageFrom == c.PageTo {
		return fmt.Sprintf("%s %d", unit, c.PageFrom)
	}
	return fmt.Sprintf("%ss %d-%d", unit, c.PageFrom, c.PageTo)
}
