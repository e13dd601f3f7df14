// Package chunker provides a fixed-size text windowing processor.
package chunker

import (
	"context"
	"unicode"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Processor splits each draft into windows of at most chunkSize runes.
// Windows never cross draft boundaries, so every window keeps the page
// range of the draft it came from.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Process windows every draft. Drafts that already fit are passed through.
func (p *Processor) Process(
	ctx context.Context, _ *domain.Document, drafts []domain.ChunkDraft,
) ([]domain.ChunkDraft, error) {
	out := make([]domain.ChunkDraft, 0, len(drafts))
	for _, d := range drafts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, text := range p.split(d.Content) {
			out = append(out, domain.ChunkDraft{
				Content:  text,
				PageFrom: d.PageFrom,
				PageTo:   d.PageTo,
			})
		}
	}
	return out, nil
}

// split cuts text into rune windows, preferring to end a window on whitespace
// in its second half.
func (p *Processor) split(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= p.chunkSize {
		return []string{text}
	}

	var windows []string
	start := 0
	for start < n {
		end := start + p.chunkSize
		if end >= n {
			windows = append(windows, string(runes[start:]))
			break
		}
		for i := end; i > start+p.chunkSize/2; i-- {
			if unicode.IsSpace(runes[i-1]) {
				end = i
				break
			}
		}
		windows = append(windows, string(runes[start:end]))

		next := end - p.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return windows
}
