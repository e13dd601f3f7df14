// Package pdf extracts per-page text from PDF documents and slices page ranges.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	pdftext "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

func init() {
	// pdfcpu must not create a config directory under the user's home.
	model.ConfigPath = "disable"
}

// Extractor handles PDF documents. Pages are numbered from 1.
type Extractor struct{}

// New creates a new PDF extractor.
func New() *Extractor {
	return &Extractor{}
}

// Type returns the document type this extractor handles.
func (e *Extractor) Type() domain.DocumentType {
	return domain.DocumentTypePDF
}

// Extract returns one draft per page that has text.
func (e *Extractor) Extract(ctx context.Context, content []byte) (*driven.ExtractResult, error) {
	pageCount, err := PageCount(content)
	if err != nil {
		return nil, err
	}

	pages, err := pageTexts(content)
	if err != nil {
		return nil, err
	}

	drafts := make([]domain.ChunkDraft, 0, len(pages))
	for i, text := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := i + 1
		if page > pageCount {
			break
		}
		if strings.TrimSpace(text) == "" {
			logger.Debug("pdf: page %d has no text", page)
			continue
		}
		drafts = append(drafts, domain.ChunkDraft{
			Content:  text,
			PageFrom: page,
			PageTo:   page,
		})
	}

	if len(drafts) == 0 {
		return nil, fmt.Errorf("pdf: no text on %d pages: %w", pageCount, domain.ErrEmptyDocument)
	}

	return &driven.ExtractResult{
		Extent: pageCount,
		Drafts: drafts,
	}, nil
}

// Slice returns a standalone PDF holding exactly pages from..to.
func (e *Extractor) Slice(_ context.Context, content []byte, from, to int) ([]byte, error) {
	pageCount, err := PageCount(content)
	if err != nil {
		return nil, err
	}
	if from < 1 || to > pageCount || from > to {
		return nil, fmt.Errorf("pdf: pages %d-%d outside 1-%d: %w", from, to, pageCount, domain.ErrInvalidInput)
	}

	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(content), &buf, []string{pageSelection(from, to)}, config()); err != nil {
		return nil, fmt.Errorf("pdf: trim pages %d-%d: %w", from, to, err)
	}
	return buf.Bytes(), nil
}

// PageCount returns the number of pages in a PDF.
func PageCount(content []byte) (int, error) {
	if len(content) == 0 {
		return 0, fmt.Errorf("pdf: no content: %w", domain.ErrUnsupportedFormat)
	}
	n, err := api.PageCount(bytes.NewReader(content), config())
	if err != nil {
		return 0, fmt.Errorf("pdf: %v: %w", err, domain.ErrUnsupportedFormat)
	}
	return n, nil
}

func pageSelection(from, to int) string {
	if from == to {
		return strconv.Itoa(from)
	}
	return fmt.Sprintf("%d-%d", from, to)
}

func config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// pageTexts reads the plain text of every page. The text decoder panics on
// some malformed inputs, which is reported as an unsupported format.
func pageTexts(content []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf: text decoder: %v: %w", r, domain.ErrUnsupportedFormat)
		}
	}()

	reader, err := pdftext.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("pdf: %v: %w", err, domain.ErrUnsupportedFormat)
	}

	n := reader.NumPage()
	pages = make([]string, n)
	for i := 1; i <= n; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warn("pdf: page %d: %v", i, err)
			continue
		}
		pages[i-1] = text
	}
	return pages, nil
}
