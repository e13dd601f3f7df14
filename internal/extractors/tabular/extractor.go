// Package tabular extracts row blocks from spreadsheets and re-encodes block
// ranges as standalone workbooks.
package tabular

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Extractor implements the interface.
var _ driven.Extractor = (*Extractor)(nil)

// DefaultRowsPerBlock is the default number of data rows per block.
const DefaultRowsPerBlock = 20

// Extractor handles xlsx workbooks.
//
// Every sheet is split into blocks of rowsPerBlock non-empty data rows. The
// first non-empty row of a sheet is its header and is repeated in each of the
// sheet's blocks. Blocks are numbered from 0 across sheets in workbook order.
type Extractor struct {
	rowsPerBlock int
}

// Option configures the tabular extractor.
type Option func(*Extractor)

// WithRowsPerBlock sets the number of data rows per block.
func WithRowsPerBlock(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.rowsPerBlock = n
		}
	}
}

// New creates a new tabular extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{rowsPerBlock: DefaultRowsPerBlock}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Type returns the document type this extractor handles.
func (e *Extractor) Type() domain.DocumentType {
	return domain.DocumentTypeTabular
}

// RowsPerBlock returns the configured block size.
func (e *Extractor) RowsPerBlock() int {
	return e.rowsPerBlock
}

// block is a run of rows from one sheet.
type block struct {
	sheet  string
	header []string
	rows   [][]string
}

func (b block) text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sheet: %s\n", b.sheet)
	sb.WriteString(joinRow(b.header))
	for _, row := range b.rows {
		sb.WriteString("\n")
		sb.WriteString(joinRow(row))
	}
	return sb.String()
}

// Extract returns one draft per block.
func (e *Extractor) Extract(ctx context.Context, content []byte) (*driven.ExtractResult, error) {
	blocks, err := e.readBlocks(ctx, content)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("tabular: no rows: %w", domain.ErrEmptyDocument)
	}

	drafts := make([]domain.ChunkDraft, len(blocks))
	for i, b := range blocks {
		drafts[i] = domain.ChunkDraft{
			Content:  b.text(),
			PageFrom: i,
			PageTo:   i,
		}
	}

	return &driven.ExtractResult{
		Extent: len(blocks),
		Drafts: drafts,
	}, nil
}

// Slice writes blocks from..to into a new workbook. Each block goes to a sheet
// named after its source sheet, with the header row written once at the top.
func (e *Extractor) Slice(ctx context.Context, content []byte, from, to int) ([]byte, error) {
	blocks, err := e.readBlocks(ctx, content)
	if err != nil {
		return nil, err
	}
	if from < 0 || to >= len(blocks) || from > to {
		return nil, fmt.Errorf("tabular: blocks %d-%d outside 0-%d: %w", from, to, len(blocks)-1, domain.ErrInvalidInput)
	}

	out := excelize.NewFile()
	defer out.Close()

	nextRow := make(map[string]int)
	for i, b := range blocks[from : to+1] {
		if _, seen := nextRow[b.sheet]; !seen {
			if err := addSheet(out, b.sheet, i == 0); err != nil {
				return nil, err
			}
			if err := writeRow(out, b.sheet, 1, b.header); err != nil {
				return nil, err
			}
			nextRow[b.sheet] = 2
		}
		for _, row := range b.rows {
			if err := writeRow(out, b.sheet, nextRow[b.sheet], row); err != nil {
				return nil, err
			}
			nextRow[b.sheet]++
		}
	}

	buf, err := out.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("tabular: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Extractor) readBlocks(ctx context.Context, content []byte) ([]block, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("tabular: no content: %w", domain.ErrUnsupportedFormat)
	}
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("tabular: %v: %w", err, domain.ErrUnsupportedFormat)
	}
	defer f.Close()

	var blocks []block
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("tabular: read sheet %q: %v: %w", sheet, err, domain.ErrUnsupportedFormat)
		}
		blocks = append(blocks, e.splitSheet(sheet, nonEmptyRows(rows))...)
	}
	return blocks, nil
}

func (e *Extractor) splitSheet(sheet string, rows [][]string) []block {
	if len(rows) == 0 {
		return nil
	}
	header, data := rows[0], rows[1:]
	if len(data) == 0 {
		return []block{{sheet: sheet, header: header}}
	}

	var blocks []block
	for start := 0; start < len(data); start += e.rowsPerBlock {
		end := min(start+e.rowsPerBlock, len(data))
		blocks = append(blocks, block{sheet: sheet, header: header, rows: data[start:end]})
	}
	return blocks
}

func nonEmptyRows(rows [][]string) [][]string {
	kept := make([][]string, 0, len(rows))
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				kept = append(kept, row)
				break
			}
		}
	}
	return kept
}

func joinRow(row []string) string {
	cells := make([]string, len(row))
	for i, c := range row {
		cells[i] = strings.TrimSpace(c)
	}
	return strings.Join(cells, " | ")
}

// addSheet renames the default sheet for the first block and creates the rest.
func addSheet(f *excelize.File, name string, first bool) error {
	if first {
		if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
			return fmt.Errorf("tabular: rename sheet: %w", err)
		}
		return nil
	}
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("tabular: create sheet %q: %w", name, err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, row []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return fmt.Errorf("tabular: %w", err)
	}
	values := make([]interface{}, len(row))
	for i, v := range row {
		values[i] = v
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("tabular: write row %d of %q: %w", rowNum, sheet, err)
	}
	return nil
}
