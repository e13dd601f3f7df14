package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// DocumentType identifies how a document's bytes are parsed.
type DocumentType string

// Supported document types.
const (
	// DocumentTypePDF is a paged PDF document. Provenance units are 1-based pages.
	DocumentTypePDF DocumentType = "pdf"

	// DocumentTypeTabular is a spreadsheet. Provenance units are 0-based row blocks.
	DocumentTypeTabular DocumentType = "tabular"
)

// Media types returned with resolved references.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// IsValid returns true if the document type is recognised.
func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypePDF, DocumentTypeTabular:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t DocumentType) String() string {
	return string(t)
}

// MediaType returns the MIME type used when serving this document's bytes.
func (t DocumentType) MediaType() string {
	switch t {
	case DocumentTypePDF:
		return MediaTypePDF
	case DocumentTypeTabular:
		return MediaTypeXLSX
	default:
		return "application/octet-stream"
	}
}

// FirstUnit returns the number of the first page or block.
func (t DocumentType) FirstUnit() int {
	if t == DocumentTypePDF {
		return 1
	}
	return 0
}

// DetectDocumentType guesses the type from a document name's extension.
// Returns false when the extension is not recognised.
func DetectDocumentType(name string) (DocumentType, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return DocumentTypePDF, true
	case ".xlsx", ".xlsm":
		return DocumentTypeTabular, true
	default:
		return "", false
	}
}

// Document is a stored source document.
// Raw bytes live in the document store next to this metadata.
type Document struct {
	// Name is the unique key of the document (doc_name).
	Name string

	// Type determines the extractor used for ingestion and slicing.
	Type DocumentType

	// Author is free-form metadata refreshed on re-upload.
	Author string

	// Comment is free-form metadata refreshed on re-upload.
	Comment string

	// Extent is the number of pages (pdf) or row blocks (tabular).
	Extent int

	// ChunkCount is the number of chunks currently indexed.
	ChunkCount int

	// Size is the raw content length in bytes.
	Size int64

	// ContentHash is the hex SHA-256 of the raw bytes.
	ContentHash string

	// CreatedAt is when the document was first indexed.
	CreatedAt time.Time

	// UpdatedAt is when the document was last indexed.
	UpdatedAt time.Time
}

// LastUnit returns the number of the last page or block.
func (d *Document) LastUnit() int {
	return d.Type.FirstUnit() + d.Extent - 1
}

// Contains reports whether the inclusive range lies within the document's extent.
func (d *Document) Contains(from, to int) bool {
	return from <= to && from >= d.Type.FirstUnit() && to <= d.LastUnit()
}

// ChunkDraft is extracted text with provenance, before an id or embedding is assigned.
type ChunkDraft struct {
	// Content is the extracted text.
	Content string

	// PageFrom is the first page or block covered (inclusive).
	PageFrom int

	// PageTo is the last page or block covered (inclusive).
	PageTo int
}

// Chunk represents an indexed unit within a document.
type Chunk struct {
	// ID is stable for a given document name, position and content.
	ID string

	// DocName links to the parent Document.
	DocName string

	// Position is the ordinal position within the document.
	Position int

	// Content is the text content of this chunk.
	Content string

	// PageFrom is the first page or block covered (inclusive).
	PageFrom int

	// PageTo is the last page or block covered (inclusive).
	PageTo int
}

// IndexEntry pairs a chunk with its embedding. Owned by the vector index.
type IndexEntry struct {
	Chunk     Chunk
	Embedding []float32
}
