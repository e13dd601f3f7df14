package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure IndexService implements the interface.
var _ driving.IndexService = (*IndexService)(nil)

// Defaults for IndexConfig.
const (
	DefaultEmbedBatchSize   = 32
	DefaultEmbedConcurrency = 4
)

// chunkNamespace scopes name-based chunk ids.
var chunkNamespace = uuid.MustParse("6f1d8a52-3c0e-5b7a-9e41-2d8c7f0b9a13")

// IndexConfig tunes ingestion.
type IndexConfig struct {
	// BatchSize is the number of texts per embedding call.
	BatchSize int

	// Concurrency bounds parallel embedding calls.
	Concurrency int

	// EmbedTimeout bounds each embedding call.
	EmbedTimeout time.Duration
}

// IndexService ingests documents into the vector index and document store.
type IndexService struct {
	extractors driven.ExtractorRegistry
	pipeline   driven.PostProcessorPipeline
	embedder   driven.Embedder
	index      driven.VectorIndex
	docStore   driven.DocumentStore
	locks      *KeyedMutex
	cfg        IndexConfig
	now        func() time.Time
}

// NewIndexService creates a new index service. locks must be shared with
// every other service that writes documents.
func NewIndexService(
	extractors driven.ExtractorRegistry,
	pipeline driven.PostProcessorPipeline,
	embedder driven.Embedder,
	index driven.VectorIndex,
	docStore driven.DocumentStore,
	locks *KeyedMutex,
	cfg IndexConfig,
) *IndexService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbedBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultEmbedConcurrency
	}
	return &IndexService{
		extractors: extractors,
		pipeline:   pipeline,
		embedder:   embedder,
		index:      index,
		docStore:   docStore,
		locks:      locks,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Index parses, embeds and atomically replaces the chunk set of req.Name.
// Re-indexing the same name is serialised; different names index concurrently.
// On any failure the previously indexed state of the document is kept. A
// failed save after the swap rebuilds the previous chunk set.
func (s *IndexService) Index(ctx context.Context, req driving.IndexRequest) (doc *domain.Document, err error) {
	ctx, span := startSpan(ctx, "index", attribute.String("doc_name", req.Name))
	defer func() { endSpan(span, err) }()

	logger.Section("Index " + req.Name)
	defer logger.Elapsed("index", time.Now())

	docType, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	extractor, ok := s.extractors.Get(docType)
	if !ok {
		return nil, fmt.Errorf("index %s: %w: no extractor for %s", req.Name, domain.ErrUnsupportedFormat, docType)
	}

	unlock, err := s.locks.Lock(ctx, req.Name)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", req.Name, err)
	}
	defer unlock()

	doc = &domain.Document{
		Name:        req.Name,
		Type:        docType,
		Author:      req.Author,
		Comment:     req.Comment,
		Size:        int64(len(req.Content)),
		ContentHash: contentHash(req.Content),
	}
	entries, err := s.prepare(ctx, extractor, doc, req.Content)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", req.Name, err)
	}

	// Last point at which cancellation leaves no trace.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("index %s: %w", req.Name, err)
	}
	prev, err := s.docStore.GetDocument(ctx, req.Name)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("index %s: load previous document: %w", req.Name, err)
	}
	if err := s.index.Upsert(ctx, req.Name, entries); err != nil {
		return nil, fmt.Errorf("index %s: %w", req.Name, indexError(ctx, "upsert", err))
	}

	doc.ChunkCount = len(entries)
	doc.UpdatedAt = s.now()
	doc.CreatedAt = doc.UpdatedAt
	if prev != nil {
		doc.CreatedAt = prev.CreatedAt
	}
	// The swap is done, so the write must not be abandoned half way.
	if err := s.docStore.SaveDocument(context.WithoutCancel(ctx), doc, req.Content); err != nil {
		logger.Error("Indexed %s but could not store it: %v", req.Name, err)
		s.rollback(context.WithoutCancel(ctx), req.Name, prev)
		return nil, fmt.Errorf("index %s: save document: %w", req.Name, err)
	}

	logger.Info("Indexed %s: %d chunks over %d units", req.Name, len(entries), doc.Extent)
	span.SetAttributes(attribute.Int("chunks", len(entries)))
	return doc, nil
}

// prepare extracts, post-processes and embeds content. doc.Extent is set
// from the extraction.
func (s *IndexService) prepare(
	ctx context.Context,
	extractor driven.Extractor,
	doc *domain.Document,
	content []byte,
) ([]domain.IndexEntry, error) {
	extracted, err := extractor.Extract(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	logger.Debug("Extracted %d drafts from %d %s units", len(extracted.Drafts), extracted.Extent, doc.Type)
	doc.Extent = extracted.Extent

	drafts, err := s.pipeline.Process(ctx, doc, extracted.Drafts)
	if err != nil {
		return nil, fmt.Errorf("post-process: %w", err)
	}
	if len(drafts) == 0 {
		return nil, domain.ErrEmptyDocument
	}
	chunks, err := buildChunks(doc, drafts)
	if err != nil {
		return nil, err
	}

	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.IndexEntry, len(chunks))
	for i := range chunks {
		entries[i] = domain.IndexEntry{Chunk: chunks[i], Embedding: vectors[i]}
	}
	return entries, nil
}

// rollback puts the index back to the stored state of name after a failed
// save: the previous chunk set is rebuilt from its stored bytes, or the new
// one is dropped when there was no previous document. Failures are logged.
func (s *IndexService) rollback(ctx context.Context, name string, prev *domain.Document) {
	if prev == nil {
		if err := s.index.Delete(ctx, name); err != nil {
			logger.Error("Rollback of %s failed: %v", name, err)
		}
		return
	}

	err := func() error {
		extractor, ok := s.extractors.Get(prev.Type)
		if !ok {
			return fmt.Errorf("%w: no extractor for %s", domain.ErrUnsupportedFormat, prev.Type)
		}
		content, err := s.docStore.GetContent(ctx, name)
		if err != nil {
			return fmt.Errorf("load content: %w", err)
		}
		restored := *prev
		entries, err := s.prepare(ctx, extractor, &restored, content)
		if err != nil {
			return err
		}
		return s.index.Upsert(ctx, name, entries)
	}()
	if err != nil {
		logger.Error("Rollback of %s failed: %v", name, err)
		return
	}
	logger.Warn("Restored previous chunks of %s", name)
}

func (s *IndexService) validate(req driving.IndexRequest) (domain.DocumentType, error) {
	if strings.TrimSpace(req.Name) == "" {
		return "", fmt.Errorf("index: %w: document name is required", domain.ErrInvalidInput)
	}
	docType := req.Type
	if docType == "" {
		detected, ok := domain.DetectDocumentType(req.Name)
		if !ok {
			return "", fmt.Errorf("index %s: %w: cannot detect type from name", req.Name, domain.ErrUnsupportedFormat)
		}
		docType = detected
	}
	if !docType.IsValid() {
		return "", fmt.Errorf("index %s: %w: %q", req.Name, domain.ErrUnsupportedFormat, docType)
	}
	return docType, nil
}

// buildChunks assigns positions and stable ids. Page ranges outside the
// document's extent are rejected.
func buildChunks(doc *domain.Document, drafts []domain.ChunkDraft) ([]domain.Chunk, error) {
	chunks := make([]domain.Chunk, len(drafts))
	for i, d := range drafts {
		if !doc.Contains(d.PageFrom, d.PageTo) {
			return nil, fmt.Errorf("%w: chunk %d range %d-%d outside document", domain.ErrInvalidInput, i, d.PageFrom, d.PageTo)
		}
		chunks[i] = domain.Chunk{
			ID:       ChunkID(doc.Name, i, d.Content),
			DocName:  doc.Name,
			Position: i,
			Content:  d.Content,
			PageFrom: d.PageFrom,
			PageTo:   d.PageTo,
		}
	}
	return chunks, nil
}

// ChunkID derives a stable chunk id from document name, position and content.
func ChunkID(docName string, position int, content string) string {
	name := docName + "\x00" + strconv.Itoa(position) + "\x00" + content
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// embedChunks embeds chunk texts in bounded batches, with at most
// cfg.Concurrency batches in flight.
func (s *IndexService) embedChunks(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := range texts {
				texts[i] = chunks[start+i].Content
			}
			var batch [][]float32
			err := callService(gctx, "embedding", s.cfg.EmbedTimeout, func(ctx context.Context) error {
				var embedErr error
				batch, embedErr = s.embedder.Embed(ctx, texts)
				return embedErr
			})
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
			}
			if len(batch) != len(texts) {
				return fmt.Errorf("embed chunks %d-%d: %w: got %d vectors for %d texts",
					start, end-1, domain.ErrServiceError, len(batch), len(texts))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("embed: %w: vector %d has dimension %d, want %d",
				domain.ErrServiceError, i, len(v), dim)
		}
	}
	logger.Debug("Embedded %d chunks (dimension %d)", len(vectors), dim)
	return vectors, nil
}

// IsIndexingError reports whether err is one of the ingestion failures a
// caller can fix by changing the input rather than retrying.
func IsIndexingError(err error) bool {
	return errors.Is(err, domain.ErrUnsupportedFormat) ||
		errors.Is(err, domain.ErrEmptyDocument) ||
		errors.Is(err, domain.ErrInvalidInput)
}
