package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// setupTestStore creates a SQLite store in a temporary directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	return store
}

func testDocument(name string) *domain.Document {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Document{
		Name:        name,
		Type:        domain.DocumentTypePDF,
		Author:      "ops",
		Comment:     "first upload",
		Extent:      3,
		ChunkCount:  3,
		Size:        42,
		ContentHash: "abc123",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func testEntry(doc string, pos int, content string, emb ...float32) domain.IndexEntry {
	return domain.IndexEntry{
		Chunk: domain.Chunk{
			ID:       fmt.Sprintf("%s#%d", doc, pos),
			DocName:  doc,
			Position: pos,
			Content:  content,
			PageFrom: pos + 1,
			PageTo:   pos + 1,
		},
		Embedding: emb,
	}
}

// ==================== Store Creation Tests ====================

func TestNewStore_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, filepath.Join(dir, "rag.db"), store.Path())
	_, err = os.Stat(store.Path())
	assert.NoError(t, err)
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.DocumentStore().SaveDocument(ctx, testDocument("a.pdf"), []byte("bytes")))
	require.NoError(t, store.Close())

	store, err = NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	doc, err := store.DocumentStore().GetDocument(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", doc.Name)

	var versions int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 2, versions)
}

// ==================== Document Store Tests ====================

func TestDocumentStore_SaveAndGet(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	want := testDocument("spec.pdf")
	require.NoError(t, docs.SaveDocument(ctx, want, []byte("%PDF-1.4")))

	got, err := docs.GetDocument(ctx, "spec.pdf")
	require.NoError(t, err)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, domain.DocumentTypePDF, got.Type)
	assert.Equal(t, "ops", got.Author)
	assert.Equal(t, 3, got.Extent)
	assert.Equal(t, int64(42), got.Size)
	assert.Equal(t, "abc123", got.ContentHash)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))

	content, err := docs.GetContent(ctx, "spec.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), content)
}

func TestDocumentStore_SaveReplaces(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	require.NoError(t, docs.SaveDocument(ctx, testDocument("a.pdf"), []byte("v1")))
	updated := testDocument("a.pdf")
	updated.Comment = "second upload"
	updated.Extent = 5
	require.NoError(t, docs.SaveDocument(ctx, updated, []byte("v2")))

	got, err := docs.GetDocument(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "second upload", got.Comment)
	assert.Equal(t, 5, got.Extent)

	content, err := docs.GetContent(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), content)
}

func TestDocumentStore_NotFound(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	_, err := docs.GetDocument(ctx, "missing.pdf")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = docs.GetContent(ctx, "missing.pdf")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, docs.DeleteDocument(ctx, "missing.pdf"), domain.ErrNotFound)
}

func TestDocumentStore_ListAndDelete(t *testing.T) {
	store := setupTestStore(t)
	docs := store.DocumentStore()
	ctx := context.Background()

	for _, name := range []string{"b.xlsx", "a.pdf", "c.pdf"} {
		doc := testDocument(name)
		if name == "b.xlsx" {
			doc.Type = domain.DocumentTypeTabular
		}
		require.NoError(t, docs.SaveDocument(ctx, doc, nil))
	}

	list, err := docs.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a.pdf", list[0].Name)
	assert.Equal(t, "b.xlsx", list[1].Name)
	assert.Equal(t, domain.DocumentTypeTabular, list[1].Type)

	require.NoError(t, docs.DeleteDocument(ctx, "b.xlsx"))
	list, err = docs.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

// ==================== Vector Index Tests ====================

func TestVectorIndex_UpsertAndSearch(t *testing.T) {
	store := setupTestStore(t)
	idx := store.VectorIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a.pdf", []domain.IndexEntry{
		testEntry("a.pdf", 0, "alpha", 1, 0, 0),
		testEntry("a.pdf", 1, "beta", 0, 1, 0),
		testEntry("a.pdf", 2, "gamma", 0.9, 0.1, 0),
	}))

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "alpha", hits[0].Chunk.Content)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
	assert.Equal(t, "gamma", hits[1].Chunk.Content)
	assert.Equal(t, 3, hits[1].Chunk.PageFrom)
	assert.Equal(t, "a.pdf", hits[1].Chunk.DocName)
}

func TestVectorIndex_UpsertReplacesDocument(t *testing.T) {
	store := setupTestStore(t)
	idx := store.VectorIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a.pdf", []domain.IndexEntry{
		testEntry("a.pdf", 0, "old", 1, 0),
		testEntry("a.pdf", 1, "old", 1, 0),
	}))
	require.NoError(t, idx.Upsert(ctx, "a.pdf", []domain.IndexEntry{testEntry("a.pdf", 0, "new", 1, 0)}))

	hits, err := idx.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Chunk.Content)
}

func TestVectorIndex_TiesFollowInsertionOrder(t *testing.T) {
	store := setupTestStore(t)
	idx := store.VectorIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "first.pdf", []domain.IndexEntry{testEntry("first.pdf", 0, "x", 1, 0)}))
	require.NoError(t, idx.Upsert(ctx, "second.pdf", []domain.IndexEntry{testEntry("second.pdf", 0, "x", 1, 0)}))

	hits, err := idx.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "first.pdf", hits[0].Chunk.DocName)
	assert.Equal(t, "second.pdf", hits[1].Chunk.DocName)
}

func TestVectorIndex_DimensionMismatch(t *testing.T) {
	store := setupTestStore(t)
	idx := store.VectorIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a.pdf", []domain.IndexEntry{testEntry("a.pdf", 0, "x", 1, 0)}))

	err := idx.Upsert(ctx, "b.pdf", []domain.IndexEntry{testEntry("b.pdf", 0, "x", 1, 0, 0)})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	// The only document may change dimension when it is replaced.
	require.NoError(t, idx.Upsert(ctx, "a.pdf", []domain.IndexEntry{testEntry("a.pdf", 0, "x", 1, 0, 0)}))

	_, err = idx.Search(ctx, []float32{1, 0}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestVectorIndex_Delete(t *testing.T) {
	store := setupTestStore(t)
	idx := store.VectorIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "a.pdf", []domain.IndexEntry{testEntry("a.pdf", 0, "x", 1, 0)}))
	require.NoError(t, idx.Delete(ctx, "a.pdf"))
	require.NoError(t, idx.Delete(ctx, "never-indexed.pdf"))

	hits, err := idx.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorIndex_ClosedDatabaseIsUnavailable(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	idx := store.VectorIndex()
	require.NoError(t, store.Close())

	_, err = idx.Search(context.Background(), []float32{1}, 1)
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)

	err = idx.Upsert(context.Background(), "a.pdf", []domain.IndexEntry{testEntry("a.pdf", 0, "x", 1)})
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
}

func TestFloat32BytesRoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.4e38}
	assert.Equal(t, in, bytesToFloat32Slice(float32SliceToBytes(in)))
	assert.Nil(t, float32SliceToBytes(nil))
	assert.Nil(t, bytesToFloat32Slice(nil))
}
