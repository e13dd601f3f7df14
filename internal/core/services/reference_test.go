package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/extractors/pdf"
	"github.com/custodia-labs/sercha-rag/internal/testutil"
)

func indexFixtures(t *testing.T, env *testEnv) {
	t.Helper()
	indexSpec(t, env)
	_, err := env.indexer.Index(context.Background(), driving.IndexRequest{Name: "table.xlsx", Content: tableXLSX(t)})
	require.NoError(t, err)
}

func TestGetReference_TableFirstBlock(t *testing.T) {
	env := newTestEnv(t)
	indexFixtures(t, env)

	ref := env.refs.GetReference(context.Background(), "table.xlsx", 0, 0)
	require.NotNil(t, ref)
	assert.Equal(t, domain.MediaTypeXLSX, ref.MediaType)
	assert.Equal(t, 0, ref.PageFrom)
	assert.Equal(t, 0, ref.PageTo)

	f, err := excelize.OpenReader(bytes.NewReader(ref.Content))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Revenue"}, f.GetSheetList())
	rows, err := f.GetRows("Revenue")
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"region", "revenue"},
		{"region-0", "revenue-0"},
		{"region-1", "revenue-1"},
	}, rows)
}

func TestGetReference_TableAcrossSheets(t *testing.T) {
	env := newTestEnv(t)
	indexFixtures(t, env)

	ref := env.refs.GetReference(context.Background(), "table.xlsx", 1, 2)
	require.NotNil(t, ref)

	f, err := excelize.OpenReader(bytes.NewReader(ref.Content))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Revenue", "Latency"}, f.GetSheetList())
	rows, err := f.GetRows("Latency")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"service", "latency"}, {"service-0", "latency-0"}}, rows)
}

func TestGetReference_PDFPages(t *testing.T) {
	env := newTestEnv(t)
	indexFixtures(t, env)

	ref := env.refs.GetReference(context.Background(), "spec.pdf", 2, 3)
	require.NotNil(t, ref)
	assert.Equal(t, domain.MediaTypePDF, ref.MediaType)

	n, err := pdf.PageCount(ref.Content)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestGetReference_NoPreview(t *testing.T) {
	env := newTestEnv(t)
	indexFixtures(t, env)
	ctx := context.Background()

	tests := []struct {
		name     string
		doc      string
		from, to int
	}{
		{"unknown document", "missing.pdf", 1, 1},
		{"pdf page zero", "spec.pdf", 0, 1},
		{"pdf past the end", "spec.pdf", 3, 4},
		{"inverted range", "spec.pdf", 3, 2},
		{"negative block", "table.xlsx", -1, 0},
		{"block past the end", "table.xlsx", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, env.refs.GetReference(ctx, tt.doc, tt.from, tt.to))
		})
	}
}

func TestGetReference_CorruptStoredBytes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc := &domain.Document{Name: "bad.pdf", Type: domain.DocumentTypePDF, Extent: 2}
	require.NoError(t, env.docs.SaveDocument(ctx, doc, []byte("garbage")))

	assert.Nil(t, env.refs.GetReference(ctx, "bad.pdf", 1, 1))
}

func TestGetReference_AfterDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.indexer.Index(ctx, driving.IndexRequest{Name: "spec.pdf", Content: testutil.PDF(specPages...)})
	require.NoError(t, err)

	require.NoError(t, env.documents.Delete(ctx, "spec.pdf"))
	assert.Nil(t, env.refs.GetReference(ctx, "spec.pdf", 1, 1))
}
