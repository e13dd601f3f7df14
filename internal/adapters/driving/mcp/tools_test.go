package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func sampleAnswer() *domain.Answer {
	return &domain.Answer{
		Query:        "revenue warranty",
		RefinedQuery: "warranty program revenue",
		Text:         "Revenue grew under the warranty program.",
		References: domain.ReferenceTable{
			{DocName: "spec.pdf", PageFrom: 2, PageTo: 3, Score: 0.9},
			{DocName: "table.xlsx", PageFrom: 0, PageTo: 0, Score: 0.4},
		},
	}
}

func newTestServer(t *testing.T, ports *Ports) *Server {
	t.Helper()
	server, err := NewServer(ports)
	require.NoError(t, err)
	return server
}

func TestServer_handleQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("returns answer and references", func(t *testing.T) {
		query := &mockQueryService{answer: sampleAnswer()}
		server := newTestServer(t, &Ports{Query: query})

		result, output, err := server.handleQuery(ctx, nil, QueryInput{Query: "revenue warranty"})

		require.NoError(t, err)
		assert.Equal(t, "revenue warranty", query.gotText)
		assert.Equal(t, "Revenue grew under the warranty program.", output.Answer)
		assert.Equal(t, "warranty program revenue", output.RefinedQuery)
		assert.Equal(t, []ReferenceOutput{
			{DocName: "spec.pdf", PageFrom: 2, PageTo: 3, Score: 0.9},
			{DocName: "table.xlsx", PageFrom: 0, PageTo: 0, Score: 0.4},
		}, output.References)

		require.NotNil(t, result)
		require.Len(t, result.Content, 1)
		text, ok := result.Content[0].(*mcp.TextContent)
		require.True(t, ok)
		assert.Contains(t, text.Text, "Revenue grew under the warranty program.")
		assert.Contains(t, text.Text, "| spec.pdf | 2 | 3 | 0.900 |")
	})

	t.Run("applies server defaults", func(t *testing.T) {
		query := &mockQueryService{answer: sampleAnswer()}
		server := newTestServer(t, &Ports{Query: query})

		_, _, err := server.handleQuery(ctx, nil, QueryInput{Query: "q"})

		require.NoError(t, err)
		assert.Equal(t, domain.ServerQueryOptions(), query.gotOpts)
	})

	t.Run("configured defaults replace server profile", func(t *testing.T) {
		query := &mockQueryService{answer: sampleAnswer()}
		defaults := domain.DefaultQueryOptions()
		server := newTestServer(t, &Ports{Query: query, Defaults: &defaults})

		_, _, err := server.handleQuery(ctx, nil, QueryInput{Query: "q"})

		require.NoError(t, err)
		assert.Equal(t, defaults, query.gotOpts)
	})

	t.Run("input overrides defaults", func(t *testing.T) {
		query := &mockQueryService{answer: sampleAnswer()}
		server := newTestServer(t, &Ports{Query: query})
		minScore := 0.0
		refine := false

		_, _, err := server.handleQuery(ctx, nil, QueryInput{
			Query:             "q",
			NRetrieve:         20,
			NSelect:           3,
			RerankingStrategy: "none",
			MinRerankingScore: &minScore,
			UseRefinement:     &refine,
		})

		require.NoError(t, err)
		assert.Equal(t, domain.QueryOptions{
			NRetrieve:     20,
			NSelect:       3,
			Strategy:      domain.RerankNone,
			MinScore:      0,
			UseRefinement: false,
		}, query.gotOpts)
	})

	t.Run("empty selection shows no grounding", func(t *testing.T) {
		query := &mockQueryService{answer: &domain.Answer{Text: "I do not know."}}
		server := newTestServer(t, &Ports{Query: query})

		result, output, err := server.handleQuery(ctx, nil, QueryInput{Query: "q"})

		require.NoError(t, err)
		assert.Empty(t, output.References)
		assert.NotNil(t, output.References)
		text := result.Content[0].(*mcp.TextContent)
		assert.Contains(t, text.Text, domain.NoGroundingFound)
	})

	t.Run("query failure could not answer", func(t *testing.T) {
		query := &mockQueryService{err: domain.ErrIndexUnavailable}
		server := newTestServer(t, &Ports{Query: query})

		result, output, err := server.handleQuery(ctx, nil, QueryInput{Query: "q"})

		require.NoError(t, err)
		assert.True(t, result.IsError)
		text := result.Content[0].(*mcp.TextContent)
		assert.Contains(t, text.Text, domain.CouldNotAnswer)
		assert.Contains(t, text.Text, domain.ErrIndexUnavailable.Error())
		assert.Equal(t, domain.CouldNotAnswer, output.Answer)
		assert.NotNil(t, output.References)
		assert.Empty(t, output.References)
	})

	t.Run("n_retrieve alone caps default n_select", func(t *testing.T) {
		query := &mockQueryService{answer: sampleAnswer()}
		server := newTestServer(t, &Ports{Query: query})

		_, _, err := server.handleQuery(ctx, nil, QueryInput{Query: "q", NRetrieve: 5})

		require.NoError(t, err)
		assert.Equal(t, 5, query.gotOpts.NRetrieve)
		assert.Equal(t, 5, query.gotOpts.NSelect)
		assert.NoError(t, query.gotOpts.Validate())
	})

	t.Run("explicit n_select is kept", func(t *testing.T) {
		query := &mockQueryService{answer: sampleAnswer()}
		server := newTestServer(t, &Ports{Query: query})

		_, _, err := server.handleQuery(ctx, nil, QueryInput{Query: "q", NRetrieve: 50, NSelect: 7})

		require.NoError(t, err)
		assert.Equal(t, 7, query.gotOpts.NSelect)
	})
}

func TestServer_handleGetReference(t *testing.T) {
	ctx := context.Background()
	pdfBytes := []byte("%PDF-1.7 excerpt")

	t.Run("returns reference content", func(t *testing.T) {
		refs := &mockReferenceService{content: &domain.ReferenceContent{
			DocName:   "spec.pdf",
			PageFrom:  2,
			PageTo:    3,
			MediaType: domain.MediaTypePDF,
			Content:   pdfBytes,
		}}
		server := newTestServer(t, &Ports{Query: &mockQueryService{}, Reference: refs})
		pageTo := 3

		result, output, err := server.handleGetReference(ctx, nil, GetReferenceInput{
			DocName:  "spec.pdf",
			PageFrom: 2,
			PageTo:   &pageTo,
		})

		require.NoError(t, err)
		assert.Equal(t, "spec.pdf", refs.gotName)
		assert.Equal(t, 2, refs.gotFrom)
		assert.Equal(t, 3, refs.gotTo)
		assert.True(t, output.Found)
		assert.Equal(t, domain.MediaTypePDF, output.MediaType)
		decoded, err := base64.StdEncoding.DecodeString(output.Content)
		require.NoError(t, err)
		assert.Equal(t, pdfBytes, decoded)

		require.Len(t, result.Content, 1)
		embedded, ok := result.Content[0].(*mcp.EmbeddedResource)
		require.True(t, ok)
		assert.Equal(t, "sercha-rag://references/spec.pdf/2-3", embedded.Resource.URI)
		assert.Equal(t, pdfBytes, embedded.Resource.Blob)
	})

	t.Run("page_to defaults to page_from", func(t *testing.T) {
		refs := &mockReferenceService{}
		server := newTestServer(t, &Ports{Query: &mockQueryService{}, Reference: refs})

		_, _, err := server.handleGetReference(ctx, nil, GetReferenceInput{DocName: "table.xlsx", PageFrom: 0})

		require.NoError(t, err)
		assert.Equal(t, 0, refs.gotFrom)
		assert.Equal(t, 0, refs.gotTo)
	})

	t.Run("missing preview is not an error", func(t *testing.T) {
		refs := &mockReferenceService{}
		server := newTestServer(t, &Ports{Query: &mockQueryService{}, Reference: refs})

		result, output, err := server.handleGetReference(ctx, nil, GetReferenceInput{DocName: "missing.pdf", PageFrom: 1})

		require.NoError(t, err)
		assert.False(t, output.Found)
		assert.Empty(t, output.Content)
		text := result.Content[0].(*mcp.TextContent)
		assert.Contains(t, text.Text, "No preview available")
	})

	t.Run("nil reference service", func(t *testing.T) {
		server := newTestServer(t, &Ports{Query: &mockQueryService{}})

		_, _, err := server.handleGetReference(ctx, nil, GetReferenceInput{DocName: "spec.pdf", PageFrom: 1})

		assert.ErrorIs(t, err, domain.ErrNotConfigured)
	})
}

func TestServer_handleListDocuments(t *testing.T) {
	ctx := context.Background()
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("returns documents", func(t *testing.T) {
		docs := &mockDocumentService{documents: []domain.Document{
			{Name: "spec.pdf", Type: domain.DocumentTypePDF, Author: "ops", Extent: 3, ChunkCount: 4, UpdatedAt: updated},
			{Name: "table.xlsx", Type: domain.DocumentTypeTabular, Comment: "q1", Extent: 2, ChunkCount: 2},
		}}
		server := newTestServer(t, &Ports{Query: &mockQueryService{}, Document: docs})

		_, output, err := server.handleListDocuments(ctx, nil, ListDocumentsInput{})

		require.NoError(t, err)
		assert.Equal(t, 2, output.Count)
		assert.Equal(t, DocumentOutput{
			Name:       "spec.pdf",
			Type:       "pdf",
			Author:     "ops",
			Extent:     3,
			ChunkCount: 4,
			UpdatedAt:  updated,
		}, output.Documents[0])
		assert.Equal(t, "tabular", output.Documents[1].Type)
		assert.Equal(t, "q1", output.Documents[1].Comment)
	})

	t.Run("returns error on list failure", func(t *testing.T) {
		docs := &mockDocumentService{err: errors.New("storage error")}
		server := newTestServer(t, &Ports{Query: &mockQueryService{}, Document: docs})

		_, _, err := server.handleListDocuments(ctx, nil, ListDocumentsInput{})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage error")
	})

	t.Run("nil document service", func(t *testing.T) {
		server := newTestServer(t, &Ports{Query: &mockQueryService{}})

		_, _, err := server.handleListDocuments(ctx, nil, ListDocumentsInput{})

		assert.ErrorIs(t, err, domain.ErrNotConfigured)
	})
}

// connect runs the server over in-memory transports and returns a client session.
func connect(t *testing.T, server *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

func TestServer_ToolsOverTransport(t *testing.T) {
	ctx := context.Background()
	query := &mockQueryService{answer: sampleAnswer()}
	refs := &mockReferenceService{content: &domain.ReferenceContent{
		DocName:   "table.xlsx",
		MediaType: domain.MediaTypeXLSX,
		Content:   []byte("PK"),
	}}
	docs := &mockDocumentService{documents: []domain.Document{{Name: "table.xlsx", Type: domain.DocumentTypeTabular}}}
	session := connect(t, newTestServer(t, &Ports{Query: query, Reference: refs, Document: docs}))

	t.Run("lists tools", func(t *testing.T) {
		result, err := session.ListTools(ctx, nil)
		require.NoError(t, err)

		var names []string
		for _, tool := range result.Tools {
			names = append(names, tool.Name)
		}
		assert.ElementsMatch(t, []string{"query", "get_reference", "list_documents"}, names)
	})

	t.Run("query", func(t *testing.T) {
		result, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "query",
			Arguments: map[string]any{"query": "revenue warranty", "n_select": 3},
		})
		require.NoError(t, err)
		require.False(t, result.IsError)

		text := result.Content[0].(*mcp.TextContent)
		assert.Contains(t, text.Text, "| table.xlsx | 0 | 0 | 0.400 |")
		assert.Equal(t, 3, query.gotOpts.NSelect)
		assert.Equal(t, 100, query.gotOpts.NRetrieve)
	})

	t.Run("get_reference", func(t *testing.T) {
		result, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "get_reference",
			Arguments: map[string]any{"doc_name": "table.xlsx", "page_from": 0, "page_to": 1},
		})
		require.NoError(t, err)
		require.False(t, result.IsError)
		assert.Equal(t, 1, refs.gotTo)
	})

	t.Run("list_documents", func(t *testing.T) {
		result, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "list_documents",
			Arguments: map[string]any{},
		})
		require.NoError(t, err)
		require.False(t, result.IsError)

		text := result.Content[0].(*mcp.TextContent)
		assert.Contains(t, text.Text, `"name":"table.xlsx"`)
	})

	t.Run("query failure is a tool error", func(t *testing.T) {
		query.err = domain.ErrServiceTimeout
		defer func() { query.err = nil }()

		result, err := session.CallTool(ctx, &mcp.CallToolParams{
			Name:      "query",
			Arguments: map[string]any{"query": "q"},
		})
		require.NoError(t, err)
		assert.True(t, result.IsError)
		text := result.Content[0].(*mcp.TextContent)
		assert.Contains(t, text.Text, domain.CouldNotAnswer)
	})
}
