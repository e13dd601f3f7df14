package mcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// QueryInput is the input schema for the query tool.
type QueryInput struct {
	Query             string   `json:"query" jsonschema:"the question to answer from the indexed documents"`
	NRetrieve         int      `json:"n_retrieve,omitempty" jsonschema:"number of candidate chunks to retrieve (default 100)"`
	NSelect           int      `json:"n_select,omitempty" jsonschema:"maximum number of chunks kept after reranking (default 10)"`
	RerankingStrategy string   `json:"reranking_strategy,omitempty" jsonschema:"cross_encoder or none (default cross_encoder)"`
	MinRerankingScore *float64 `json:"min_reranking_score,omitempty" jsonschema:"drop chunks scoring below this value, between 0 and 1 (default 0.2)"`
	UseRefinement     *bool    `json:"use_refinement,omitempty" jsonschema:"rewrite the query and run a second retrieval pass (default true)"`
}

// QueryOutput is the output schema for the query tool.
type QueryOutput struct {
	Answer       string            `json:"answer"`
	RefinedQuery string            `json:"refined_query,omitempty"`
	References   []ReferenceOutput `json:"references"`
}

// ReferenceOutput is one row of the reference table.
type ReferenceOutput struct {
	DocName  string  `json:"doc_name"`
	PageFrom int     `json:"page_from"`
	PageTo   int     `json:"page_to"`
	Score    float64 `json:"score"`
}

// GetReferenceInput is the input schema for the get_reference tool.
type GetReferenceInput struct {
	DocName  string `json:"doc_name" jsonschema:"the document name as shown in the reference table"`
	PageFrom int    `json:"page_from" jsonschema:"first page (pdf, 1-based) or row block (tabular, 0-based)"`
	PageTo   *int   `json:"page_to,omitempty" jsonschema:"last page or row block, inclusive (default page_from)"`
}

// GetReferenceOutput is the output schema for the get_reference tool.
type GetReferenceOutput struct {
	Found     bool   `json:"found"`
	MediaType string `json:"media_type,omitempty"`
	Content   string `json:"content,omitempty" jsonschema:"base64 encoded document bytes"`
}

// ListDocumentsInput is the input schema for the list_documents tool.
type ListDocumentsInput struct{}

// ListDocumentsOutput is the output schema for the list_documents tool.
type ListDocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
	Count     int              `json:"count"`
}

// DocumentOutput describes a stored document.
type DocumentOutput struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Author     string    `json:"author,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	Extent     int       `json:"extent"`
	ChunkCount int       `json:"chunk_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query",
		Description: "Answer a question from the indexed documents and cite the pages or row blocks used",
	}, s.handleQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_reference",
		Description: "Fetch a cited page or row block range as a standalone PDF or XLSX document",
	}, s.handleGetReference)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List the indexed documents",
	}, s.handleListDocuments)
}

// queryOptions merges tool input over the server defaults.
func (s *Server) queryOptions(input QueryInput) domain.QueryOptions {
	opts := s.ports.defaults()
	if input.NRetrieve > 0 {
		opts.NRetrieve = input.NRetrieve
	}
	if input.NSelect > 0 {
		opts.NSelect = input.NSelect
	} else {
		opts.NSelect = min(opts.NSelect, opts.NRetrieve)
	}
	if input.RerankingStrategy != "" {
		opts.Strategy = domain.RerankStrategy(input.RerankingStrategy)
	}
	if input.MinRerankingScore != nil {
		opts.MinScore = *input.MinRerankingScore
	}
	if input.UseRefinement != nil {
		opts.UseRefinement = *input.UseRefinement
	}
	return opts
}

// handleQuery handles the query tool invocation.
func (s *Server) handleQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input QueryInput,
) (*mcp.CallToolResult, QueryOutput, error) {
	opts := s.queryOptions(input)
	logger.Debug("mcp query %q (n_retrieve=%d n_select=%d strategy=%s min=%.2f refine=%t)",
		input.Query, opts.NRetrieve, opts.NSelect, opts.Strategy, opts.MinScore, opts.UseRefinement)

	answer, err := s.ports.Query.Query(ctx, input.Query, opts)
	if err != nil {
		logger.Warn("mcp query failed: %v", err)
		result := &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{
				Text: domain.CouldNotAnswer + "\n\n" + err.Error(),
			}},
		}
		return result, QueryOutput{Answer: domain.CouldNotAnswer, References: []ReferenceOutput{}}, nil
	}

	output := QueryOutput{
		Answer:       answer.Text,
		RefinedQuery: answer.RefinedQuery,
		References:   make([]ReferenceOutput, len(answer.References)),
	}
	for i, ref := range answer.References {
		output.References[i] = ReferenceOutput{
			DocName:  ref.DocName,
			PageFrom: ref.PageFrom,
			PageTo:   ref.PageTo,
			Score:    ref.Score,
		}
	}

	result := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{
			Text: answer.Text + "\n\n" + answer.References.Markdown(),
		}},
	}
	return result, output, nil
}

// handleGetReference handles the get_reference tool invocation.
// A missing preview is a normal result with found=false, not a tool error.
func (s *Server) handleGetReference(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetReferenceInput,
) (*mcp.CallToolResult, GetReferenceOutput, error) {
	if s.ports.Reference == nil {
		return nil, GetReferenceOutput{}, fmt.Errorf("reference service %w", domain.ErrNotConfigured)
	}

	pageTo := input.PageFrom
	if input.PageTo != nil {
		pageTo = *input.PageTo
	}

	ref := s.ports.Reference.GetReference(ctx, input.DocName, input.PageFrom, pageTo)
	if ref == nil {
		result := &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{
				Text: fmt.Sprintf("No preview available for %s %d-%d", input.DocName, input.PageFrom, pageTo),
			}},
		}
		return result, GetReferenceOutput{Found: false}, nil
	}

	result := &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.EmbeddedResource{
			Resource: &mcp.ResourceContents{
				URI:      referenceURI(ref.DocName, ref.PageFrom, ref.PageTo),
				MIMEType: ref.MediaType,
				Blob:     ref.Content,
			},
		}},
	}
	return result, GetReferenceOutput{
		Found:     true,
		MediaType: ref.MediaType,
		Content:   base64.StdEncoding.EncodeToString(ref.Content),
	}, nil
}

// handleListDocuments handles the list_documents tool invocation.
func (s *Server) handleListDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	if s.ports.Document == nil {
		return nil, ListDocumentsOutput{}, fmt.Errorf("document service %w", domain.ErrNotConfigured)
	}

	docs, err := s.ports.Document.List(ctx)
	if err != nil {
		return nil, ListDocumentsOutput{}, err
	}

	return nil, ListDocumentsOutput{
		Documents: documentOutputs(docs),
		Count:     len(docs),
	}, nil
}

func documentOutputs(docs []domain.Document) []DocumentOutput {
	out := make([]DocumentOutput, len(docs))
	for i := range docs {
		out[i] = DocumentOutput{
			Name:       docs[i].Name,
			Type:       docs[i].Type.String(),
			Author:     docs[i].Author,
			Comment:    docs[i].Comment,
			Extent:     docs[i].Extent,
			ChunkCount: docs[i].ChunkCount,
			UpdatedAt:  docs[i].UpdatedAt,
		}
	}
	return out
}
