package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	uriScheme = "sercha-rag://"

	documentsURI      = uriScheme + "documents"
	referencesPrefix  = uriScheme + "references/"
	referenceTemplate = referencesPrefix + "{docName}/{pageRange}"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         documentsURI,
		Name:        "documents",
		Description: "List of all indexed documents",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: referenceTemplate,
		Name:        "reference",
		Description: "A page or row block range of a document, e.g. sercha-rag://references/report.pdf/2-3",
	}, s.handleReferenceResource)
}

// handleDocumentsResource returns the stored documents as JSON.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Document == nil {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     "[]",
			}},
		}, nil
	}

	docs, err := s.ports.Document.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	data, err := json.MarshalIndent(documentOutputs(docs), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling documents: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleReferenceResource serves a resolved reference as a binary blob.
func (s *Server) handleReferenceResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	if s.ports.Reference == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	name, from, to, ok := parseReferenceURI(req.Params.URI)
	if !ok {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	ref := s.ports.Reference.GetReference(ctx, name, from, to)
	if ref == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: ref.MediaType,
			Blob:     ref.Content,
		}},
	}, nil
}

// referenceURI builds sercha-rag://references/{docName}/{from}-{to}.
func referenceURI(docName string, from, to int) string {
	return fmt.Sprintf("%s%s/%d-%d", referencesPrefix, url.PathEscape(docName), from, to)
}

// parseReferenceURI is the inverse of referenceURI. A single number means a one-unit range.
func parseReferenceURI(uri string) (name string, from, to int, ok bool) {
	rest, found := strings.CutPrefix(uri, referencesPrefix)
	if !found {
		return "", 0, 0, false
	}

	slash := strings.LastIndex(rest, "/")
	if slash <= 0 {
		return "", 0, 0, false
	}

	name, err := url.PathUnescape(rest[:slash])
	if err != nil || name == "" {
		return "", 0, 0, false
	}

	fromStr, toStr, isRange := strings.Cut(rest[slash+1:], "-")
	if from, err = strconv.Atoi(fromStr); err != nil {
		return "", 0, 0, false
	}
	to = from
	if isRange {
		if to, err = strconv.Atoi(toStr); err != nil {
			return "", 0, 0, false
		}
	}
	return name, from, to, true
}
