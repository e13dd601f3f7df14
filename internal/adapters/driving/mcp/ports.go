package mcp

import (
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Ports aggregates the driving port interfaces used by the MCP server.
type Ports struct {
	// Query answers questions.
	Query driving.QueryService

	// Reference resolves citations to document excerpts.
	Reference driving.ReferenceService

	// Document lists stored documents.
	Document driving.DocumentService

	// Defaults are the query options applied when a tool call omits them.
	// Zero value means domain.ServerQueryOptions().
	Defaults *domain.QueryOptions
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	// Reference and Document are optional; their tools report "not configured".
	return nil
}

func (p *Ports) defaults() domain.QueryOptions {
	if p.Defaults != nil {
		return *p.Defaults
	}
	return domain.ServerQueryOptions()
}
