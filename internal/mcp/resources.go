package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/pagegenie/internal/ingest"
	"github.com/Aman-CERP/pagegenie/internal/store"
)

const (
	pageScheme   = "page://"
	htmlMIMEType = "text/html"
)

// PageURI returns the resource URI of a page's current content.
func PageURI(slug string) string {
	return pageScheme + slug
}

// RegisterResources registers every published page as an MCP resource
// serving its current content. Pages published later are not listed
// until the server restarts.
func (s *Server) RegisterResources(ctx context.Context) error {
	slugs, err := s.deps.Versions.Slugs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pages: %w", err)
	}
	for _, slug := range slugs {
		s.mcp.AddResource(&mcp.Resource{
			Name:        slug,
			URI:         PageURI(slug),
			Description: fmt.Sprintf("Current HTML of page %s", slug),
			MIMEType:    htmlMIMEType,
		}, s.readPageHandler)
	}
	s.logger.Info("mcp_resources_registered", "count", len(slugs))
	return nil
}

func (s *Server) readPageHandler(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return s.ReadPage(ctx, req.Params.URI)
}

// ReadPage returns the current content of the page named by uri.
func (s *Server) ReadPage(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	slug, ok := strings.CutPrefix(uri, pageScheme)
	if !ok || !ingest.ValidSlug(slug) {
		return nil, NewResourceNotFoundError(uri)
	}
	content, err := s.deps.Versions.Get(ctx, slug, store.CurrentLabel)
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{URI: uri, MIMEType: htmlMIMEType, Text: content},
		},
	}, nil
}
