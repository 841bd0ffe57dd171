// Package resources implements the read-only MCP resources of the
// critique server. They use URI-based addressing (brutalist://...).
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ejmockler/brutalist-mcp/internal/agents"
	"github.com/ejmockler/brutalist-mcp/internal/cache"
)

const (
	AgentsURI     = "brutalist://agents"
	CacheStatsURI = "brutalist://cache/stats"
)

// Handler serves the resource endpoints.
type Handler struct {
	cli   *agents.CLIContext
	store *cache.Store
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(cli *agents.CLIContext, store *cache.Store) *Handler {
	return &Handler{cli: cli, store: store}
}

// AgentsResource returns the MCP resource definition for the CLI context.
func (h *Handler) AgentsResource() mcp.Resource {
	return mcp.NewResource(
		AgentsURI,
		"CLI agents",
		mcp.WithResourceDescription("Installed CLI agents, their versions and the detected host agent"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleAgents returns the detection snapshot as JSON, detecting first
// if that has not happened yet.
func (h *Handler) HandleAgents(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, h.cli.Ensure(ctx))
}

// CacheStatsResource returns the MCP resource definition for cache
// statistics.
func (h *Handler) CacheStatsResource() mcp.Resource {
	return mcp.NewResource(
		CacheStatsURI,
		"Response cache statistics",
		mcp.WithResourceDescription("Entry count, size and hit/miss counters of the response cache"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleCacheStats returns the cache statistics as JSON.
func (h *Handler) HandleCacheStats(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, h.store.Stats())
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
