package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ejmockler/brutalist-mcp/internal/cache"
)

// CacheTool handles brutalist_cache: statistics, handle inspection and
// clearing the caller's own entries.
type CacheTool struct {
	store *cache.Store
}

// NewCacheTool creates a CacheTool.
func NewCacheTool(store *cache.Store) *CacheTool {
	return &CacheTool{store: store}
}

// Definition returns the MCP tool definition for registration.
func (t *CacheTool) Definition() mcp.Tool {
	return mcp.NewTool("brutalist_cache",
		mcp.WithDescription(
			"Inspect or manage the response cache. "+
				"action=stats shows size and hit counters, action=show describes a context_id, "+
				"action=clear removes the cached results of your session.",
		),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("stats, show or clear"),
			mcp.Enum("stats", "show", "clear"),
		),
		mcp.WithString("context_id",
			mcp.Description("Handle to describe (action=show)"),
		),
	)
}

// Handle processes the brutalist_cache tool call.
func (t *CacheTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session := sessionID(ctx)

	switch action := strings.TrimSpace(req.GetString("action", "")); action {
	case "stats":
		return mcp.NewToolResultText(formatCacheStats(t.store.Stats())), nil

	case "show":
		id := strings.TrimSpace(req.GetString("context_id", ""))
		if id == "" {
			return mcp.NewToolResultError("'context_id' is required for action=show"), nil
		}
		rec, ok := t.store.GetByContextID(id, session)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("context_id %s is expired or unknown", id)), nil
		}
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode entry: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("```json\n%s\n```", data)), nil

	case "clear":
		if cache.Owner(session) == cache.AnonymousSession {
			return mcp.NewToolResultError(
				"this connection has no session; shared anonymous results are not cleared and expire on their own",
			), nil
		}
		n := t.store.ClearSession(session)
		return mcp.NewToolResultText(fmt.Sprintf("🧹 Removed %d cached result(s) for this session.", n)), nil

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q (valid: stats, show, clear)", action)), nil
	}
}

func formatCacheStats(st cache.Stats) string {
	var b strings.Builder
	b.WriteString("# Response cache\n\n")
	fmt.Fprintf(&b, "- **Entries:** %d / %d (%d handles)\n", st.Entries, st.MaxEntries, st.Handles)
	fmt.Fprintf(&b, "- **Size:** %s / %s\n", humanBytes(st.TotalSize), humanBytes(st.MaxSize))
	fmt.Fprintf(&b, "- **Hits / misses:** %d / %d\n", st.Hits, st.Misses)
	fmt.Fprintf(&b, "- **Evicted / expired:** %d / %d\n", st.Evictions, st.Expired)
	return b.String()
}

func humanBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
