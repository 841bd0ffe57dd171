package tools

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ejmockler/brutalist-mcp/internal/orchestrator"
	"github.com/ejmockler/brutalist-mcp/internal/pipeline"
)

// renderResponse turns a served page into the tool's text result: the
// page itself, then a footer telling the caller how to continue.
func renderResponse(resp *pipeline.Response, verbose bool) *mcp.CallToolResult {
	var b strings.Builder
	if resp.Warning != "" {
		fmt.Fprintf(&b, "> ⚠️ %s\n\n", resp.Warning)
	}
	b.WriteString(resp.Content)

	if verbose && resp.Result != nil {
		b.WriteString("\n\n")
		b.WriteString(orchestrator.ExecutionDetails(resp.Result))
	}

	footer := paginationFooter(resp)
	if footer != "" {
		b.WriteString("\n\n---\n")
		b.WriteString(footer)
	}
	return mcp.NewToolResultText(b.String())
}

func paginationFooter(resp *pipeline.Response) string {
	pg := resp.Pagination
	var lines []string

	if pg.TotalChunks > 1 {
		lines = append(lines, fmt.Sprintf("📄 Part %d of %d (bytes %d-%d of %d)",
			pg.ChunkIndex+1, pg.TotalChunks, pg.ChunkStart, pg.ChunkEnd, pg.Total))
	}
	switch {
	case resp.Resumed:
		lines = append(lines, "🔁 Conversation continued")
	case resp.Cached:
		lines = append(lines, "♻️ Served from cache")
	}
	if resp.ContextID != "" {
		lines = append(lines, fmt.Sprintf("context_id: `%s`", resp.ContextID))
	}
	if pg.HasMore {
		lines = append(lines, fmt.Sprintf("next_cursor: `%s`", pg.NextCursor))
		if resp.ContextID != "" {
			lines = append(lines, "Call again with this context_id and cursor for the next part.")
		}
	} else if resp.ContextID != "" {
		lines = append(lines, "Call again with context_id, resume=true and content to follow up.")
	}
	return strings.Join(lines, "\n")
}
