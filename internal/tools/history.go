package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ejmockler/brutalist-mcp/internal/history"
)

// HistoryReader is the read side of the run journal. *history.Store
// implements it.
type HistoryReader interface {
	Recent(tool string, limit int) ([]history.Run, error)
	Get(id string) (*history.Run, error)
	Stats() (*history.Stats, error)
}

// HistoryTool handles brutalist_history.
type HistoryTool struct {
	store HistoryReader
}

// NewHistoryTool creates a HistoryTool.
func NewHistoryTool(store HistoryReader) *HistoryTool {
	return &HistoryTool{store: store}
}

// Definition returns the MCP tool definition for registration.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("brutalist_history",
		mcp.WithDescription(
			"Browse past critique runs. action=recent lists the latest runs, "+
				"action=show gives one run's per-agent outcome, action=stats aggregates "+
				"success rates per tool and per agent.",
		),
		mcp.WithString("action",
			mcp.Description("recent (default), show or stats"),
			mcp.Enum("recent", "show", "stats"),
		),
		mcp.WithString("tool",
			mcp.Description("Only list runs of this tool, e.g. roast_codebase (action=recent)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum runs to list (default 10, max 100)"),
		),
		mcp.WithString("id",
			mcp.Description("Run ID (action=show)"),
		),
	)
}

// Handle processes the brutalist_history tool call.
func (t *HistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	switch action := strings.TrimSpace(req.GetString("action", "recent")); action {
	case "recent", "":
		limit := intArg(req, "limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}
		runs, err := t.store.Recent(strings.TrimSpace(req.GetString("tool", "")), limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read history: %v", err)), nil
		}
		return mcp.NewToolResultText(history.FormatRecent(runs)), nil

	case "show":
		id := strings.TrimSpace(req.GetString("id", ""))
		if id == "" {
			return mcp.NewToolResultError("'id' is required for action=show"), nil
		}
		run, err := t.store.Get(id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(formatRun(run)), nil

	case "stats":
		st, err := t.store.Stats()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read history: %v", err)), nil
		}
		return mcp.NewToolResultText(formatHistoryStats(st)), nil

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q (valid: recent, show, stats)", action)), nil
	}
}

func formatRun(r *history.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run %s\n\n", r.ID)
	fmt.Fprintf(&b, "- **Tool:** %s (%s)\n", r.Tool, r.Kind)
	fmt.Fprintf(&b, "- **Target:** %s\n", r.Target)
	fmt.Fprintf(&b, "- **When:** %s\n", r.CreatedAt)
	fmt.Fprintf(&b, "- **Outcome:** %d succeeded, %d failed in %.1fs\n", r.Succeeded, r.Failed, float64(r.TotalTimeMs)/1000)
	if r.ContextID != "" {
		fmt.Fprintf(&b, "- **context_id:** `%s`\n", r.ContextID)
	}
	if r.Resumed {
		b.WriteString("- Resumed conversation\n")
	}
	if len(r.Agents) > 0 {
		b.WriteString("\n| Agent | Result | Time | Exit |\n|-------|--------|------|------|\n")
		for _, a := range r.Agents {
			result := "✅"
			if !a.Success {
				result = "❌ " + a.Failure
			}
			exit := "-"
			if a.ExitCode != nil {
				exit = fmt.Sprint(*a.ExitCode)
			}
			fmt.Fprintf(&b, "| %s | %s | %.1fs | %s |\n", a.Agent, result, float64(a.ExecutionTimeMs)/1000, exit)
		}
	}
	return b.String()
}

func formatHistoryStats(st *history.Stats) string {
	var b strings.Builder
	b.WriteString("# Critique history\n\n")
	fmt.Fprintf(&b, "**Runs:** %d (%d with at least one successful agent)\n\n", st.TotalRuns, st.SuccessfulRuns)

	if len(st.ByTool) > 0 {
		b.WriteString("## By tool\n\n")
		tools := make([]string, 0, len(st.ByTool))
		for name := range st.ByTool {
			tools = append(tools, name)
		}
		sort.Strings(tools)
		for _, name := range tools {
			fmt.Fprintf(&b, "- %s: %d\n", name, st.ByTool[name])
		}
		b.WriteString("\n")
	}

	if len(st.Agents) > 0 {
		b.WriteString("## By agent\n\n")
		names := make([]string, 0, len(st.Agents))
		for name := range st.Agents {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			a := st.Agents[name]
			fmt.Fprintf(&b, "- %s: %d/%d succeeded, avg %.1fs\n", name, a.Succeeded, a.Runs, a.AvgTimeMs/1000)
		}
	}
	return b.String()
}
