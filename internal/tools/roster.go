package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ejmockler/brutalist-mcp/internal/agents"
	"github.com/ejmockler/brutalist-mcp/internal/domain"
)

// RosterTool handles cli_agent_roster: which agents are installed, which
// one hosts this server, and what a roast would dispatch to.
type RosterTool struct {
	registry *agents.Registry
	cli      *agents.CLIContext
}

// NewRosterTool creates a RosterTool.
func NewRosterTool(registry *agents.Registry, cli *agents.CLIContext) *RosterTool {
	return &RosterTool{registry: registry, cli: cli}
}

// Definition returns the MCP tool definition for registration.
func (t *RosterTool) Definition() mcp.Tool {
	return mcp.NewTool("cli_agent_roster",
		mcp.WithDescription(
			"Show which CLI agents (claude, codex, gemini) are installed, their versions, "+
				"which one is hosting this server, and which agents a roast or debate would use.",
		),
		mcp.WithBoolean("refresh",
			mcp.Description("Probe the agent binaries again instead of using the cached detection"),
		),
	)
}

// Handle processes the cli_agent_roster tool call.
func (t *RosterTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var snap agents.Snapshot
	if boolArg(req, "refresh", false) {
		snap = t.cli.Refresh(ctx)
	} else {
		snap = t.cli.Ensure(ctx)
	}
	return mcp.NewToolResultText(FormatRoster(t.registry, snap)), nil
}

// FormatRoster renders a snapshot as markdown.
func FormatRoster(registry *agents.Registry, snap agents.Snapshot) string {
	var b strings.Builder
	b.WriteString("# CLI agent roster\n\n")
	b.WriteString("| Agent | Binary | Status | Version |\n")
	b.WriteString("|-------|--------|--------|---------|\n")
	for _, id := range registry.IDs() {
		a, _ := registry.Get(id)
		status := "❌ not found"
		version := "-"
		if snap.Has(id) {
			status = "✅ available"
			if v := snap.Versions[id]; v != "" {
				version = v
			}
			if id == snap.Current {
				status += " (host)"
			}
		} else if reason := snap.Probes[id]; reason != "" {
			status = "❌ " + reason
		}
		fmt.Fprintf(&b, "| %s | `%s` | %s | %s |\n", id.Label(), a.Binary(), status, version)
	}

	b.WriteString("\n")
	if snap.Current != "" {
		fmt.Fprintf(&b, "**Host agent:** %s (excluded from roasts when others are available)\n", snap.Current.Label())
	} else {
		b.WriteString("**Host agent:** unknown\n")
	}

	if selected, err := agents.Select(snap, "", true); err == nil {
		fmt.Fprintf(&b, "**Roasts dispatch to:** %s\n", labels(selected))
	} else {
		fmt.Fprintf(&b, "**Roasts:** unavailable (%v)\n", err)
	}
	if debaters, err := agents.DebateParticipants(snap, nil); err == nil {
		fmt.Fprintf(&b, "**Debates use:** %s\n", labels(debaters))
	} else {
		fmt.Fprintf(&b, "**Debates:** unavailable (%v)\n", err)
	}

	if !snap.DetectedAt.IsZero() {
		fmt.Fprintf(&b, "\n_Detected at %s. Pass refresh=true after installing an agent._\n",
			snap.DetectedAt.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func labels(ids []domain.AgentID) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.Label()
	}
	return strings.Join(names, ", ")
}
