package orchestrator

import (
	"fmt"
	"strings"

	"github.com/ejmockler/brutalist-mcp/internal/domain"
)

// Synthesize composes the human-readable report for a result: every
// successful output under its agent's heading, in dispatch order, followed
// by a short meta-summary. A result with no successes gets a distinct
// failure report instead of an empty one.
func Synthesize(r *domain.AnalysisResult) string {
	var b strings.Builder

	if r.Summary.Succeeded == 0 {
		fmt.Fprintf(&b, "# All agents failed\n\n")
		if r.Target != "" {
			fmt.Fprintf(&b, "**Target:** %s\n\n", r.Target)
		}
		fmt.Fprintf(&b, "None of the %d selected CLI agents produced an analysis.\n\n", r.Summary.Total)
		writeFailures(&b, r.Responses)
		return b.String()
	}

	fmt.Fprintf(&b, "# Brutalist %s analysis\n\n", titleOf(r.AnalysisKind))
	if r.Target != "" {
		fmt.Fprintf(&b, "**Target:** %s\n\n", r.Target)
	}
	fmt.Fprintf(&b, "%s.\n\n", r.Summary)

	for _, resp := range r.Responses {
		if !resp.Success {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n---\n\n", resp.Agent.Label(), resp.Output)
	}

	if r.Summary.Failed > 0 {
		writeFailures(&b, r.Responses)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeFailures(b *strings.Builder, responses []domain.AgentResponse) {
	b.WriteString("### Failed agents\n\n")
	for _, resp := range responses {
		if resp.Success {
			continue
		}
		kind := string(resp.Failure)
		if kind == "" {
			kind = string(domain.FailureError)
		}
		fmt.Fprintf(b, "- **%s** (%s): %s\n", resp.Agent.Label(), kind, resp.Error)
	}
	b.WriteString("\n")
}

// ExecutionDetails renders per-agent timing and invocation diagnostics.
func ExecutionDetails(r *domain.AnalysisResult) string {
	var b strings.Builder
	b.WriteString("## Execution details\n\n")
	b.WriteString("| Agent | Status | Time | Exit | Command |\n|---|---|---|---|---|\n")
	for _, resp := range r.Responses {
		status := "ok"
		if !resp.Success {
			status = string(resp.Failure)
		}
		exit := "-"
		if resp.ExitCode != nil {
			exit = fmt.Sprint(*resp.ExitCode)
		}
		fmt.Fprintf(&b, "| %s | %s | %.1fs | %s | `%s` |\n",
			resp.Agent.Label(), status, float64(resp.ExecutionTimeMs)/1000, exit, resp.Command)
	}
	return b.String()
}

func titleOf(kind string) string {
	if kind == "" {
		return "critique"
	}
	return strings.ReplaceAll(kind, "_", " ")
}
