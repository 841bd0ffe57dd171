package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ejmockler/brutalist-mcp/internal/orchestrator"
)

// DebateTool handles roast_cli_debate: the available agents are split
// into advocates and opponents and argue a topic over several rounds.
type DebateTool struct {
	critic Critic
}

// NewDebateTool creates a DebateTool.
func NewDebateTool(critic Critic) *DebateTool {
	return &DebateTool{critic: critic}
}

// Definition returns the MCP tool definition for registration.
func (t *DebateTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Run an adversarial debate between the available CLI agents. Agents are assigned " +
				"advocate and opponent positions, each round answers the other side's latest " +
				"argument, and nobody is allowed to concede. Needs at least two installed agents.",
		),
		mcp.WithString("topic",
			mcp.Description("The question or proposition to debate (required unless context_id is given)"),
		),
		mcp.WithString("context",
			mcp.Description("Background material shown to every debater"),
		),
		mcp.WithNumber("rounds",
			mcp.Description("Number of rounds; clamped to the server maximum (default 2)"),
		),
		mcp.WithArray("agents",
			mcp.Description("Debaters to use, e.g. [\"claude\", \"codex\"]; defaults to all available except the host"),
			mcp.WithStringItems(),
		),
		mcp.WithString("workingDirectory",
			mcp.Description("Directory the debaters run in"),
		),
	}
	opts = append(opts, handleArgs()...)
	return mcp.NewTool("roast_cli_debate", opts...)
}

// Handle processes the roast_cli_debate tool call.
func (t *DebateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	preq := pipelineRequest(ctx, "roast_cli_debate", req)

	topic := strings.TrimSpace(req.GetString("topic", ""))
	if topic == "" && preq.ContextID == "" {
		return mcp.NewToolResultError("'topic' is required"), nil
	}

	debaters, err := agentListArg(req, "agents")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	models, err := modelsArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	d := orchestrator.DebateRequest{
		Topic:   topic,
		Context: strings.TrimSpace(req.GetString("context", "")),
		Rounds:  intArg(req, "rounds", 0),
		Agents:  debaters,
		Models:  models,
		WorkDir: strings.TrimSpace(req.GetString("workingDirectory", "")),
		Timeout: time.Duration(intArg(req, "timeout", 0)) * time.Second,
	}

	resp, err := t.critic.Debate(ctx, preq, d)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("debate failed: %v", err)), nil
	}
	return renderResponse(resp, boolArg(req, "verbose", false)), nil
}
