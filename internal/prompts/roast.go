// Package prompts implements the MCP prompts of the critique server.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to run a specific sequence of tools.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// RoastPrompt handles the brutalist-roast MCP prompt.
type RoastPrompt struct{}

// NewRoastPrompt creates a RoastPrompt.
func NewRoastPrompt() *RoastPrompt {
	return &RoastPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *RoastPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("brutalist-roast",
		mcp.WithPromptDescription(
			"Get a brutally honest, multi-agent critique of code, an idea or a design. "+
				"Picks the right roast tool, then walks through long results page by page.",
		),
		mcp.WithArgument("target",
			mcp.ArgumentDescription("What to critique: a path, an idea or a system description"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("focus",
			mcp.ArgumentDescription("codebase, file_structure, dependencies, test_coverage, idea, architecture, security or debate. Default: inferred"),
		),
	)
}

// focusTools maps a focus to the tool that serves it.
var focusTools = map[string]string{
	"codebase":       "roast_codebase",
	"file_structure": "roast_file_structure",
	"dependencies":   "roast_dependencies",
	"test_coverage":  "roast_test_coverage",
	"idea":           "roast_idea",
	"architecture":   "roast_architecture",
	"security":       "roast_security",
	"debate":         "roast_cli_debate",
}

// Handle processes the brutalist-roast prompt request.
func (p *RoastPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	target := strings.TrimSpace(req.Params.Arguments["target"])
	if target == "" {
		return nil, fmt.Errorf("argument 'target' is required")
	}

	focus := strings.ToLower(strings.TrimSpace(req.Params.Arguments["focus"]))
	step := "1. Run `cli_agent_roster` to see which agents are installed.\n" +
		"2. Pick the roast tool that fits the target: `roast_codebase`, `roast_file_structure`, " +
		"`roast_dependencies` or `roast_test_coverage` for a path; `roast_idea`, `roast_architecture` " +
		"or `roast_security` for a description; `roast_cli_debate` for a contested question.\n"
	if tool, ok := focusTools[focus]; ok {
		step = fmt.Sprintf("1. Run `cli_agent_roster` to see which agents are installed.\n"+
			"2. Run `%s` on the target.\n", tool)
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Brutalist critique of %s", target),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want a brutally honest critique of:\n\n%s\n\n"+
						"Please:\n"+
						"%s"+
						"3. If the response says there are more parts, call the same tool again with its "+
						"`context_id` and `cursor` until you have read everything. Do not re-run the analysis.\n"+
						"4. Summarize the most severe problems first, without softening them.\n"+
						"5. If I ask a follow-up, call the tool with `context_id`, `resume=true` and my question as `content`.",
					target, step,
				)),
			},
		},
	}, nil
}
