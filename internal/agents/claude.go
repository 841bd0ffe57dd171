package agents

import "github.com/ejmockler/brutalist-mcp/internal/domain"

// claudeDeniedTools are the Claude Code tools that could modify the
// workspace or run commands.
var claudeDeniedTools = []string{"Bash", "Edit", "MultiEdit", "Write", "NotebookEdit"}

// Claude drives the claude CLI. The system prompt travels as its own argv
// element and the task follows a "--" separator.
type Claude struct{}

// NewClaude creates the claude convention.
func NewClaude() *Claude { return &Claude{} }

func (*Claude) ID() domain.AgentID    { return domain.AgentClaude }
func (*Claude) Binary() string        { return "claude" }
func (*Claude) VersionArgs() []string { return []string{"--version"} }

// Build implements Agent.
func (c *Claude) Build(p Prompt, opts BuildOptions) (Invocation, error) {
	args := []string{
		"--print",
		"--output-format", "text",
		"--append-system-prompt", sanitizeArg(p.System),
	}
	if opts.Model != "" {
		args = append(args, "--model", sanitizeArg(opts.Model))
	}
	args = append(args, "--disallowedTools")
	args = append(args, claudeDeniedTools...)
	args = append(args, "--", sanitizeArg(p.Task))

	return Invocation{
		Command: c.Binary(),
		Args:    args,
		Dir:     opts.WorkDir,
		Cleanup: noop,
	}, nil
}
