package agents

import (
	"strings"

	"github.com/ejmockler/brutalist-mcp/internal/domain"
)

// Codex drives `codex exec`. System and task prompts are merged into one
// instructions block delivered on stdin; sandbox and workdir go on argv.
type Codex struct{}

// NewCodex creates the codex convention.
func NewCodex() *Codex { return &Codex{} }

func (*Codex) ID() domain.AgentID    { return domain.AgentCodex }
func (*Codex) Binary() string        { return "codex" }
func (*Codex) VersionArgs() []string { return []string{"--version"} }

// Build implements Agent.
func (c *Codex) Build(p Prompt, opts BuildOptions) (Invocation, error) {
	args := []string{"exec", "--sandbox", "read-only", "--skip-git-repo-check"}
	if opts.WorkDir != "" {
		args = append(args, "-C", sanitizeArg(opts.WorkDir))
	}
	if opts.Model != "" {
		args = append(args, "--model", sanitizeArg(opts.Model))
	}
	// "-" tells codex to read the prompt from stdin.
	args = append(args, "-")

	return Invocation{
		Command: c.Binary(),
		Args:    args,
		Stdin:   codexInstructions(p),
		Dir:     opts.WorkDir,
		Cleanup: noop,
	}, nil
}

func codexInstructions(p Prompt) string {
	var b strings.Builder
	if s := strings.TrimSpace(p.System); s != "" {
		b.WriteString("## Instructions\n\n")
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	b.WriteString("## Task\n\n")
	b.WriteString(strings.TrimSpace(p.Task))
	b.WriteString("\n")
	return b.String()
}
