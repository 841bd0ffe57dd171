package agents

import (
	"fmt"
	"os"

	"github.com/ejmockler/brutalist-mcp/internal/domain"
)

// GeminiSystemEnv is the variable gemini reads its system prompt file from.
const GeminiSystemEnv = "GEMINI_SYSTEM_MD"

// Gemini drives the gemini CLI. The system prompt is written to a private
// temp file exported through GEMINI_SYSTEM_MD; the task goes on --prompt.
type Gemini struct {
	// TempDir overrides os.TempDir for the system prompt file.
	TempDir string
}

// NewGemini creates the gemini convention.
func NewGemini() *Gemini { return &Gemini{} }

func (*Gemini) ID() domain.AgentID    { return domain.AgentGemini }
func (*Gemini) Binary() string        { return "gemini" }
func (*Gemini) VersionArgs() []string { return []string{"--version"} }

// Build implements Agent. The caller must invoke Cleanup once the process
// has exited.
func (g *Gemini) Build(p Prompt, opts BuildOptions) (Invocation, error) {
	f, err := os.CreateTemp(g.TempDir, "brutalist-gemini-*.md")
	if err != nil {
		return Invocation{}, fmt.Errorf("creating gemini system prompt file: %w", err)
	}
	path := f.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := f.WriteString(p.System); err != nil {
		f.Close()
		cleanup()
		return Invocation{}, fmt.Errorf("writing gemini system prompt: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return Invocation{}, fmt.Errorf("closing gemini system prompt: %w", err)
	}

	args := []string{"--prompt", sanitizeArg(p.Task)}
	if opts.Model != "" {
		args = append(args, "--model", sanitizeArg(opts.Model))
	}

	return Invocation{
		Command: g.Binary(),
		Args:    args,
		Env:     []string{GeminiSystemEnv + "=" + path},
		Dir:     opts.WorkDir,
		Cleanup: cleanup,
	}, nil
}
