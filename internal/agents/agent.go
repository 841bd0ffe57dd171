// Package agents knows how to talk to each external CLI agent: how to
// build its command line, how to probe whether it is installed, and how
// to choose which agents take part in a request.
package agents

import (
	"strings"

	"github.com/ejmockler/brutalist-mcp/internal/domain"
)

// Prompt is the pair of texts handed to an agent. System carries the
// persona and critique rules; Task carries the concrete request.
type Prompt struct {
	System string
	Task   string
}

// BuildOptions are the per-call overrides every convention accepts.
type BuildOptions struct {
	Model   string
	WorkDir string
}

// Invocation is a fully built command for one agent call.
type Invocation struct {
	Command string
	Args    []string
	Env     []string
	Stdin   string
	Dir     string
	// Cleanup releases any resources Build created. It is never nil.
	Cleanup func()
}

// Describe renders the invocation for diagnostics. Long arguments are
// elided so prompts do not end up in logs.
func (inv Invocation) Describe() string {
	parts := make([]string, 0, len(inv.Args)+1)
	parts = append(parts, inv.Command)
	for _, a := range inv.Args {
		if len(a) > 40 || strings.ContainsAny(a, "\n\t") {
			parts = append(parts, "<…>")
			continue
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Agent is one external CLI convention.
type Agent interface {
	ID() domain.AgentID
	// Binary is the executable name looked up on PATH.
	Binary() string
	// VersionArgs are the arguments of the lightweight availability probe.
	VersionArgs() []string
	// Build turns a prompt into the exact argv/env/stdin the CLI expects.
	// Every convention is read-only: no flag that grants write or execute
	// capability is ever emitted.
	Build(p Prompt, opts BuildOptions) (Invocation, error)
}

// sanitizeArg removes bytes that cannot be carried in an argv element.
func sanitizeArg(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

func noop() {}

// ─── Registry ───────────────────────────────────────────────────────────

// Registry maps agent identities to their conventions.
type Registry struct {
	agents map[domain.AgentID]Agent
	order  []domain.AgentID
}

// NewRegistry builds a registry from the given agents. Later entries with
// the same ID replace earlier ones.
func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[domain.AgentID]Agent, len(agents))}
	for _, a := range agents {
		if _, seen := r.agents[a.ID()]; !seen {
			r.order = append(r.order, a.ID())
		}
		r.agents[a.ID()] = a
	}
	domain.SortAgents(r.order)
	return r
}

// DefaultRegistry returns the registry of every built-in agent.
func DefaultRegistry() *Registry {
	return NewRegistry(NewClaude(), NewCodex(), NewGemini())
}

// Get returns the agent for id.
func (r *Registry) Get(id domain.AgentID) (Agent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// IDs returns the registered identities in canonical order.
func (r *Registry) IDs() []domain.AgentID {
	out := make([]domain.AgentID, len(r.order))
	copy(out, r.order)
	return out
}
