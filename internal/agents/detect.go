package agents

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ejmockler/brutalist-mcp/internal/domain"
	"github.com/ejmockler/brutalist-mcp/internal/process"
)

// HostAgentEnv explicitly names the agent hosting this server. The value
// "none" disables host detection.
const HostAgentEnv = "BRUTALIST_HOST_AGENT"

// DefaultDetectTimeout bounds each version probe.
const DefaultDetectTimeout = 5 * time.Second

// Snapshot is an immutable view of a CLIContext.
type Snapshot struct {
	Available  []domain.AgentID          `json:"available"`
	Current    domain.AgentID            `json:"current,omitempty"`
	Versions   map[domain.AgentID]string `json:"versions,omitempty"`
	Probes     map[domain.AgentID]string `json:"probe_errors,omitempty"`
	DetectedAt time.Time                 `json:"detected_at"`
}

// Has reports whether id was detected as available.
func (s Snapshot) Has(id domain.AgentID) bool {
	for _, a := range s.Available {
		if a == id {
			return true
		}
	}
	return false
}

// CLIContext records which agents are installed and which one, if any, is
// hosting this process. Detection runs lazily on first use and is cached
// until Refresh is called.
type CLIContext struct {
	registry  *Registry
	runner    process.Runner
	timeout   time.Duration
	lookupEnv func(string) (string, bool)
	fixed     bool

	detectMu sync.Mutex // serializes probing

	mu       sync.RWMutex
	snap     Snapshot
	detected bool
}

// NewCLIContext creates a context that probes the registry's agents
// through runner.
func NewCLIContext(registry *Registry, runner process.Runner, timeout time.Duration) *CLIContext {
	if timeout <= 0 {
		timeout = DefaultDetectTimeout
	}
	return &CLIContext{
		registry:  registry,
		runner:    runner,
		timeout:   timeout,
		lookupEnv: os.LookupEnv,
	}
}

// NewFixedContext creates a context with a predetermined result. It never
// probes and Refresh leaves it unchanged.
func NewFixedContext(available []domain.AgentID, current domain.AgentID) *CLIContext {
	avail := make([]domain.AgentID, len(available))
	copy(avail, available)
	domain.SortAgents(avail)
	return &CLIContext{
		fixed:    true,
		detected: true,
		snap: Snapshot{
			Available:  avail,
			Current:    current,
			DetectedAt: time.Now(),
		},
	}
}

// Ensure returns the cached snapshot, detecting first if needed.
func (c *CLIContext) Ensure(ctx context.Context) Snapshot {
	if s, ok := c.Snapshot(); ok {
		return s
	}
	c.detectMu.Lock()
	defer c.detectMu.Unlock()
	if s, ok := c.Snapshot(); ok {
		return s
	}
	return c.detect(ctx)
}

// Refresh re-runs detection and replaces the cached snapshot.
func (c *CLIContext) Refresh(ctx context.Context) Snapshot {
	if c.fixed {
		s, _ := c.Snapshot()
		return s
	}
	c.detectMu.Lock()
	defer c.detectMu.Unlock()
	return c.detect(ctx)
}

// Snapshot returns the cached snapshot and whether detection has run.
func (c *CLIContext) Snapshot() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap, c.detected
}

// detect probes every registered agent concurrently. It never fails: a
// probe error only marks that agent unavailable.
func (c *CLIContext) detect(ctx context.Context) Snapshot {
	ids := c.registry.IDs()
	versions := make([]string, len(ids))
	probeErrs := make([]error, len(ids))

	// Probes outlive a canceled caller: the snapshot is shared by every
	// later request. Each probe is bounded by c.timeout instead.
	probeCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i, id := range ids {
		agent, _ := c.registry.Get(id)
		g.Go(func() error {
			res, err := c.runner.Run(probeCtx, process.Spec{
				Command: agent.Binary(),
				Args:    agent.VersionArgs(),
				Timeout: c.timeout,
			})
			if err != nil {
				probeErrs[i] = err
				return nil
			}
			versions[i] = firstLine(res.Stdout)
			return nil
		})
	}
	_ = g.Wait()

	snap := Snapshot{
		Versions:   make(map[domain.AgentID]string),
		Probes:     make(map[domain.AgentID]string),
		Current:    DetectHost(c.lookupEnv),
		DetectedAt: time.Now(),
	}
	for i, id := range ids {
		if probeErrs[i] != nil {
			snap.Probes[id] = probeErrs[i].Error()
			continue
		}
		snap.Available = append(snap.Available, id)
		snap.Versions[id] = versions[i]
	}

	log.Printf("[agents] detected %d/%d CLI agents %v (host: %s)",
		len(snap.Available), len(ids), snap.Available, hostLabel(snap.Current))

	c.mu.Lock()
	c.snap = snap
	c.detected = true
	c.mu.Unlock()
	return snap
}

// DetectHost infers which agent is running this process from environment
// signals. The heuristic is best effort: an explicit override wins, and
// otherwise exactly one agent's markers must be present. Anything else is
// reported as unknown (the empty AgentID).
func DetectHost(lookup func(string) (string, bool)) domain.AgentID {
	if v, ok := lookup(HostAgentEnv); ok && strings.TrimSpace(v) != "" {
		if strings.EqualFold(strings.TrimSpace(v), "none") {
			return ""
		}
		id, err := domain.ParseAgentID(v)
		if err != nil {
			log.Printf("WARNING: ignoring %s: %v", HostAgentEnv, err)
			return ""
		}
		return id
	}

	set := func(key string) bool {
		v, ok := lookup(key)
		return ok && strings.TrimSpace(v) != ""
	}

	var matches []domain.AgentID
	if set("CLAUDECODE") || set("CLAUDE_CODE_ENTRYPOINT") {
		matches = append(matches, domain.AgentClaude)
	}
	if set("CODEX_SANDBOX") || set("CODEX_MANAGED_BY_NPM") {
		matches = append(matches, domain.AgentCodex)
	}
	if set("GEMINI_CLI") {
		matches = append(matches, domain.AgentGemini)
	}
	if len(matches) != 1 {
		return ""
	}
	return matches[0]
}

func hostLabel(id domain.AgentID) string {
	if id == "" {
		return "unknown"
	}
	return id.Label()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
