package agents

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ejmockler/brutalist-mcp/internal/domain"
	"github.com/ejmockler/brutalist-mcp/internal/process"
)

// ─── Invocation conventions ─────────────────────────────────────────────

func TestClaudeBuild_ArgvConvention(t *testing.T) {
	inv, err := NewClaude().Build(Prompt{System: "be\x00 brutal", Task: "--rm everything"},
		BuildOptions{Model: "opus", WorkDir: "/tmp/project"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer inv.Cleanup()

	if inv.Command != "claude" {
		t.Errorf("Command = %q, want claude", inv.Command)
	}
	if inv.Dir != "/tmp/project" {
		t.Errorf("Dir = %q", inv.Dir)
	}
	if inv.Stdin != "" || len(inv.Env) != 0 {
		t.Errorf("claude convention should not use stdin or env, got stdin=%q env=%v", inv.Stdin, inv.Env)
	}

	args := inv.Args
	if got := valueAfter(args, "--append-system-prompt"); got != "be brutal" {
		t.Errorf("system prompt arg = %q, want NUL stripped", got)
	}
	if got := valueAfter(args, "--model"); got != "opus" {
		t.Errorf("--model = %q, want opus", got)
	}
	n := len(args)
	if args[n-2] != "--" || args[n-1] != "--rm everything" {
		t.Errorf("task must follow --, got tail %v", args[n-2:])
	}
	if !contains(args, "--print") {
		t.Errorf("args missing --print: %v", args)
	}
	for _, denied := range []string{"Bash", "Edit", "Write"} {
		if !contains(args, denied) {
			t.Errorf("expected %s to be disallowed, args %v", denied, args)
		}
	}
}

func TestClaudeBuild_NoModel(t *testing.T) {
	inv, _ := NewClaude().Build(Prompt{System: "s", Task: "t"}, BuildOptions{})
	if contains(inv.Args, "--model") {
		t.Errorf("--model should be omitted without override: %v", inv.Args)
	}
}

func TestCodexBuild_StdinConvention(t *testing.T) {
	inv, err := NewCodex().Build(Prompt{System: "persona", Task: "review main.go"},
		BuildOptions{Model: "gpt-5", WorkDir: "/src"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer inv.Cleanup()

	want := []string{"exec", "--sandbox", "read-only", "--skip-git-repo-check", "-C", "/src", "--model", "gpt-5", "-"}
	if strings.Join(inv.Args, " ") != strings.Join(want, " ") {
		t.Errorf("Args = %v, want %v", inv.Args, want)
	}
	if !strings.Contains(inv.Stdin, "persona") || !strings.Contains(inv.Stdin, "review main.go") {
		t.Errorf("stdin should carry both prompts, got %q", inv.Stdin)
	}
	if strings.Index(inv.Stdin, "persona") > strings.Index(inv.Stdin, "review main.go") {
		t.Error("system instructions should precede the task")
	}
	for _, a := range inv.Args {
		if strings.Contains(a, "review main.go") {
			t.Errorf("task leaked onto argv: %v", inv.Args)
		}
	}
}

func TestCodexBuild_NeverRequestsWriteAccess(t *testing.T) {
	inv, _ := NewCodex().Build(Prompt{Task: "t"}, BuildOptions{})
	for _, a := range inv.Args {
		if strings.Contains(a, "write") || a == "--full-auto" || strings.Contains(a, "danger") {
			t.Errorf("unexpected write-enabling arg %q", a)
		}
	}
}

func TestGeminiBuild_EnvConvention(t *testing.T) {
	g := &Gemini{TempDir: t.TempDir()}
	inv, err := g.Build(Prompt{System: "# persona\nbe harsh", Task: "critique this"},
		BuildOptions{Model: "gemini-2.5-pro"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if len(inv.Env) != 1 || !strings.HasPrefix(inv.Env[0], GeminiSystemEnv+"=") {
		t.Fatalf("Env = %v, want %s", inv.Env, GeminiSystemEnv)
	}
	path := strings.TrimPrefix(inv.Env[0], GeminiSystemEnv+"=")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading system prompt file: %v", err)
	}
	if string(data) != "# persona\nbe harsh" {
		t.Errorf("system prompt file = %q", data)
	}
	if got := valueAfter(inv.Args, "--prompt"); got != "critique this" {
		t.Errorf("--prompt = %q", got)
	}
	if got := valueAfter(inv.Args, "--model"); got != "gemini-2.5-pro" {
		t.Errorf("--model = %q", got)
	}

	inv.Cleanup()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Cleanup should remove %s, stat err = %v", path, err)
	}
}

func TestInvocationDescribe_ElidesLongArgs(t *testing.T) {
	inv := Invocation{Command: "claude", Args: []string{"--print", strings.Repeat("x", 100), "multi\nline"}}
	got := inv.Describe()
	if strings.Contains(got, "xxxx") || strings.Contains(got, "multi") {
		t.Errorf("Describe leaked prompt text: %q", got)
	}
	if !strings.HasPrefix(got, "claude --print") {
		t.Errorf("Describe = %q", got)
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	ids := r.IDs()
	if len(ids) != 3 || ids[0] != domain.AgentClaude || ids[1] != domain.AgentCodex || ids[2] != domain.AgentGemini {
		t.Errorf("IDs = %v, want canonical order", ids)
	}
	for _, id := range ids {
		a, ok := r.Get(id)
		if !ok || a.ID() != id {
			t.Errorf("Get(%s) = %v, %v", id, a, ok)
		}
	}
}

// ─── Detection ──────────────────────────────────────────────────────────

type probeRunner struct {
	mu        sync.Mutex
	installed map[string]string
	calls     atomic.Int32
	seen      []string
}

func (p *probeRunner) Run(ctx context.Context, spec process.Spec) (process.Result, error) {
	p.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return process.Result{ExitCode: -1}, domain.Wrap(domain.ErrToolTimeout, spec.Command+": canceled", err)
	}
	p.mu.Lock()
	p.seen = append(p.seen, spec.Command+" "+strings.Join(spec.Args, " "))
	p.mu.Unlock()
	if v, ok := p.installed[spec.Command]; ok {
		return process.Result{Stdout: v + "\nextra line\n"}, nil
	}
	return process.Result{ExitCode: -1}, domain.Errorf(domain.ErrToolNotFound, "%s: not installed", spec.Command)
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestCLIContext_CanceledFirstCallerStillDetects(t *testing.T) {
	runner := &probeRunner{installed: map[string]string{"claude": "1.0.80", "codex": "0.40.0"}}
	c := NewCLIContext(DefaultRegistry(), runner, 0)
	c.lookupEnv = envMap(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	first := c.Ensure(ctx)
	if len(first.Available) != 2 {
		t.Fatalf("canceled caller: Available = %v, want [claude codex]", first.Available)
	}
	later := c.Ensure(context.Background())
	if len(later.Available) != 2 {
		t.Errorf("later caller: Available = %v, want [claude codex]", later.Available)
	}
}

func TestCLIContext_DetectsInstalledAgents(t *testing.T) {
	runner := &probeRunner{installed: map[string]string{"claude": "1.0.80 (Claude Code)", "gemini": "0.3.0"}}
	c := NewCLIContext(DefaultRegistry(), runner, 0)
	c.lookupEnv = envMap(map[string]string{"CLAUDECODE": "1"})

	snap := c.Ensure(context.Background())

	if len(snap.Available) != 2 || snap.Available[0] != domain.AgentClaude || snap.Available[1] != domain.AgentGemini {
		t.Errorf("Available = %v, want [claude gemini]", snap.Available)
	}
	if snap.Current != domain.AgentClaude {
		t.Errorf("Current = %q, want claude", snap.Current)
	}
	if snap.Versions[domain.AgentClaude] != "1.0.80 (Claude Code)" {
		t.Errorf("version = %q, want first line only", snap.Versions[domain.AgentClaude])
	}
	if _, ok := snap.Probes[domain.AgentCodex]; !ok {
		t.Error("missing probe error for codex")
	}
	for _, s := range runner.seen {
		if !strings.HasSuffix(s, "--version") {
			t.Errorf("probe %q should be a version invocation", s)
		}
	}
}

func TestCLIContext_EnsureCachesAndRefreshReprobes(t *testing.T) {
	runner := &probeRunner{installed: map[string]string{"codex": "codex-cli 0.40.0"}}
	c := NewCLIContext(DefaultRegistry(), runner, 0)
	c.lookupEnv = envMap(nil)

	c.Ensure(context.Background())
	c.Ensure(context.Background())
	if got := runner.calls.Load(); got != 3 {
		t.Errorf("probes after two Ensure calls = %d, want 3", got)
	}

	runner.installed["claude"] = "2.0.0"
	snap := c.Refresh(context.Background())
	if got := runner.calls.Load(); got != 6 {
		t.Errorf("probes after Refresh = %d, want 6", got)
	}
	if !snap.Has(domain.AgentClaude) {
		t.Error("Refresh should pick up newly installed agent")
	}
}

func TestFixedContext_NeverProbes(t *testing.T) {
	c := NewFixedContext([]domain.AgentID{domain.AgentGemini, domain.AgentClaude}, domain.AgentGemini)

	snap, ok := c.Snapshot()
	if !ok {
		t.Fatal("fixed context should report detected")
	}
	if snap.Available[0] != domain.AgentClaude {
		t.Errorf("Available = %v, want canonical order", snap.Available)
	}
	// A nil runner would panic if probing were attempted.
	if got := c.Refresh(context.Background()); got.Current != domain.AgentGemini {
		t.Errorf("Refresh changed fixed context: %+v", got)
	}
}

func TestDetectHost(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want domain.AgentID
	}{
		{"nothing", nil, ""},
		{"claude marker", map[string]string{"CLAUDECODE": "1"}, domain.AgentClaude},
		{"claude entrypoint", map[string]string{"CLAUDE_CODE_ENTRYPOINT": "cli"}, domain.AgentClaude},
		{"codex", map[string]string{"CODEX_SANDBOX": "seatbelt"}, domain.AgentCodex},
		{"gemini", map[string]string{"GEMINI_CLI": "1"}, domain.AgentGemini},
		{"ambiguous", map[string]string{"CLAUDECODE": "1", "GEMINI_CLI": "1"}, ""},
		{"blank marker", map[string]string{"CLAUDECODE": "  "}, ""},
		{"override wins", map[string]string{HostAgentEnv: "codex", "CLAUDECODE": "1"}, domain.AgentCodex},
		{"override none", map[string]string{HostAgentEnv: "none", "CLAUDECODE": "1"}, ""},
		{"bad override", map[string]string{HostAgentEnv: "copilot"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectHost(envMap(tt.env)); got != tt.want {
				t.Errorf("DetectHost = %q, want %q", got, tt.want)
			}
		})
	}
}

// ─── Selection ──────────────────────────────────────────────────────────

func snapOf(current domain.AgentID, avail ...domain.AgentID) Snapshot {
	return Snapshot{Available: avail, Current: current}
}

func TestSelect(t *testing.T) {
	all := []domain.AgentID{domain.AgentClaude, domain.AgentCodex, domain.AgentGemini}

	tests := []struct {
		name      string
		snap      Snapshot
		preferred domain.AgentID
		exclude   bool
		want      []domain.AgentID
		wantErr   *domain.Error
	}{
		{"preferred available", snapOf("", all...), domain.AgentCodex, true, []domain.AgentID{domain.AgentCodex}, nil},
		{"preferred is host", snapOf(domain.AgentCodex, all...), domain.AgentCodex, true, []domain.AgentID{domain.AgentCodex}, nil},
		{"preferred missing", snapOf("", domain.AgentClaude), domain.AgentGemini, true, nil, domain.ErrAgentUnavailable},
		{"exclude host", snapOf(domain.AgentClaude, all...), "", true, []domain.AgentID{domain.AgentCodex, domain.AgentGemini}, nil},
		{"keep host", snapOf(domain.AgentClaude, all...), "", false, all, nil},
		{"host is only agent", snapOf(domain.AgentClaude, domain.AgentClaude), "", true, []domain.AgentID{domain.AgentClaude}, nil},
		{"none available", snapOf(""), "", true, nil, domain.ErrNoAgentsAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(tt.snap, tt.preferred, tt.exclude)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			if !equalIDs(got, tt.want) {
				t.Errorf("Select = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDebateParticipants(t *testing.T) {
	all := []domain.AgentID{domain.AgentClaude, domain.AgentCodex, domain.AgentGemini}

	got, err := DebateParticipants(snapOf(domain.AgentClaude, all...), nil)
	if err != nil || !equalIDs(got, []domain.AgentID{domain.AgentCodex, domain.AgentGemini}) {
		t.Errorf("host excluded: got %v, %v", got, err)
	}

	got, err = DebateParticipants(snapOf(domain.AgentClaude, domain.AgentClaude, domain.AgentCodex), nil)
	if err != nil || len(got) != 2 {
		t.Errorf("host readmitted to reach two: got %v, %v", got, err)
	}

	if _, err := DebateParticipants(snapOf("", domain.AgentCodex), nil); !errors.Is(err, domain.ErrDebateNeedsTwo) {
		t.Errorf("one agent: err = %v, want ErrDebateNeedsTwo", err)
	}

	if _, err := DebateParticipants(snapOf("", all...), []domain.AgentID{domain.AgentCodex, domain.AgentCodex}); !errors.Is(err, domain.ErrDebateNeedsTwo) {
		t.Errorf("duplicate explicit agents: err = %v, want ErrDebateNeedsTwo", err)
	}

	if _, err := DebateParticipants(snapOf("", domain.AgentClaude, domain.AgentCodex),
		[]domain.AgentID{domain.AgentClaude, domain.AgentGemini}); !errors.Is(err, domain.ErrAgentUnavailable) {
		t.Errorf("explicit unavailable: err = %v, want ErrAgentUnavailable", err)
	}
}

func TestAssignDebatePositions(t *testing.T) {
	pos, err := AssignDebatePositions([]domain.AgentID{domain.AgentCodex, domain.AgentGemini})
	if err != nil {
		t.Fatalf("AssignDebatePositions: %v", err)
	}
	if pos[0].Stance != StanceAdvocate || pos[1].Stance != StanceOpponent {
		t.Errorf("two-agent debate stances = %v", pos)
	}

	pos, _ = AssignDebatePositions([]domain.AgentID{domain.AgentClaude, domain.AgentCodex, domain.AgentGemini})
	if pos[2].Stance != StanceAdvocate {
		t.Errorf("third agent stance = %s, want interleaved advocate", pos[2].Stance)
	}

	if _, err := AssignDebatePositions([]domain.AgentID{domain.AgentClaude}); !errors.Is(err, domain.ErrDebateNeedsTwo) {
		t.Errorf("err = %v, want ErrDebateNeedsTwo", err)
	}
}

// ─── helpers ────────────────────────────────────────────────────────────

func valueAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func equalIDs(a, b []domain.AgentID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
