package history

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ejmockler/brutalist-mcp/internal/domain"
)

// newTestStore creates a Store backed by a temp directory for isolation.
func newTestStore(t *testing.T, maxRuns int) *Store {
	t.Helper()
	s, err := New(Config{DataDir: t.TempDir(), MaxRuns: maxRuns})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedClock pins timeNow and advances it by one second per call.
func fixedClock(t *testing.T) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	orig := timeNow
	timeNow = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	t.Cleanup(func() { timeNow = orig })
}

func sampleResult(target string, ok ...bool) *domain.AnalysisResult {
	agents := []domain.AgentID{domain.AgentClaude, domain.AgentCodex, domain.AgentGemini}
	var responses []domain.AgentResponse
	for i, success := range ok {
		r := domain.AgentResponse{Agent: agents[i%3], Success: success, ExecutionTimeMs: int64(1000 * (i + 1))}
		if success {
			code := 0
			r.ExitCode = &code
			r.Output = "critique"
		} else {
			r.Failure = domain.FailureTimeout
		}
		responses = append(responses, r)
	}
	summary := domain.Summarize(responses, 4200)
	return &domain.AnalysisResult{
		Success:      summary.Succeeded > 0,
		Responses:    responses,
		Synthesis:    "# report",
		AnalysisKind: "codebase",
		Target:       target,
		Summary:      summary,
	}
}

// ─── New / Initialization ───────────────────────────────────────────────────

func TestNew_CreatesDBFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s, err := New(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(dir, "history.db")); err != nil {
		t.Fatalf("history.db not created: %v", err)
	}
}

func TestNew_OpenError(t *testing.T) {
	orig := openDB
	openDB = func(string, string) (*sql.DB, error) { return nil, errors.New("disk on fire") }
	t.Cleanup(func() { openDB = orig })

	_, err := New(Config{DataDir: t.TempDir()})
	if !errors.Is(err, domain.ErrStoreInit) {
		t.Fatalf("err = %v, want ErrStoreInit", err)
	}
}

func TestNew_IdempotentReopen(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	id, err := s1.Record(RecordParams{Tool: "roast_idea", Result: sampleResult("idea", true)})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	s1.Close()

	s2, err := New(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if _, err := s2.Get(id); err != nil {
		t.Fatalf("run lost across reopen: %v", err)
	}
}

// ─── Record / Get ───────────────────────────────────────────────────────────

func TestRecord_RoundTrip(t *testing.T) {
	s := newTestStore(t, 0)
	id, err := s.Record(RecordParams{
		Tool:      "roast_codebase",
		SessionID: "sess-1",
		CacheKey:  "abc123",
		ContextID: "ctx-1",
		Result:    sampleResult("/src", true, false),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	run, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if run.Tool != "roast_codebase" || run.Target != "/src" || run.SessionID != "sess-1" {
		t.Errorf("run = %+v", run)
	}
	if !run.Success || run.Succeeded != 1 || run.Failed != 1 || run.TotalTimeMs != 4200 {
		t.Errorf("counts = %+v", run)
	}
	if run.CacheKey != "abc123" || run.ContextID != "ctx-1" {
		t.Errorf("handles = %q %q", run.CacheKey, run.ContextID)
	}
	if len(run.Agents) != 2 {
		t.Fatalf("agents = %d, want 2", len(run.Agents))
	}
	if run.Agents[0].Agent != "claude" || !run.Agents[0].Success || run.Agents[0].ExitCode == nil {
		t.Errorf("agent[0] = %+v", run.Agents[0])
	}
	if run.Agents[1].Failure != "tool_timeout" || run.Agents[1].ExitCode != nil {
		t.Errorf("agent[1] = %+v", run.Agents[1])
	}
}

func TestRecord_NilResult(t *testing.T) {
	s := newTestStore(t, 0)
	if _, err := s.Record(RecordParams{Tool: "x"}); !errors.Is(err, domain.ErrStoreWrite) {
		t.Fatalf("err = %v, want ErrStoreWrite", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t, 0)
	if _, err := s.Get("nope"); !errors.Is(err, domain.ErrStoreQuery) {
		t.Fatalf("err = %v, want ErrStoreQuery", err)
	}
}

// ─── Recent / Prune ─────────────────────────────────────────────────────────

func TestRecent_NewestFirstAndFiltered(t *testing.T) {
	fixedClock(t)
	s := newTestStore(t, 0)

	for _, target := range []string{"one", "two", "three"} {
		if _, err := s.Record(RecordParams{Tool: "roast_idea", Result: sampleResult(target, true)}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Record(RecordParams{Tool: "roast_cli_debate", Result: sampleResult("debate", true, true)}); err != nil {
		t.Fatal(err)
	}

	runs, err := s.Recent("", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 4 || runs[0].Target != "debate" || runs[3].Target != "one" {
		t.Errorf("order = %v", targets(runs))
	}

	runs, _ = s.Recent("roast_idea", 2)
	if len(runs) != 2 || runs[0].Target != "three" || runs[1].Target != "two" {
		t.Errorf("filtered = %v", targets(runs))
	}
}

func TestRecord_PrunesToMaxRuns(t *testing.T) {
	fixedClock(t)
	s := newTestStore(t, 2)

	for _, target := range []string{"a", "b", "c"} {
		if _, err := s.Record(RecordParams{Tool: "roast_idea", Result: sampleResult(target, true, false)}); err != nil {
			t.Fatal(err)
		}
	}

	runs, _ := s.Recent("", 10)
	if len(runs) != 2 || runs[1].Target != "b" {
		t.Errorf("after prune = %v, want [c b]", targets(runs))
	}

	var orphans int
	_ = s.db.QueryRow("SELECT COUNT(*) FROM agent_runs WHERE run_id NOT IN (SELECT id FROM runs)").Scan(&orphans)
	if orphans != 0 {
		t.Errorf("agent rows of pruned runs remain: %d", orphans)
	}
}

// ─── Stats / Format ─────────────────────────────────────────────────────────

func TestStats(t *testing.T) {
	s := newTestStore(t, 0)
	_, _ = s.Record(RecordParams{Tool: "roast_idea", Result: sampleResult("x", true, false)})
	_, _ = s.Record(RecordParams{Tool: "roast_idea", Result: sampleResult("y", false)})
	_, _ = s.Record(RecordParams{Tool: "roast_security", Result: sampleResult("z", true)})

	st, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalRuns != 3 || st.SuccessfulRuns != 2 {
		t.Errorf("totals = %+v", st)
	}
	if st.ByTool["roast_idea"] != 2 || st.ByTool["roast_security"] != 1 {
		t.Errorf("by tool = %v", st.ByTool)
	}
	claude := st.Agents["claude"]
	if claude.Runs != 3 || claude.Succeeded != 2 {
		t.Errorf("claude stats = %+v", claude)
	}
}

func TestFormatRecent(t *testing.T) {
	if got := FormatRecent(nil); !strings.Contains(got, "No analysis runs") {
		t.Errorf("empty = %q", got)
	}
	out := FormatRecent([]Run{{
		Tool: "roast_idea", Target: "a startup", Success: false, Failed: 1, Resumed: true,
		CreatedAt: "2026-03-01 12:00:00.000",
		Agents:    []AgentRun{{Agent: "codex", Failure: "tool_timeout", ExecutionTimeMs: 900}},
	}})
	for _, want := range []string{"roast_idea", "FAILED", "[resumed]", "codex ✗ tool_timeout"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func targets(runs []Run) []string {
	out := make([]string, len(runs))
	for i, r := range runs {
		out[i] = r.Target
	}
	return out
}
