// Package history journals every analysis run in a local SQLite database.
//
// The journal is what survives a restart: the response cache is purely in
// memory, so this is where operators look to see which agents ran, how
// long they took and which ones keep failing.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ejmockler/brutalist-mcp/internal/domain"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeNow is a package-level var to allow test injection.
var timeNow = time.Now

const timeLayout = "2006-01-02 15:04:05.000"

// ─── Types ───────────────────────────────────────────────────────────────────

// Config holds history store settings.
type Config struct {
	DataDir string
	// MaxRuns caps the journal; older runs are pruned on insert.
	MaxRuns int
}

// DefaultConfig returns the default configuration for the history store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir: filepath.Join(home, ".brutalist"),
		MaxRuns: 1000,
	}
}

// AgentRun is one agent's part in a run.
type AgentRun struct {
	Agent           string `json:"agent"`
	Success         bool   `json:"success"`
	Failure         string `json:"failure,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	ExitCode        *int   `json:"exit_code,omitempty"`
}

// Run is one journaled orchestrator invocation.
type Run struct {
	ID          string     `json:"id"`
	Tool        string     `json:"tool"`
	Kind        string     `json:"kind"`
	Target      string     `json:"target"`
	SessionID   string     `json:"session_id"`
	CacheKey    string     `json:"cache_key,omitempty"`
	ContextID   string     `json:"context_id,omitempty"`
	Success     bool       `json:"success"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	TotalTimeMs int64      `json:"total_time_ms"`
	OutputBytes int        `json:"output_bytes"`
	Resumed     bool       `json:"resumed,omitempty"`
	CreatedAt   string     `json:"created_at"`
	Agents      []AgentRun `json:"agents,omitempty"`
}

// RecordParams holds the input for journaling a run.
type RecordParams struct {
	Tool      string
	SessionID string
	CacheKey  string
	ContextID string
	Resumed   bool
	Result    *domain.AnalysisResult
}

// AgentStats aggregates one agent's runs.
type AgentStats struct {
	Runs      int     `json:"runs"`
	Succeeded int     `json:"succeeded"`
	AvgTimeMs float64 `json:"avg_time_ms"`
}

// Stats holds aggregate journal statistics.
type Stats struct {
	TotalRuns      int                   `json:"total_runs"`
	SuccessfulRuns int                   `json:"successful_runs"`
	ByTool         map[string]int        `json:"by_tool"`
	Agents         map[string]AgentStats `json:"agents"`
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the run journal backed by SQLite.
type Store struct {
	db  *sql.DB
	cfg Config
}

// New creates a new Store with the given configuration.
// It creates the data directory if needed, opens SQLite with WAL mode,
// and runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, domain.Wrap(domain.ErrStoreInit, "history: create data dir", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "history.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStoreInit, "history: open database", err)
	}
	// Pragmas are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, domain.Wrap(domain.ErrStoreInit, fmt.Sprintf("history: pragma %q", p), err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, domain.Wrap(domain.ErrStoreInit, "history: migration", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id            TEXT    PRIMARY KEY,
			tool          TEXT    NOT NULL,
			kind          TEXT    NOT NULL,
			target        TEXT    NOT NULL,
			session_id    TEXT    NOT NULL,
			cache_key     TEXT,
			context_id    TEXT,
			success       INTEGER NOT NULL,
			succeeded     INTEGER NOT NULL,
			failed        INTEGER NOT NULL,
			total_time_ms INTEGER NOT NULL,
			output_bytes  INTEGER NOT NULL,
			resumed       INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_runs_tool    ON runs(tool);

		CREATE TABLE IF NOT EXISTS agent_runs (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id            TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position          INTEGER NOT NULL,
			agent             TEXT    NOT NULL,
			success           INTEGER NOT NULL,
			failure           TEXT,
			execution_time_ms INTEGER NOT NULL,
			exit_code         INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_agent_runs_run ON agent_runs(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ─── Writes ──────────────────────────────────────────────────────────────────

// Record journals a run and prunes the journal to MaxRuns. It returns the
// run ID.
func (s *Store) Record(p RecordParams) (string, error) {
	if p.Result == nil {
		return "", domain.Errorf(domain.ErrStoreWrite, "history: nil result")
	}
	r := p.Result
	id := uuid.NewString()
	now := timeNow().UTC().Format(timeLayout)

	tx, err := s.db.Begin()
	if err != nil {
		return "", domain.Wrap(domain.ErrStoreWrite, "history: begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO runs (id, tool, kind, target, session_id, cache_key, context_id,
			success, succeeded, failed, total_time_ms, output_bytes, resumed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.Tool, r.AnalysisKind, r.Target, p.SessionID, nullableString(p.CacheKey), nullableString(p.ContextID),
		r.Success, r.Summary.Succeeded, r.Summary.Failed, r.Summary.TotalTimeMs, len(r.Synthesis), p.Resumed, now)
	if err != nil {
		return "", domain.Wrap(domain.ErrStoreWrite, "history: insert run", err)
	}

	for i, resp := range r.Responses {
		var exit any
		if resp.ExitCode != nil {
			exit = *resp.ExitCode
		}
		_, err = tx.Exec(`
			INSERT INTO agent_runs (run_id, position, agent, success, failure, execution_time_ms, exit_code)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i, string(resp.Agent), resp.Success, nullableString(string(resp.Failure)), resp.ExecutionTimeMs, exit)
		if err != nil {
			return "", domain.Wrap(domain.ErrStoreWrite, "history: insert agent run", err)
		}
	}

	if s.cfg.MaxRuns > 0 {
		_, err = tx.Exec(`
			DELETE FROM runs WHERE id NOT IN (
				SELECT id FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?
			)`, s.cfg.MaxRuns)
		if err != nil {
			return "", domain.Wrap(domain.ErrStoreWrite, "history: prune", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", domain.Wrap(domain.ErrStoreWrite, "history: commit", err)
	}
	return id, nil
}

// ─── Reads ───────────────────────────────────────────────────────────────────

const runColumns = `id, tool, kind, target, session_id, COALESCE(cache_key, ''), COALESCE(context_id, ''),
	success, succeeded, failed, total_time_ms, output_bytes, resumed, created_at`

// Recent returns the newest runs, optionally filtered by tool, with their
// agent rows.
func (s *Store) Recent(tool string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT " + runColumns + " FROM runs"
	var args []any
	if tool != "" {
		query += " WHERE tool = ?"
		args = append(args, tool)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStoreQuery, "history: recent runs", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, domain.Wrap(domain.ErrStoreQuery, "history: scan run", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.ErrStoreQuery, "history: recent runs", err)
	}
	_ = rows.Close()

	for i := range runs {
		if runs[i].Agents, err = s.agentRuns(runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Get returns a single run by ID.
func (s *Store) Get(id string) (*Run, error) {
	row := s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, domain.Errorf(domain.ErrStoreQuery, "history: run %s not found", id)
	}
	if err != nil {
		return nil, domain.Wrap(domain.ErrStoreQuery, "history: get run", err)
	}
	if run.Agents, err = s.agentRuns(id); err != nil {
		return nil, err
	}
	return &run, nil
}

// Stats returns aggregate journal statistics.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{ByTool: map[string]int{}, Agents: map[string]AgentStats{}}

	err := s.db.QueryRow("SELECT COUNT(*), COALESCE(SUM(success), 0) FROM runs").
		Scan(&stats.TotalRuns, &stats.SuccessfulRuns)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStoreQuery, "history: count runs", err)
	}

	rows, err := s.db.Query("SELECT tool, COUNT(*) FROM runs GROUP BY tool")
	if err != nil {
		return nil, domain.Wrap(domain.ErrStoreQuery, "history: runs by tool", err)
	}
	for rows.Next() {
		var tool string
		var n int
		if err := rows.Scan(&tool, &n); err == nil {
			stats.ByTool[tool] = n
		}
	}
	_ = rows.Close()

	rows, err = s.db.Query(`
		SELECT agent, COUNT(*), COALESCE(SUM(success), 0), COALESCE(AVG(execution_time_ms), 0)
		FROM agent_runs GROUP BY agent`)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStoreQuery, "history: agent stats", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var agent string
		var a AgentStats
		if err := rows.Scan(&agent, &a.Runs, &a.Succeeded, &a.AvgTimeMs); err == nil {
			stats.Agents[agent] = a
		}
	}
	return stats, rows.Err()
}

// FormatRecent renders runs as a markdown list.
func FormatRecent(runs []Run) string {
	if len(runs) == 0 {
		return "No analysis runs recorded yet."
	}
	var b strings.Builder
	for _, r := range runs {
		status := "ok"
		if !r.Success {
			status = "FAILED"
		}
		fmt.Fprintf(&b, "- `%s` **%s** %s: %s (%d/%d agents, %.1fs)",
			r.CreatedAt, r.Tool, status, truncate(r.Target, 60), r.Succeeded, r.Succeeded+r.Failed,
			float64(r.TotalTimeMs)/1000)
		if r.Resumed {
			b.WriteString(" [resumed]")
		}
		b.WriteString("\n")
		for _, a := range r.Agents {
			mark := "✓"
			if !a.Success {
				mark = "✗ " + a.Failure
			}
			fmt.Fprintf(&b, "  - %s %s (%dms)\n", a.Agent, mark, a.ExecutionTimeMs)
		}
	}
	return b.String()
}

// ─── helpers ─────────────────────────────────────────────────────────────────

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var r Run
	err := sc.Scan(&r.ID, &r.Tool, &r.Kind, &r.Target, &r.SessionID, &r.CacheKey, &r.ContextID,
		&r.Success, &r.Succeeded, &r.Failed, &r.TotalTimeMs, &r.OutputBytes, &r.Resumed, &r.CreatedAt)
	return r, err
}

func (s *Store) agentRuns(runID string) ([]AgentRun, error) {
	rows, err := s.db.Query(`
		SELECT agent, success, COALESCE(failure, ''), execution_time_ms, exit_code
		FROM agent_runs WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStoreQuery, "history: agent runs", err)
	}
	defer func() { _ = rows.Close() }()

	var out []AgentRun
	for rows.Next() {
		var a AgentRun
		var exit sql.NullInt64
		if err := rows.Scan(&a.Agent, &a.Success, &a.Failure, &a.ExecutionTimeMs, &exit); err != nil {
			return nil, domain.Wrap(domain.ErrStoreQuery, "history: scan agent run", err)
		}
		if exit.Valid {
			code := int(exit.Int64)
			a.ExitCode = &code
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
