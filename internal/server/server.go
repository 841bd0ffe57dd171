// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools, prompts and resources. No business logic
// lives here, only wiring.
package server

import (
	"context"
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ejmockler/brutalist-mcp/internal/agents"
	"github.com/ejmockler/brutalist-mcp/internal/cache"
	"github.com/ejmockler/brutalist-mcp/internal/config"
	"github.com/ejmockler/brutalist-mcp/internal/history"
	"github.com/ejmockler/brutalist-mcp/internal/orchestrator"
	"github.com/ejmockler/brutalist-mcp/internal/pipeline"
	"github.com/ejmockler/brutalist-mcp/internal/process"
	"github.com/ejmockler/brutalist-mcp/internal/prompts"
	"github.com/ejmockler/brutalist-mcp/internal/resources"
	"github.com/ejmockler/brutalist-mcp/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Deps are the long-lived components shared by the tools. The CLI uses
// them directly for commands that do not start the MCP server.
type Deps struct {
	Registry     *agents.Registry
	CLI          *agents.CLIContext
	Orchestrator *orchestrator.Orchestrator
	Cache        *cache.Store
	Sessions     *cache.SessionTracker
}

// NewDeps builds the agent registry, the detection context, the
// orchestrator and the response cache from cfg.
func NewDeps(cfg *config.Config) *Deps {
	registry := agents.DefaultRegistry()
	runner := process.NewExecRunner(cfg.KillGrace())
	cli := agents.NewCLIContext(registry, runner, cfg.DetectTimeout())

	orch := orchestrator.New(registry, cli, runner, orchestrator.Config{
		Timeout:             cfg.AgentTimeout(),
		MaxConcurrent:       cfg.Agents.MaxConcurrent,
		MaxDebateRounds:     cfg.Agents.MaxDebateRounds,
		DefaultDebateRounds: cfg.Agents.DefaultDebateRounds,
	})

	store := cache.New(cache.Config{
		TTL:                  cfg.CacheTTL(),
		MaxEntries:           cfg.Cache.MaxEntries,
		MaxTotalSize:         cfg.Cache.MaxTotalSize,
		MaxEntrySize:         cfg.Cache.MaxEntrySize,
		CompressionThreshold: cfg.Cache.CompressionThreshold,
	})

	// A session that goes idle or falls out of the tracker takes its
	// cached results with it.
	sessions := cache.NewSessionTracker(cfg.Sessions.MaxSessions, cfg.SessionIdleTTL(), func(id string) {
		store.ClearSession(id)
	})

	return &Deps{
		Registry:     registry,
		CLI:          cli,
		Orchestrator: orch,
		Cache:        store,
		Sessions:     sessions,
	}
}

// New creates and configures the MCP server with all tools, prompts,
// and resources registered.
//
// The returned cleanup function stops the cache janitor and closes the
// history database. It is always non-nil and safe to call even if
// history init failed.
func New(cfg *config.Config) (*server.MCPServer, func(), error) {
	deps := NewDeps(cfg)

	// --- Run history ---
	//
	// History is optional: if it is disabled or fails to open, critiques
	// still run and are cached, they just are not journaled.

	var (
		journal    pipeline.Journal
		historyDB  *history.Store
		closeStore = noop
	)
	if !cfg.HistoryEnabled {
		log.Printf("WARNING: run history disabled by configuration")
	} else {
		hcfg := history.DefaultConfig()
		hcfg.DataDir = cfg.DataDir
		db, err := history.New(hcfg)
		if err != nil {
			log.Printf("WARNING: run history disabled: %v", err)
		} else {
			historyDB = db
			journal = db
			closeStore = func() {
				if err := db.Close(); err != nil {
					log.Printf("WARNING: history store close: %v", err)
				}
			}
		}
	}

	// --- Request pipeline ---

	pipe := pipeline.New(deps.Orchestrator, deps.Cache, deps.Sessions, journal, pipeline.Config{
		ChunkTokens:   cfg.Chunking.ChunkTokens,
		OverlapTokens: cfg.Chunking.OverlapTokens,
		CharsPerToken: cfg.Chunking.CharsPerToken,
		MinPageSize:   cfg.Chunking.MinPageSize,
		MaxPageSize:   cfg.Chunking.MaxPageSize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	pipe.StartJanitor(ctx, cfg.SweepInterval())

	cleanup := func() {
		cancel()
		closeStore()
	}

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"brutalist-mcp",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register critique tools ---

	for _, d := range tools.Domains {
		roast := tools.NewRoastTool(d, pipe)
		s.AddTool(roast.Definition(), roast.Handle)
	}

	debateTool := tools.NewDebateTool(pipe)
	s.AddTool(debateTool.Definition(), debateTool.Handle)

	// --- Register introspection tools ---

	rosterTool := tools.NewRosterTool(deps.Registry, deps.CLI)
	s.AddTool(rosterTool.Definition(), rosterTool.Handle)

	cacheTool := tools.NewCacheTool(deps.Cache)
	s.AddTool(cacheTool.Definition(), cacheTool.Handle)

	if historyDB != nil {
		historyTool := tools.NewHistoryTool(historyDB)
		s.AddTool(historyTool.Definition(), historyTool.Handle)
	}

	// --- Register prompts ---

	roastPrompt := prompts.NewRoastPrompt()
	s.AddPrompt(roastPrompt.Definition(), roastPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(deps.CLI, deps.Cache)
	s.AddResource(resourceHandler.AgentsResource(), resourceHandler.HandleAgents)
	s.AddResource(resourceHandler.CacheStatsResource(), resourceHandler.HandleCacheStats)

	return s, cleanup, nil
}

// noop is the default cleanup when history is disabled.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to use the critique tools.
func serverInstructions() string {
	return `You have access to Brutalist, an MCP server that sends your work to other
AI coding CLIs (Claude Code, Codex, Gemini CLI) running locally and collects
their unsparing critique.

## WHEN TO USE IT

Reach for a roast_* tool when the user wants an honest second opinion:
- Before merging a large change or starting a risky refactor
- When an idea, architecture or product plan needs stress testing
- When you suspect your own answer is too agreeable

Each roast takes minutes, not seconds: the agents read the code themselves.

## TOOLS

- roast_codebase, roast_file_structure, roast_dependencies, roast_test_coverage:
  pass targetPath (a directory or file). The agents run inside it.
- roast_idea, roast_architecture, roast_security: pass the text to critique.
- roast_cli_debate: two or more agents argue opposing positions on a topic.
- cli_agent_roster: which agents are installed and which one is hosting you.
  The host agent is excluded from roasts when others are available.
- brutalist_cache, brutalist_history: inspect cached results and past runs.

## LARGE RESULTS

Responses are paged. Every response ends with a context_id. When it says
"Part 1 of N", call the same tool again with context_id and the given
next_cursor (or offset) to read the rest. Paging never re-runs the agents.

## FOLLOW-UPS

To ask the critics a follow-up question, call the same tool with
context_id, resume=true and content=<your question>. The earlier critique
is sent along, so keep the question short.

## IMPORTANT

- Present the critique to the user faithfully; do not soften it.
- If every agent failed, the response says so and nothing is cached.
- Pass force_refresh=true only when the target changed since the last run.`
}
