// Package orchestrator runs one request across several CLI agents.
//
// A call moves through fixed phases: detect the installed agents, select
// the participants, dispatch them under a shared concurrency ceiling,
// collect their responses in dispatch order, and synthesize a single
// report. One agent failing never cancels its siblings.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ejmockler/brutalist-mcp/internal/agents"
	"github.com/ejmockler/brutalist-mcp/internal/domain"
	"github.com/ejmockler/brutalist-mcp/internal/process"
)

// Phase is a step of an orchestrator call.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseDetecting    Phase = "detecting"
	PhaseSelecting    Phase = "selecting"
	PhaseDispatching  Phase = "dispatching"
	PhaseCollecting   Phase = "collecting"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseDone         Phase = "done"
)

// Config bounds the orchestrator.
type Config struct {
	// Timeout is the per-agent wall clock limit and the ceiling for
	// per-request overrides.
	Timeout         time.Duration
	MaxConcurrent   int
	MaxDebateRounds int
	// DefaultDebateRounds is used when a debate request asks for zero.
	DefaultDebateRounds int
}

// Orchestrator dispatches requests to agents.
type Orchestrator struct {
	registry *agents.Registry
	cli      *agents.CLIContext
	runner   process.Runner
	cfg      Config
	sem      *semaphore.Weighted
	now      func() time.Time
}

// New creates an Orchestrator. The concurrency ceiling is shared by every
// call made through it.
func New(registry *agents.Registry, cli *agents.CLIContext, runner process.Runner, cfg Config) *Orchestrator {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxDebateRounds < 1 {
		cfg.MaxDebateRounds = 1
	}
	if cfg.DefaultDebateRounds < 1 {
		cfg.DefaultDebateRounds = 1
	}
	return &Orchestrator{
		registry: registry,
		cli:      cli,
		runner:   runner,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		now:      time.Now,
	}
}

// CLIContext exposes the detection context the orchestrator uses.
func (o *Orchestrator) CLIContext() *agents.CLIContext { return o.cli }

// Request is a single-shot analysis.
type Request struct {
	// Kind names the analysis domain, e.g. "codebase" or "idea".
	Kind   string
	Target string
	Prompt agents.Prompt
	// Preferred restricts the run to one agent.
	Preferred domain.AgentID
	// Models overrides the model per agent.
	Models  map[domain.AgentID]string
	WorkDir string
	// Timeout overrides Config.Timeout; it is clamped to it.
	Timeout time.Duration
}

// Analyze runs the request on every selected agent and synthesizes the
// result. Partial failure is a successful result; only a selection
// problem is returned as an error.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (*domain.AnalysisResult, error) {
	start := o.now()
	tr := newTracker(req.Kind)

	tr.enter(PhaseDetecting)
	snap := o.cli.Ensure(ctx)

	tr.enter(PhaseSelecting)
	ids, err := agents.Select(snap, req.Preferred, true)
	if err != nil {
		tr.fail(err)
		return nil, err
	}

	calls := make([]call, len(ids))
	for i, id := range ids {
		calls[i] = call{
			agent:  id,
			prompt: req.Prompt,
			opts:   agents.BuildOptions{Model: req.Models[id], WorkDir: req.WorkDir},
		}
	}

	tr.enter(PhaseDispatching, "agents=%v", ids)
	responses := o.dispatch(ctx, calls, o.timeoutFor(req.Timeout))

	tr.enter(PhaseCollecting)
	total := o.now().Sub(start).Milliseconds()
	summary := domain.Summarize(responses, total)

	tr.enter(PhaseSynthesizing)
	result := &domain.AnalysisResult{
		Success:      summary.Succeeded > 0,
		Responses:    responses,
		AnalysisKind: req.Kind,
		Target:       req.Target,
		Summary:      summary,
	}
	result.Synthesis = Synthesize(result)

	tr.enter(PhaseDone, "%s", summary)
	return result, nil
}

func (o *Orchestrator) timeoutFor(override time.Duration) time.Duration {
	if override > 0 && (o.cfg.Timeout <= 0 || override < o.cfg.Timeout) {
		return override
	}
	return o.cfg.Timeout
}

// ─── Dispatch ───────────────────────────────────────────────────────────

type call struct {
	agent  domain.AgentID
	prompt agents.Prompt
	opts   agents.BuildOptions
}

// dispatch runs calls concurrently under the shared semaphore. The
// returned slice is index-aligned with calls.
func (o *Orchestrator) dispatch(ctx context.Context, calls []call, timeout time.Duration) []domain.AgentResponse {
	out := make([]domain.AgentResponse, len(calls))
	var wg sync.WaitGroup
	for i, c := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.sem.Acquire(ctx, 1); err != nil {
				out[i] = failed(c.agent, domain.Wrap(domain.ErrToolCanceled, "", err), 0)
				return
			}
			defer o.sem.Release(1)
			out[i] = o.invoke(ctx, c, timeout)
		}()
	}
	wg.Wait()
	return out
}

// invoke builds and runs one agent call, folding every failure into the
// response.
func (o *Orchestrator) invoke(ctx context.Context, c call, timeout time.Duration) domain.AgentResponse {
	start := o.now()
	agent, ok := o.registry.Get(c.agent)
	if !ok {
		return failed(c.agent, domain.Errorf(domain.ErrUnknownAgent, "no invocation convention for %s", c.agent), 0)
	}

	inv, err := agent.Build(c.prompt, c.opts)
	if err != nil {
		return failed(c.agent, domain.Wrap(domain.ErrSpawnFailed, "building invocation", err), 0)
	}
	defer inv.Cleanup()

	res, err := o.runner.Run(ctx, process.Spec{
		Command: inv.Command,
		Args:    inv.Args,
		Dir:     inv.Dir,
		Env:     inv.Env,
		Stdin:   inv.Stdin,
		Timeout: timeout,
	})
	elapsed := o.now().Sub(start).Milliseconds()

	resp := domain.AgentResponse{
		Agent:           c.agent,
		Output:          strings.TrimSpace(res.Stdout),
		ExecutionTimeMs: elapsed,
		Command:         inv.Describe(),
	}
	if res.ExitCode >= 0 {
		code := res.ExitCode
		resp.ExitCode = &code
	}

	switch {
	case err != nil:
		resp.Error = err.Error()
		resp.Failure = domain.ClassifyFailure(err)
		log.Printf("[orchestrator] %s failed after %dms: %v", c.agent, elapsed, err)
	case resp.Output == "":
		resp.Error = "agent produced no output"
		resp.Failure = domain.FailureError
		log.Printf("[orchestrator] %s returned empty output", c.agent)
	default:
		resp.Success = true
	}
	return resp
}

func failed(agent domain.AgentID, err error, elapsed int64) domain.AgentResponse {
	log.Printf("[orchestrator] %s failed: %v", agent, err)
	return domain.AgentResponse{
		Agent:           agent,
		Error:           err.Error(),
		Failure:         domain.ClassifyFailure(err),
		ExecutionTimeMs: elapsed,
	}
}

// ─── Phase tracking ─────────────────────────────────────────────────────

type tracker struct {
	label string
	phase Phase
}

func newTracker(label string) *tracker {
	if label == "" {
		label = "analysis"
	}
	return &tracker{label: label, phase: PhaseIdle}
}

func (t *tracker) enter(p Phase, detail ...any) {
	msg := fmt.Sprintf("[orchestrator] %s: %s -> %s", t.label, t.phase, p)
	if len(detail) > 0 {
		msg += " (" + fmt.Sprintf(detail[0].(string), detail[1:]...) + ")"
	}
	log.Print(msg)
	t.phase = p
}

func (t *tracker) fail(err error) {
	log.Printf("[orchestrator] %s: aborted in %s: %v", t.label, t.phase, err)
}
