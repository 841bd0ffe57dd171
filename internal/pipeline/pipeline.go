// Package pipeline ties the orchestrator, the response cache, the chunker
// and the run journal into the request flow every critique tool follows:
// page through a cached result, resume it as a conversation, or compute
// it at most once and cache it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ejmockler/brutalist-mcp/internal/cache"
	"github.com/ejmockler/brutalist-mcp/internal/domain"
	"github.com/ejmockler/brutalist-mcp/internal/history"
	"github.com/ejmockler/brutalist-mcp/internal/orchestrator"
)

// Analyzer runs analyses and debates. *orchestrator.Orchestrator
// implements it.
type Analyzer interface {
	Analyze(ctx context.Context, req orchestrator.Request) (*domain.AnalysisResult, error)
	Debate(ctx context.Context, req orchestrator.DebateRequest) (*orchestrator.DebateOutcome, error)
}

// Journal records completed runs. *history.Store implements it.
type Journal interface {
	Record(p history.RecordParams) (string, error)
}

// Config sizes pages.
type Config struct {
	ChunkTokens   int
	OverlapTokens int
	CharsPerToken int
	MinPageSize   int
	MaxPageSize   int
}

// DefaultConfig matches the server defaults.
func DefaultConfig() Config {
	return Config{ChunkTokens: 22000, OverlapTokens: 200, CharsPerToken: 4, MinPageSize: 1000, MaxPageSize: 100000}
}

// Request carries what every critique tool shares: identity, the cache
// handle fields and pagination.
type Request struct {
	// Tool names the MCP tool; it is part of the cache key.
	Tool string
	// Params are the tool arguments that define the result.
	Params    map[string]any
	SessionID string

	ContextID    string
	Resume       bool
	FollowUp     string
	ForceRefresh bool
	Page         Page
}

// Response is one served page.
type Response struct {
	Content    string
	ContextID  string
	CacheKey   string
	Cached     bool
	Resumed    bool
	Warning    string
	Pagination Pagination
	// Result is set only when agents ran for this call.
	Result *domain.AnalysisResult
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	analyzer Analyzer
	cache    *cache.Store
	sessions *cache.SessionTracker
	journal  Journal
	cfg      Config
	flight   singleflight.Group
}

// New creates a pipeline. sessions and journal may be nil.
func New(analyzer Analyzer, store *cache.Store, sessions *cache.SessionTracker, journal Journal, cfg Config) *Pipeline {
	return &Pipeline{
		analyzer: analyzer,
		cache:    store,
		sessions: sessions,
		journal:  journal,
		cfg:      cfg,
	}
}

// Cache exposes the response cache.
func (p *Pipeline) Cache() *cache.Store { return p.cache }

// StartJanitor sweeps expired cache entries and idle sessions every
// interval until ctx is done.
func (p *Pipeline) StartJanitor(ctx context.Context, interval time.Duration) {
	sweepers := []cache.Sweeper{p.cache}
	if p.sessions != nil {
		sweepers = append(sweepers, p.sessions)
	}
	go cache.RunJanitor(ctx, interval, sweepers...)
}

// job adapts one kind of orchestrator run. cont is nil for a fresh run.
type job struct {
	opening string
	run     func(ctx context.Context, cont *continuation) (*domain.AnalysisResult, error)
}

// continuation carries a resumed conversation into a run.
type continuation struct {
	prompt   string
	followUp string
}

// Analyze serves a single-shot analysis.
func (p *Pipeline) Analyze(ctx context.Context, req Request, a orchestrator.Request) (*Response, error) {
	return p.serve(ctx, req, job{
		opening: a.Prompt.Task,
		run: func(ctx context.Context, cont *continuation) (*domain.AnalysisResult, error) {
			call := a
			if cont != nil {
				call.Prompt.Task = cont.prompt
			}
			return p.analyzer.Analyze(ctx, call)
		},
	})
}

// Debate serves a multi-round debate.
func (p *Pipeline) Debate(ctx context.Context, req Request, d orchestrator.DebateRequest) (*Response, error) {
	return p.serve(ctx, req, job{
		opening: d.Topic,
		run: func(ctx context.Context, cont *continuation) (*domain.AnalysisResult, error) {
			call := d
			if cont != nil {
				call.Context = cont.prompt
				if call.Topic == "" {
					call.Topic = cont.followUp
				}
			}
			out, err := p.analyzer.Debate(ctx, call)
			if err != nil {
				return nil, err
			}
			return out.Result, nil
		},
	})
}

func (p *Pipeline) serve(ctx context.Context, req Request, j job) (*Response, error) {
	if p.sessions != nil {
		p.sessions.Touch(req.SessionID)
	}

	switch {
	case req.Resume:
		return p.resume(ctx, req, j)
	case req.ContextID != "":
		return p.pageHandle(req)
	default:
		return p.compute(ctx, req, j)
	}
}

// ─── Handle paging ──────────────────────────────────────────────────────

func (p *Pipeline) pageHandle(req Request) (*Response, error) {
	rec, ok := p.cache.GetByContextID(req.ContextID, req.SessionID)
	if !ok {
		return nil, domain.Errorf(domain.ErrHandleNotFound,
			"context_id %s is expired or unknown; run the analysis again without context_id", req.ContextID)
	}
	return p.respond(rec.Content, req.Page, &Response{
		ContextID: req.ContextID,
		CacheKey:  rec.Key,
		Cached:    true,
	})
}

// ─── Resume ─────────────────────────────────────────────────────────────

func (p *Pipeline) resume(ctx context.Context, req Request, j job) (*Response, error) {
	if req.ContextID == "" {
		return nil, domain.Errorf(domain.ErrInvalidRequest, "resume requires a context_id")
	}
	followUp := strings.TrimSpace(req.FollowUp)
	if followUp == "" {
		return nil, domain.ErrResumeNeedsContent
	}

	rec, ok := p.cache.GetByContextID(req.ContextID, req.SessionID)
	if !ok {
		return nil, domain.Errorf(domain.ErrHandleNotFound,
			"context_id %s is expired or unknown; the conversation cannot be resumed", req.ContextID)
	}

	result, err := j.run(ctx, &continuation{
		prompt:   continuationPrompt(rec.Conversation, rec.Content, followUp),
		followUp: followUp,
	})
	if err != nil {
		return nil, err
	}
	p.record(req, rec.Key, req.ContextID, true, result)

	resp := &Response{
		ContextID: req.ContextID,
		CacheKey:  rec.Key,
		Resumed:   true,
		Result:    result,
	}
	if !result.Success {
		resp.Warning = "every agent failed; the conversation was not updated"
		return p.respondWhole(result.Synthesis, resp), nil
	}

	now := timeNow()
	err = p.cache.UpdateByContextID(req.ContextID, req.SessionID, result.Synthesis,
		cache.Message{Role: "user", Content: followUp, Timestamp: now},
		cache.Message{Role: "assistant", Content: result.Synthesis, Timestamp: now},
	)
	if err != nil {
		if !errors.Is(err, domain.ErrPayloadTooLarge) {
			return nil, err
		}
		log.Printf("WARNING: resumed response for %s not cached: %v", req.ContextID, err)
		resp.Warning = "response too large to cache; the conversation was not updated"
		return p.respondWhole(result.Synthesis, resp), nil
	}
	return p.respond(result.Synthesis, req.Page, resp)
}

// continuationPrompt replays the conversation so far and appends the
// follow-up.
func continuationPrompt(conv []cache.Message, latest, followUp string) string {
	var b strings.Builder
	b.WriteString("## Conversation so far\n\n")
	if len(conv) == 0 {
		conv = []cache.Message{{Role: "assistant", Content: latest}}
	}
	for _, m := range conv {
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", roleTitle(m.Role), strings.TrimSpace(m.Content))
	}
	fmt.Fprintf(&b, "## Follow-up\n\n%s\n\n", followUp)
	b.WriteString("Answer the follow-up. Build on the critique above; do not soften it.\n")
	return b.String()
}

func roleTitle(role string) string {
	if role == "" {
		return ""
	}
	return strings.ToUpper(role[:1]) + role[1:]
}

// ─── Compute or hit ─────────────────────────────────────────────────────

type flightResult struct {
	result    *domain.AnalysisResult
	contextID string
	warning   string
}

func (p *Pipeline) compute(ctx context.Context, req Request, j job) (*Response, error) {
	key, err := cache.GenerateCacheKey(keyParams(req))
	if err != nil {
		return nil, domain.Wrap(domain.ErrInvalidRequest, "cannot derive cache key", err)
	}

	if !req.ForceRefresh {
		if rec, ok := p.cache.Lookup(key, req.SessionID); ok {
			alias, err := p.cache.CreateAlias(key, req.SessionID)
			if err == nil {
				log.Printf("[pipeline] %s: cache hit %.12s", req.Tool, key)
				return p.respond(rec.Content, req.Page, &Response{ContextID: alias, CacheKey: key, Cached: true})
			}
		}
	}

	v, err, shared := p.flight.Do(key, func() (any, error) {
		result, err := j.run(ctx, nil)
		if err != nil {
			return nil, err
		}
		fr := &flightResult{result: result}
		if !result.Success {
			fr.warning = "every agent failed; the result was not cached"
		} else {
			conv := []cache.Message{
				{Role: "user", Content: j.opening, Timestamp: timeNow()},
				{Role: "assistant", Content: result.Synthesis, Timestamp: timeNow()},
			}
			_, fr.contextID, err = p.cache.Set(nil, result.Synthesis, cache.SetOptions{
				Key:          key,
				SessionID:    req.SessionID,
				Conversation: conv,
			})
			if err != nil {
				log.Printf("WARNING: %s result not cached: %v", req.Tool, err)
				fr.warning = "result too large to cache; it is returned in full"
			}
		}
		p.record(req, key, fr.contextID, false, result)
		return fr, nil
	})
	if err != nil {
		return nil, err
	}

	fr := v.(*flightResult)
	resp := &Response{CacheKey: key, ContextID: fr.contextID, Warning: fr.warning, Result: fr.result}
	if shared && fr.contextID != "" {
		// Callers that joined an in-flight run get their own handle.
		if alias, err := p.cache.CreateAlias(key, req.SessionID); err == nil {
			resp.ContextID = alias
		}
	}
	if resp.ContextID == "" {
		return p.respondWhole(fr.result.Synthesis, resp), nil
	}
	return p.respond(fr.result.Synthesis, req.Page, resp)
}

// keyParams scopes the key to the caller's session so one session can
// never replace another session's entry.
func keyParams(req Request) map[string]any {
	params := make(map[string]any, len(req.Params)+2)
	for k, v := range req.Params {
		params[k] = v
	}
	params["tool"] = req.Tool
	params["_owner"] = cache.Owner(req.SessionID)
	return params
}

func (p *Pipeline) respond(content string, pg Page, resp *Response) (*Response, error) {
	page, meta, err := p.cfg.paginate(content, pg)
	if err != nil {
		return nil, err
	}
	resp.Content = page
	resp.Pagination = meta
	return resp, nil
}

// respondWhole serves content that has no cache entry behind it, or
// whose entry holds different content, so it cannot be paged.
func (p *Pipeline) respondWhole(content string, resp *Response) *Response {
	resp.Content = content
	resp.Pagination = whole(content)
	return resp
}

func (p *Pipeline) record(req Request, key, contextID string, resumed bool, result *domain.AnalysisResult) {
	if p.journal == nil {
		return
	}
	_, err := p.journal.Record(history.RecordParams{
		Tool:      req.Tool,
		SessionID: req.SessionID,
		CacheKey:  key,
		ContextID: contextID,
		Resumed:   resumed,
		Result:    result,
	})
	if err != nil {
		log.Printf("WARNING: history not recorded for %s: %v", req.Tool, err)
	}
}
