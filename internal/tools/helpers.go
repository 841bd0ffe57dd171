// Package tools implements the MCP tool handlers of the critique server.
//
// Each tool is a struct holding its dependencies, with Definition()
// returning the mcp.Tool schema and Handle() serving a call. User-facing
// problems are returned as tool errors, never as Go errors, so the
// calling agent sees a readable message.
package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"

	"github.com/ejmockler/brutalist-mcp/internal/domain"
	"github.com/ejmockler/brutalist-mcp/internal/orchestrator"
	"github.com/ejmockler/brutalist-mcp/internal/pipeline"
)

// Critic serves critique requests. *pipeline.Pipeline implements it.
type Critic interface {
	Analyze(ctx context.Context, req pipeline.Request, a orchestrator.Request) (*pipeline.Response, error)
	Debate(ctx context.Context, req pipeline.Request, d orchestrator.DebateRequest) (*pipeline.Response, error)
}

// intArg extracts an integer argument. JSON numbers arrive as float64;
// numeric strings are accepted too.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key]
	if !ok || v == nil {
		return defaultVal
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// boolArg extracts a boolean argument.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key]
	if !ok || v == nil {
		return defaultVal
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// agentListArg accepts either an array of names or a comma separated
// string.
func agentListArg(req mcp.CallToolRequest, key string) ([]domain.AgentID, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return nil, nil
	}
	var names []string
	if s, isString := raw.(string); isString {
		names = strings.Split(s, ",")
	} else {
		names = cast.ToStringSlice(raw)
	}

	var ids []domain.AgentID
	for _, n := range names {
		id, err := domain.ParseAgentID(n)
		if err != nil {
			return nil, err
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// modelsArg reads the per-agent model overrides object.
func modelsArg(req mcp.CallToolRequest) (map[domain.AgentID]string, error) {
	raw, ok := req.GetArguments()["models"]
	if !ok || raw == nil {
		return nil, nil
	}
	m, err := cast.ToStringMapStringE(raw)
	if err != nil {
		return nil, domain.Wrap(domain.ErrInvalidRequest, "'models' must map agent names to model names", err)
	}
	out := make(map[domain.AgentID]string, len(m))
	for k, v := range m {
		id, err := domain.ParseAgentID(k)
		if err != nil {
			return nil, err
		}
		if id != "" && strings.TrimSpace(v) != "" {
			out[id] = strings.TrimSpace(v)
		}
	}
	return out, nil
}

// sessionID returns the MCP client session of the call, or "" when the
// transport has none.
func sessionID(ctx context.Context) string {
	if s := server.ClientSessionFromContext(ctx); s != nil {
		return s.SessionID()
	}
	return ""
}

// keyArgs copies the arguments that define a result. Presentation-only
// arguments are left out so they never split the cache.
func keyArgs(req mcp.CallToolRequest) map[string]any {
	out := make(map[string]any)
	for k, v := range req.GetArguments() {
		switch k {
		case "verbose", "timeout", "content":
			continue
		}
		out[k] = v
	}
	return out
}

// pipelineRequest collects the handle and pagination arguments every
// critique tool accepts.
func pipelineRequest(ctx context.Context, tool string, req mcp.CallToolRequest) pipeline.Request {
	return pipeline.Request{
		Tool:         tool,
		Params:       keyArgs(req),
		SessionID:    sessionID(ctx),
		ContextID:    strings.TrimSpace(req.GetString("context_id", "")),
		Resume:       boolArg(req, "resume", false),
		FollowUp:     req.GetString("content", ""),
		ForceRefresh: boolArg(req, "force_refresh", false),
		Page: pipeline.Page{
			Offset: intArg(req, "offset", 0),
			Limit:  intArg(req, "limit", 0),
			Cursor: strings.TrimSpace(req.GetString("cursor", "")),
		},
	}
}

// handleArgs are shared by every critique tool.
func handleArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithObject("models",
			mcp.Description(`Per-agent model overrides, e.g. {"claude": "opus", "codex": "gpt-5"}`),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Per-agent timeout in seconds; capped at the server maximum"),
		),
		mcp.WithBoolean("verbose",
			mcp.Description("Append per-agent execution details"),
		),
		mcp.WithString("context_id",
			mcp.Description("Handle from a previous response: pages through that cached result instead of re-running"),
		),
		mcp.WithBoolean("resume",
			mcp.Description("With context_id and content: continue the critique as a conversation"),
		),
		mcp.WithString("content",
			mcp.Description("Follow-up message when resuming"),
		),
		mcp.WithBoolean("force_refresh",
			mcp.Description("Ignore the cache and run the agents again"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Byte offset of the page to return (default 0)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Page size in characters; clamped to server bounds"),
		),
		mcp.WithString("cursor",
			mcp.Description("next_cursor from a previous page; wins over offset"),
		),
	}
}
