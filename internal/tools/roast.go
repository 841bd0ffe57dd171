package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ejmockler/brutalist-mcp/internal/agents"
	"github.com/ejmockler/brutalist-mcp/internal/domain"
	"github.com/ejmockler/brutalist-mcp/internal/orchestrator"
)

// RoastTool serves one roast_* tool.
type RoastTool struct {
	domain Domain
	critic Critic
}

// NewRoastTool creates a RoastTool for d.
func NewRoastTool(d Domain, critic Critic) *RoastTool {
	return &RoastTool{domain: d, critic: critic}
}

// Definition returns the MCP tool definition for registration.
func (t *RoastTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(t.domain.Description +
			" Results are cached: the response carries a context_id for paging and follow-ups."),
		mcp.WithString(t.domain.Param,
			mcp.Description(t.domain.ParamDesc+" (required unless context_id is given)"),
		),
		mcp.WithString("context",
			mcp.Description("Extra background the agents should consider"),
		),
		mcp.WithString("preferredCLI",
			mcp.Description("Run only this agent: claude, codex or gemini"),
			mcp.Enum("claude", "codex", "gemini"),
		),
	}
	if !t.domain.IsPath {
		opts = append(opts, mcp.WithString("workingDirectory",
			mcp.Description("Directory the agents run in, for ideas tied to a codebase"),
		))
	}
	opts = append(opts, handleArgs()...)
	return mcp.NewTool(t.domain.Tool, opts...)
}

// Handle processes the tool call.
func (t *RoastTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	preq := pipelineRequest(ctx, t.domain.Tool, req)

	job, errResult := t.buildJob(req, preq.ContextID != "")
	if errResult != nil {
		return errResult, nil
	}
	if preq.ContextID == "" && t.domain.IsPath {
		// Key on the resolved path so "." and its absolute form share a result.
		preq.Params[t.domain.Param] = job.Target
	}

	resp, err := t.critic.Analyze(ctx, preq, job)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", t.domain.Tool, err)), nil
	}
	return renderResponse(resp, boolArg(req, "verbose", false)), nil
}

// buildJob validates the arguments and assembles the orchestrator
// request. With a handle, the subject is optional.
func (t *RoastTool) buildJob(req mcp.CallToolRequest, hasHandle bool) (orchestrator.Request, *mcp.CallToolResult) {
	subject := strings.TrimSpace(req.GetString(t.domain.Param, ""))
	if subject == "" && !hasHandle {
		return orchestrator.Request{}, mcp.NewToolResultError(fmt.Sprintf("'%s' is required", t.domain.Param))
	}

	preferred, err := domain.ParseAgentID(req.GetString("preferredCLI", ""))
	if err != nil {
		return orchestrator.Request{}, mcp.NewToolResultError(err.Error())
	}
	models, err := modelsArg(req)
	if err != nil {
		return orchestrator.Request{}, mcp.NewToolResultError(err.Error())
	}

	job := orchestrator.Request{
		Kind:      t.domain.Kind,
		Target:    subject,
		Preferred: preferred,
		Models:    models,
		Timeout:   time.Duration(intArg(req, "timeout", 0)) * time.Second,
		WorkDir:   strings.TrimSpace(req.GetString("workingDirectory", "")),
	}

	if t.domain.IsPath && subject != "" {
		abs, dir, err := resolveTarget(subject)
		if err != nil {
			if !hasHandle {
				return orchestrator.Request{}, mcp.NewToolResultError(err.Error())
			}
		} else {
			job.Target, job.WorkDir = abs, dir
		}
	}

	task := fmt.Sprintf(t.domain.Task, job.Target)
	if extra := strings.TrimSpace(req.GetString("context", "")); extra != "" {
		task += "\n\n## Additional context\n\n" + extra
	}
	job.Prompt = agents.Prompt{System: t.domain.System, Task: task}
	return job, nil
}

// resolveTarget returns the absolute path of target and the directory
// the agents should run in.
func resolveTarget(target string) (abs, dir string, err error) {
	abs, err = filepath.Abs(target)
	if err != nil {
		return "", "", fmt.Errorf("resolving %s: %w", target, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", "", fmt.Errorf("target path %s is not accessible: %w", abs, err)
	}
	if info.IsDir() {
		return abs, abs, nil
	}
	return abs, filepath.Dir(abs), nil
}
