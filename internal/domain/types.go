// Package domain defines the types shared across the critique pipeline:
// agent identities, per-agent responses, analysis results and the
// failure taxonomy.
package domain

import (
	"fmt"
	"sort"
	"strings"
)

// AgentID identifies one external CLI agent kind.
type AgentID string

const (
	AgentClaude AgentID = "claude"
	AgentCodex  AgentID = "codex"
	AgentGemini AgentID = "gemini"
)

// AllAgents lists every known agent in canonical dispatch order.
var AllAgents = []AgentID{AgentClaude, AgentCodex, AgentGemini}

// agentLabels maps agents to their human-readable names.
var agentLabels = map[AgentID]string{
	AgentClaude: "Claude Code",
	AgentCodex:  "Codex",
	AgentGemini: "Gemini CLI",
}

// Label returns the human-readable name of the agent.
func (a AgentID) Label() string {
	if l, ok := agentLabels[a]; ok {
		return l
	}
	return string(a)
}

// ParseAgentID validates and normalizes an agent identifier.
// An empty string parses to the empty AgentID without error.
func ParseAgentID(s string) (AgentID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	for _, a := range AllAgents {
		if string(a) == s {
			return a, nil
		}
	}
	return "", Errorf(ErrUnknownAgent, "unknown CLI agent %q (valid: %s)", s, joinAgents(AllAgents))
}

// SortAgents orders agents by their canonical position in AllAgents.
func SortAgents(agents []AgentID) {
	pos := make(map[AgentID]int, len(AllAgents))
	for i, a := range AllAgents {
		pos[a] = i
	}
	sort.SliceStable(agents, func(i, j int) bool {
		pi, iok := pos[agents[i]]
		pj, jok := pos[agents[j]]
		if iok != jok {
			return iok
		}
		if !iok {
			return agents[i] < agents[j]
		}
		return pi < pj
	})
}

func joinAgents(agents []AgentID) string {
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}

// FailureKind classifies why a single agent call failed.
type FailureKind string

const (
	FailureNone     FailureKind = ""
	FailureNotFound FailureKind = "tool_not_found"
	FailureTimeout  FailureKind = "tool_timeout"
	FailureError    FailureKind = "tool_error"
	FailureCanceled FailureKind = "canceled"
)

// ClassifyFailure maps an error from the process runner onto a FailureKind.
func ClassifyFailure(err error) FailureKind {
	switch CodeOf(err) {
	case 0:
		if err == nil {
			return FailureNone
		}
		return FailureError
	case ErrToolNotFound.Code:
		return FailureNotFound
	case ErrToolTimeout.Code:
		return FailureTimeout
	case ErrToolCanceled.Code:
		return FailureCanceled
	default:
		return FailureError
	}
}

// AgentResponse is the outcome of one agent subprocess.
type AgentResponse struct {
	Agent           AgentID     `json:"agent"`
	Success         bool        `json:"success"`
	Output          string      `json:"output"`
	Error           string      `json:"error,omitempty"`
	Failure         FailureKind `json:"failure,omitempty"`
	ExecutionTimeMs int64       `json:"execution_time_ms"`
	ExitCode        *int        `json:"exit_code,omitempty"`
	Command         string      `json:"command,omitempty"`
}

// ExecutionSummary aggregates counts and timing of one orchestrator call.
type ExecutionSummary struct {
	Total        int       `json:"total"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	FailedAgents []AgentID `json:"failed_agents,omitempty"`
	TotalTimeMs  int64     `json:"total_time_ms"`
}

// AnalysisResult is the output of one orchestrator invocation.
type AnalysisResult struct {
	Success      bool             `json:"success"`
	Responses    []AgentResponse  `json:"responses"`
	Synthesis    string           `json:"synthesis,omitempty"`
	AnalysisKind string           `json:"analysis_kind"`
	Target       string           `json:"target"`
	Summary      ExecutionSummary `json:"summary"`
}

// Summarize computes an ExecutionSummary for the given responses.
func Summarize(responses []AgentResponse, totalMs int64) ExecutionSummary {
	s := ExecutionSummary{Total: len(responses), TotalTimeMs: totalMs}
	for _, r := range responses {
		if r.Success {
			s.Succeeded++
			continue
		}
		s.Failed++
		s.FailedAgents = append(s.FailedAgents, r.Agent)
	}
	return s
}

// String renders a one-line summary, e.g. "2/3 agents succeeded in 4.2s".
func (s ExecutionSummary) String() string {
	return fmt.Sprintf("%d/%d agents succeeded in %.1fs", s.Succeeded, s.Total, float64(s.TotalTimeMs)/1000)
}
