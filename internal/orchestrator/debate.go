package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ejmockler/brutalist-mcp/internal/agents"
	"github.com/ejmockler/brutalist-mcp/internal/domain"
)

// NoPosition is recorded in the transcript for a turn whose agent failed.
const NoPosition = "(no position stated)"

// DebateRequest is a multi-round adversarial debate.
type DebateRequest struct {
	Topic string
	// Context is optional background material shown to every debater.
	Context string
	// Rounds is clamped to [1, MaxDebateRounds]; zero means the default.
	Rounds int
	// Agents optionally names the debaters explicitly.
	Agents  []domain.AgentID
	Models  map[domain.AgentID]string
	WorkDir string
	Timeout time.Duration
}

// Turn is one agent's contribution to one round.
type Turn struct {
	Round    int                  `json:"round"`
	Agent    domain.AgentID       `json:"agent"`
	Stance   agents.Stance        `json:"stance"`
	Content  string               `json:"content"`
	Response domain.AgentResponse `json:"response"`
}

// DebateState is the evolving record of one debate.
type DebateState struct {
	Topic      string                    `json:"topic"`
	Positions  []agents.Position         `json:"positions"`
	Transcript map[domain.AgentID][]Turn `json:"transcript"`
	Round      int                       `json:"round"`
	Rounds     int                       `json:"rounds"`
}

// Latest returns the agent's most recent transcript entry.
func (s *DebateState) Latest(agent domain.AgentID) (Turn, bool) {
	turns := s.Transcript[agent]
	if len(turns) == 0 {
		return Turn{}, false
	}
	return turns[len(turns)-1], true
}

// Opponent returns the debater facing the position at index i: the next
// debater, cyclically, holding a different stance.
func (s *DebateState) Opponent(i int) agents.Position {
	n := len(s.Positions)
	for step := 1; step < n; step++ {
		p := s.Positions[(i+step)%n]
		if p.Stance != s.Positions[i].Stance {
			return p
		}
	}
	return s.Positions[(i+1)%n]
}

// DebateOutcome bundles the final state with an AnalysisResult whose
// synthesis is the rendered transcript.
type DebateOutcome struct {
	State  *DebateState
	Result *domain.AnalysisResult
}

// Debate runs the debate protocol. Having fewer than two debaters is
// reported before any process is started; individual turn failures are
// recorded and the debate carries on.
func (o *Orchestrator) Debate(ctx context.Context, req DebateRequest) (*DebateOutcome, error) {
	start := o.now()
	tr := newTracker("debate")

	if strings.TrimSpace(req.Topic) == "" {
		return nil, domain.Errorf(domain.ErrInvalidRequest, "debate topic is required")
	}

	tr.enter(PhaseDetecting)
	snap := o.cli.Ensure(ctx)

	tr.enter(PhaseSelecting)
	participants, err := agents.DebateParticipants(snap, req.Agents)
	if err != nil {
		tr.fail(err)
		return nil, err
	}
	positions, err := agents.AssignDebatePositions(participants)
	if err != nil {
		tr.fail(err)
		return nil, err
	}

	state := &DebateState{
		Topic:      req.Topic,
		Positions:  positions,
		Transcript: make(map[domain.AgentID][]Turn, len(positions)),
		Rounds:     o.clampRounds(req.Rounds),
	}
	timeout := o.timeoutFor(req.Timeout)

	var all []domain.AgentResponse
	for round := 1; round <= state.Rounds; round++ {
		state.Round = round
		calls := make([]call, len(positions))
		for i, p := range positions {
			calls[i] = call{
				agent:  p.Agent,
				prompt: debatePrompt(state, i, req.Context),
				opts:   agents.BuildOptions{Model: req.Models[p.Agent], WorkDir: req.WorkDir},
			}
		}

		tr.enter(PhaseDispatching, "round %d/%d", round, state.Rounds)
		responses := o.dispatch(ctx, calls, timeout)

		tr.enter(PhaseCollecting, "round %d/%d", round, state.Rounds)
		for i, resp := range responses {
			p := positions[i]
			content := resp.Output
			if !resp.Success {
				content = NoPosition
			}
			state.Transcript[p.Agent] = append(state.Transcript[p.Agent], Turn{
				Round:    round,
				Agent:    p.Agent,
				Stance:   p.Stance,
				Content:  content,
				Response: resp,
			})
		}
		all = append(all, responses...)
	}

	tr.enter(PhaseSynthesizing)
	summary := domain.Summarize(all, o.now().Sub(start).Milliseconds())
	result := &domain.AnalysisResult{
		Success:      summary.Succeeded > 0,
		Responses:    all,
		AnalysisKind: "debate",
		Target:       req.Topic,
		Summary:      summary,
	}
	result.Synthesis = RenderDebate(state, summary)

	tr.enter(PhaseDone, "%s", summary)
	return &DebateOutcome{State: state, Result: result}, nil
}

func (o *Orchestrator) clampRounds(n int) int {
	if n <= 0 {
		n = o.cfg.DefaultDebateRounds
	}
	if n > o.cfg.MaxDebateRounds {
		n = o.cfg.MaxDebateRounds
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ─── Prompts ────────────────────────────────────────────────────────────

func stanceDirective(s agents.Stance) string {
	if s == agents.StanceAdvocate {
		return "You argue FOR the proposition. Defend it with the strongest concrete case you can make."
	}
	return "You argue AGAINST the proposition. Attack it with the strongest concrete case you can make."
}

func debatePrompt(state *DebateState, i int, background string) agents.Prompt {
	self := state.Positions[i]
	system := fmt.Sprintf(
		"You are the %s in a formal adversarial debate.\n%s\n"+
			"You must never concede your stance, soften it, or argue the other side. "+
			"Be specific, cite evidence, and expose weaknesses in the opposing position.",
		strings.ToUpper(string(self.Stance)), stanceDirective(self.Stance))

	var task strings.Builder
	fmt.Fprintf(&task, "Debate topic: %s\n\n", state.Topic)
	if strings.TrimSpace(background) != "" {
		fmt.Fprintf(&task, "Background:\n%s\n\n", background)
	}

	if state.Round == 1 {
		fmt.Fprintf(&task, "Round 1 of %d: give your opening statement as the %s.", state.Rounds, self.Stance)
		return agents.Prompt{System: system, Task: task.String()}
	}

	opp := state.Opponent(i)
	last, ok := state.Latest(opp.Agent)
	oppText := NoPosition
	if ok {
		oppText = last.Content
	}
	fmt.Fprintf(&task, "Round %d of %d. Your opponent (%s, %s) just argued:\n\n%s\n\n",
		state.Round, state.Rounds, opp.Agent.Label(), opp.Stance, oppText)
	fmt.Fprintf(&task, "Write your rebuttal. Dismantle their argument point by point and reinforce your position as the %s. Do not concede.",
		self.Stance)
	return agents.Prompt{System: system, Task: task.String()}
}

// RenderDebate formats the transcript round by round.
func RenderDebate(state *DebateState, summary domain.ExecutionSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Brutalist debate\n\n**Topic:** %s\n\n", state.Topic)
	b.WriteString("**Positions:**\n")
	for _, p := range state.Positions {
		fmt.Fprintf(&b, "- %s: %s\n", p.Agent.Label(), p.Stance)
	}
	fmt.Fprintf(&b, "\n%s.\n\n", summary)

	for round := 1; round <= state.Rounds; round++ {
		fmt.Fprintf(&b, "## Round %d\n\n", round)
		for _, p := range state.Positions {
			turns := state.Transcript[p.Agent]
			if round-1 >= len(turns) {
				continue
			}
			t := turns[round-1]
			fmt.Fprintf(&b, "### %s (%s)\n\n%s\n\n", p.Agent.Label(), p.Stance, t.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
