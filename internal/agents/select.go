package agents

import (
	"strings"

	"github.com/ejmockler/brutalist-mcp/internal/domain"
)

// Select chooses the agents that run a single analysis.
//
// A preferred agent runs alone, and must be available. Otherwise every
// available agent runs except the host (when excludeCurrent is set); if
// that leaves nobody, the host is allowed back in.
func Select(snap Snapshot, preferred domain.AgentID, excludeCurrent bool) ([]domain.AgentID, error) {
	if len(snap.Available) == 0 {
		return nil, domain.ErrNoAgentsAvailable
	}
	if preferred != "" {
		if !snap.Has(preferred) {
			return nil, domain.Errorf(domain.ErrAgentUnavailable,
				"%s is not available (detected: %s)", preferred.Label(), availableList(snap))
		}
		return []domain.AgentID{preferred}, nil
	}

	var out []domain.AgentID
	for _, a := range snap.Available {
		if excludeCurrent && a == snap.Current {
			continue
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		out = append(out, snap.Available...)
	}
	return out, nil
}

// DebateParticipants chooses the agents for a debate. An explicit list must
// name at least two distinct available agents. Without one, the host is
// excluded unless that would leave fewer than two.
func DebateParticipants(snap Snapshot, requested []domain.AgentID) ([]domain.AgentID, error) {
	if len(requested) > 0 {
		seen := make(map[domain.AgentID]bool, len(requested))
		var out []domain.AgentID
		for _, a := range requested {
			if seen[a] {
				continue
			}
			seen[a] = true
			if !snap.Has(a) {
				return nil, domain.Errorf(domain.ErrAgentUnavailable,
					"%s is not available (detected: %s)", a.Label(), availableList(snap))
			}
			out = append(out, a)
		}
		if len(out) < 2 {
			return nil, domain.ErrDebateNeedsTwo
		}
		return out, nil
	}

	var out []domain.AgentID
	for _, a := range snap.Available {
		if a != snap.Current {
			out = append(out, a)
		}
	}
	if len(out) < 2 {
		out = append([]domain.AgentID(nil), snap.Available...)
	}
	if len(out) < 2 {
		return nil, domain.Errorf(domain.ErrDebateNeedsTwo,
			"debate requires at least two available CLI agents (detected: %s)", availableList(snap))
	}
	return out, nil
}

// Stance is a fixed debate position.
type Stance string

const (
	StanceAdvocate Stance = "advocate"
	StanceOpponent Stance = "opponent"
)

var stances = []Stance{StanceAdvocate, StanceOpponent}

// Position pairs a debater with its stance.
type Position struct {
	Agent  domain.AgentID `json:"agent"`
	Stance Stance         `json:"stance"`
}

// AssignDebatePositions interleaves the stances across agents by index, so
// two agents always get one of each.
func AssignDebatePositions(agents []domain.AgentID) ([]Position, error) {
	if len(agents) < 2 {
		return nil, domain.ErrDebateNeedsTwo
	}
	out := make([]Position, len(agents))
	for i, a := range agents {
		out[i] = Position{Agent: a, Stance: stances[i%len(stances)]}
	}
	return out, nil
}

func availableList(snap Snapshot) string {
	if len(snap.Available) == 0 {
		return "none"
	}
	names := make([]string, len(snap.Available))
	for i, a := range snap.Available {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}
