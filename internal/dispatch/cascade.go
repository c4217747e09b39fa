package dispatch

import (
	"context"

	"github.com/opencode-ai/iterm-orchestrator/pkg/types"
)

// AgentDirectory is the subset of the Agent/Team Registry the cascade
// resolver needs.
type AgentDirectory interface {
	ListAgents(team string) []*types.Agent
	AgentTeamsInOrder(agent string) []string
	ResolveAgentSession(agent string) (sessionID string, ok bool)
}

// CascadeInput is one send_cascade call.
type CascadeInput struct {
	Broadcast      string
	Teams          map[string]string
	Agents         map[string]string
	SkipDuplicates bool
}

// CascadeEntry is the per-agent outcome of a cascade.
type CascadeEntry struct {
	Agent     string
	SessionID string
	Message   string
	NoSession bool
	WriteEntry
}

// CascadeResult is the outcome of a send_cascade call.
type CascadeResult struct {
	Entries []CascadeEntry
}

// SendCascade resolves recipients by agent specificity (agent message >
// team message > broadcast message), groups them by chosen message, and
// delegates delivery to Write with parallel=true.
func (d *Dispatcher) SendCascade(ctx context.Context, agents AgentDirectory, in CascadeInput, caller string) (CascadeResult, error) {
	candidates := d.cascadeCandidates(agents, in)

	type recipient struct {
		agent     string
		message   string
		sessionID string
	}

	byMessage := make(map[string][]recipient)
	var order []string
	var entries []CascadeEntry
	seenSession := make(map[string]bool)

	for _, agent := range candidates {
		msg, ok := d.pickCascadeMessage(agents, agent, in)
		if !ok {
			continue
		}
		sessionID, ok := agents.ResolveAgentSession(agent)
		if !ok || sessionID == "" {
			entries = append(entries, CascadeEntry{Agent: agent, Message: msg, NoSession: true})
			continue
		}
		key := msg + "|" + sessionID
		if seenSession[key] {
			continue
		}
		seenSession[key] = true
		if _, ok := byMessage[msg]; !ok {
			order = append(order, msg)
		}
		byMessage[msg] = append(byMessage[msg], recipient{agent: agent, message: msg, sessionID: sessionID})
	}

	var messages []WriteInput
	var flat []recipient
	for _, msg := range order {
		recs := byMessage[msg]
		var targets []types.Target
		for _, r := range recs {
			targets = append(targets, types.Target{SessionID: r.sessionID})
			flat = append(flat, r)
		}
		messages = append(messages, WriteInput{Content: msg, Targets: targets})
	}

	wr, err := d.Write(ctx, messages, true, in.SkipDuplicates, caller)
	if err != nil {
		return CascadeResult{}, err
	}

	for i, we := range wr.Entries {
		r := flat[i]
		entries = append(entries, CascadeEntry{
			Agent:      r.agent,
			SessionID:  r.sessionID,
			Message:    r.message,
			WriteEntry: we,
		})
	}

	return CascadeResult{Entries: entries}, nil
}

func (d *Dispatcher) cascadeCandidates(agents AgentDirectory, in CascadeInput) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for team := range in.Teams {
		for _, a := range agents.ListAgents(team) {
			add(a.Name)
		}
	}
	for agent := range in.Agents {
		add(agent)
	}
	if in.Broadcast != "" {
		for _, a := range agents.ListAgents("") {
			add(a.Name)
		}
	}
	return out
}

// pickCascadeMessage applies the specificity rule: agent message wins,
// else the message of the first (insertion-order) team the agent belongs
// to that also has a cascade entry, else broadcast.
func (d *Dispatcher) pickCascadeMessage(agents AgentDirectory, agent string, in CascadeInput) (string, bool) {
	if msg, ok := in.Agents[agent]; ok {
		return msg, true
	}
	for _, team := range agents.AgentTeamsInOrder(agent) {
		if msg, ok := in.Teams[team]; ok {
			return msg, true
		}
	}
	if in.Broadcast != "" {
		return in.Broadcast, true
	}
	return "", false
}
