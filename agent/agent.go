// Package agent defines the worker roster that tasks are dispatched to.
// Agents are external processes; this package only carries their metadata.
package agent

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/camster91/openclaw-hq/config"
)

// Unassigned is the reserved agent id for tasks without an owner.
// A task assigned to it can never be dispatched.
const Unassigned = "unassigned"

// Agent describes one roster entry.
type Agent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Model string `json:"model,omitempty"`
}

// Roster is the set of known agents, keyed by id.
type Roster struct {
	agents map[string]Agent
	order  []string
}

// NewRoster builds a roster from config entries. Entries without a display
// name get a title-cased fallback derived from the id. The unassigned
// pseudo-agent is always present.
func NewRoster(entries []config.AgentConfig) *Roster {
	r := &Roster{agents: make(map[string]Agent, len(entries)+1)}
	title := cases.Title(language.English)
	for _, e := range entries {
		if e.ID == "" || e.ID == Unassigned {
			continue
		}
		a := Agent{ID: e.ID, Name: e.Name, Role: e.Role, Model: e.Model}
		if a.Name == "" {
			a.Name = title.String(e.ID)
		}
		if _, dup := r.agents[a.ID]; dup {
			continue
		}
		r.agents[a.ID] = a
		r.order = append(r.order, a.ID)
	}
	r.agents[Unassigned] = Agent{ID: Unassigned, Name: "Unassigned"}
	r.order = append(r.order, Unassigned)
	return r
}

// Get returns the agent with the given id.
func (r *Roster) Get(id string) (Agent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// Known reports whether id names a roster agent (including unassigned).
func (r *Roster) Known(id string) bool {
	_, ok := r.agents[id]
	return ok
}

// Dispatchable reports whether a task assigned to id may be dispatched.
func (r *Roster) Dispatchable(id string) bool {
	return id != Unassigned && r.Known(id)
}

// List returns all agents in roster order.
func (r *Roster) List() []Agent {
	out := make([]Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id])
	}
	return out
}
