// Package agents provides the agent data model and the update contract for
// the round-based simulation.
package agents

import (
	"errors"
	"time"
)

// AgentID identifies an agent. The environment assigns IDs densely from
// zero at registration, so an ID doubles as a population index.
type AgentID int

// ErrOutOfRange is returned by lookups of ids no agent was registered under.
var ErrOutOfRange = errors.New("agent id out of range")

// Agent is one member of the simulated population.
//
// Value is the agent's committed state. It changes only when the scheduler
// commits a finished round; while a round is in flight every reader sees the
// round-start snapshot instead, never a half-updated population.
type Agent struct {
	ID    AgentID `json:"id"`
	Value float64 `json:"value"`

	// Neighbors is fixed at setup: the agents whose values feed this
	// agent's update. Never contains the agent's own ID.
	Neighbors []AgentID `json:"neighbors"`

	// Delay artificially slows this agent's update task, for demos and
	// scheduling benchmarks. Results must be identical with any delay.
	Delay time.Duration `json:"delay_ns,omitempty"`

	pending   float64
	hasUpdate bool
}

// Stage records the value the agent takes when the round commits. The
// scheduler stages at most one result per agent per round.
func (a *Agent) Stage(next float64) {
	a.pending = next
	a.hasUpdate = true
}

// Staged reports the pending value and whether one has been staged.
func (a *Agent) Staged() (float64, bool) {
	return a.pending, a.hasUpdate
}

// Commit replaces Value with the staged value. Without a staged value it is
// a no-op, so an aborted round leaves the agent exactly as it was.
func (a *Agent) Commit() {
	if !a.hasUpdate {
		return
	}
	a.Value = a.pending
	a.hasUpdate = false
}
