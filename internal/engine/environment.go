// Package engine runs the synchronous round loop: snapshot the population,
// compute every agent's update in parallel against the frozen snapshot,
// wait at the barrier, commit. Values only ever change at commit points,
// so no agent can observe a neighbor mid-update.
package engine

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/jintrone/abm-mp-example/internal/agents"
	"github.com/jintrone/abm-mp-example/internal/field"
	"github.com/jintrone/abm-mp-example/internal/topology"
)

// Environment owns the population and the parameters shared by every
// update. Registration and setup are single-threaded driver phases; once
// rounds run, only the scheduler touches the population, at commit points.
type Environment struct {
	// SpecialFactor scales every pooled update. Read-only during rounds.
	SpecialFactor float64

	pop   []*agents.Agent
	round int
}

// NewEnvironment creates an empty environment.
func NewEnvironment(specialFactor float64) *Environment {
	return &Environment{SpecialFactor: specialFactor}
}

// Restore rebuilds an environment from checkpointed state. Agents must be
// dense and ordered by id.
func Restore(specialFactor float64, pop []*agents.Agent, round int) (*Environment, error) {
	for i, a := range pop {
		if a.ID != agents.AgentID(i) {
			return nil, fmt.Errorf("restore: agent id %d at index %d", a.ID, i)
		}
	}
	return &Environment{SpecialFactor: specialFactor, pop: pop, round: round}, nil
}

// Register adds a fresh agent and returns its id. IDs are dense and
// sequential from zero, so an id doubles as a population index.
func (e *Environment) Register() agents.AgentID {
	id := agents.AgentID(len(e.pop))
	e.pop = append(e.pop, &agents.Agent{ID: id})
	return id
}

// Size returns the number of registered agents.
func (e *Environment) Size() int {
	return len(e.pop)
}

// Round returns the number of committed rounds. Not synchronized: read it
// between runs, not while one is in flight.
func (e *Environment) Round() int {
	return e.round
}

// Agents returns the population in id order. The slice is live, not a
// copy: callers must not mutate it, and must not read values while a run
// is in flight.
func (e *Environment) Agents() []*agents.Agent {
	return e.pop
}

// Lookup returns the agent registered under id.
func (e *Environment) Lookup(id agents.AgentID) (*agents.Agent, error) {
	if int(id) < 0 || int(id) >= len(e.pop) {
		return nil, fmt.Errorf("lookup agent %d of %d: %w", id, len(e.pop), agents.ErrOutOfRange)
	}
	return e.pop[id], nil
}

// Snapshot captures every agent's committed value in id order.
func (e *Environment) Snapshot() agents.Snapshot {
	values := make([]float64, len(e.pop))
	for i, a := range e.pop {
		values[i] = a.Value
	}
	return agents.NewSnapshot(values)
}

// Setup bundles what agent setup draws from: the expected population size,
// the initial-value generator, the neighbor sampler, and the artificial
// per-agent delay.
type Setup struct {
	Population int
	Values     field.Generator
	Sampler    *topology.Sampler
	Delay      time.Duration
}

// NewSetup validates the run parameters and builds the setup bundle.
// Neighbor-count bounds are checked here, against the population the
// environment is expected to reach.
func NewSetup(population, neighborCount int, values field.Generator, rng *rand.Rand, delay time.Duration) (Setup, error) {
	sampler, err := topology.NewSampler(population, neighborCount, rng)
	if err != nil {
		return Setup{}, fmt.Errorf("%w: %v", ErrSetupPrecondition, err)
	}
	return Setup{
		Population: population,
		Values:     values,
		Sampler:    sampler,
		Delay:      delay,
	}, nil
}

// SetupAgent assigns one agent its initial value and its fixed neighbor
// set. It must run exactly once per agent, after the full population is
// registered and before the first round; sampling neighbors from a partial
// population is a precondition violation.
func (e *Environment) SetupAgent(id agents.AgentID, setup Setup) error {
	if len(e.pop) != setup.Population {
		return fmt.Errorf("%w: %d of %d agents registered", ErrSetupPrecondition, len(e.pop), setup.Population)
	}
	a, err := e.Lookup(id)
	if err != nil {
		return err
	}

	a.Value = setup.Values.Draw(id)
	nbrs, err := setup.Sampler.Neighbors(id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSetupPrecondition, err)
	}
	a.Neighbors = nbrs
	a.Delay = setup.Delay
	return nil
}
