// Package topology builds the fixed neighbor network agents read from.
package topology

import (
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/graph/simple"

	"github.com/jintrone/abm-mp-example/internal/agents"
)

// Sampler assigns each agent a fixed neighbor set, sampled uniformly
// without replacement from the rest of the population. Every assignment is
// recorded as an edge in a directed graph (agent → neighbor reads "reads
// from"), so the finished network can be validated and inspected.
//
// One Sampler serves one run: calls share a seeded generator, so sampling
// agents in id order reproduces the same network for the same seed.
type Sampler struct {
	population int
	degree     int
	rng        *rand.Rand
	g          *simple.DirectedGraph
}

// NewSampler creates a sampler for a complete population. The degree must
// leave at least one agent outside any neighborhood: sampling is undefined
// for degree >= population-1.
func NewSampler(population, degree int, rng *rand.Rand) (*Sampler, error) {
	if population <= 0 {
		return nil, fmt.Errorf("population %d, want at least 1", population)
	}
	if degree < 0 {
		return nil, fmt.Errorf("neighbor count %d, want non-negative", degree)
	}
	if degree >= population-1 {
		return nil, fmt.Errorf("neighbor count %d with population %d, want fewer than %d", degree, population, population-1)
	}
	return &Sampler{
		population: population,
		degree:     degree,
		rng:        rng,
		g:          simple.NewDirectedGraph(),
	}, nil
}

// Neighbors samples the neighbor set for one agent: degree distinct ids,
// never the agent's own. The returned slice is sorted so downstream
// iteration is deterministic.
func (s *Sampler) Neighbors(self agents.AgentID) ([]agents.AgentID, error) {
	if int(self) < 0 || int(self) >= s.population {
		return nil, fmt.Errorf("sample for agent %d with population %d: %w", self, s.population, agents.ErrOutOfRange)
	}

	candidates := make([]agents.AgentID, 0, s.population-1)
	for i := 0; i < s.population; i++ {
		if agents.AgentID(i) != self {
			candidates = append(candidates, agents.AgentID(i))
		}
	}
	s.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	picked := make([]agents.AgentID, s.degree)
	copy(picked, candidates[:s.degree])
	sort.Slice(picked, func(i, j int) bool { return picked[i] < picked[j] })

	if s.g.Node(int64(self)) == nil {
		s.g.AddNode(simple.Node(self))
	}
	for _, nbr := range picked {
		s.g.SetEdge(s.g.NewEdge(simple.Node(self), simple.Node(nbr)))
	}

	return picked, nil
}

// Graph exposes the reads-from network sampled so far.
func (s *Sampler) Graph() *simple.DirectedGraph {
	return s.g
}

// Validate checks the finished network: every agent present, every agent
// reading from exactly degree others. Call it after the whole population
// has been sampled.
func (s *Sampler) Validate() error {
	if got := s.g.Nodes().Len(); got != s.population {
		return fmt.Errorf("network covers %d of %d agents", got, s.population)
	}
	for i := 0; i < s.population; i++ {
		deg := 0
		from := s.g.From(int64(i))
		for from.Next() {
			deg++
		}
		if deg != s.degree {
			return fmt.Errorf("agent %d reads from %d agents, want %d", i, deg, s.degree)
		}
	}
	return nil
}

// Ring returns neighbor lists forming a directed cycle: agent i reads from
// agent (i+1) mod n. Needs n >= 2. Useful for fixed-topology scenarios
// where sampled networks would obscure expected values.
func Ring(n int) [][]agents.AgentID {
	out := make([][]agents.AgentID, n)
	for i := range out {
		out[i] = []agents.AgentID{agents.AgentID((i + 1) % n)}
	}
	return out
}
