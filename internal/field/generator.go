// Package field generates initial agent values.
package field

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/jintrone/abm-mp-example/internal/agents"
)

// Generator draws the starting value for one agent. Generators are used
// exactly once per agent during setup, in agent-id order, which keeps a
// seeded run reproducible.
type Generator interface {
	Draw(id agents.AgentID) float64
}

// Uniform draws whole numbers uniformly from [-Max, +Max].
type Uniform struct {
	rng *rand.Rand
	max int
}

// NewUniform creates a uniform generator over [-max, +max]. max must be
// non-negative (enforced by config validation).
func NewUniform(rng *rand.Rand, max int) *Uniform {
	return &Uniform{rng: rng, max: max}
}

// Draw returns the next whole number in [-Max, +Max]. The agent id is
// ignored: draws are consumed sequentially.
func (u *Uniform) Draw(agents.AgentID) float64 {
	return float64(u.rng.Intn(2*u.max+1) - u.max)
}

// Simplex draws values from smooth one-dimensional noise, so agents with
// nearby ids start with nearby values. It covers the same whole-number
// [-Max, +Max] domain as Uniform.
type Simplex struct {
	noise opensimplex.Noise
	max   int
}

// NewSimplex creates a noise-backed generator for the given seed.
func NewSimplex(seed int64, max int) *Simplex {
	return &Simplex{noise: opensimplex.NewNormalized(seed), max: max}
}

// Draw samples the noise field at the agent's position on the id line.
func (s *Simplex) Draw(id agents.AgentID) float64 {
	v := octaveNoise(s.noise, float64(id), 2, 0.15, 0.5)
	return math.Round((v*2 - 1) * float64(s.max))
}

// octaveNoise accumulates noise octaves along the agent line. The fixed
// second coordinate keeps samples off the integer lattice.
func octaveNoise(noise opensimplex.Noise, x float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, 0.5) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
