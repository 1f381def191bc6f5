package agents

import "fmt"

// Snapshot is a frozen copy of every agent's committed value, taken at the
// start of a round. Update tasks read neighbor values exclusively through
// it, so the order workers finish in can never leak into results.
type Snapshot struct {
	values []float64
}

// NewSnapshot wraps values as a snapshot. The caller hands over the slice
// and must not retain it.
func NewSnapshot(values []float64) Snapshot {
	return Snapshot{values: values}
}

// Value returns the round-start value of the given agent.
func (s Snapshot) Value(id AgentID) (float64, error) {
	if int(id) < 0 || int(id) >= len(s.values) {
		return 0, fmt.Errorf("snapshot lookup %d with %d agents: %w", id, len(s.values), ErrOutOfRange)
	}
	return s.values[int(id)], nil
}

// Len returns the number of agents captured.
func (s Snapshot) Len() int {
	return len(s.values)
}

// Values returns a copy of all captured values in agent-id order.
func (s Snapshot) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}
