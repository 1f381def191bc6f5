// Stock agent behavior — the pooled-neighborhood update rule.
package agents

// UpdateFunc computes an agent's next value from its current state and the
// frozen round snapshot. The scheduler runs one call per agent, concurrently:
// implementations must treat the agent and snapshot as read-only and must
// not reach for shared state. Any error aborts the whole round.
type UpdateFunc func(a *Agent, snap Snapshot, specialFactor float64) (float64, error)

// PoolNeighborhood is the stock update rule: pool the agent's own value with
// its neighbors' round-start values, then scale the pool by specialFactor.
//
//	next = (value + Σ neighbor values) / specialFactor
//
// The division is plain IEEE-754 arithmetic. A zero factor yields ±Inf (or
// NaN for a zero pool) rather than an error: the factor is domain content,
// not something the engine second-guesses.
func PoolNeighborhood(a *Agent, snap Snapshot, specialFactor float64) (float64, error) {
	sum := a.Value
	for _, id := range a.Neighbors {
		v, err := snap.Value(id)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum / specialFactor, nil
}
