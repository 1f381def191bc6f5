package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jintrone/abm-mp-example/internal/agents"
)

// Result is one agent's computed next value, tagged so results can arrive
// in any completion order.
type Result struct {
	AgentID agents.AgentID
	Value   float64
}

// Pool runs a round's update tasks with bounded parallelism. The pool
// itself is reusable; each Start spawns a fresh worker group.
type Pool struct {
	limit int
}

// NewPool creates a pool running at most limit tasks at once. Values
// below 1 are clamped to 1.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{limit: limit}
}

// Limit returns the concurrency bound.
func (p *Pool) Limit() int {
	return p.limit
}

// Run is one in-flight batch of update tasks.
type Run struct {
	g       *errgroup.Group
	results chan Result
	n       int
}

// Start queues one update task per agent and launches the workers. Every
// task computes against the same frozen snapshot, so tasks are mutually
// independent and execution order is irrelevant. Start returns as soon as
// the batch is queued; Wait is the round barrier.
func (p *Pool) Start(ctx context.Context, pop []*agents.Agent, snap agents.Snapshot, update agents.UpdateFunc, specialFactor float64) *Run {
	tasks := make(chan *agents.Agent, len(pop))
	for _, a := range pop {
		tasks <- a
	}
	close(tasks)

	results := make(chan Result, len(pop))
	g, ctx := errgroup.WithContext(ctx)

	for w := 0; w < min(p.limit, len(pop)); w++ {
		g.Go(func() error {
			for a := range tasks {
				// Artificial processing delay, cancellation-aware.
				if a.Delay > 0 {
					t := time.NewTimer(a.Delay)
					select {
					case <-ctx.Done():
						t.Stop()
						return ctx.Err()
					case <-t.C:
					}
				} else if err := ctx.Err(); err != nil {
					return err
				}

				v, err := update(a, snap, specialFactor)
				if err != nil {
					return &TaskError{AgentID: a.ID, Err: err}
				}
				results <- Result{AgentID: a.ID, Value: v}
			}
			return nil
		})
	}

	return &Run{g: g, results: results, n: len(pop)}
}

// Wait blocks until every task has finished or one has failed. On success
// it returns one result per agent, in completion order. On failure it
// returns the first error — a TaskError, or the context's error when the
// run was cancelled — and no results: a failed batch commits nothing.
func (r *Run) Wait() ([]Result, error) {
	if err := r.g.Wait(); err != nil {
		return nil, err
	}
	close(r.results)

	out := make([]Result, 0, r.n)
	for res := range r.results {
		out = append(out, res)
	}
	return out, nil
}
