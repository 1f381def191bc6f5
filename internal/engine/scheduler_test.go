package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jintrone/abm-mp-example/internal/agents"
	"github.com/jintrone/abm-mp-example/internal/entropy"
	"github.com/jintrone/abm-mp-example/internal/field"
	"github.com/jintrone/abm-mp-example/internal/topology"
)

// ringEnv builds a population wired in a directed cycle with fixed values:
// agent i reads from agent (i+1) mod n.
func ringEnv(t *testing.T, values []float64, factor float64) *Environment {
	t.Helper()
	env := NewEnvironment(factor)
	ring := topology.Ring(len(values))
	for i, v := range values {
		id := env.Register()
		a, err := env.Lookup(id)
		if err != nil {
			t.Fatalf("Lookup(%d): %v", id, err)
		}
		a.Value = v
		a.Neighbors = ring[i]
	}
	return env
}

// sampledEnv builds a fully sampled population the way the driver does.
func sampledEnv(t *testing.T, seed int64, population, neighbors int, factor float64) *Environment {
	t.Helper()
	src := entropy.NewSource(seed)
	env := NewEnvironment(factor)
	for i := 0; i < population; i++ {
		env.Register()
	}
	setup, err := NewSetup(population, neighbors, field.NewUniform(src.Values(), 50), src.Topology(), 0)
	if err != nil {
		t.Fatalf("NewSetup: %v", err)
	}
	for i := 0; i < population; i++ {
		if err := env.SetupAgent(agents.AgentID(i), setup); err != nil {
			t.Fatalf("SetupAgent(%d): %v", i, err)
		}
	}
	return env
}

func TestScheduler_RingRound(t *testing.T) {
	// Each agent pools its own value with its single downstream neighbor,
	// factor 1: agent 0 sees 10+20, agent 1 sees 20+30, agent 2 sees 30+10.
	env := ringEnv(t, []float64{10, 20, 30}, 1)
	sched := NewScheduler(env, NewPool(2), agents.PoolNeighborhood)

	reports, err := sched.RunRounds(context.Background(), 1)
	if err != nil {
		t.Fatalf("RunRounds: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}

	want := []float64{30, 50, 40}
	for i, w := range want {
		if got := reports[0].Values[i]; got != w {
			t.Errorf("agent %d = %v, want %v", i, got, w)
		}
		a, err := env.Lookup(agents.AgentID(i))
		if err != nil {
			t.Fatalf("Lookup(%d): %v", i, err)
		}
		if a.Value != w {
			t.Errorf("committed value of agent %d = %v, want %v", i, a.Value, w)
		}
	}
	if reports[0].Round != 1 {
		t.Errorf("report round = %d, want 1", reports[0].Round)
	}
}

func TestScheduler_DeterministicAcrossWorkerCounts(t *testing.T) {
	const (
		seed       = 42
		population = 20
		neighbors  = 3
		factor     = 3
		rounds     = 5
	)

	run := func(workers int) []RoundReport {
		env := sampledEnv(t, seed, population, neighbors, factor)
		sched := NewScheduler(env, NewPool(workers), agents.PoolNeighborhood)
		reports, err := sched.RunRounds(context.Background(), rounds)
		if err != nil {
			t.Fatalf("RunRounds with %d workers: %v", workers, err)
		}
		return reports
	}

	serial := run(1)
	for _, workers := range []int{2, 8, 32} {
		parallel := run(workers)
		if len(parallel) != len(serial) {
			t.Fatalf("%d workers: got %d reports, want %d", workers, len(parallel), len(serial))
		}
		for r := range serial {
			for i := range serial[r].Values {
				if serial[r].Values[i] != parallel[r].Values[i] {
					t.Fatalf("%d workers: round %d agent %d = %v, serial run has %v",
						workers, r+1, i, parallel[r].Values[i], serial[r].Values[i])
				}
			}
		}
	}
}

func TestScheduler_AbortDiscardsRound(t *testing.T) {
	env := ringEnv(t, []float64{10, 20, 30}, 1)

	// Healthy at round one, fails in round two once agent 1 holds 50.
	update := func(a *agents.Agent, snap agents.Snapshot, factor float64) (float64, error) {
		if a.Value >= 50 {
			return 0, fmt.Errorf("value %v over limit", a.Value)
		}
		return agents.PoolNeighborhood(a, snap, factor)
	}

	sched := NewScheduler(env, NewPool(3), update)
	reports, err := sched.RunRounds(context.Background(), 10)

	if len(reports) != 1 {
		t.Fatalf("got %d committed reports, want 1", len(reports))
	}

	var aborted *RoundAbortedError
	if !errors.As(err, &aborted) {
		t.Fatalf("error = %v, want RoundAbortedError", err)
	}
	if aborted.Round != 2 {
		t.Errorf("aborted round = %d, want 2", aborted.Round)
	}
	var task *TaskError
	if !errors.As(err, &task) {
		t.Fatalf("cause = %v, want TaskError", aborted.Cause)
	}
	if task.AgentID != 1 {
		t.Errorf("failing agent = %d, want 1", task.AgentID)
	}

	// The failed round committed nothing: population still holds round one.
	want := []float64{30, 50, 40}
	for i, w := range want {
		a, lookupErr := env.Lookup(agents.AgentID(i))
		if lookupErr != nil {
			t.Fatalf("Lookup(%d): %v", i, lookupErr)
		}
		if a.Value != w {
			t.Errorf("agent %d = %v after abort, want %v", i, a.Value, w)
		}
	}
	if env.Round() != 1 {
		t.Errorf("environment round = %d, want 1", env.Round())
	}
}

func TestScheduler_BarrierUnderSkewedDelays(t *testing.T) {
	baseline := ringEnv(t, []float64{10, 20, 30}, 1)
	sched := NewScheduler(baseline, NewPool(3), agents.PoolNeighborhood)
	want, err := sched.RunRounds(context.Background(), 3)
	if err != nil {
		t.Fatalf("baseline RunRounds: %v", err)
	}

	// Same population, wildly uneven task durations: fast agents must not
	// observe slow agents' committed values early, or vice versa.
	skewed := ringEnv(t, []float64{10, 20, 30}, 1)
	delays := []time.Duration{30 * time.Millisecond, 0, 10 * time.Millisecond}
	for i, d := range delays {
		a, err := skewed.Lookup(agents.AgentID(i))
		if err != nil {
			t.Fatalf("Lookup(%d): %v", i, err)
		}
		a.Delay = d
	}
	sched = NewScheduler(skewed, NewPool(3), agents.PoolNeighborhood)
	got, err := sched.RunRounds(context.Background(), 3)
	if err != nil {
		t.Fatalf("skewed RunRounds: %v", err)
	}

	for r := range want {
		for i := range want[r].Values {
			if got[r].Values[i] != want[r].Values[i] {
				t.Errorf("round %d agent %d = %v with delays, want %v",
					r+1, i, got[r].Values[i], want[r].Values[i])
			}
		}
	}
}

func TestScheduler_RoundCounts(t *testing.T) {
	for _, n := range []int{0, 1, 30} {
		env := ringEnv(t, []float64{1, 2, 3}, 3)
		sched := NewScheduler(env, NewPool(4), agents.PoolNeighborhood)

		reports, err := sched.RunRounds(context.Background(), n)
		if err != nil {
			t.Fatalf("RunRounds(%d): %v", n, err)
		}
		if len(reports) != n {
			t.Errorf("RunRounds(%d) returned %d reports", n, len(reports))
		}
		if env.Round() != n {
			t.Errorf("environment round = %d after %d rounds", env.Round(), n)
		}
		for i, rep := range reports {
			if rep.Round != i+1 {
				t.Errorf("report %d has round %d", i, rep.Round)
			}
		}
	}
}

func TestScheduler_CancelAbortsCleanly(t *testing.T) {
	env := ringEnv(t, []float64{10, 20, 30}, 1)
	for _, a := range env.Agents() {
		a.Delay = 50 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	sched := NewScheduler(env, NewPool(3), agents.PoolNeighborhood)
	sched.OnRound = func(RoundReport) { cancel() }

	reports, err := sched.RunRounds(ctx, 10)
	if len(reports) != 1 {
		t.Fatalf("got %d reports before cancel, want 1", len(reports))
	}

	var aborted *RoundAbortedError
	if !errors.As(err, &aborted) {
		t.Fatalf("error = %v, want RoundAbortedError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cause chain = %v, want context.Canceled", err)
	}

	// Cancelled mid-round two: population still holds round one.
	want := []float64{30, 50, 40}
	for i, w := range want {
		a, lookupErr := env.Lookup(agents.AgentID(i))
		if lookupErr != nil {
			t.Fatalf("Lookup(%d): %v", i, lookupErr)
		}
		if a.Value != w {
			t.Errorf("agent %d = %v after cancel, want %v", i, a.Value, w)
		}
	}
}

func TestScheduler_ObserverSeesEveryRound(t *testing.T) {
	env := ringEnv(t, []float64{1, 2, 3}, 3)
	sched := NewScheduler(env, NewPool(2), agents.PoolNeighborhood)

	var seen []int
	sched.OnRound = func(rep RoundReport) { seen = append(seen, rep.Round) }

	if _, err := sched.RunRounds(context.Background(), 4); err != nil {
		t.Fatalf("RunRounds: %v", err)
	}
	if len(seen) != 4 {
		t.Fatalf("observer saw %d rounds, want 4", len(seen))
	}
	for i, r := range seen {
		if r != i+1 {
			t.Errorf("observer round %d = %d, want %d", i, r, i+1)
		}
	}

	if last, ok := sched.LastReport(); !ok || last.Round != 4 {
		t.Errorf("LastReport = %+v, %v, want round 4", last, ok)
	}
	if sched.Phase() != PhaseIdle {
		t.Errorf("phase after run = %v, want idle", sched.Phase())
	}
}
