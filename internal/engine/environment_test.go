package engine

import (
	"errors"
	"testing"

	"github.com/jintrone/abm-mp-example/internal/agents"
	"github.com/jintrone/abm-mp-example/internal/entropy"
	"github.com/jintrone/abm-mp-example/internal/field"
)

func TestEnvironment_RegisterAssignsDenseIDs(t *testing.T) {
	env := NewEnvironment(3)
	for i := 0; i < 5; i++ {
		if id := env.Register(); id != agents.AgentID(i) {
			t.Fatalf("registration %d returned id %d", i, id)
		}
	}
	if env.Size() != 5 {
		t.Errorf("Size() = %d, want 5", env.Size())
	}
}

func TestEnvironment_LookupOutOfRange(t *testing.T) {
	env := NewEnvironment(3)
	env.Register()

	if _, err := env.Lookup(0); err != nil {
		t.Fatalf("Lookup(0): %v", err)
	}
	for _, id := range []agents.AgentID{-1, 1, 99} {
		if _, err := env.Lookup(id); !errors.Is(err, agents.ErrOutOfRange) {
			t.Errorf("Lookup(%d) error = %v, want ErrOutOfRange", id, err)
		}
	}
}

func TestEnvironment_SnapshotIsFrozen(t *testing.T) {
	env := NewEnvironment(3)
	id := env.Register()
	a, err := env.Lookup(id)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	a.Value = 10

	snap := env.Snapshot()
	a.Value = 99

	v, err := snap.Value(id)
	if err != nil {
		t.Fatalf("snapshot Value: %v", err)
	}
	if v != 10 {
		t.Errorf("snapshot value = %v after live mutation, want 10", v)
	}
}

func TestEnvironment_SetupAgent(t *testing.T) {
	const (
		population = 20
		neighbors  = 3
		maxValue   = 50
	)
	src := entropy.NewSource(42)
	env := NewEnvironment(3)
	for i := 0; i < population; i++ {
		env.Register()
	}

	setup, err := NewSetup(population, neighbors, field.NewUniform(src.Values(), maxValue), src.Topology(), 0)
	if err != nil {
		t.Fatalf("NewSetup: %v", err)
	}
	for i := 0; i < population; i++ {
		if err := env.SetupAgent(agents.AgentID(i), setup); err != nil {
			t.Fatalf("SetupAgent(%d): %v", i, err)
		}
	}

	for _, a := range env.Agents() {
		if a.Value < -maxValue || a.Value > maxValue {
			t.Errorf("agent %d initial value %v outside [-%d, %d]", a.ID, a.Value, maxValue, maxValue)
		}
		if len(a.Neighbors) != neighbors {
			t.Errorf("agent %d has %d neighbors, want %d", a.ID, len(a.Neighbors), neighbors)
		}
		for _, n := range a.Neighbors {
			if n == a.ID {
				t.Errorf("agent %d is its own neighbor", a.ID)
			}
		}
	}

	if err := setup.Sampler.Validate(); err != nil {
		t.Errorf("network validation: %v", err)
	}
}

func TestEnvironment_SetupBeforeFullPopulation(t *testing.T) {
	src := entropy.NewSource(1)
	env := NewEnvironment(3)
	env.Register() // only 1 of 10 registered

	setup, err := NewSetup(10, 3, field.NewUniform(src.Values(), 50), src.Topology(), 0)
	if err != nil {
		t.Fatalf("NewSetup: %v", err)
	}
	if err := env.SetupAgent(0, setup); !errors.Is(err, ErrSetupPrecondition) {
		t.Errorf("SetupAgent error = %v, want ErrSetupPrecondition", err)
	}
}

func TestNewSetup_RejectsOversizedNeighborhood(t *testing.T) {
	src := entropy.NewSource(1)
	cases := []struct {
		population int
		neighbors  int
	}{
		{population: 10, neighbors: 9},
		{population: 10, neighbors: 12},
		{population: 3, neighbors: 2},
		{population: 5, neighbors: -1},
	}

	for _, tc := range cases {
		_, err := NewSetup(tc.population, tc.neighbors, field.NewUniform(src.Values(), 50), src.Topology(), 0)
		if !errors.Is(err, ErrSetupPrecondition) {
			t.Errorf("NewSetup(%d, %d) error = %v, want ErrSetupPrecondition",
				tc.population, tc.neighbors, err)
		}
	}
}

func TestRestore(t *testing.T) {
	pop := []*agents.Agent{
		{ID: 0, Value: 1, Neighbors: []agents.AgentID{1}},
		{ID: 1, Value: 2, Neighbors: []agents.AgentID{0}},
	}
	env, err := Restore(3, pop, 7)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if env.Round() != 7 || env.Size() != 2 || env.SpecialFactor != 3 {
		t.Errorf("restored env = round %d size %d factor %v", env.Round(), env.Size(), env.SpecialFactor)
	}

	if _, err := Restore(3, []*agents.Agent{{ID: 5}}, 0); err == nil {
		t.Error("Restore accepted out-of-order agent ids")
	}
}
