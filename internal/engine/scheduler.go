package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jintrone/abm-mp-example/internal/agents"
)

// Phase is the scheduler's position in the round lifecycle. It exists for
// observers: the status API and debug logs read it while a run is live.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseSnapshotting
	PhaseDispatching
	PhaseCollecting
	PhaseCommitting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSnapshotting:
		return "snapshotting"
	case PhaseDispatching:
		return "dispatching"
	case PhaseCollecting:
		return "collecting"
	case PhaseCommitting:
		return "committing"
	default:
		return "unknown"
	}
}

// Scheduler drives the synchronous round loop over an environment. Rounds
// are strictly sequential; parallelism lives inside a round, never across
// rounds.
type Scheduler struct {
	env    *Environment
	pool   *Pool
	update agents.UpdateFunc

	// OnRound, when set, observes every committed report in round order.
	// It runs on the scheduler goroutine after the commit.
	OnRound func(RoundReport)

	phase atomic.Int32

	mu   sync.Mutex
	last RoundReport
	has  bool
}

// NewScheduler wires an environment, a worker pool, and the update rule
// every agent runs.
func NewScheduler(env *Environment, pool *Pool, update agents.UpdateFunc) *Scheduler {
	return &Scheduler{env: env, pool: pool, update: update}
}

// Phase reports the current lifecycle phase. Safe to call from any
// goroutine.
func (s *Scheduler) Phase() Phase {
	return Phase(s.phase.Load())
}

func (s *Scheduler) setPhase(p Phase) {
	s.phase.Store(int32(p))
}

// LastReport returns a copy of the most recently committed round report.
// Safe to call from any goroutine.
func (s *Scheduler) LastReport() (RoundReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.has
}

// RunRounds executes n rounds back to back and returns their reports. On
// abort it returns the reports of the rounds that did commit alongside the
// RoundAbortedError, so the driver can decide what to do with the run. The
// environment is always left at its last committed round.
func (s *Scheduler) RunRounds(ctx context.Context, n int) ([]RoundReport, error) {
	reports := make([]RoundReport, 0, n)
	for i := 0; i < n; i++ {
		rep, err := s.runRound(ctx)
		if err != nil {
			return reports, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

// runRound performs one snapshot → dispatch → collect → commit cycle.
func (s *Scheduler) runRound(ctx context.Context) (RoundReport, error) {
	round := s.env.round + 1
	start := time.Now()
	defer s.setPhase(PhaseIdle)

	s.setPhase(PhaseSnapshotting)
	snap := s.env.Snapshot()

	s.setPhase(PhaseDispatching)
	run := s.pool.Start(ctx, s.env.pop, snap, s.update, s.env.SpecialFactor)

	s.setPhase(PhaseCollecting)
	results, err := run.Wait()
	if err != nil {
		slog.Debug("round aborted", "round", round, "error", err)
		return RoundReport{}, &RoundAbortedError{Round: round, Cause: err}
	}

	s.setPhase(PhaseCommitting)
	for _, r := range results {
		a, err := s.env.Lookup(r.AgentID)
		if err != nil {
			return RoundReport{}, &RoundAbortedError{Round: round, Cause: err}
		}
		a.Stage(r.Value)
	}
	values := make([]float64, len(s.env.pop))
	for i, a := range s.env.pop {
		a.Commit()
		values[i] = a.Value
	}
	s.env.round = round

	rep := newRoundReport(round, time.Since(start), values)
	s.mu.Lock()
	s.last = rep
	s.has = true
	s.mu.Unlock()

	slog.Debug("round committed",
		"round", rep.Round,
		"took", rep.Duration,
		"mean", rep.Mean,
	)

	if s.OnRound != nil {
		s.OnRound(rep)
	}
	return rep, nil
}
