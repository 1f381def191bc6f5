package engine

import (
	"errors"
	"fmt"

	"github.com/jintrone/abm-mp-example/internal/agents"
)

// ErrSetupPrecondition is returned when agent setup runs against an
// incomplete population, or when the requested neighbor count cannot be
// sampled from it. Setup failures are synchronous: they surface directly
// to the caller, before any round starts.
var ErrSetupPrecondition = errors.New("setup precondition violated")

// TaskError reports the failure of a single agent's update task.
type TaskError struct {
	AgentID agents.AgentID
	Err     error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("update task for agent %d: %v", e.AgentID, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// RoundAbortedError reports a round that was discarded without committing:
// a task failed or the run was cancelled mid-round, every staged result was
// thrown away, and the population still holds the previous round's values.
// The driver decides whether to retry, skip, or stop.
type RoundAbortedError struct {
	Round int
	Cause error
}

func (e *RoundAbortedError) Error() string {
	return fmt.Sprintf("round %d aborted: %v", e.Round, e.Cause)
}

func (e *RoundAbortedError) Unwrap() error {
	return e.Cause
}
