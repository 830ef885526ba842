package journal

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run id is unknown to a store.
var ErrRunNotFound = errors.New("run not found")

// Kind identifies the hook point an entry was recorded at.
type Kind string

const (
	KindAgentStart Kind = "agent_start"
	KindGuardrail  Kind = "guardrail"
	KindModelCall  Kind = "model_call"
	KindHandoff    Kind = "handoff"
	KindAgentEnd   Kind = "agent_end"
)

// Status is the outcome of a run or of a single agent.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusTripped   Status = "tripped"
	StatusFailed    Status = "failed"
)

// Entry is one recorded lifecycle event.
type Entry struct {
	ID     string
	RunID  string
	Branch string
	// Seq orders entries within a run; assigned by the store.
	Seq   int
	Kind  Kind
	Agent string
	// Detail is the guardrail name, model name or handoff target.
	Detail   string
	Status   Status
	Error    string
	Duration time.Duration
	Time     time.Time
}

// Run summarizes all entries of one run id.
type Run struct {
	ID string
	// Agent is the first agent started in the run.
	Agent string
	// FinalAgent is the agent that produced the result, once completed.
	FinalAgent string
	Status     Status
	Error      string
	// FailedBranch is the workflow branch whose failure set Status; empty
	// when Status was set at the top level.
	FailedBranch string
	Entries      int
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// Store persists entries and run summaries. Implementations must be safe
// for concurrent use.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Run(ctx context.Context, runID string) (*Run, error)
	Entries(ctx context.Context, runID string) ([]Entry, error)
	// Runs returns the most recently started runs first. A limit <= 0
	// returns all runs.
	Runs(ctx context.Context, limit int) ([]*Run, error)
	Close() error
}

// apply folds e into run. A nil run starts a new summary.
func apply(run *Run, e Entry) *Run {
	if run == nil {
		run = &Run{
			ID:        e.RunID,
			Agent:     e.Agent,
			Status:    StatusRunning,
			StartedAt: e.Time,
		}
	}

	run.Entries++
	run.UpdatedAt = e.Time

	if e.Kind != KindAgentEnd {
		return run
	}

	failed := e.Status == StatusFailed || e.Status == StatusTripped

	// A sibling branch finishing after a failed branch does not mask the
	// failure; the next top-level end does.
	if e.Branch != "" && !failed && run.FailedBranch != "" {
		return run
	}

	run.Status = e.Status
	run.Error = e.Error
	run.FinalAgent = e.Detail
	run.FailedBranch = ""

	if failed {
		run.FailedBranch = e.Branch
	}

	return run
}
