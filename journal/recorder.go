package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/runner"
)

// Options configures a Recorder.
type Options struct {
	// Now returns the entry timestamp. Defaults to time.Now.
	Now func() time.Time
	// RecordInput stores the agent input in agent start entries.
	RecordInput bool
}

// Recorder appends one entry per runner hook point to a Store. Store
// failures never fail a run; they are logged through the run's logger.
type Recorder struct {
	store Store
	opts  Options
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store Store, optFns ...func(o *Options)) *Recorder {
	opts := Options{Now: time.Now}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Recorder{store: store, opts: opts}
}

// Store returns the underlying store.
func (r *Recorder) Store() Store { return r.store }

func (r *Recorder) OnAgentStart(rc *core.RunContext, agent, input string) {
	e := r.entry(rc, KindAgentStart, agent)
	e.Status = StatusRunning

	if r.opts.RecordInput {
		e.Detail = input
	}

	r.append(rc, e)
}

func (r *Recorder) OnGuardrail(rc *core.RunContext, agent string, verdict core.Verdict) {
	e := r.entry(rc, KindGuardrail, agent)
	e.Status = StatusCompleted

	if verdict.TripwireTriggered {
		e.Detail = verdict.Guardrail
		e.Status = StatusTripped
	}

	r.append(rc, e)
}

func (r *Recorder) OnModelCall(rc *core.RunContext, agent, model string, d time.Duration, err error) {
	e := r.entry(rc, KindModelCall, agent)
	e.Detail = model
	e.Duration = d
	e.Status, e.Error = outcome(err)

	r.append(rc, e)
}

func (r *Recorder) OnHandoff(rc *core.RunContext, from, to string) {
	e := r.entry(rc, KindHandoff, from)
	e.Detail = to
	e.Status = StatusCompleted

	r.append(rc, e)
}

func (r *Recorder) OnAgentEnd(rc *core.RunContext, agent string, result *core.RunResult, err error) {
	e := r.entry(rc, KindAgentEnd, agent)
	e.Status, e.Error = outcome(err)

	if result != nil {
		e.Detail = result.Agent
	}

	r.append(rc, e)
}

func (r *Recorder) entry(rc *core.RunContext, kind Kind, agent string) Entry {
	return Entry{
		ID:     uuid.NewString(),
		RunID:  rc.RunID,
		Branch: rc.Branch,
		Kind:   kind,
		Agent:  agent,
		Time:   r.opts.Now(),
	}
}

func (r *Recorder) append(rc *core.RunContext, e Entry) {
	// Cancelled runs are still journaled.
	ctx := context.WithoutCancel(rc.Context)

	if err := r.store.Append(ctx, e); err != nil {
		rc.LogWarn("journal.append.error", "run_id", e.RunID, "kind", e.Kind, "error", err)
	}
}

func outcome(err error) (Status, string) {
	switch {
	case err == nil:
		return StatusCompleted, ""
	case errors.Is(err, core.ErrGuardrailTripped):
		return StatusTripped, err.Error()
	default:
		return StatusFailed, err.Error()
	}
}

var _ runner.Hooks = (*Recorder)(nil)
