package core

import (
	"context"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/agentrelay/logging"
)

// RunContext carries execution state & helpers for a single top-level run.
// It aggregates:
//   - The ambient cancellation Context
//   - The run identifier shared by every agent visited during the run
//   - Caller supplied values available to instructions and guardrails
//   - A branch label used by fan-out to tell concurrent paths apart
//   - The shared ModelLimiter and a logger adapter
//
// Values are guarded by a mutex. Cloning copies the value map so that a
// branch never observes writes made by its siblings, while the limiter and
// logger remain shared.
type RunContext struct {
	Context context.Context
	RunID   string
	Branch  string
	Limiter *ModelLimiter

	mu     sync.RWMutex
	values map[string]any

	*loggerAdapter
}

// NewRunContext constructs a RunContext. An empty runID is replaced by a
// fresh UUID and a nil ctx by context.Background().
func NewRunContext(ctx context.Context, runID string, maxModelCalls int, logger logging.Logger) *RunContext {
	if ctx == nil {
		ctx = context.Background()
	}

	if runID == "" {
		runID = uuid.NewString()
	}

	return &RunContext{
		Context:       ctx,
		RunID:         runID,
		Limiter:       NewModelLimiter(maxModelCalls),
		values:        map[string]any{},
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// Value returns the caller value stored under k.
func (rc *RunContext) Value(k string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	v, ok := rc.values[k]

	return v, ok
}

// SetValue stores a caller value under k.
func (rc *RunContext) SetValue(k string, v any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.values[k] = v
}

// SetValues merges all pairs from m into the caller values.
func (rc *RunContext) SetValues(m map[string]any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	maps.Copy(rc.values, m)
}

// Values returns a snapshot copy of the caller values.
func (rc *RunContext) Values() map[string]any {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	return maps.Clone(rc.values)
}

// Clone returns a copy with its own value map. Limiter and logger are shared.
func (rc *RunContext) Clone() *RunContext {
	return &RunContext{
		Context:       rc.Context,
		RunID:         rc.RunID,
		Branch:        rc.Branch,
		Limiter:       rc.Limiter,
		values:        rc.Values(),
		loggerAdapter: rc.loggerAdapter,
	}
}

// WithBranch clones the context and sets the Branch label. A non-empty
// parent branch is kept as a dotted prefix.
func (rc *RunContext) WithBranch(b string) *RunContext {
	c := rc.Clone()
	if rc.Branch != "" && b != "" {
		c.Branch = rc.Branch + "." + b
	} else if b != "" {
		c.Branch = b
	}

	return c
}

// WithContext clones the RunContext replacing its cancellation context.
func (rc *RunContext) WithContext(ctx context.Context) *RunContext {
	c := rc.Clone()
	c.Context = ctx

	return c
}
