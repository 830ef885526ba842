package testutil

import (
	"context"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// RunContextBuilder helps construct run contexts with fluent chaining for tests.
// Example:
//
//	rc := NewRunContextBuilder().RunID("run-1").Value("user","ada").Build()
type RunContextBuilder struct {
	ctx           context.Context
	runID         string
	branch        string
	maxModelCalls int
	values        map[string]any
	logger        logging.Logger
}

// NewRunContextBuilder creates a builder with a background context, no call
// limit and a no-op logger.
func NewRunContextBuilder() *RunContextBuilder {
	return &RunContextBuilder{
		ctx:    context.Background(),
		values: map[string]any{},
		logger: logging.NoOpLogger{},
	}
}

// Context sets the cancellation context (chainable).
func (b *RunContextBuilder) Context(ctx context.Context) *RunContextBuilder {
	b.ctx = ctx
	return b
}

// RunID sets the run identifier (chainable).
func (b *RunContextBuilder) RunID(id string) *RunContextBuilder {
	b.runID = id
	return b
}

// Branch sets the branch label (chainable).
func (b *RunContextBuilder) Branch(branch string) *RunContextBuilder {
	b.branch = branch
	return b
}

// MaxModelCalls sets the model call budget (chainable).
func (b *RunContextBuilder) MaxModelCalls(n int) *RunContextBuilder {
	b.maxModelCalls = n
	return b
}

// Value sets a caller value (chainable).
func (b *RunContextBuilder) Value(key string, val any) *RunContextBuilder {
	b.values[key] = val
	return b
}

// Logger sets the logger (chainable).
func (b *RunContextBuilder) Logger(l logging.Logger) *RunContextBuilder {
	b.logger = l
	return b
}

// Build returns the constructed RunContext.
func (b *RunContextBuilder) Build() *core.RunContext {
	rc := core.NewRunContext(b.ctx, b.runID, b.maxModelCalls, b.logger)
	rc.Branch = b.branch
	rc.SetValues(b.values)

	return rc
}
