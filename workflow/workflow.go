package workflow

import (
	"context"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/runner"
)

// Runner is the subset of *runner.Runner used by workflows.
type Runner interface {
	Run(ctx context.Context, a *agent.Agent, input string, optFns ...func(o *runner.RunOptions)) (*core.RunResult, error)
	NewRunContext(ctx context.Context, optFns ...func(o *runner.RunOptions)) *core.RunContext
}

var _ Runner = (*runner.Runner)(nil)

// runContext returns rc when set, otherwise a fresh RunContext from r.
func runContext(ctx context.Context, r Runner, rc *core.RunContext) *core.RunContext {
	if rc != nil {
		return rc
	}

	return r.NewRunContext(ctx)
}
