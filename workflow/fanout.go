package workflow

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/runner"
)

// Task is one independent agent run of a fan-out.
type Task struct {
	Agent *agent.Agent
	Input string
}

// FanOutOptions configures FanOut.
type FanOutOptions struct {
	// Limit caps concurrently running tasks. Zero means unlimited.
	Limit int
	// RunContext is the parent of every branch. Nil creates one from the runner.
	RunContext *core.RunContext
}

// FanOut runs all tasks concurrently and returns their results in task
// order. Each task runs in its own branch "fanout.<index>.<agent>" cloned
// from the parent RunContext, so branches share the run id and model call
// budget but not caller values.
//
// The first failure cancels the remaining branches and FanOut returns that
// error with no results.
func FanOut(ctx context.Context, r Runner, tasks []Task, optFns ...func(o *FanOutOptions)) ([]*core.RunResult, error) {
	opts := FanOutOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	for i, task := range tasks {
		if task.Agent == nil {
			return nil, fmt.Errorf("fan-out task %d: agent is required", i)
		}
	}

	parent := runContext(ctx, r, opts.RunContext)
	results := make([]*core.RunResult, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	if opts.Limit > 0 {
		g.SetLimit(opts.Limit)
	}

	parent.LogDebug("workflow.fanout.start", "tasks", len(tasks), "limit", opts.Limit)

	for i, task := range tasks {
		g.Go(func() error {
			branch := parent.WithBranch(fmt.Sprintf("fanout.%d.%s", i, task.Agent.Name()))

			res, err := r.Run(gctx, task.Agent, task.Input, runner.WithRunContext(branch))
			if err != nil {
				return fmt.Errorf("fan-out task %d (%s): %w", i, task.Agent.Name(), err)
			}

			results[i] = res

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		parent.LogWarn("workflow.fanout.failed", "error", err)
		return nil, err
	}

	return results, nil
}
