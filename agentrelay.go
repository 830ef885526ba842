// Package agentrelay provides a high-level façade over the runner, the run
// journal and metrics, enabling rapid construction of guarded multi-agent
// workflows. Most applications interact with this package by:
//  1. Creating an AgentRelay via New() with a model backend, or via
//     NewFromConfig() with a YAML workflow definition
//  2. Running an entry agent synchronously (Run) or asynchronously (RunAsync)
//  3. Inspecting past runs through the journal (Runs, Entries)
//
// Multi-step composition (refinement loops, fan-out, clarification) lives in
// the workflow package and accepts the runner returned by Runner().
package agentrelay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/journal"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/metrics"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/runner"
)

// Options configures the AgentRelay instance.
type Options struct {
	// Journal records every run (defaults to an in-memory store).
	Journal journal.Store
	// Registerer receives run metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	// Hooks are registered after the journal and metrics hooks.
	Hooks []runner.Hooks
	// CallTimeout bounds each backend call. Zero means no timeout.
	CallTimeout time.Duration
	// MaxModelCalls limits backend calls per run. Zero means unlimited.
	MaxModelCalls int
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// AgentRelay is the high-level façade aggregating the runner and its
// observers.
type AgentRelay struct {
	opts    Options
	runner  *runner.Runner
	metrics *metrics.Collector
	// backend is set when the AgentRelay created the backend and owns it.
	backend model.Model
}

// New creates a new AgentRelay instance around backend.
func New(backend model.Model, optFns ...func(o *Options)) (*AgentRelay, error) {
	opts := Options{
		Journal: journal.NewInMemoryStore(),
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	hooks := []runner.Hooks{journal.NewRecorder(opts.Journal)}

	var collector *metrics.Collector
	if opts.Registerer != nil {
		collector = metrics.NewCollector(func(o *metrics.Options) { o.Registerer = opts.Registerer })
		hooks = append(hooks, collector)
	}

	hooks = append(hooks, opts.Hooks...)

	r, err := runner.New(backend, func(o *runner.Options) {
		o.Logger = opts.Logger
		o.Hooks = hooks
		o.CallTimeout = opts.CallTimeout
		o.MaxModelCalls = opts.MaxModelCalls
	})
	if err != nil {
		return nil, err
	}

	return &AgentRelay{opts: opts, runner: r, metrics: collector}, nil
}

// NewFromConfig constructs the configured backend, the AgentRelay and the
// agent graph of cfg. Limits from cfg override the ones in optFns.
func NewFromConfig(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*AgentRelay, *config.Workflow, error) {
	backend, err := config.NewBackend(ctx, cfg.Backend)
	if err != nil {
		return nil, nil, err
	}

	optFns = append(optFns, func(o *Options) {
		var ro runner.Options
		cfg.RunnerOptions(&ro)

		o.CallTimeout = ro.CallTimeout
		o.MaxModelCalls = ro.MaxModelCalls
	})

	relay, err := New(backend, optFns...)
	if err != nil {
		model.Close(backend) //nolint:errcheck // construction error takes precedence
		return nil, nil, err
	}

	relay.backend = backend

	wf, err := cfg.Build(relay.runner)
	if err != nil {
		model.Close(backend) //nolint:errcheck // build error takes precedence
		return nil, nil, fmt.Errorf("failed to build workflow: %w", err)
	}

	return relay, wf, nil
}

// Runner returns the underlying runner for use with the workflow package.
func (m *AgentRelay) Runner() *runner.Runner { return m.runner }

// Metrics returns the metrics collector, or nil when metrics are disabled.
func (m *AgentRelay) Metrics() *metrics.Collector { return m.metrics }

// Journal returns the store recording every run.
func (m *AgentRelay) Journal() journal.Store { return m.opts.Journal }

// Run executes a from input synchronously.
func (m *AgentRelay) Run(ctx context.Context, a *agent.Agent, input string, optFns ...func(o *runner.RunOptions)) (*core.RunResult, error) {
	return m.runner.Run(ctx, a, input, optFns...)
}

// RunAsync starts a run returning result & error channels.
func (m *AgentRelay) RunAsync(ctx context.Context, a *agent.Agent, input string, optFns ...func(o *runner.RunOptions)) (<-chan *core.RunResult, <-chan error) {
	return m.runner.RunAsync(ctx, a, input, optFns...)
}

// Cancel cancels an in-flight run started by Run or RunAsync.
func (m *AgentRelay) Cancel(runID string) error { return m.runner.Cancel(runID) }

// Runs lists journaled runs, newest first.
func (m *AgentRelay) Runs(ctx context.Context, limit int) ([]*journal.Run, error) {
	return m.opts.Journal.Runs(ctx, limit)
}

// Entries returns the journal entries of one run.
func (m *AgentRelay) Entries(ctx context.Context, runID string) ([]journal.Entry, error) {
	return m.opts.Journal.Entries(ctx, runID)
}

// Close releases the journal and, for AgentRelays built by NewFromConfig,
// the backend client.
func (m *AgentRelay) Close() error {
	err := m.opts.Journal.Close()

	if m.backend != nil {
		err = errors.Join(err, model.Close(m.backend))
	}

	return err
}
