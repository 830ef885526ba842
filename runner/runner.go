package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/guardrail"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/schema"
)

const tracerName = "github.com/hupe1980/agentrelay/runner"

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// Backend performs every model call. Required.
	Backend model.Model
	// Logger receives structured run events.
	Logger logging.Logger
	// Hooks observe the run lifecycle in registration order.
	Hooks []Hooks
	// CallTimeout bounds each backend call. Zero means no timeout.
	CallTimeout time.Duration
	// MaxModelCalls limits backend calls per run. Zero means unlimited.
	MaxModelCalls int
	// Tracer creates spans around agent runs and backend calls.
	Tracer trace.Tracer
}

// Runner executes agents: it evaluates guardrails, calls the backend,
// follows handoffs and validates structured output. Public methods are safe
// for concurrent use.
type Runner struct {
	backend       model.Model
	logger        logging.Logger
	hooks         hookChain
	callTimeout   time.Duration
	maxModelCalls int
	tracer        trace.Tracer

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

// New constructs a Runner with optional overrides.
func New(backend model.Model, optFns ...func(o *Options)) (*Runner, error) {
	opts := Options{
		Backend: backend,
		Logger:  logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Backend == nil {
		return nil, errors.New("runner: backend is required")
	}

	if opts.MaxModelCalls < 0 {
		return nil, fmt.Errorf("runner: max model calls must not be negative, got %d", opts.MaxModelCalls)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	return &Runner{
		backend:       opts.Backend,
		logger:        opts.Logger,
		hooks:         slices.Clone(hookChain(opts.Hooks)),
		callTimeout:   opts.CallTimeout,
		maxModelCalls: opts.MaxModelCalls,
		tracer:        opts.Tracer,
		activeRuns:    make(map[string]context.CancelFunc),
	}, nil
}

// WithHooks registers additional lifecycle hooks.
func WithHooks(hooks ...Hooks) func(o *Options) {
	return func(o *Options) { o.Hooks = append(o.Hooks, hooks...) }
}

// WithLogger sets the logger receiving run events.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// Backend returns the model backend used for every call.
func (r *Runner) Backend() model.Model { return r.backend }

// RunOptions configures a single top-level run.
type RunOptions struct {
	// RunID identifies the run; empty generates a UUID.
	RunID string
	// Values are made available to instructions and guardrails.
	Values map[string]any
	// RunContext continues an existing run instead of starting a new one.
	RunContext *core.RunContext
}

// WithRunID sets the run identifier.
func WithRunID(id string) func(o *RunOptions) {
	return func(o *RunOptions) { o.RunID = id }
}

// WithValues seeds the run's caller values.
func WithValues(values map[string]any) func(o *RunOptions) {
	return func(o *RunOptions) { o.Values = values }
}

// WithRunContext runs inside rc, sharing its run id, limiter and branch.
// A non-nil ctx passed to Run replaces rc's context; values passed with
// WithValues are applied to a clone so rc itself is never modified.
func WithRunContext(rc *core.RunContext) func(o *RunOptions) {
	return func(o *RunOptions) { o.RunContext = rc }
}

// Run executes a from input and returns the terminal agent's result.
//
// The run fails with *core.GuardrailTrippedError when a guardrail rejects
// the input, *core.BackendError when the model call fails,
// *core.DelegationError when a handoff selection is invalid and
// *core.ValidationError when the final output violates the agent's schema.
func (r *Runner) Run(ctx context.Context, a *agent.Agent, input string, optFns ...func(o *RunOptions)) (*core.RunResult, error) {
	opts := RunOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.RunContext != nil {
		rc := opts.RunContext
		if ctx != nil {
			rc = rc.WithContext(ctx)
		}

		if len(opts.Values) > 0 {
			rc = rc.Clone()
			rc.SetValues(opts.Values)
		}

		return r.RunWith(rc, a, input)
	}

	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rc := r.NewRunContext(ctx, optFns...)

	r.mu.Lock()
	r.activeRuns[rc.RunID] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.activeRuns, rc.RunID)
		r.mu.Unlock()
	}()

	return r.RunWith(rc, a, input)
}

// NewRunContext creates a RunContext carrying the runner's logger and model
// call budget. Workflows use it to share one budget across several runs.
func (r *Runner) NewRunContext(ctx context.Context, optFns ...func(o *RunOptions)) *core.RunContext {
	opts := RunOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	rc := core.NewRunContext(ctx, opts.RunID, r.maxModelCalls, r.logger)
	rc.SetValues(opts.Values)

	return rc
}

// RunWith executes a inside an existing RunContext. Nested guardrail runs
// and fan-out branches use it so that the limiter and run id are shared.
func (r *Runner) RunWith(rc *core.RunContext, a *agent.Agent, input string) (*core.RunResult, error) {
	if rc == nil {
		return nil, errors.New("runner: run context is required")
	}

	if a == nil {
		return nil, errors.New("runner: agent is required")
	}

	return r.runAgent(rc, a, input, nil)
}

// RunAsync starts Run on a new goroutine. Exactly one of the returned
// channels receives a value; both are closed afterwards.
func (r *Runner) RunAsync(ctx context.Context, a *agent.Agent, input string, optFns ...func(o *RunOptions)) (<-chan *core.RunResult, <-chan error) {
	resultCh := make(chan *core.RunResult, 1)
	errCh := make(chan error, 1)

	go func() {
		defer func() { close(resultCh); close(errCh) }()

		res, err := r.Run(ctx, a, input, optFns...)
		if err != nil {
			errCh <- err
			return
		}

		resultCh <- res
	}()

	return resultCh, errCh
}

// Cancel cancels a running top-level run by ID.
func (r *Runner) Cancel(runID string) error {
	r.mu.RLock()
	cancel, exists := r.activeRuns[runID]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}

func (r *Runner) runAgent(rc *core.RunContext, a *agent.Agent, input string, path []string) (res *core.RunResult, err error) {
	path = append(slices.Clone(path), a.Name())

	ctx, span := r.tracer.Start(rc.Context, "agentrelay.agent",
		trace.WithAttributes(
			attribute.String("agentrelay.agent", a.Name()),
			attribute.String("agentrelay.run_id", rc.RunID),
			attribute.String("agentrelay.branch", rc.Branch),
			attribute.Int("agentrelay.depth", len(path)),
		),
	)
	defer span.End()

	rc.LogDebug("runner.agent.start", "agent", a.Name(), "run", rc.RunID, "branch", rc.Branch, "depth", len(path))
	r.hooks.OnAgentStart(rc, a.Name(), input)

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			rc.LogDebug("runner.agent.error", "agent", a.Name(), "run", rc.RunID, "error", err)
		} else {
			span.SetAttributes(attribute.String("agentrelay.final_agent", res.Agent))
			rc.LogDebug("runner.agent.end", "agent", a.Name(), "run", rc.RunID, "final_agent", res.Agent)
		}

		r.hooks.OnAgentEnd(rc, a.Name(), res, err)
	}()

	if err := rc.Err(); err != nil {
		return nil, err
	}

	verdict, err := guardrail.Evaluate(rc, a.Guardrails(), input)
	if err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.Name(), err)
	}

	r.hooks.OnGuardrail(rc, a.Name(), verdict)

	if verdict.TripwireTriggered {
		return nil, &core.GuardrailTrippedError{
			Agent:      a.Name(),
			Guardrail:  verdict.Guardrail,
			OutputInfo: verdict.OutputInfo,
		}
	}

	resp, err := r.generate(ctx, rc, a, input)
	if err != nil {
		return nil, err
	}

	decision, err := decide(a, resp)
	if err != nil {
		return nil, err
	}

	switch decision.Kind {
	case core.DecisionHandoff:
		target, _ := a.FindHandoff(decision.Target)

		rc.LogInfo("runner.agent.handoff", "from", a.Name(), "to", target.Name(), "run", rc.RunID)
		span.AddEvent("handoff", trace.WithAttributes(attribute.String("agentrelay.target", target.Name())))
		r.hooks.OnHandoff(rc, a.Name(), target.Name())

		return r.runAgent(rc, target, input, path)
	default:
		return finalize(rc, a, decision.Text, path)
	}
}

func (r *Runner) generate(ctx context.Context, rc *core.RunContext, a *agent.Agent, input string) (*model.Response, error) {
	instructions, err := a.ResolveInstructions(rc, input)
	if err != nil {
		return nil, fmt.Errorf("agent %s: failed to resolve instructions: %w", a.Name(), err)
	}

	if err := rc.Limiter.Increment(); err != nil {
		return nil, fmt.Errorf("agent %s: %w", a.Name(), err)
	}

	req := model.Request{
		Agent:        a.Name(),
		Model:        a.Model(),
		Instructions: instructions,
		Input:        input,
		Handoffs:     a.HandoffOptions(),
		Timeout:      r.callTimeout,
	}

	if !a.HasHandoffs() {
		req.Schema = a.OutputSchema()
	}

	info := r.backend.Info()
	modelName := req.ModelOrDefault(info.Name)

	ctx, span := r.tracer.Start(ctx, "agentrelay.model.generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("agentrelay.agent", a.Name()),
			attribute.String("agentrelay.provider", info.Provider),
			attribute.String("agentrelay.model", modelName),
			attribute.Int("agentrelay.handoffs", len(req.Handoffs)),
			attribute.Bool("agentrelay.structured", req.Schema != nil),
		),
	)
	defer span.End()

	rc.LogDebug("runner.model.call", "agent", a.Name(), "model", modelName, "call", rc.Limiter.Count())

	start := time.Now()
	resp, err := r.backend.Generate(ctx, req)
	elapsed := time.Since(start)

	if err == nil && resp == nil {
		err = errors.New("backend returned no response")
	}

	r.hooks.OnModelCall(rc, a.Name(), modelName, elapsed, err)

	if err != nil {
		err = model.WrapError(ctx, info.Provider, 0, err)

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		rc.LogWarn("runner.model.error", "agent", a.Name(), "model", modelName, "retryable", core.IsRetryable(err), "error", err)

		return nil, fmt.Errorf("agent %s: %w", a.Name(), err)
	}

	if resp.Usage != nil {
		span.SetAttributes(
			attribute.Int("agentrelay.usage.prompt_tokens", resp.Usage.PromptTokens),
			attribute.Int("agentrelay.usage.completion_tokens", resp.Usage.CompletionTokens),
		)
	}

	rc.LogDebug("runner.model.done", "agent", a.Name(), "model", modelName, "duration", elapsed, "handoffs", len(resp.Handoffs))

	return resp, nil
}

// decide turns a backend response into a tagged decision. An agent with
// handoff targets must select exactly one of them; an agent without targets
// must not select any.
func decide(a *agent.Agent, resp *model.Response) (core.Decision, error) {
	selected := resp.Handoffs

	if !a.HasHandoffs() {
		if len(selected) > 0 {
			return core.Decision{}, &core.DelegationError{Agent: a.Name(), Selected: selected, Reason: "agent has no handoff targets"}
		}

		return core.Final(resp.Text), nil
	}

	switch len(selected) {
	case 0:
		return core.Decision{}, &core.DelegationError{Agent: a.Name(), Reason: "no handoff target selected"}
	case 1:
		if _, ok := a.FindHandoff(selected[0]); !ok {
			return core.Decision{}, &core.DelegationError{Agent: a.Name(), Selected: selected, Reason: "unknown handoff target"}
		}

		return core.Handoff(selected[0], resp.Text), nil
	default:
		return core.Decision{}, &core.DelegationError{Agent: a.Name(), Selected: selected, Reason: "multiple handoff targets selected"}
	}
}

func finalize(rc *core.RunContext, a *agent.Agent, text string, path []string) (*core.RunResult, error) {
	res := &core.RunResult{
		Agent: a.Name(),
		Text:  text,
		Path:  path,
		RunID: rc.RunID,
	}

	if s := a.OutputSchema(); s != nil {
		out, err := schema.Validate(text, s)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.Name(), err)
		}

		res.Output = out
	}

	return res, nil
}

var _ guardrail.Runner = (*Runner)(nil)
