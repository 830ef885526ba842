package config

import (
	"fmt"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/guardrail"
	"github.com/hupe1980/agentrelay/runner"
	"github.com/hupe1980/agentrelay/workflow"
)

// Workflow is the agent graph built from a Config.
type Workflow struct {
	// Entry is the agent every run starts with.
	Entry *agent.Agent
	// Resume is the agent re-run after clarification; nil when not configured.
	Resume *agent.Agent

	agents map[string]*agent.Agent
	order  []string
}

// Agent returns the agent with the given name.
func (w *Workflow) Agent(name string) (*agent.Agent, bool) {
	a, ok := w.agents[name]
	return a, ok
}

// Agents returns all agents in declaration order.
func (w *Workflow) Agents() []*agent.Agent {
	out := make([]*agent.Agent, 0, len(w.order))
	for _, name := range w.order {
		out = append(out, w.agents[name])
	}

	return out
}

// Build constructs the agent graph. Agents are created first, with
// guardrail classifiers created before the agents they protect; handoffs
// are linked by name in a second pass, so delegation cycles are allowed.
// Guardrail references must not form a cycle.
func (c *Config) Build(r guardrail.Runner) (*Workflow, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	decls := make(map[string]AgentConfig, len(c.Agents))
	for _, ac := range c.Agents {
		decls[ac.Name] = ac
	}

	b := &builder{
		runner:   r,
		decls:    decls,
		agents:   make(map[string]*agent.Agent, len(c.Agents)),
		visiting: map[string]bool{},
	}

	for _, ac := range c.Agents {
		if _, err := b.build(ac.Name); err != nil {
			return nil, err
		}
	}

	for _, ac := range c.Agents {
		if len(ac.Handoffs) == 0 {
			continue
		}

		targets := make([]*agent.Agent, 0, len(ac.Handoffs))
		for _, h := range ac.Handoffs {
			targets = append(targets, b.agents[h])
		}

		if err := b.agents[ac.Name].SetHandoffs(targets...); err != nil {
			return nil, fmt.Errorf("agent %q: %w", ac.Name, err)
		}
	}

	w := &Workflow{
		Entry:  b.agents[c.Entry],
		agents: b.agents,
	}

	if c.Resume != "" {
		w.Resume = b.agents[c.Resume]
	}

	for _, ac := range c.Agents {
		w.order = append(w.order, ac.Name)
	}

	return w, nil
}

type builder struct {
	runner   guardrail.Runner
	decls    map[string]AgentConfig
	agents   map[string]*agent.Agent
	visiting map[string]bool
}

func (b *builder) build(name string) (*agent.Agent, error) {
	if a, ok := b.agents[name]; ok {
		return a, nil
	}

	if b.visiting[name] {
		return nil, fmt.Errorf("agent %q: guardrail references form a cycle", name)
	}

	b.visiting[name] = true
	defer delete(b.visiting, name)

	ac := b.decls[name]

	var optFns []func(o *agent.Options)

	optFns = append(optFns, agent.WithDescription(ac.Description), agent.WithModel(ac.Model))

	if ac.Instructions != "" {
		instr, err := agent.NewInstructionFromTemplate(ac.Instructions)
		if err != nil {
			return nil, fmt.Errorf("agent %q: instructions: %w", name, err)
		}

		optFns = append(optFns, func(o *agent.Options) { o.Instruction = instr })
	}

	if ac.Output != nil {
		s, err := ac.Output.Schema(name)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", name, err)
		}

		optFns = append(optFns, agent.WithOutputSchema(s))
	}

	guardrails := make([]core.Guardrail, 0, len(ac.Guardrails))

	for i, gc := range ac.Guardrails {
		g, err := b.guardrail(gc)
		if err != nil {
			return nil, fmt.Errorf("agent %q: guardrail %d: %w", name, i, err)
		}

		guardrails = append(guardrails, g)
	}

	if len(guardrails) > 0 {
		optFns = append(optFns, agent.WithGuardrails(guardrails...))
	}

	a := agent.New(name, optFns...)
	b.agents[name] = a

	return a, nil
}

func (b *builder) guardrail(gc GuardrailConfig) (core.Guardrail, error) {
	switch {
	case gc.MaxLength > 0:
		return named(gc.Name, guardrail.MaxLength(gc.MaxLength)), nil
	case len(gc.BlockKeywords) > 0:
		return named(gc.Name, guardrail.BlockKeywords(gc.BlockKeywords...)), nil
	}

	classifier, err := b.build(gc.Agent)
	if err != nil {
		return nil, err
	}

	if b.runner == nil {
		return nil, fmt.Errorf("agent guardrail %q requires a runner", gc.Agent)
	}

	var decide guardrail.Decide

	switch {
	case gc.TripWhen != nil:
		decide = guardrail.TripWhen(gc.TripWhen.Field, gc.TripWhen.Equals)
	case gc.TripUnless != nil:
		decide = guardrail.TripUnless(gc.TripUnless.Field, gc.TripUnless.Equals)
	default:
		decide = workflow.NeedsClarification
	}

	name := gc.Name
	if name == "" {
		name = gc.Agent
	}

	return guardrail.NewAgentGuardrail(name, classifier, b.runner, decide), nil
}

// named overrides the verdict name of a local guardrail.
func named(name string, g core.Guardrail) core.Guardrail {
	if name == "" {
		return g
	}

	return guardrail.Func(name, func(rc *core.RunContext, input string) (core.Verdict, error) {
		v, err := g.Check(rc, input)
		if err != nil || !v.TripwireTriggered {
			return v, err
		}

		v.Guardrail = name

		return v, nil
	})
}

// RunnerOptions applies the configured limits. The backend timeout is used
// as call timeout when the runner section leaves it unset.
func (c *Config) RunnerOptions(o *runner.Options) {
	o.MaxModelCalls = c.Runner.MaxModelCalls
	o.CallTimeout = c.Runner.CallTimeout

	if o.CallTimeout == 0 {
		o.CallTimeout = c.Backend.Timeout
	}
}
