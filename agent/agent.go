package agent

import (
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/schema"
)

// Options configures an Agent.
type Options struct {
	// Description is shown to agents that may hand off to this one.
	Description string
	// Instruction is the system prompt of the agent.
	Instruction Instruction
	// OutputSchema makes the agent produce structured output. Nil means free text.
	OutputSchema *schema.Schema
	// Handoffs lists the agents this agent may delegate to, in order.
	Handoffs []*Agent
	// Guardrails run in order before the agent's own model call.
	Guardrails []core.Guardrail
	// Model is the backend model identifier; empty uses the backend default.
	Model string
}

// Agent is an immutable, independently prompted LLM participant.
type Agent struct {
	name         string
	description  string
	instruction  Instruction
	outputSchema *schema.Schema
	guardrails   []core.Guardrail
	model        string

	mu       sync.RWMutex
	handoffs []*Agent
}

// New creates an agent. The default instruction introduces the agent by name.
func New(name string, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Instruction: NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Agent{
		name:         name,
		description:  opts.Description,
		instruction:  opts.Instruction,
		outputSchema: opts.OutputSchema,
		guardrails:   slices.Clone(opts.Guardrails),
		model:        opts.Model,
		handoffs:     slices.Clone(opts.Handoffs),
	}
}

// WithInstructions sets a static instruction.
func WithInstructions(text string) func(o *Options) {
	return func(o *Options) { o.Instruction = NewInstructionFromText(text) }
}

// WithDescription sets the handoff description.
func WithDescription(desc string) func(o *Options) {
	return func(o *Options) { o.Description = desc }
}

// WithOutputSchema sets the structured output contract.
func WithOutputSchema(s *schema.Schema) func(o *Options) {
	return func(o *Options) { o.OutputSchema = s }
}

// WithHandoffs sets the delegation targets.
func WithHandoffs(targets ...*Agent) func(o *Options) {
	return func(o *Options) { o.Handoffs = targets }
}

// WithGuardrails sets the admission guardrails.
func WithGuardrails(gs ...core.Guardrail) func(o *Options) {
	return func(o *Options) { o.Guardrails = gs }
}

// WithModel sets the backend model identifier.
func WithModel(id string) func(o *Options) {
	return func(o *Options) { o.Model = id }
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Description returns the handoff description.
func (a *Agent) Description() string { return a.description }

// Model returns the backend model identifier.
func (a *Agent) Model() string { return a.model }

// OutputSchema returns the structured output contract, or nil for free text.
func (a *Agent) OutputSchema() *schema.Schema { return a.outputSchema }

// Guardrails returns a copy of the guardrails in evaluation order.
func (a *Agent) Guardrails() []core.Guardrail { return slices.Clone(a.guardrails) }

// Handoffs returns a copy of the delegation targets.
func (a *Agent) Handoffs() []*Agent {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return slices.Clone(a.handoffs)
}

// HasHandoffs reports whether the agent may delegate.
func (a *Agent) HasHandoffs() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return len(a.handoffs) > 0
}

// FindHandoff returns the delegation target with the given name.
func (a *Agent) FindHandoff(name string) (*Agent, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, h := range a.handoffs {
		if h.name == name {
			return h, true
		}
	}

	return nil, false
}

// SetHandoffs replaces the delegation targets. Targets may include the agent
// itself or agents that hand back to it. Duplicate names are rejected.
func (a *Agent) SetHandoffs(targets ...*Agent) error {
	seen := make(map[string]struct{}, len(targets))

	for _, t := range targets {
		if t == nil {
			return fmt.Errorf("agent %s: nil handoff target", a.name)
		}

		if _, dup := seen[t.name]; dup {
			return fmt.Errorf("agent %s: duplicate handoff target %s", a.name, t.name)
		}

		seen[t.name] = struct{}{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.handoffs = slices.Clone(targets)

	return nil
}

// HandoffOptions describes the delegation targets for the backend.
func (a *Agent) HandoffOptions() []model.HandoffOption {
	a.mu.RLock()
	defer a.mu.RUnlock()

	opts := make([]model.HandoffOption, 0, len(a.handoffs))
	for _, h := range a.handoffs {
		opts = append(opts, model.HandoffOption{Name: h.name, Description: h.description})
	}

	return opts
}

// ResolveInstructions produces the system prompt for input.
func (a *Agent) ResolveInstructions(rc *core.RunContext, input string) (string, error) {
	return a.instruction.Resolve(rc, input)
}

// Clone returns a new agent starting from this agent's options with
// optFns applied on top.
func (a *Agent) Clone(name string, optFns ...func(o *Options)) *Agent {
	base := func(o *Options) {
		o.Description = a.description
		o.Instruction = a.instruction
		o.OutputSchema = a.outputSchema
		o.Handoffs = a.Handoffs()
		o.Guardrails = a.guardrails
		o.Model = a.model
	}

	return New(name, append([]func(o *Options){base}, optFns...)...)
}
