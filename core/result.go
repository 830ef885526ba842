package core

import (
	"encoding/json"
	"fmt"
)

// DecisionKind tags a Decision.
type DecisionKind int

const (
	// DecisionFinal means the agent answered and the run terminates with it.
	DecisionFinal DecisionKind = iota
	// DecisionHandoff means the agent delegated the run to Target.
	DecisionHandoff
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionFinal:
		return "final"
	case DecisionHandoff:
		return "handoff"
	default:
		return "unknown"
	}
}

// Decision is the outcome of a single agent turn.
type Decision struct {
	Kind   DecisionKind
	Text   string
	Target string
}

// Final returns a terminal decision carrying the raw model text.
func Final(text string) Decision { return Decision{Kind: DecisionFinal, Text: text} }

// Handoff returns a decision delegating to target.
func Handoff(target, text string) Decision {
	return Decision{Kind: DecisionHandoff, Target: target, Text: text}
}

// Verdict is the result of evaluating guardrails. Guardrail is empty when
// nothing tripped.
type Verdict struct {
	Guardrail         string
	OutputInfo        any
	TripwireTriggered bool
}

// Pass returns a verdict admitting the input.
func Pass() Verdict { return Verdict{} }

// Trip returns a verdict rejecting the input on behalf of guardrail.
func Trip(guardrail string, info any) Verdict {
	return Verdict{Guardrail: guardrail, OutputInfo: info, TripwireTriggered: true}
}

// Guardrail decides whether an agent may process an input.
// Implementations must be safe for concurrent use.
type Guardrail interface {
	Name() string
	Check(rc *RunContext, input string) (Verdict, error)
}

// RunResult is the terminal outcome of a run.
type RunResult struct {
	// Agent is the name of the agent whose decision terminated the run.
	Agent string
	// Output is the validated structured output, or nil for free text agents.
	Output any
	// Text is the raw model text of the terminating agent.
	Text string
	// Path lists the agents visited, root first.
	Path []string
	RunID string
}

// FinalOutputAs decodes the structured output into v. For free text
// results v must be a *string and receives Text.
func (r *RunResult) FinalOutputAs(v any) error {
	if r.Output == nil {
		s, ok := v.(*string)
		if !ok {
			return fmt.Errorf("agent %s produced free text, cannot decode into %T", r.Agent, v)
		}

		*s = r.Text

		return nil
	}

	data, err := json.Marshal(r.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode output into %T: %w", v, err)
	}

	return nil
}
