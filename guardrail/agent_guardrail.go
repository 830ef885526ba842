package guardrail

import (
	"fmt"
	"reflect"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
)

// Runner runs an agent inside an existing RunContext. *runner.Runner
// implements it.
type Runner interface {
	RunWith(rc *core.RunContext, a *agent.Agent, input string) (*core.RunResult, error)
}

// Decide maps the classifier's result to a trip decision.
type Decide func(result *core.RunResult) (bool, error)

// AgentGuardrail classifies the input with a nested agent run.
type AgentGuardrail struct {
	name       string
	classifier *agent.Agent
	runner     Runner
	decide     Decide
}

// NewAgentGuardrail creates a guardrail that runs classifier on the input in
// the caller's RunContext and trips when decide returns true. The verdict's
// OutputInfo is the classifier's structured output, or its text when it has
// no schema.
func NewAgentGuardrail(name string, classifier *agent.Agent, runner Runner, decide Decide) *AgentGuardrail {
	return &AgentGuardrail{name: name, classifier: classifier, runner: runner, decide: decide}
}

// Name returns the guardrail name.
func (g *AgentGuardrail) Name() string { return g.name }

// Classifier returns the agent used for classification.
func (g *AgentGuardrail) Classifier() *agent.Agent { return g.classifier }

// Check runs the classifier and applies the decide function.
func (g *AgentGuardrail) Check(rc *core.RunContext, input string) (core.Verdict, error) {
	res, err := g.runner.RunWith(rc, g.classifier, input)
	if err != nil {
		return core.Verdict{}, fmt.Errorf("classifier %s: %w", g.classifier.Name(), err)
	}

	trip, err := g.decide(res)
	if err != nil {
		return core.Verdict{}, err
	}

	var info any = res.Text
	if res.Output != nil {
		info = res.Output
	}

	if trip {
		return core.Trip(g.name, info), nil
	}

	return core.Verdict{OutputInfo: info}, nil
}

// TripWhen returns a Decide that trips when the structured output field
// equals value. Numbers are compared by value regardless of Go type.
func TripWhen(field string, value any) Decide {
	return func(res *core.RunResult) (bool, error) {
		got, err := outputField(res, field)
		if err != nil {
			return false, err
		}

		return looseEqual(got, value), nil
	}
}

// TripUnless returns a Decide that trips when the structured output field
// does not equal value.
func TripUnless(field string, value any) Decide {
	eq := TripWhen(field, value)

	return func(res *core.RunResult) (bool, error) {
		trip, err := eq(res)
		return !trip, err
	}
}

func outputField(res *core.RunResult, field string) (any, error) {
	out, ok := res.Output.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("classifier %s produced no structured output", res.Agent)
	}

	v, ok := out[field]
	if !ok {
		return nil, fmt.Errorf("classifier %s output has no field %q", res.Agent, field)
	}

	return v, nil
}

func looseEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}

	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
