package guardrail

import (
	"fmt"

	"github.com/hupe1980/agentrelay/core"
)

// Evaluate runs guardrails in order against input. It returns the first
// tripping verdict, or core.Pass() when none trip. Errors are wrapped with
// the failing guardrail's name.
func Evaluate(rc *core.RunContext, guardrails []core.Guardrail, input string) (core.Verdict, error) {
	for _, g := range guardrails {
		if err := rc.Err(); err != nil {
			return core.Verdict{}, err
		}

		v, err := g.Check(rc, input)
		if err != nil {
			rc.LogError("guardrail.check.error", "guardrail", g.Name(), "error", err.Error())

			return core.Verdict{}, fmt.Errorf("guardrail %s: %w", g.Name(), err)
		}

		if v.TripwireTriggered {
			if v.Guardrail == "" {
				v.Guardrail = g.Name()
			}

			rc.LogInfo("guardrail.tripped", "guardrail", v.Guardrail, "run", rc.RunID)

			return v, nil
		}

		rc.LogDebug("guardrail.passed", "guardrail", g.Name())
	}

	return core.Pass(), nil
}

type funcGuardrail struct {
	name string
	fn   func(rc *core.RunContext, input string) (core.Verdict, error)
}

// Func adapts fn into a named guardrail.
func Func(name string, fn func(rc *core.RunContext, input string) (core.Verdict, error)) core.Guardrail {
	return &funcGuardrail{name: name, fn: fn}
}

func (g *funcGuardrail) Name() string { return g.name }

func (g *funcGuardrail) Check(rc *core.RunContext, input string) (core.Verdict, error) {
	return g.fn(rc, input)
}
