// Package guardrail evaluates admission checks that run before an agent's
// own model call.
//
// Guardrails are evaluated in declared order and evaluation stops at the
// first verdict with TripwireTriggered set. A guardrail failure (as opposed
// to a trip) is propagated to the caller and never treated as a pass.
//
// Three kinds of guardrails are provided:
//
//   - Func adapts a plain function
//   - AgentGuardrail runs a classifier agent through the runner and decides
//     from its structured output (see TripWhen)
//   - MaxLength and BlockKeywords are local checks that need no model call
package guardrail
