// Package runner implements the orchestration engine for agentrelay.
//
// A Runner drives one agent turn at a time:
//
//  1. The agent's guardrails are evaluated in order; the first trip ends the
//     run with *core.GuardrailTrippedError before any model call for that
//     agent happens.
//  2. The instruction is resolved, the run's ModelLimiter is incremented and
//     the backend is called once.
//  3. The response becomes a core.Decision. A handoff recurses into the
//     selected target with the same input and RunContext; a final answer is
//     validated against the agent's output schema.
//
// Hooks observe every step and feed the journal and metrics packages.
// Spans are emitted through OpenTelemetry for agent runs and backend calls.
//
// Run blocks; RunAsync returns a future-like pair of channels. RunWith
// continues an existing RunContext and is used by agent-backed guardrails
// and fan-out branches.
package runner
