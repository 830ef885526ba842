// Package core provides the foundational domain types, interfaces and execution
// contexts shared by every agentrelay package. It defines:
//
//   - RunContext (per-run cancellation, identifiers, caller data, branch label, logger)
//   - RunResult (the terminal outcome of a run including the delegation path)
//   - Decision (the tagged final/handoff outcome of a single agent turn)
//   - Guardrail and Verdict (admission checks and their tagged result)
//   - ModelLimiter (optional per-run budget on backend calls)
//   - The error taxonomy (guardrail trips, validation, backend, delegation)
//
// The package keeps orchestration, persistence and transport out of scope and
// only exposes small types so that runner, guardrail and workflow packages can
// share them without import cycles.
package core
