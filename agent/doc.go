// Package agent defines the immutable agent definition used by the runner.
//
// An Agent bundles everything a single LLM turn needs:
//
//  1. Identity (unique name plus a handoff description shown to delegating agents)
//  2. Instruction (static text, a text/template over run values, or a function)
//  3. Output contract (optional *schema.Schema; nil means free text)
//  4. Delegation targets (ordered handoffs) and admission guardrails
//  5. The model identifier passed to the backend
//
// Agents are built with New and functional options and are safe for
// concurrent use. SetHandoffs exists so that delegation graphs containing
// cycles can be closed after every node has been constructed.
package agent
