// Package workflow composes runner calls into multi-step workflows.
//
// Refine runs a bounded produce, critique and improve loop between a
// producer and a critic agent. FanOut runs independent tasks concurrently
// and joins their results in task order. RunWithClarification asks the
// user follow-up questions when an entry agent requests them and re-runs a
// resume agent with the augmented input.
package workflow
