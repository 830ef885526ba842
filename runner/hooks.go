package runner

import (
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// Hooks observes the lifecycle of a run. Hooks are called synchronously on
// the goroutine executing the agent, so implementations must be safe for
// concurrent use when the runner serves fan-out branches.
//
// Hook points:
//   - OnAgentStart: before an agent's guardrails are evaluated
//   - OnGuardrail: after guardrail evaluation, with the resulting verdict
//   - OnModelCall: after each backend call, successful or not
//   - OnHandoff: when an agent delegates to a target
//   - OnAgentEnd: when an agent finishes, with the result the caller sees
type Hooks interface {
	OnAgentStart(rc *core.RunContext, agent, input string)
	OnGuardrail(rc *core.RunContext, agent string, verdict core.Verdict)
	OnModelCall(rc *core.RunContext, agent, model string, d time.Duration, err error)
	OnHandoff(rc *core.RunContext, from, to string)
	OnAgentEnd(rc *core.RunContext, agent string, result *core.RunResult, err error)
}

// NoopHooks implements Hooks with empty methods. Embed it to override only
// the hook points of interest.
type NoopHooks struct{}

func (NoopHooks) OnAgentStart(*core.RunContext, string, string)                      {}
func (NoopHooks) OnGuardrail(*core.RunContext, string, core.Verdict)                 {}
func (NoopHooks) OnModelCall(*core.RunContext, string, string, time.Duration, error) {}
func (NoopHooks) OnHandoff(*core.RunContext, string, string)                         {}
func (NoopHooks) OnAgentEnd(*core.RunContext, string, *core.RunResult, error)        {}

// HookFuncs adapts plain functions to Hooks. Nil fields are skipped.
//
// Example:
//
//	hooks := runner.HookFuncs{
//	    Handoff: func(rc *core.RunContext, from, to string) {
//	        log.Printf("%s -> %s", from, to)
//	    },
//	}
type HookFuncs struct {
	AgentStart func(rc *core.RunContext, agent, input string)
	Guardrail  func(rc *core.RunContext, agent string, verdict core.Verdict)
	ModelCall  func(rc *core.RunContext, agent, model string, d time.Duration, err error)
	Handoff    func(rc *core.RunContext, from, to string)
	AgentEnd   func(rc *core.RunContext, agent string, result *core.RunResult, err error)
}

func (h HookFuncs) OnAgentStart(rc *core.RunContext, agent, input string) {
	if h.AgentStart != nil {
		h.AgentStart(rc, agent, input)
	}
}

func (h HookFuncs) OnGuardrail(rc *core.RunContext, agent string, verdict core.Verdict) {
	if h.Guardrail != nil {
		h.Guardrail(rc, agent, verdict)
	}
}

func (h HookFuncs) OnModelCall(rc *core.RunContext, agent, model string, d time.Duration, err error) {
	if h.ModelCall != nil {
		h.ModelCall(rc, agent, model, d, err)
	}
}

func (h HookFuncs) OnHandoff(rc *core.RunContext, from, to string) {
	if h.Handoff != nil {
		h.Handoff(rc, from, to)
	}
}

func (h HookFuncs) OnAgentEnd(rc *core.RunContext, agent string, result *core.RunResult, err error) {
	if h.AgentEnd != nil {
		h.AgentEnd(rc, agent, result, err)
	}
}

// hookChain fans every hook point out to the registered hooks in
// registration order.
type hookChain []Hooks

func (c hookChain) OnAgentStart(rc *core.RunContext, agent, input string) {
	for _, h := range c {
		h.OnAgentStart(rc, agent, input)
	}
}

func (c hookChain) OnGuardrail(rc *core.RunContext, agent string, verdict core.Verdict) {
	for _, h := range c {
		h.OnGuardrail(rc, agent, verdict)
	}
}

func (c hookChain) OnModelCall(rc *core.RunContext, agent, model string, d time.Duration, err error) {
	for _, h := range c {
		h.OnModelCall(rc, agent, model, d, err)
	}
}

func (c hookChain) OnHandoff(rc *core.RunContext, from, to string) {
	for _, h := range c {
		h.OnHandoff(rc, from, to)
	}
}

func (c hookChain) OnAgentEnd(rc *core.RunContext, agent string, result *core.RunResult, err error) {
	for _, h := range c {
		h.OnAgentEnd(rc, agent, result, err)
	}
}

var (
	_ Hooks = NoopHooks{}
	_ Hooks = HookFuncs{}
	_ Hooks = hookChain(nil)
)
