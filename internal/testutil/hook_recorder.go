package testutil

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// HookRecorder captures runner lifecycle callbacks as compact strings such
// as "start:Triage", "handoff:Triage->Math" or "end:Math". It satisfies
// runner.Hooks and is safe for concurrent use.
type HookRecorder struct {
	mu     sync.Mutex
	events []string
}

// NewHookRecorder returns an empty recorder.
func NewHookRecorder() *HookRecorder { return &HookRecorder{} }

func (h *HookRecorder) add(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, fmt.Sprintf(format, args...))
}

// Events returns a copy of the recorded events in call order.
func (h *HookRecorder) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return slices.Clone(h.events)
}

// Count returns how often the given event string was recorded.
func (h *HookRecorder) Count(event string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0

	for _, e := range h.events {
		if e == event {
			n++
		}
	}

	return n
}

func (h *HookRecorder) OnAgentStart(_ *core.RunContext, agent, _ string) {
	h.add("start:%s", agent)
}

func (h *HookRecorder) OnGuardrail(_ *core.RunContext, agent string, v core.Verdict) {
	if v.TripwireTriggered {
		h.add("trip:%s:%s", agent, v.Guardrail)
		return
	}

	h.add("pass:%s", agent)
}

func (h *HookRecorder) OnModelCall(_ *core.RunContext, agent, _ string, _ time.Duration, err error) {
	if err != nil {
		h.add("model-error:%s", agent)
		return
	}

	h.add("model:%s", agent)
}

func (h *HookRecorder) OnHandoff(_ *core.RunContext, from, to string) {
	h.add("handoff:%s->%s", from, to)
}

func (h *HookRecorder) OnAgentEnd(_ *core.RunContext, agent string, _ *core.RunResult, err error) {
	if err != nil {
		h.add("error:%s", agent)
		return
	}

	h.add("end:%s", agent)
}
