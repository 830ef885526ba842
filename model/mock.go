package model

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockReply is one scripted outcome of a MockModel call.
type MockReply struct {
	Text     string
	Handoffs []string // agent names; unknown names pass through unchanged
	Err      error
	Delay    time.Duration
}

// Reply returns a scripted text reply.
func Reply(text string) MockReply { return MockReply{Text: text} }

// HandoffTo returns a scripted reply selecting the given agents.
func HandoffTo(agents ...string) MockReply { return MockReply{Handoffs: agents} }

// Fail returns a scripted reply failing with err.
func Fail(err error) MockReply { return MockReply{Err: err} }

// MockModel is a lightweight in-memory Model useful for tests & examples.
//
// Replies are scripted per agent name and consumed in order; the last reply
// repeats once the script is exhausted. Agents without a script fall back to
// the responder, or to an echo of the input.
type MockModel struct {
	info    Info
	latency time.Duration

	mu        sync.Mutex
	scripts   map[string][]MockReply
	responder func(Request) (*Response, error)
	calls     map[string]int
	requests  []Request
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:           name,
			Provider:       provider,
			SupportsTools:  true,
			SupportsSchema: true,
		},
		scripts: make(map[string][]MockReply),
		calls:   make(map[string]int),
	}
}

// On appends replies to the script of agent.
func (m *MockModel) On(agent string, replies ...MockReply) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scripts[agent] = append(m.scripts[agent], replies...)

	return m
}

// SetResponder installs a fallback for agents without a script.
func (m *MockModel) SetResponder(fn func(Request) (*Response, error)) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responder = fn

	return m
}

// SetLatency delays every call by d, honoring context cancellation.
func (m *MockModel) SetLatency(d time.Duration) *MockModel {
	m.latency = d
	return m
}

// Calls returns how many times agent invoked the model.
func (m *MockModel) Calls(agent string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[agent]
}

// TotalCalls returns the number of Generate invocations across all agents.
func (m *MockModel) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}

// Requests returns a copy of every request received, in arrival order.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Request(nil), m.requests...)
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	reply, responder, scripted := m.next(req)

	ctx, cancel := WithTimeout(ctx, req)
	defer cancel()

	if d := m.latency + reply.Delay; d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case scripted:
		if reply.Err != nil {
			return nil, reply.Err
		}

		return &Response{Text: reply.Text, Handoffs: reply.Handoffs, FinishReason: "stop"}, nil
	case responder != nil:
		return responder(req)
	default:
		return &Response{Text: fmt.Sprintf("Mock response to: %s", req.Input), FinishReason: "stop"}, nil
	}
}

func (m *MockModel) next(req Request) (MockReply, func(Request) (*Response, error), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[req.Agent]++
	m.requests = append(m.requests, req)

	script := m.scripts[req.Agent]
	if len(script) == 0 {
		return MockReply{}, m.responder, false
	}

	reply := script[0]
	if len(script) > 1 {
		m.scripts[req.Agent] = script[1:]
	}

	return reply, nil, true
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
