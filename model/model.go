package model

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/schema"
)

// HandoffOption describes an agent the current agent may delegate to.
type HandoffOption struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Request captures the normalized input of a single agent turn.
type Request struct {
	Agent        string          `json:"agent"`        // Name of the agent issuing the call
	Model        string          `json:"model"`        // Provider model identifier; empty uses the adapter default
	Instructions string          `json:"instructions"` // System prompt
	Input        string          `json:"input"`        // User turn
	Schema       *schema.Schema  `json:"-"`            // Requested structured output; nil for free text
	Handoffs     []HandoffOption `json:"handoffs,omitempty"`
	Timeout      time.Duration   `json:"timeout,omitempty"` // Per-call timeout; zero means none
}

// Usage captures token usage statistics for a response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the final output of a single Generate call.
type Response struct {
	Text         string   `json:"text"`
	Handoffs     []string `json:"handoffs,omitempty"` // Selected handoff target agent names
	FinishReason string   `json:"finish_reason,omitempty"`
	Usage        *Usage   `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name           string `json:"name"`
	Provider       string `json:"provider"` // "openai", "anthropic", "bedrock", "gemini", "mock"
	SupportsTools  bool   `json:"supports_tools"`
	SupportsSchema bool   `json:"supports_schema"` // Native constrained decoding
}

// Model is the minimal interface required by the runner to drive generation.
// Implementations must be safe for concurrent use.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// WithTimeout derives a context bounded by req.Timeout when it is set.
func WithTimeout(ctx context.Context, req Request) (context.Context, context.CancelFunc) {
	if req.Timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, req.Timeout)
}

// ModelOrDefault returns req.Model, or def when the request leaves it empty.
func (r Request) ModelOrDefault(def string) string {
	if r.Model != "" {
		return r.Model
	}

	return def
}

// WrapError converts an adapter failure into a *core.BackendError. When ctx
// expired the error is marked retryable regardless of how the transport
// reported it.
func WrapError(ctx context.Context, provider string, statusCode int, err error) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}

	return core.NewBackendError(provider, statusCode, err)
}

// SystemPrompt returns the request instructions, extended with the output
// schema description for backends without native constrained decoding.
func SystemPrompt(req Request) string {
	if req.Schema == nil {
		return req.Instructions
	}

	if req.Instructions == "" {
		return req.Schema.Instructions()
	}

	return req.Instructions + "\n\n" + req.Schema.Instructions()
}
