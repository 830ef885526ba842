package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/runner"
	"github.com/hupe1980/agentrelay/schema"
)

// Critique is the structured verdict a critic agent returns for a draft.
type Critique struct {
	Ready    bool   `json:"ready" description:"True when the draft needs no further changes"`
	Feedback string `json:"feedback" description:"Concrete, actionable suggestions for the next revision"`
}

// CritiqueSchema is the output schema every critic agent must carry.
var CritiqueSchema = schema.MustFor[Critique]("Critique").
	WithDescription("Review verdict for a draft")

// RefineOptions configures Refine.
type RefineOptions struct {
	// MaxAttempts bounds the number of produce and critique cycles. Values
	// below 1 are treated as 1.
	MaxAttempts int
	// Review builds the critic input from the original request and draft.
	Review func(original, artifact string) string
	// Improve builds the producer input for the next attempt.
	Improve func(original, artifact, feedback string) string
	// RunContext shares one run id and model call budget across all attempts.
	// Nil creates one from the runner.
	RunContext *core.RunContext
}

// RefineResult is the outcome of a refinement loop.
type RefineResult struct {
	Artifact string
	Attempts int
	Ready    bool
	Feedback string
}

// DefaultReview renders the critic input.
func DefaultReview(original, artifact string) string {
	var b strings.Builder

	b.WriteString("Original request:\n")
	b.WriteString(original)
	b.WriteString("\n\nDraft to review:\n")
	b.WriteString(artifact)

	return b.String()
}

// DefaultImprove renders the producer input for a revision.
func DefaultImprove(original, artifact, feedback string) string {
	var b strings.Builder

	b.WriteString("Original request:\n")
	b.WriteString(original)
	b.WriteString("\n\nPrevious draft:\n")
	b.WriteString(artifact)
	b.WriteString("\n\nReviewer feedback:\n")
	b.WriteString(feedback)
	b.WriteString("\n\nRevise the draft to address the feedback.")

	return b.String()
}

// Refine alternates between producer and critic until the critic marks the
// artifact ready or MaxAttempts cycles have run.
//
// States: Produce -> Critique -> {Done, Improve -> Produce}. Exhausting the
// budget is not an error; the last artifact is returned with Ready=false.
// Producer and critic errors propagate unchanged.
func Refine(ctx context.Context, r Runner, producer, critic *agent.Agent, input string, optFns ...func(o *RefineOptions)) (*RefineResult, error) {
	opts := RefineOptions{
		MaxAttempts: 3,
		Review:      DefaultReview,
		Improve:     DefaultImprove,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if producer == nil || critic == nil {
		return nil, errors.New("refine: producer and critic are required")
	}

	if critic.OutputSchema() == nil {
		return nil, fmt.Errorf("refine: critic %s must carry an output schema", critic.Name())
	}

	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}

	rc := runContext(ctx, r, opts.RunContext)
	res := &RefineResult{}
	next := input

	for res.Attempts < opts.MaxAttempts {
		res.Attempts++

		draft, err := r.Run(ctx, producer, next, runner.WithRunContext(rc))
		if err != nil {
			return nil, fmt.Errorf("refine attempt %d: producer %s: %w", res.Attempts, producer.Name(), err)
		}

		res.Artifact = draft.Text

		review, err := r.Run(ctx, critic, opts.Review(input, res.Artifact), runner.WithRunContext(rc))
		if err != nil {
			return nil, fmt.Errorf("refine attempt %d: critic %s: %w", res.Attempts, critic.Name(), err)
		}

		var c Critique
		if err := review.FinalOutputAs(&c); err != nil {
			return nil, fmt.Errorf("refine attempt %d: decode critique: %w", res.Attempts, err)
		}

		res.Ready = c.Ready
		res.Feedback = c.Feedback

		rc.LogDebug("workflow.refine.attempt", "producer", producer.Name(), "attempt", res.Attempts, "ready", c.Ready)

		if c.Ready {
			return res, nil
		}

		next = opts.Improve(input, res.Artifact, c.Feedback)
	}

	rc.LogInfo("workflow.refine.exhausted", "producer", producer.Name(), "attempts", res.Attempts)

	return res, nil
}
