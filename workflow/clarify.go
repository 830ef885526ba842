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

// NoPreference replaces blank clarification answers.
const NoPreference = "No specific preference."

// Clarifications is the structured output of a clarifying agent.
type Clarifications struct {
	Questions []string `json:"questions" description:"Follow-up questions for the user"`
}

// ClarificationsSchema is the output schema of clarifying agents and
// clarifying guardrail classifiers.
var ClarificationsSchema = schema.MustFor[Clarifications]("Clarifications").
	WithDescription("Questions that must be answered before the request can be handled")

// Clarifier obtains answers to clarification questions, typically from a
// human. Answers are matched to questions by index.
type Clarifier interface {
	Answer(ctx context.Context, questions []string) ([]string, error)
}

// ClarifierFunc adapts a function to Clarifier.
type ClarifierFunc func(ctx context.Context, questions []string) ([]string, error)

// Answer implements Clarifier.
func (f ClarifierFunc) Answer(ctx context.Context, questions []string) ([]string, error) {
	return f(ctx, questions)
}

// StaticClarifier answers with a fixed list, e.g. in tests or batch jobs.
type StaticClarifier []string

// Answer implements Clarifier.
func (s StaticClarifier) Answer(_ context.Context, questions []string) ([]string, error) {
	answers := make([]string, len(questions))
	copy(answers, s)

	return answers, nil
}

// Augment appends the answered questions to query. Blank or missing answers
// become NoPreference.
func Augment(query string, questions, answers []string) string {
	replies := make([]string, len(questions))

	for i, q := range questions {
		answer := ""
		if i < len(answers) {
			answer = strings.TrimSpace(answers[i])
		}

		if answer == "" {
			answer = NoPreference
		}

		replies[i] = fmt.Sprintf("**%s**\n%s", q, answer)
	}

	return query + "\n\nAdditional context:\n" + strings.Join(replies, "\n\n")
}

// ClarifiedResult is the outcome of RunWithClarification.
type ClarifiedResult struct {
	*core.RunResult
	// Questions asked to the user; empty when none were needed.
	Questions []string
	// Input is the input of the final run, augmented when questions were asked.
	Input string
}

// RunWithClarification runs entry on input. Clarification is requested when
// the run trips a guardrail whose OutputInfo decodes to Clarifications, or
// when it ends in an agent whose structured output is Clarifications. The
// clarifier's answers are appended to input and resume runs exactly once on
// the result. Otherwise the entry result is returned as is. optFns configure
// the run context shared by both runs.
func RunWithClarification(ctx context.Context, r Runner, entry, resume *agent.Agent, input string, clarifier Clarifier, optFns ...func(o *runner.RunOptions)) (*ClarifiedResult, error) {
	if entry == nil || resume == nil {
		return nil, errors.New("clarification: entry and resume agents are required")
	}

	if clarifier == nil {
		return nil, errors.New("clarification: clarifier is required")
	}

	rc := r.NewRunContext(ctx, optFns...)

	res, err := r.Run(ctx, entry, input, runner.WithRunContext(rc))

	questions, ok := clarificationsFrom(res, err)
	if !ok {
		if err != nil {
			return nil, err
		}

		return &ClarifiedResult{RunResult: res, Input: input}, nil
	}

	rc.LogInfo("workflow.clarify.questions", "agent", entry.Name(), "count", len(questions))

	answers, err := clarifier.Answer(ctx, questions)
	if err != nil {
		return nil, fmt.Errorf("clarification: %w", err)
	}

	augmented := Augment(input, questions, answers)

	final, err := r.Run(ctx, resume, augmented, runner.WithRunContext(rc))
	if err != nil {
		return nil, err
	}

	return &ClarifiedResult{RunResult: final, Questions: questions, Input: augmented}, nil
}

// clarificationsFrom extracts follow-up questions from a tripped guardrail or
// a terminal result.
func clarificationsFrom(res *core.RunResult, err error) ([]string, bool) {
	var trip *core.GuardrailTrippedError
	if errors.As(err, &trip) {
		return decodeQuestions(trip.OutputInfo)
	}

	if err != nil || res == nil || res.Output == nil {
		return nil, false
	}

	return decodeQuestions(res.Output)
}

func decodeQuestions(v any) ([]string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}

	if _, ok := m["questions"]; !ok {
		return nil, false
	}

	var c Clarifications
	if err := schema.Decode(m, &c); err != nil || len(c.Questions) == 0 {
		return nil, false
	}

	return c.Questions, true
}

// NeedsClarification is a guardrail decide function that trips when a
// classifier with ClarificationsSchema asked at least one question.
func NeedsClarification(res *core.RunResult) (bool, error) {
	if res == nil {
		return false, nil
	}

	_, ok := decodeQuestions(res.Output)

	return ok, nil
}
