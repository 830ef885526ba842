package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/guardrail"
	"github.com/hupe1980/agentrelay/internal/testutil"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/schema"
)

var homeworkSchema = schema.New("HomeworkOutput",
	schema.Boolean("is_homework", "Whether the question is homework"),
	schema.String("reasoning", "Short justification"),
)

func newRunner(t *testing.T, m model.Model, optFns ...func(o *Options)) *Runner {
	t.Helper()

	r, err := New(m, optFns...)
	require.NoError(t, err)

	return r
}

// triage builds the homework triage graph: a classifier guardrail in front
// of a triage agent delegating to math and history tutors.
func triage(r *Runner) (triageAgent, mathTutor, historyTutor *agent.Agent) {
	mathTutor = agent.New("Math Tutor", agent.WithDescription("Specialist agent for math questions"))
	historyTutor = agent.New("History Tutor", agent.WithDescription("Specialist agent for historical questions"))

	classifier := agent.New("Guardrail check",
		agent.WithInstructions("Check if the user is asking about homework."),
		agent.WithOutputSchema(homeworkSchema),
	)

	triageAgent = agent.New("Triage",
		agent.WithInstructions("Determine which agent to use based on the user's homework question"),
		agent.WithHandoffs(historyTutor, mathTutor),
		agent.WithGuardrails(guardrail.NewAgentGuardrail("homework", classifier, r, guardrail.TripWhen("is_homework", false))),
	)

	return triageAgent, mathTutor, historyTutor
}

func TestNew_RequiresBackend(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	_, err = New(model.NewMockModel("m", "mock"), func(o *Options) { o.MaxModelCalls = -1 })
	require.Error(t, err)
}

func TestRun_TriageHandsOffToMath(t *testing.T) {
	m := model.NewMockModel("mock-model", "mock").
		On("Guardrail check", model.Reply(`{"is_homework": true, "reasoning": "arithmetic"}`)).
		On("Triage", model.HandoffTo("Math Tutor")).
		On("Math Tutor", model.Reply("2 + 2 = 4"))

	rec := testutil.NewHookRecorder()
	r := newRunner(t, m, func(o *Options) { o.Hooks = []Hooks{rec} })
	triageAgent, _, _ := triage(r)

	res, err := r.Run(context.Background(), triageAgent, "what is 2+2", WithRunID("run-1"))
	require.NoError(t, err)

	assert.Equal(t, "Math Tutor", res.Agent)
	assert.Equal(t, "2 + 2 = 4", res.Text)
	assert.Nil(t, res.Output)
	assert.Equal(t, []string{"Triage", "Math Tutor"}, res.Path)
	assert.Equal(t, "run-1", res.RunID)

	assert.Equal(t, 1, m.Calls("Guardrail check"))
	assert.Equal(t, 1, m.Calls("Triage"))
	assert.Equal(t, 1, m.Calls("Math Tutor"))
	assert.Equal(t, 0, m.Calls("History Tutor"))

	assert.Equal(t, []string{
		"start:Triage",
		"start:Guardrail check",
		"pass:Guardrail check",
		"model:Guardrail check",
		"end:Guardrail check",
		"pass:Triage",
		"model:Triage",
		"handoff:Triage->Math Tutor",
		"start:Math Tutor",
		"pass:Math Tutor",
		"model:Math Tutor",
		"end:Math Tutor",
		"end:Triage",
	}, rec.Events())
}

func TestRun_GuardrailTripSkipsBackendCall(t *testing.T) {
	m := model.NewMockModel("mock-model", "mock").
		On("Guardrail check", model.Reply(`{"is_homework": false, "reasoning": "small talk"}`))

	r := newRunner(t, m)
	triageAgent, _, _ := triage(r)

	res, err := r.Run(context.Background(), triageAgent, "tell me a joke")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, core.ErrGuardrailTripped)

	var trip *core.GuardrailTrippedError
	require.ErrorAs(t, err, &trip)
	assert.Equal(t, "Triage", trip.Agent)
	assert.Equal(t, "homework", trip.Guardrail)
	assert.Equal(t, map[string]any{"is_homework": false, "reasoning": "small talk"}, trip.OutputInfo)

	assert.Equal(t, 0, m.Calls("Triage"))
	assert.Equal(t, 1, m.TotalCalls())
}

func TestRun_FirstTrippingGuardrailWins(t *testing.T) {
	m := model.NewMockModel("mock-model", "mock")
	r := newRunner(t, m)

	var secondCalled bool

	a := agent.New("Writer", agent.WithGuardrails(
		guardrail.MaxLength(5),
		guardrail.Func("second", func(*core.RunContext, string) (core.Verdict, error) {
			secondCalled = true
			return core.Trip("second", nil), nil
		}),
	))

	_, err := r.Run(context.Background(), a, "far too long")

	var trip *core.GuardrailTrippedError
	require.ErrorAs(t, err, &trip)
	assert.Equal(t, "max_length", trip.Guardrail)
	assert.False(t, secondCalled)
	assert.Zero(t, m.TotalCalls())
}

func TestRun_GuardrailErrorPropagates(t *testing.T) {
	m := model.NewMockModel("mock-model", "mock")
	r := newRunner(t, m)

	boom := errors.New("classifier offline")
	a := agent.New("Writer", agent.WithGuardrails(
		guardrail.Func("broken", func(*core.RunContext, string) (core.Verdict, error) {
			return core.Verdict{}, boom
		}),
	))

	_, err := r.Run(context.Background(), a, "hi")
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, core.ErrGuardrailTripped)
	assert.Zero(t, m.TotalCalls())
}

func TestRun_HandoffEqualsDirectRun(t *testing.T) {
	script := func() *model.MockModel {
		return model.NewMockModel("mock-model", "mock").
			On("Guardrail check", model.Reply(`{"is_homework": true, "reasoning": "history"}`)).
			On("Triage", model.HandoffTo("History Tutor")).
			On("History Tutor", model.Reply("The Magna Carta was sealed in 1215."))
	}

	r1 := newRunner(t, script())
	triageAgent, _, _ := triage(r1)
	viaHandoff, err := r1.Run(context.Background(), triageAgent, "when was the magna carta sealed?")
	require.NoError(t, err)

	r2 := newRunner(t, script())
	_, _, historyTutor := triage(r2)
	direct, err := r2.Run(context.Background(), historyTutor, "when was the magna carta sealed?")
	require.NoError(t, err)

	assert.Equal(t, direct.Agent, viaHandoff.Agent)
	assert.Equal(t, direct.Text, viaHandoff.Text)
	assert.Equal(t, direct.Output, viaHandoff.Output)
	assert.Equal(t, []string{"History Tutor"}, direct.Path)
	assert.Equal(t, []string{"Triage", "History Tutor"}, viaHandoff.Path)
}

func TestRun_DelegationContract(t *testing.T) {
	tests := []struct {
		name     string
		reply    model.MockReply
		withTarg bool
		reason   string
	}{
		{name: "no selection", reply: model.Reply("I will answer myself"), withTarg: true, reason: "no handoff target selected"},
		{name: "several selections", reply: model.HandoffTo("Math", "History"), withTarg: true, reason: "multiple handoff targets selected"},
		{name: "same target twice", reply: model.HandoffTo("Math", "Math"), withTarg: true, reason: "multiple handoff targets selected"},
		{name: "unknown target", reply: model.HandoffTo("Geography"), withTarg: true, reason: "unknown handoff target"},
		{name: "agent without targets", reply: model.HandoffTo("Math"), withTarg: false, reason: "agent has no handoff targets"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := model.NewMockModel("mock-model", "mock").On("Router", tt.reply)
			r := newRunner(t, m)

			var optFns []func(o *agent.Options)
			if tt.withTarg {
				optFns = append(optFns, agent.WithHandoffs(agent.New("Math"), agent.New("History")))
			}

			_, err := r.Run(context.Background(), agent.New("Router", optFns...), "route me")
			require.ErrorIs(t, err, core.ErrDelegationContract)

			var de *core.DelegationError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, "Router", de.Agent)
			assert.Equal(t, tt.reason, de.Reason)
			assert.Equal(t, 1, m.TotalCalls())
		})
	}
}

func TestRun_BackendErrorsAreWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	m := model.NewMockModel("mock-model", "mock").On("Writer", model.Fail(boom))

	rec := testutil.NewHookRecorder()
	r := newRunner(t, m, func(o *Options) { o.Hooks = []Hooks{rec} })

	_, err := r.Run(context.Background(), agent.New("Writer"), "hi")
	require.ErrorIs(t, err, core.ErrBackend)
	assert.ErrorIs(t, err, boom)
	assert.False(t, core.IsRetryable(err))

	var be *core.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "mock", be.Provider)

	assert.Equal(t, 1, rec.Count("model-error:Writer"))
	assert.Equal(t, 1, rec.Count("error:Writer"))
}

func TestRun_BackendErrorPassesThrough(t *testing.T) {
	limited := &core.BackendError{Provider: "openai", StatusCode: 429, Retryable: true, Cause: errors.New("slow down")}
	m := model.NewMockModel("mock-model", "mock").On("Writer", model.Fail(limited))

	_, err := newRunner(t, m).Run(context.Background(), agent.New("Writer"), "hi")

	var be *core.BackendError
	require.ErrorAs(t, err, &be)
	assert.Same(t, limited, be)
	assert.True(t, core.IsRetryable(err))
}

func TestRun_CallTimeoutIsRetryable(t *testing.T) {
	m := model.NewMockModel("mock-model", "mock").SetLatency(time.Second)
	r := newRunner(t, m, func(o *Options) { o.CallTimeout = 10 * time.Millisecond })

	_, err := r.Run(context.Background(), agent.New("Writer"), "hi")
	require.ErrorIs(t, err, core.ErrBackend)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, core.IsRetryable(err))
	assert.Equal(t, 10*time.Millisecond, m.Requests()[0].Timeout)
}

func TestRun_StructuredOutput(t *testing.T) {
	type review struct {
		Verdict string   `json:"verdict"`
		Points  []string `json:"points"`
	}

	reviewSchema := schema.New("Review",
		schema.String("verdict", "accept or reject"),
		schema.Array("points", schema.TypeString, "Key points").Len(1, 3),
	)

	t.Run("valid with extra fields", func(t *testing.T) {
		m := model.NewMockModel("mock-model", "mock").
			On("Reviewer", model.Reply("```json\n{\"verdict\": \"accept\", \"points\": [\"clear\"], \"mood\": \"happy\"}\n```"))

		res, err := newRunner(t, m).Run(context.Background(), agent.New("Reviewer", agent.WithOutputSchema(reviewSchema)), "review")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"verdict": "accept", "points": []any{"clear"}}, res.Output)

		var out review
		require.NoError(t, res.FinalOutputAs(&out))
		assert.Equal(t, review{Verdict: "accept", Points: []string{"clear"}}, out)

		assert.Same(t, reviewSchema, m.Requests()[0].Schema)
	})

	t.Run("missing required field", func(t *testing.T) {
		m := model.NewMockModel("mock-model", "mock").On("Reviewer", model.Reply(`{"points": ["clear"]}`))

		_, err := newRunner(t, m).Run(context.Background(), agent.New("Reviewer", agent.WithOutputSchema(reviewSchema)), "review")
		require.ErrorIs(t, err, core.ErrValidation)

		var ve *core.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "Review", ve.Schema)
		assert.Equal(t, "verdict", ve.Field)
	})
}

func TestRun_SchemaOmittedWhenHandoffsExist(t *testing.T) {
	m := model.NewMockModel("mock-model", "mock").
		On("Router", model.HandoffTo("Worker")).
		On("Worker", model.Reply("done"))

	worker := agent.New("Worker", agent.WithDescription("does the work"))
	router := agent.New("Router",
		agent.WithHandoffs(worker),
		agent.WithOutputSchema(schema.New("Ignored", schema.String("x", ""))),
		agent.WithModel("gpt-4o-mini"),
	)

	res, err := newRunner(t, m).Run(context.Background(), router, "go")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Text)

	req := m.Requests()[0]
	assert.Nil(t, req.Schema)
	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Equal(t, []model.HandoffOption{{Name: "Worker", Description: "does the work"}}, req.Handoffs)
}

func TestRun_InstructionTemplateSeesValues(t *testing.T) {
	m := model.NewMockModel("mock-model", "mock")
	a := agent.New("Greeter", func(o *agent.Options) {
		o.Instruction = agent.MustInstructionFromTemplate("Greet {{.user}} who said {{.input}}.")
	})

	_, err := newRunner(t, m).Run(context.Background(), a, "hello", WithValues(map[string]any{"user": "Ada"}))
	require.NoError(t, err)
	assert.Equal(t, "Greet Ada who said hello.", m.Requests()[0].Instructions)
}

func TestRun_MaxModelCallsBoundsCycles(t *testing.T) {
	ping := agent.New("Ping")
	pong := agent.New("Pong")
	require.NoError(t, ping.SetHandoffs(pong))
	require.NoError(t, pong.SetHandoffs(ping))

	m := model.NewMockModel("mock-model", "mock").
		On("Ping", model.HandoffTo("Pong")).
		On("Pong", model.HandoffTo("Ping"))

	r := newRunner(t, m, func(o *Options) { o.MaxModelCalls = 5 })

	_, err := r.Run(context.Background(), ping, "loop")
	require.ErrorIs(t, err, core.ErrModelCallLimit)
	assert.Equal(t, 5, m.TotalCalls())
}

func TestRunWith_SharesLimiter(t *testing.T) {
	m := model.NewMockModel("mock-model", "mock")
	r := newRunner(t, m)

	rc := testutil.NewRunContextBuilder().RunID("shared").MaxModelCalls(1).Build()

	res, err := r.RunWith(rc, agent.New("First"), "a")
	require.NoError(t, err)
	assert.Equal(t, "shared", res.RunID)

	_, err = r.Run(context.Background(), agent.New("Second"), "b", WithRunContext(rc))
	require.ErrorIs(t, err, core.ErrModelCallLimit)
	assert.Equal(t, 1, m.TotalCalls())
}

func TestRunAsync(t *testing.T) {
	m := model.NewMockModel("mock-model", "mock").
		On("Writer", model.Reply("draft")).
		On("Broken", model.Fail(errors.New("boom")))
	r := newRunner(t, m)

	resCh, errCh := r.RunAsync(context.Background(), agent.New("Writer"), "write")
	res, ok := <-resCh
	require.True(t, ok)
	assert.Equal(t, "draft", res.Text)

	_, open := <-errCh
	assert.False(t, open)

	resCh, errCh = r.RunAsync(context.Background(), agent.New("Broken"), "write")
	err, ok := <-errCh
	require.True(t, ok)
	assert.ErrorIs(t, err, core.ErrBackend)

	_, open = <-resCh
	assert.False(t, open)
}

func TestCancel(t *testing.T) {
	m := model.NewMockModel("mock-model", "mock").SetLatency(5 * time.Second)
	r := newRunner(t, m)

	_, errCh := r.RunAsync(context.Background(), agent.New("Slow"), "wait", WithRunID("slow-run"))

	require.Eventually(t, func() bool { return r.Cancel("slow-run") == nil }, time.Second, 5*time.Millisecond)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, core.IsRetryable(err))
	case <-time.After(2 * time.Second):
		t.Fatal("run was not cancelled")
	}

	assert.Error(t, r.Cancel("slow-run"))
}

func TestHookFuncs(t *testing.T) {
	var handoffs []string

	hooks := HookFuncs{
		Handoff: func(_ *core.RunContext, from, to string) { handoffs = append(handoffs, from+"->"+to) },
	}

	m := model.NewMockModel("mock-model", "mock").
		On("Router", model.HandoffTo("Worker")).
		On("Worker", model.Reply("ok"))

	r := newRunner(t, m, func(o *Options) { o.Hooks = []Hooks{NoopHooks{}, hooks} })

	_, err := r.Run(context.Background(), agent.New("Router", agent.WithHandoffs(agent.New("Worker"))), "go")
	require.NoError(t, err)
	assert.Equal(t, []string{"Router->Worker"}, handoffs)
}
