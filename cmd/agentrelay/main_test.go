package main

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay"
	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/model"
)

func writeWorkflow(t *testing.T, yaml string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.Execute()

	return out.String(), err
}

const echoWorkflow = `
backend:
  provider: mock
  model: mock-model
agents:
  - name: Echo
    guardrails:
      - name: no-homework
        block_keywords: [homework]
`

func TestValidate(t *testing.T) {
	out, err := execute(t, "", "validate", "../../config/testdata/triage.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, "entry: Triage Agent")
	assert.Contains(t, out, "- Triage Agent (guardrails: 2, structured: false) -> History Tutor, Math Tutor")
	assert.Contains(t, out, "- Guardrail check (guardrails: 0, structured: true)")
}

func TestValidate_Invalid(t *testing.T) {
	path := writeWorkflow(t, "agents:\n  - name: A\n    handoffs: [B]\n")

	_, err := execute(t, "", "validate", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `handoff target "B" not found`)
}

func TestRun_QueryArgument(t *testing.T) {
	path := writeWorkflow(t, echoWorkflow)

	out, err := execute(t, "", "run", path, "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "[Echo] run ")
	assert.Contains(t, out, "Mock response to: hello")
}

func TestRun_RepromptsOnTrip(t *testing.T) {
	path := writeWorkflow(t, echoWorkflow)

	out, err := execute(t, "what is love?\n", "run", path, "do my homework")
	require.NoError(t, err)

	assert.Contains(t, out, `Your request was rejected by guardrail "no-homework".`)
	assert.Contains(t, out, "What would you like to ask? ")
	assert.Contains(t, out, "Mock response to: what is love?")
}

func TestRun_AttemptsExhausted(t *testing.T) {
	path := writeWorkflow(t, echoWorkflow)

	_, err := execute(t, "homework again\n", "run", path, "homework", "--attempts", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-homework")
}

func TestRun_JournalAndHistory(t *testing.T) {
	path := writeWorkflow(t, echoWorkflow)
	db := filepath.Join(t.TempDir(), "runs.db")

	_, err := execute(t, "", "run", path, "hello", "--db", db)
	require.NoError(t, err)

	out, err := execute(t, "", "history", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "RUN")
	assert.Contains(t, out, "completed")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	runID := strings.Fields(lines[1])[0]

	out, err = execute(t, "", "history", runID, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "agent_start")
	assert.Contains(t, out, "model_call")
	assert.Contains(t, out, "agent_end")
}

func TestSession_ValuesReachInstructions(t *testing.T) {
	cfg, err := config.Parse([]byte(`
backend:
  provider: mock
agents:
  - name: Tutor
    instructions: "topic={{ .topic }}"
`))
	require.NoError(t, err)

	for _, clarify := range []bool{false, true} {
		m := model.NewMockModel("mock-model", "mock")

		relay, err := agentrelay.New(m)
		require.NoError(t, err)

		wf, err := cfg.Build(relay.Runner())
		require.NoError(t, err)

		var out bytes.Buffer

		s := &session{
			relay:    relay,
			workflow: wf,
			in:       bufio.NewReader(strings.NewReader("")),
			out:      &out,
			values:   toValues(map[string]string{"topic": "history"}),
			clarify:  clarify,
			attempts: 1,
		}

		require.NoError(t, s.run(context.Background(), "who was Caesar?"))

		reqs := m.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, "topic=history", reqs[0].Instructions, "clarify=%v", clarify)
		require.NoError(t, relay.Close())
	}
}

func TestLineClarifier(t *testing.T) {
	var out bytes.Buffer

	c := &lineClarifier{in: bufio.NewReader(strings.NewReader("EU\n")), out: &out}

	answers, err := c.Answer(context.Background(), []string{"Which market?", "What budget?"})
	require.NoError(t, err)

	assert.Equal(t, []string{"EU", ""}, answers)
	assert.Contains(t, out.String(), "1. Which market?")
	assert.Contains(t, out.String(), "2. What budget?")
}
