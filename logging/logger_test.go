package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer

	l := NewLogger(&Config{Level: LogLevelDebug, Format: "json", Output: &buf, Component: "runner"})
	l.Debug("runner.agent.start", "agent", "triage")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "runner.agent.start", entry["msg"])
	assert.Equal(t, "runner", entry["component"])
	assert.Equal(t, "triage", entry["agent"])
}

func TestNewLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer

	l := NewLogger(&Config{Level: LogLevelWarn, Format: "text", Output: &buf})
	l.Info("dropped")
	assert.Empty(t, buf.String())

	l.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel("ERROR"))
	assert.Equal(t, LogLevelInfo, ParseLevel("bogus"))
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestZapAdapter_KeyValues(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	l := NewZapAdapter(zap.New(core))
	l.Info("guardrail.tripped", "guardrail", "homework", "agent", "triage")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "guardrail.tripped", entries[0].Message)
	assert.Equal(t, "homework", entries[0].ContextMap()["guardrail"])
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	assert.NotPanics(t, func() {
		l.Debug("a")
		l.Info("b", "k", 1)
		l.Warn("c")
		l.Error("d")
	})
}
