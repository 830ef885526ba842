package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/schema"
)

func newTestModel(t *testing.T, handler http.HandlerFunc) (*Model, *[]map[string]any) {
	t.Helper()

	var bodies []map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	m := NewModel([]option.RequestOption{
		option.WithBaseURL(srv.URL),
		option.WithAPIKey("test"),
		option.WithMaxRetries(0),
	})

	return m, &bodies
}

func writeCompletion(w http.ResponseWriter, message map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       message,
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
}

func TestGenerate_StructuredOutput(t *testing.T) {
	m, bodies := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
		writeCompletion(w, map[string]any{"role": "assistant", "content": `{"is_homework":true,"reasoning":"x"}`})
	})

	s := schema.New("homework output", schema.Boolean("is_homework", ""), schema.String("reasoning", ""))

	resp, err := m.Generate(context.Background(), model.Request{
		Agent:        "guardrail",
		Instructions: "Check if the user is asking about homework.",
		Input:        "what is 2+2",
		Schema:       s,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"is_homework":true,"reasoning":"x"}`, resp.Text)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	require.Len(t, *bodies, 1)
	body := (*bodies)[0]
	format := body["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	js := format["json_schema"].(map[string]any)
	assert.Equal(t, "homework_output", js["name"])
	assert.Equal(t, true, js["strict"])
	assert.Len(t, body["messages"], 2)
}

func TestGenerate_Handoff(t *testing.T) {
	m, bodies := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
		writeCompletion(w, map[string]any{
			"role":    "assistant",
			"content": "",
			"tool_calls": []any{map[string]any{
				"id":       "call_1",
				"type":     "function",
				"function": map[string]any{"name": "transfer_to_math_tutor", "arguments": "{}"},
			}},
		})
	})

	resp, err := m.Generate(context.Background(), model.Request{
		Agent:    "triage",
		Input:    "what is 2+2",
		Handoffs: []model.HandoffOption{{Name: "History Tutor"}, {Name: "Math Tutor"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Math Tutor"}, resp.Handoffs)

	tools := (*bodies)[0]["tools"].([]any)
	assert.Len(t, tools, 2)
}

func TestGenerate_ErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		m, _ := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"x"}}`))
		})

		_, err := m.Generate(context.Background(), model.Request{Input: "hi"})
		require.Error(t, err)

		var be *core.BackendError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, tt.status, be.StatusCode)
		assert.Equal(t, tt.retryable, be.Retryable)
	}
}

func TestGenerate_Timeout(t *testing.T) {
	m, _ := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	_, err := m.Generate(context.Background(), model.Request{Input: "hi", Timeout: 20 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, core.IsRetryable(err))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "output", sanitizeName(""))
	assert.Equal(t, "a_b-c", sanitizeName("a b-c"))
}
