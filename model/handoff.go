package model

import (
	"strings"
	"unicode"
)

// HandoffToolPrefix prefixes every generated transfer tool name.
const HandoffToolPrefix = "transfer_to_"

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// HandoffToolName returns the transfer tool name for an agent, e.g.
// "Math Tutor" becomes "transfer_to_math_tutor".
func HandoffToolName(agent string) string {
	var b strings.Builder

	b.WriteString(HandoffToolPrefix)

	prevUnderscore := true
	for i, r := range agent {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && !prevUnderscore {
				b.WriteByte('_')
			}

			b.WriteRune(unicode.ToLower(r))

			prevUnderscore = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)

			prevUnderscore = false
		default:
			if !prevUnderscore {
				b.WriteByte('_')
			}

			prevUnderscore = true
		}
	}

	return strings.TrimRight(b.String(), "_")
}

// ResolveHandoff maps a transfer tool name back to the agent it targets.
func ResolveHandoff(toolName string, options []HandoffOption) (string, bool) {
	for _, o := range options {
		if HandoffToolName(o.Name) == toolName {
			return o.Name, true
		}
	}

	return "", false
}

// HandoffTools renders handoff options as parameterless function tools.
func HandoffTools(options []HandoffOption) []ToolDefinition {
	tools := make([]ToolDefinition, 0, len(options))

	for _, o := range options {
		desc := "Transfer the conversation to the " + o.Name + " agent."
		if o.Description != "" {
			desc += " " + o.Description
		}

		tools = append(tools, ToolDefinition{
			Name:        HandoffToolName(o.Name),
			Description: desc,
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		})
	}

	return tools
}

// ResolveHandoffs maps every tool name the model selected to its target
// agent. Unknown tool names are returned verbatim so the runner can report
// them as contract violations.
func ResolveHandoffs(toolNames []string, options []HandoffOption) []string {
	if len(toolNames) == 0 {
		return nil
	}

	out := make([]string, 0, len(toolNames))
	for _, n := range toolNames {
		if agent, ok := ResolveHandoff(n, options); ok {
			out = append(out, agent)
		} else {
			out = append(out, n)
		}
	}

	return out
}
