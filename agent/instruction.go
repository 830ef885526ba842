package agent

import (
	"maps"
	"text/template"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/util"
)

// Provider supplies dynamic instruction text at runtime from the run context
// and the input the agent is about to answer.
type Provider interface {
	Instruction(rc *core.RunContext, input string) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(rc *core.RunContext, input string) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(rc *core.RunContext, input string) (string, error) { return f(rc, input) }

// Instruction represents a static instruction string, a template or a dynamic provider.
type Instruction struct {
	text     string
	tmpl     *template.Template
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromTemplate parses text as a text/template. At resolve time
// the template sees the run values plus the key "input" holding the agent input.
func NewInstructionFromTemplate(text string) (Instruction, error) {
	tmpl, err := util.ParseTemplate("instruction", text)
	if err != nil {
		return Instruction{}, err
	}

	return Instruction{text: text, tmpl: tmpl}, nil
}

// MustInstructionFromTemplate is like NewInstructionFromTemplate but panics on parse errors.
func MustInstructionFromTemplate(text string) Instruction {
	inst, err := NewInstructionFromTemplate(text)
	if err != nil {
		panic(err)
	}

	return inst
}

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(rc *core.RunContext, input string) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a plain string.
func (i Instruction) IsStatic() bool { return i.provider == nil && i.tmpl == nil }

// Resolve returns the instruction text, rendering the template or invoking
// the provider if needed.
func (i Instruction) Resolve(rc *core.RunContext, input string) (string, error) {
	switch {
	case i.provider != nil:
		return i.provider.Instruction(rc, input)
	case i.tmpl != nil:
		data := map[string]any{}
		if rc != nil {
			maps.Copy(data, rc.Values())
		}

		data["input"] = input

		return util.RenderTemplate(i.tmpl, data)
	default:
		return i.text, nil
	}
}
