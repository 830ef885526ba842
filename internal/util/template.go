package util

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/template"
	"text/template/parse"
)

// funcs are available inside instruction templates.
var funcs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}

		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"title": func(s string) string {
		if len(s) == 0 {
			return s
		}

		return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	},
	"join": func(sep string, items []any) string {
		strItems := make([]string, len(items))
		for i, item := range items {
			strItems[i] = fmt.Sprintf("%v", item)
		}

		return strings.Join(strItems, sep)
	},
}

// ParseTemplate parses an instruction template once so that rendering
// errors surface at agent construction.
func ParseTemplate(name, text string) (*template.Template, error) {
	return template.New(name).Option("missingkey=zero").Funcs(funcs).Parse(text)
}

// RenderTemplate executes tmpl against data. Keys the template references
// but data lacks render as empty strings, so "default" can substitute them.
// Prompts are plain text so no HTML escaping is applied.
func RenderTemplate(tmpl *template.Template, data map[string]any) (string, error) {
	filled := make(map[string]any, len(data))
	for _, key := range Fields(tmpl) {
		filled[key] = ""
	}

	maps.Copy(filled, data)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, filled); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// Fields returns the top-level keys tmpl references, such as "topic" for
// both {{ .topic }} and {{ $.topic.name }}.
func Fields(tmpl *template.Template) []string {
	if tmpl == nil || tmpl.Tree == nil {
		return nil
	}

	seen := map[string]struct{}{}
	collectFields(tmpl.Tree.Root, seen)

	return slices.Sorted(maps.Keys(seen))
}

func collectFields(node parse.Node, seen map[string]struct{}) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}

		for _, child := range n.Nodes {
			collectFields(child, seen)
		}
	case *parse.ActionNode:
		collectFields(n.Pipe, seen)
	case *parse.PipeNode:
		if n == nil {
			return
		}

		for _, cmd := range n.Cmds {
			collectFields(cmd, seen)
		}
	case *parse.CommandNode:
		for _, arg := range n.Args {
			collectFields(arg, seen)
		}
	case *parse.ChainNode:
		collectFields(n.Node, seen)
	case *parse.FieldNode:
		seen[n.Ident[0]] = struct{}{}
	case *parse.VariableNode:
		if len(n.Ident) > 1 && n.Ident[0] == "$" {
			seen[n.Ident[1]] = struct{}{}
		}
	case *parse.IfNode:
		collectFields(n.Pipe, seen)
		collectFields(n.List, seen)
		collectFields(n.ElseList, seen)
	case *parse.RangeNode:
		collectFields(n.Pipe, seen)
	case *parse.WithNode:
		collectFields(n.Pipe, seen)
	case *parse.TemplateNode:
		collectFields(n.Pipe, seen)
	}
}
