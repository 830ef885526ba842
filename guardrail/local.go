package guardrail

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/agentrelay/core"
)

// LengthInfo is the OutputInfo of a tripped MaxLength guardrail.
type LengthInfo struct {
	Length    int `json:"length"`
	MaxLength int `json:"max_length"`
}

// MaxLength trips when the input exceeds n characters.
func MaxLength(n int) core.Guardrail {
	return Func("max_length", func(_ *core.RunContext, input string) (core.Verdict, error) {
		l := utf8.RuneCountInString(input)
		if l <= n {
			return core.Pass(), nil
		}

		return core.Trip("max_length", LengthInfo{Length: l, MaxLength: n}), nil
	})
}

// KeywordInfo is the OutputInfo of a tripped BlockKeywords guardrail.
type KeywordInfo struct {
	Keyword string `json:"keyword"`
	Message string `json:"message"`
}

// BlockKeywords trips when the input contains any of words, ignoring case.
func BlockKeywords(words ...string) core.Guardrail {
	lowered := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			lowered = append(lowered, strings.ToLower(w))
		}
	}

	return Func("block_keywords", func(_ *core.RunContext, input string) (core.Verdict, error) {
		in := strings.ToLower(input)

		for _, w := range lowered {
			if strings.Contains(in, w) {
				return core.Trip("block_keywords", KeywordInfo{
					Keyword: w,
					Message: fmt.Sprintf("input contains blocked keyword %q", w),
				}), nil
			}
		}

		return core.Pass(), nil
	})
}
