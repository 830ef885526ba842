package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hupe1980/agentrelay/workflow"
)

// lineClarifier asks each question on out and reads one answer line per
// question from in. A closed input leaves the remaining answers empty.
type lineClarifier struct {
	in  *bufio.Reader
	out io.Writer
}

func (c *lineClarifier) Answer(ctx context.Context, questions []string) ([]string, error) {
	answers := make([]string, len(questions))

	fmt.Fprintln(c.out, "Please help us clarify your request:")

	for i, q := range questions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fmt.Fprintf(c.out, "%d. %s\n> ", i+1, q)

		line, err := c.in.ReadString('\n')
		answers[i] = strings.TrimSpace(line)

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("failed to read answer: %w", err)
		}
	}

	return answers, nil
}

var _ workflow.Clarifier = (*lineClarifier)(nil)
