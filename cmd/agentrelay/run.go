package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hupe1980/agentrelay"
	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/journal"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/runner"
	"github.com/hupe1980/agentrelay/workflow"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow.yaml> [query]",
		Short: "Run a workflow against a query",
		Long: "Run loads the workflow, runs its entry agent and prints the result. " +
			"Without a query argument the query is read from stdin. A tripped guardrail " +
			"prints its rationale and asks for a new query.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			values, _ := cmd.Flags().GetStringToString("value")
			verbose, _ := cmd.Flags().GetBool("verbose")
			clarify, _ := cmd.Flags().GetBool("clarify")
			attempts, _ := cmd.Flags().GetInt("attempts")

			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}

			store, err := openStore(dbPath)
			if err != nil {
				return err
			}

			logger := logging.Logger(logging.NoOpLogger{})

			if verbose {
				zl, err := zap.NewDevelopment()
				if err != nil {
					return fmt.Errorf("failed to create logger: %w", err)
				}
				defer zl.Sync() //nolint:errcheck // stderr sync errors are not actionable

				logger = logging.NewZapAdapter(zl)
			}

			relay, wf, err := agentrelay.NewFromConfig(cmd.Context(), cfg, func(o *agentrelay.Options) {
				o.Journal = store
				o.Logger = logger
			})
			if err != nil {
				store.Close()
				return err
			}
			defer relay.Close()

			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			s := &session{
				relay:    relay,
				workflow: wf,
				in:       in,
				out:      out,
				values:   toValues(values),
				clarify:  clarify,
				attempts: attempts,
			}

			query := ""
			if len(args) == 2 {
				query = args[1]
			}

			return s.run(cmd.Context(), query)
		},
	}

	cmd.Flags().String("db", "", "SQLite journal path (default: in-memory)")
	cmd.Flags().StringToString("value", nil, "Run value available to instruction templates (key=value)")
	cmd.Flags().BoolP("verbose", "v", false, "Log run events to stderr")
	cmd.Flags().Bool("clarify", false, "Ask clarifying questions on stdin before resuming")
	cmd.Flags().Int("attempts", 3, "Maximum number of queries when guardrails trip")

	return cmd
}

func openStore(path string) (journal.Store, error) {
	if path == "" {
		return journal.NewInMemoryStore(), nil
	}

	return journal.NewSQLiteStore(path)
}

func toValues(m map[string]string) map[string]any {
	values := make(map[string]any, len(m))
	for k, v := range m {
		values[k] = v
	}

	return values
}

// session drives one interactive run: guardrail trips re-prompt the user
// until a query is admitted or the attempts are used up.
type session struct {
	relay    *agentrelay.AgentRelay
	workflow *config.Workflow
	in       *bufio.Reader
	out      io.Writer
	values   map[string]any
	clarify  bool
	attempts int
}

func (s *session) run(ctx context.Context, query string) error {
	attempts := max(s.attempts, 1)

	for attempt := 1; ; attempt++ {
		if query == "" {
			q, err := s.prompt("What would you like to ask? ")
			if err != nil {
				return err
			}

			query = q
		}

		res, err := s.once(ctx, query)

		var trip *core.GuardrailTrippedError
		if errors.As(err, &trip) && attempt < attempts {
			fmt.Fprintf(s.out, "Your request was rejected by guardrail %q.\n", trip.Guardrail)

			if trip.OutputInfo != nil {
				fmt.Fprintf(s.out, "Reason: %v\n", trip.OutputInfo)
			}

			query = ""

			continue
		}

		if err != nil {
			return err
		}

		fmt.Fprintf(s.out, "[%s] run %s\n", strings.Join(res.Path, " -> "), res.RunID)
		fmt.Fprintln(s.out, format(res))

		return nil
	}
}

func (s *session) once(ctx context.Context, query string) (*core.RunResult, error) {
	if !s.clarify {
		return s.relay.Run(ctx, s.workflow.Entry, query, runner.WithValues(s.values))
	}

	resume := s.workflow.Resume
	if resume == nil {
		resume = s.workflow.Entry
	}

	res, err := workflow.RunWithClarification(ctx, s.relay.Runner(), s.workflow.Entry, resume, query, &lineClarifier{in: s.in, out: s.out}, runner.WithValues(s.values))
	if err != nil {
		return nil, err
	}

	return res.RunResult, nil
}

func (s *session) prompt(label string) (string, error) {
	fmt.Fprint(s.out, label)

	line, err := s.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read query: %w", err)
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return "", errors.New("empty query")
	}

	return line, nil
}

func format(res *core.RunResult) string {
	if res.Output == nil {
		return res.Text
	}

	var b strings.Builder

	if m, ok := res.Output.(map[string]any); ok {
		for _, k := range slices.Sorted(maps.Keys(m)) {
			fmt.Fprintf(&b, "%s: %v\n", k, m[k])
		}

		return strings.TrimRight(b.String(), "\n")
	}

	return fmt.Sprint(res.Output)
}
