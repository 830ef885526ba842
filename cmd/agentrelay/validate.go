package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/runner"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Check a workflow definition without calling a backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}

			// Building needs a runner for agent guardrails; nothing is run.
			r, err := runner.New(model.NewMockModel("validate", config.ProviderMock))
			if err != nil {
				return err
			}

			wf, err := cfg.Build(r)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "backend: %s %s\n", cfg.Backend.Provider, cfg.Backend.Model)
			fmt.Fprintf(out, "entry: %s\n", wf.Entry.Name())

			for _, a := range wf.Agents() {
				var targets []string
				for _, h := range a.Handoffs() {
					targets = append(targets, h.Name())
				}

				fmt.Fprintf(out, "- %s (guardrails: %d, structured: %t)", a.Name(), len(a.Guardrails()), a.OutputSchema() != nil)

				if len(targets) > 0 {
					fmt.Fprintf(out, " -> %s", strings.Join(targets, ", "))
				}

				fmt.Fprintln(out)
			}

			return nil
		},
	}
}
