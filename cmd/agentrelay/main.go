// Command agentrelay runs YAML-defined agent workflows from the terminal.
//
//	agentrelay validate workflow.yaml
//	agentrelay run workflow.yaml "Who was the first president of the United States?"
//	agentrelay history --db runs.db
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "agentrelay",
		Short:         "Guarded multi-agent workflow runner",
		Long:          "agentrelay runs workflows of language model agents with guardrails, handoffs and clarification.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
