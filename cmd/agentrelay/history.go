package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentrelay/journal"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List journaled runs or show the entries of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, _ := cmd.Flags().GetString("db")
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := journal.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()

			if len(args) == 1 {
				entries, err := store.Entries(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				fmt.Fprintln(w, "SEQ\tKIND\tAGENT\tDETAIL\tSTATUS\tDURATION\tBRANCH")

				for _, e := range entries {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
						e.Seq, e.Kind, e.Agent, e.Detail, e.Status, e.Duration.Round(time.Millisecond), e.Branch)
				}

				return nil
			}

			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}

			fmt.Fprintln(w, "RUN\tSTARTED\tAGENT\tFINAL\tSTATUS\tENTRIES")

			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
					r.ID, r.StartedAt.Format(time.RFC3339), r.Agent, r.FinalAgent, r.Status, r.Entries)
			}

			return nil
		},
	}

	cmd.Flags().String("db", "agentrelay.db", "SQLite journal path")
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")

	return cmd
}
