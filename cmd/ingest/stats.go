package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statsCommand = &cobra.Command{
	Use:   "stats",
	Short: "Show what the retrieval stores hold",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		report, err := e.pipeline.Stats(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tPAGES\tPASSAGES")
		total := 0
		for _, f := range report.Files {
			fmt.Fprintf(w, "%s\t%d\t%d\n", f.File, f.Pages, f.Passages)
			total += f.Passages
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\nsqlite: %d passages in %d files\n", total, len(report.Files))
		if report.DenseStore != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d points\n", report.DenseStore, report.DenseCount)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "dense store: disabled")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCommand)
}
