package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var resetYes bool

var resetCommand = &cobra.Command{
	Use:   "reset",
	Short: "Delete every passage and recreate the dense collection",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !resetYes {
			return errors.New("refusing to reset without --yes")
		}
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.pipeline.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "retrieval stores reset")
		return nil
	},
}

func init() {
	resetCommand.Flags().BoolVarP(&resetYes, "yes", "y", false, "Confirm deletion")
	rootCmd.AddCommand(resetCommand)
}
