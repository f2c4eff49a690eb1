package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/packflow/pkg/bundle"
	"github.com/odvcencio/packflow/pkg/repo"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <artifact>",
		Short: "Print the branch an artifact targets without importing it",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := loggerFromCmd(cmd)
			defer log.Sync()

			r, err := repo.Open(cmd.Context(), ".", repo.WithLogger(log))
			if err != nil {
				return err
			}
			branch, err := bundle.PeekTargetRef(cmd.Context(), r, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s targets %s\n", args[0], branch)
			return nil
		},
	}
}
