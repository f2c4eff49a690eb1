// Command packflow exchanges branch history between disconnected
// repositories as portable artifact files: save exports the current branch's
// new commits, load imports a received artifact and merges it. Artifacts
// travel over any file-transfer channel; there is no server.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var errNoCommand = errors.New("a command is required (save, load, inspect, verify)")

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errNoCommand) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "packflow",
		Short:         "Exchange branch history as portable signed artifacts",
		SilenceUsage:  true,
		SilenceErrors: true,
		// ArbitraryArgs routes unrecognized subcommands here so both the
		// bare and the unknown-command invocations print usage.
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printUsage(cmd)
			if len(args) > 0 {
				return fmt.Errorf("unknown command %q", args[0])
			}
			return errNoCommand
		},
	}
	root.PersistentFlags().BoolP("debug", "d", false, "trace engine invocations and session states")

	root.AddCommand(newSaveCmd())
	root.AddCommand(newLoadCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// exactArgs validates like cobra.ExactArgs but prints the command's usage
// before reporting a missing or surplus argument.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			printUsage(cmd)
			return err
		}
		return nil
	}
}

func printUsage(cmd *cobra.Command) {
	cmd.SetOut(cmd.ErrOrStderr())
	_ = cmd.Usage()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "packflow 0.1.0-dev")
		},
	}
}
