package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/packflow/pkg/config"
	"github.com/odvcencio/packflow/pkg/repo"
	"github.com/odvcencio/packflow/pkg/session"
)

func newLoadCmd() *cobra.Command {
	var (
		allowedSigners string
		requireSigned  bool
	)

	cmd := &cobra.Command{
		Use:   "load <artifact>",
		Short: "Import an artifact, creating or selecting its branch, and merge it",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := loggerFromCmd(cmd)
			defer log.Sync()

			r, err := repo.Open(cmd.Context(), ".", repo.WithLogger(log))
			if err != nil {
				return err
			}
			cfg, err := config.Load(r.RootDir)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("allowed-signers") {
				cfg.Signing.AllowedSigners = allowedSigners
			}
			if cmd.Flags().Changed("require-signed") {
				cfg.Signing.Require = requireSigned
			}

			s := session.New(r, cfg, session.WithLogger(log))
			res, err := s.Load(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, repo.ErrMergeConflict) {
					return fmt.Errorf("%w; resolve conflicts in the working tree and commit", err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if res.Signer != "" {
				fmt.Fprintf(out, "signature ok (%s)\n", res.Signer)
			}
			if res.Created {
				fmt.Fprintf(out, "created branch %s\n", res.Branch)
			}
			fmt.Fprintf(out, "loaded %s (%s)\n", res.Branch, shortCommit(res.Commit))
			return nil
		},
	}

	cmd.Flags().StringVar(&allowedSigners, "allowed-signers", "", "allowed-signers file to verify the artifact against")
	cmd.Flags().BoolVar(&requireSigned, "require-signed", false, "reject artifacts without a signature")

	return cmd
}

func shortCommit(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}
