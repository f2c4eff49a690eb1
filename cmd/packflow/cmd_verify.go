package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/packflow/pkg/bundle"
	"github.com/odvcencio/packflow/pkg/config"
	"github.com/odvcencio/packflow/pkg/repo"
	"github.com/odvcencio/packflow/pkg/signing"
)

func newVerifyCmd() *cobra.Command {
	var allowedSigners string

	cmd := &cobra.Command{
		Use:   "verify <artifact>",
		Short: "Check an artifact's integrity and signature without importing it",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := loggerFromCmd(cmd)
			defer log.Sync()

			artifact := args[0]
			r, err := repo.Open(cmd.Context(), ".", repo.WithLogger(log))
			if err != nil {
				return err
			}

			branch, err := bundle.Verify(cmd.Context(), r, artifact)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ok: artifact is complete, targets %s\n", branch)

			signersPath := allowedSigners
			if signersPath == "" {
				cfg, err := config.Load(r.RootDir)
				if err != nil {
					return err
				}
				signersPath = cfg.Signing.AllowedSigners
			}

			sigPath := artifact + signing.SigExt
			if _, err := os.Stat(sigPath); err != nil {
				fmt.Fprintln(out, "no signature present")
				return nil
			}
			if signersPath == "" {
				return fmt.Errorf("signature present but no allowed-signers list configured")
			}
			principal, err := signing.VerifyFile(artifact, sigPath, signersPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "ok: signed by %s\n", principal)
			return nil
		},
	}

	cmd.Flags().StringVar(&allowedSigners, "allowed-signers", "", "allowed-signers file to verify against")

	return cmd
}
