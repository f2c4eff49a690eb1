package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/packflow/pkg/config"
	"github.com/odvcencio/packflow/pkg/repo"
	"github.com/odvcencio/packflow/pkg/session"
)

func newSaveCmd() *cobra.Command {
	var (
		trunk    string
		compress bool
		signKey  string
	)

	cmd := &cobra.Command{
		Use:   "save <output-dir>",
		Short: "Export the current branch's new commits into an artifact file",
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
			if cmd.Flags().Changed("trunk") {
				cfg.Trunk = trunk
			}
			if cmd.Flags().Changed("compress") {
				cfg.Compress = compress
			}
			if cmd.Flags().Changed("sign-key") {
				cfg.Signing.Key = signKey
			}

			s := session.New(r, cfg, session.WithLogger(log))
			res, err := s.Save(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "saved %s -> %s\n", res.Branch, res.Path)
			if res.SigPath != "" {
				fmt.Fprintf(out, "signed -> %s\n", res.SigPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&trunk, "trunk", config.DefaultTrunk, "branch the export range is computed against")
	cmd.Flags().BoolVar(&compress, "compress", false, "zstd-compress the artifact")
	cmd.Flags().StringVar(&signKey, "sign-key", "", "SSH private key to sign the artifact with")

	return cmd
}
