package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danmuck/authpipe/internal/identity"
	"github.com/danmuck/authpipe/internal/signing"
)

const defaultKeyFile = "authpipe.key.toml"

func newKeygenCmd(a *app) *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create a persistent signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := output
			if path == "" {
				path = a.cfg.KeyFile
			}
			if path == "" {
				path = defaultKeyFile
			}
			kp, err := signing.Default.GenerateKeyPair()
			if err != nil {
				return err
			}
			if err := signing.SaveKeyPair(path, kp, force); err != nil {
				return err
			}
			log.Info().Str("path", path).Msg("key_written")
			fmt.Fprintf(a.stdout, "public_key = %q\nidentity = %q\n", signing.FormatPublicKey(kp.PublicKey), identity.Fingerprint(kp.PublicKey))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "key file path (default: key_file from config, then "+defaultKeyFile+")")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	return cmd
}
