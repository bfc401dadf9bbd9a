package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danmuck/authpipe/internal/identity"
	"github.com/danmuck/authpipe/internal/stream"
)

func newSendCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Sign stdin and write the wire format to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := a.keyPair()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stderr, "Your identity: %s\n", identity.Fingerprint(kp.PublicKey))

			enc, err := stream.NewEncoder(a.stdout, a.streamConfig(&kp))
			if err != nil {
				return err
			}
			log.Debug().Int("chunk_size", enc.ChunkSize()).Msg("send_started")
			return a.runPipe(cmd.Context(), "send", func() (int64, error) {
				n, err := io.Copy(enc, a.stdin)
				if err != nil {
					return n, err
				}
				return n, enc.Close()
			}, enc.Abort)
		},
	}
	cmd.Flags().IntVar(&a.chunkSize, "chunk-size", 0, "payload bytes per signed frame")
	cmd.Flags().StringVar(&a.keyFile, "key", "", "key file written by keygen (default: one-off key)")
	return cmd
}
