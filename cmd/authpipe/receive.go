package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danmuck/authpipe/internal/identity"
	"github.com/danmuck/authpipe/internal/stream"
)

func newReceiveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receive [peer-identity]",
		Short: "Verify the wire format on stdin and write authenticated bytes to stdout",
		Long: `receive approves the sender's key before writing anything. With a
peer-identity argument the key's fingerprint must start with it; otherwise the
trusted keys file is used when configured; otherwise any key is accepted and
its fingerprint printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := a.peerVerifier(args)
			if err != nil {
				return err
			}
			r, err := stream.NewReader(a.stdin, peer, a.streamConfig(nil))
			if err != nil {
				return err
			}
			return a.runPipe(cmd.Context(), "receive", func() (int64, error) {
				return io.Copy(a.stdout, r)
			}, r.Abort)
		},
	}
	cmd.Flags().StringVar(&a.trusted, "trusted", "", "allow list of trusted peer keys")
	return cmd
}

func (a *app) peerVerifier(args []string) (stream.PeerVerifier, error) {
	if len(args) == 1 {
		return identity.ExpectFingerprint(args[0], log.Logger)
	}
	if path := strings.TrimSpace(a.cfg.TrustedKeysFile); path != "" {
		list, err := identity.LoadAllowList(path, log.Logger)
		if err != nil {
			return nil, err
		}
		return list, nil
	}
	accept := identity.AcceptAny(log.Logger)
	return stream.PeerVerifierFunc(func(publicKey []byte, done func(bool, error)) {
		fmt.Fprintf(a.stderr, "Peer identity: %s\n", identity.Fingerprint(publicKey))
		accept.VerifyPeerKey(publicKey, done)
	}), nil
}
