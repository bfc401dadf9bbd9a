package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/danmuck/authpipe/internal/identity"
	"github.com/danmuck/authpipe/internal/protocol"
	"github.com/danmuck/authpipe/internal/protocol/frame"
	"github.com/danmuck/authpipe/internal/signing"
)

func newInspectCmd(a *app) *cobra.Command {
	var frames bool
	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Describe a captured wire stream without verifying it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := a.stdin
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				src = f
			}
			return inspect(a.stdout, src, a.cfg.StreamLimits(), frames)
		},
	}
	cmd.Flags().BoolVar(&frames, "frames", false, "print one line per frame")
	return cmd
}

func inspect(out io.Writer, src io.Reader, limits protocol.Limits, perFrame bool) error {
	fr, err := frame.NewReader(src, limits)
	if errors.Is(err, io.EOF) {
		fmt.Fprintln(out, "empty stream")
		return nil
	}
	if err != nil {
		return err
	}
	hdr := fr.Header()
	fmt.Fprintf(out, "chunk_size   %d\n", hdr.ChunkSize)
	fmt.Fprintf(out, "public_key   %s\n", signing.FormatPublicKey(hdr.PublicKey))
	fmt.Fprintf(out, "identity     %s\n", identity.Fingerprint(hdr.PublicKey))

	var count, payload, overhead int
	for {
		f, err := fr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintf(out, "frames       %d (stopped: %v)\n", count, err)
			return err
		}
		count++
		payload += len(f.Payload)
		overhead += frame.FieldLen + len(f.Signature)
		if perFrame {
			fmt.Fprintf(out, "frame %-6d sig=%d payload=%d\n", count, len(f.Signature), len(f.Payload))
		}
	}
	fmt.Fprintf(out, "frames       %d\n", count)
	fmt.Fprintf(out, "payload      %s\n", humanize.IBytes(uint64(payload)))
	fmt.Fprintf(out, "signatures   %s\n", humanize.IBytes(uint64(overhead)))
	return nil
}
