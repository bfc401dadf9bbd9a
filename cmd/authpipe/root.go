package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danmuck/authpipe/internal/config"
	"github.com/danmuck/authpipe/internal/logging"
	"github.com/danmuck/authpipe/internal/observability"
	"github.com/danmuck/authpipe/internal/signing"
	"github.com/danmuck/authpipe/internal/stream"
)

// app carries resolved settings and process streams into every command.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath  string
	logLevel    string
	metricsAddr string
	chunkSize   int
	keyFile     string
	trusted     string

	cfg config.Config
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "authpipe",
		Short: "Sign a byte stream per chunk and verify it on the other side",
		Long: `authpipe frames stdin into chunks signed with a secp256k1 key and writes the
wire format to stdout. "authpipe receive" reverses it, approving the sender's
key before any payload byte is written.

  tar c dir | authpipe send | nc host 9000
  nc -l 9000 | authpipe receive 3f2a9c | tar x`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.resolve(cmd); err != nil {
				return err
			}
			logging.ConfigureWith(a.cfg.Logging())
			observability.InitLogger("authpipe")
			return nil
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", config.DefaultPath, "config file (optional unless set explicitly)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: trace|debug|info|warn|error|off")
	pf.StringVar(&a.metricsAddr, "metrics-addr", "", "serve /metrics and /health on this address while streaming")

	root.AddCommand(
		newSendCmd(a),
		newReceiveCmd(a),
		newKeygenCmd(a),
		newInspectCmd(a),
		newConfigCmd(a),
	)
	return root
}

// resolve loads the config file and layers changed flags over it.
func (a *app) resolve(cmd *cobra.Command) error {
	var (
		cfg config.Config
		err error
	)
	if cmd.Flags().Changed("config") {
		cfg, err = config.Load(a.configPath)
	} else {
		cfg, err = config.LoadOptional(a.configPath)
	}
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = strings.TrimSpace(a.metricsAddr)
	}
	if flags.Changed("chunk-size") {
		cfg.ChunkSize = a.chunkSize
	}
	if flags.Changed("key") {
		cfg.KeyFile = a.keyFile
	}
	if flags.Changed("trusted") {
		cfg.TrustedKeysFile = a.trusted
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// keyPair loads the configured key file, or generates a one-off pair.
func (a *app) keyPair() (signing.KeyPair, error) {
	if path := strings.TrimSpace(a.cfg.KeyFile); path != "" {
		kp, err := signing.LoadKeyPair(path)
		if err != nil {
			return signing.KeyPair{}, fmt.Errorf("load key %s: %w", path, err)
		}
		return kp, nil
	}
	return signing.Default.GenerateKeyPair()
}

func (a *app) streamConfig(kp *signing.KeyPair) stream.Config {
	cfg := stream.DefaultConfig()
	cfg.ChunkSize = a.cfg.ChunkSize
	cfg.KeyPair = kp
	cfg.Limits = a.cfg.StreamLimits()
	logger := log.Logger
	cfg.Logger = &logger
	return cfg
}
