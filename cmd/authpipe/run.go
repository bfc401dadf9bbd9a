package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/authpipe/internal/observability"
	"github.com/danmuck/authpipe/internal/protocol"
)

type pipeResult struct {
	n   int64
	err error
}

// runPipe runs pipe alongside the optional metrics listener. An interrupt
// or a listener failure aborts the stream through abort; pipe itself may
// stay blocked on stdin, so it is not waited for in that case.
func (a *app) runPipe(ctx context.Context, op string, pipe func() (int64, error), abort func()) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()
	if addr := a.cfg.MetricsAddr; addr != "" {
		g.Go(func() error {
			return observability.Serve(serveCtx, addr, "authpipe", log.Logger)
		})
	}

	started := time.Now()
	done := make(chan pipeResult, 1)
	go func() {
		n, err := pipe()
		done <- pipeResult{n: n, err: err}
	}()

	var res pipeResult
	select {
	case res = <-done:
	case <-gctx.Done():
		abort()
		res.err = fmt.Errorf("%w: %v", protocol.ErrAborted, context.Cause(gctx))
	}
	stopServe()
	err := multierr.Append(res.err, g.Wait())

	event := log.Info()
	if err != nil {
		event = log.Error().Err(err).Str("kind", protocol.Kind(err))
	}
	event.
		Str("op", op).
		Int64("bytes", res.n).
		Str("size", humanize.Bytes(uint64(res.n))).
		Dur("elapsed", time.Since(started)).
		Msg("stream_finished")
	return err
}
