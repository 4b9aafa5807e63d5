// Command stream-rtsp republishes a capture binary's h264 sink as a
// single RTSP session.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/chainflux/capturesvc/internal/config"
	"github.com/chainflux/capturesvc/internal/logging"
	"github.com/chainflux/capturesvc/internal/rtspsvc"
)

func main() {
	cmd := config.NewRTSPCommand(run)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Republisher) error {
	log := logging.New("stream-rtsp", cfg.Debug)

	svr, err := rtspsvc.NewServer(log, cfg.RTSPPort, cfg.PacketBufferBytes)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svr.ListenAndServe(gctx) })
	g.Go(func() error { return svr.ConsumeSink(gctx, cfg.SockH264) })
	return g.Wait()
}
