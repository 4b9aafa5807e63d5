// Command stream-webrtc republishes a capture binary's h264 sink over
// WebRTC, negotiated per-peer through a local newline-delimited JSON
// control socket.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/chainflux/capturesvc/internal/config"
	"github.com/chainflux/capturesvc/internal/logging"
	"github.com/chainflux/capturesvc/internal/webrtcsvc"
)

func main() {
	cmd := config.NewWebRTCCommand(run)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Republisher) error {
	log := logging.New("stream-webrtc", cfg.Debug)

	svr, err := webrtcsvc.NewServer(log, webrtcsvc.Config{
		ControlSockPath: cfg.WebRTCControlSock,
		MaxClients:      cfg.MaxClients,
	})
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
