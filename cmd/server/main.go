package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/st4rkjatt/videoChatSimple/internal/config"
	"github.com/st4rkjatt/videoChatSimple/internal/logging"
	"github.com/st4rkjatt/videoChatSimple/internal/server"
	"github.com/st4rkjatt/videoChatSimple/internal/signaling"
	"github.com/st4rkjatt/videoChatSimple/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the relay and serves until SIGINT or SIGTERM.
func run() error {
	// 1. Configuration & Logger
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	log := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Create the Hub and run it in its own goroutine
	relayOpts := cfg.RelayOptions()
	relayOpts.Logger = log
	hub := signaling.NewHub(relayOpts, cfg.HubOptions(), nil)

	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	// 3. Serve /health, /ws and /metrics
	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: server.NewRouter(hub, cfg.AllowedOrigins, log),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting signaling server", "addr", cfg.Addr(), "version", version.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stop()
			<-hubDone
			return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
		}
	case <-ctx.Done():
	}

	// 4. Graceful shutdown: stop accepting, then let the hub close every socket
	log.Info("Shutting down")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	<-hubDone
	return nil
}
