// File: cmd/hioload-proxy/main.go
// Package main
// Reverse proxy front end: binds the configured listeners and runs the
// reactor until SIGINT or SIGTERM.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/momentics/hioload-proxy/control"
	"github.com/momentics/hioload-proxy/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML configuration")
		listen     = flag.String("listen", "", "Override the listen address")
		debug      = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	cfg := server.DefaultConfig()
	if *configPath != "" {
		loaded, err := server.LoadConfig(*configPath)
		if err != nil {
			slog.Error("Failed to load configuration", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *listen != "" {
		cfg.Listen = []string{*listen}
	}

	logLevel := cfg.Level()
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, server.WithLogger(logger))
	if err != nil {
		slog.Error("Failed to start proxy", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	if *configPath != "" {
		watcher, err := control.WatchFile(*configPath, logger)
		if err != nil {
			slog.Warn("Config hot reload disabled", "error", err)
		} else {
			defer watcher.Close()
			watcher.OnChange(func() {
				next, err := server.LoadConfig(*configPath)
				if err != nil {
					slog.Warn("Ignoring invalid configuration", "error", err)
					return
				}
				srv.ReloadTimeouts(next.Timeouts)
			})
		}
	}

	for _, addr := range srv.ListenAddrs() {
		slog.Info("Proxy listening", "address", addr.String())
	}

	if err := srv.Run(ctx); err != nil {
		slog.Error("Reactor failed", "error", err)
		srv.Close()
		os.Exit(1)
	}

	slog.Info("Proxy stopped", "state", srv.Debug().DumpState(), "metrics", srv.Metrics().GetSnapshot())
}
