// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-launcher/internal/app"
	"github.com/jeranaias/rigrun-launcher/internal/server"
)

func newServeCmd(o *options) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the bridge over HTTP",
		Long: `Serve the bridge channels on the loopback interface so a browser
renderer can drive the launcher:

  POST /api/invoke/{channel}   invoke a channel with JSON arguments
  GET  /api/events             ollama-stream events as Server-Sent Events
  GET  /api/ws                 invoke and stream over one WebSocket
  GET  /api/window             window state
  GET  /health                 runtime reachability`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			startApp(ctx, cmd, a)

			if path, err := o.configFile(); err == nil && path != "" {
				if err := a.WatchConfig(path); err != nil {
					a.Logger().Warn("config hot reload disabled", "path", path, "error", err)
				}
			}

			if port == 0 {
				port = a.Config().Server.Port
			}
			srv := newServer(a, port)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				return nil
			case <-ctx.Done():
			}
			shutdownServer(srv)
			return <-errCh
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default server.port)")
	return cmd
}

// newServer builds the HTTP bridge for a.
func newServer(a *app.App, port int) *server.Server {
	cfg := a.Config()
	return server.New(server.Config{
		Port:           port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimit,
		Version:        Version,
	}, a.Bridge,
		server.WithWindow(a.Windows),
		server.WithRuntime(a.Runtime),
		server.WithLogger(a.Logger()),
	)
}

func shutdownServer(srv *server.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
