// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-launcher/internal/config"
	"github.com/jeranaias/rigrun-launcher/internal/ui/panel"
)

func newRunCmd(o *options) *cobra.Command {
	var serve bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open the launcher panel in the terminal",
		Long: `Open the launcher panel. The panel stays hidden until the configured
hotkey (window.hotkey) is pressed; esc or losing focus hides it again.

Logs go to ~/.rigrun-launcher/logs since the panel owns the terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPanel(cmd, o, serve)
		},
	}
	cmd.Flags().BoolVar(&serve, "serve", false, "also expose the bridge over HTTP")
	return cmd
}

// runPanel runs the panel until the user quits, optionally serving the
// bridge alongside it.
func runPanel(cmd *cobra.Command, o *options, serve bool) error {
	if !IsTTY() || !IsStdoutTTY() {
		return &TTYRequiredError{Operation: "the launcher panel (use `launcher serve` for a web renderer)"}
	}

	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}

	dir, err := config.LogDir()
	if err != nil {
		return &ConfigError{Err: err}
	}
	logFile, err := config.SetupLogFile(dir, config.MaxLogFiles)
	if err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	defer logFile.Close()
	logger := config.NewLogger(logFile, cfg.LogLevel, true)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer closeApp(a)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if err := a.Start(ctx); err != nil {
		logger.Warn("starting without model runtime", "error", err)
	}

	path, err := o.configFile()
	if err == nil && path != "" {
		if err := a.WatchConfig(path); err != nil {
			logger.Warn("config hot reload disabled", "path", path, "error", err)
		}
	}

	if serve {
		srv := newServer(a, cfg.Server.Port)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("bridge server failed", "error", err)
			}
		}()
		defer shutdownServer(srv)
	}

	return panel.Run(ctx, a)
}
