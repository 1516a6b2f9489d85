// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-launcher/internal/app"
	"github.com/jeranaias/rigrun-launcher/internal/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// shutdownTimeout bounds app and server teardown.
const shutdownTimeout = 5 * time.Second

// options holds the global flags.
type options struct {
	configPath string
	logLevel   string
	jsonOutput bool
}

// NewRootCommand builds the launcher command tree.
func NewRootCommand() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:   "launcher",
		Short: "Hotkey launcher for local LLM chat and web search",
		Long: `launcher pops up a small panel on a hotkey where you can chat with a
local Ollama model or search the web through SearXNG.

Without a subcommand it runs the panel in the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if o.logLevel == "" {
				return nil
			}
			if _, err := config.ParseLevel(o.logLevel); err != nil {
				return &UsageError{Message: err.Error()}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPanel(cmd, o, false)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&o.configPath, "config", "", "config file (default: first of config.{toml,yaml,yml,json} in ~/.rigrun-launcher)")
	flags.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log_level)")
	flags.BoolVar(&o.jsonOutput, "json", false, "machine-readable output")

	root.AddCommand(
		newRunCmd(o),
		newServeCmd(o),
		newSearchCmd(o),
		newEnginesCmd(o),
		newModelsCmd(o),
		newChatCmd(o),
		newConfigCmd(o),
		newVersionCmd(o),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string) int {
	root := NewRootCommand()
	root.SetArgs(args)

	cmd, err := root.ExecuteC()
	if err != nil {
		name := root.Name()
		if cmd != nil {
			name = cmd.Name()
		}
		jsonMode, _ := root.PersistentFlags().GetBool("json")
		DisplayError(root.ErrOrStderr(), name, err, jsonMode)
		return ExitCode(err)
	}
	return ExitSuccess
}

// =============================================================================
// SHARED SETUP
// =============================================================================

// loadConfig loads the config named by --config, or the default one, and
// applies --log-level.
func (o *options) loadConfig() (*config.Config, error) {
	config.LoadDotEnv()

	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFromPath(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg, nil
}

// configFile returns the file the config was loaded from, or "" when the
// defaults are in use.
func (o *options) configFile() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.FindConfigFile()
}

// newApp builds an App logging as text to the command's stderr.
func (o *options) newApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, false)
	return newApp(cfg, logger)
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app.App, error) {
	a, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	return a, nil
}

// startApp starts a and reports an unreachable runtime without failing:
// search keeps working and chat answers with the not-initialized envelope.
func startApp(ctx context.Context, cmd *cobra.Command, a *app.App) {
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), render(warnStyle, "warning: model runtime unavailable: "+err.Error()))
	}
}

// closeApp tears a down within shutdownTimeout.
func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Close(ctx); err != nil {
		a.Logger().Warn("teardown incomplete", "error", err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
