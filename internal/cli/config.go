// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-launcher/internal/config"
)

func newConfigCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or edit the launcher configuration",
		Example: `  launcher config show
  launcher config get runtime.default_model
  launcher config set window.hotkey alt+space
  launcher config set search.default_engines google,bing`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := o.loadConfig()
				if err != nil {
					return err
				}
				if o.jsonOutput {
					return NewJSONResponse("config show", cfg).Write(cmd.OutOrStdout())
				}
				fmt.Fprint(cmd.OutOrStdout(), cfg.String())
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one setting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := o.loadConfig()
				if err != nil {
					return err
				}
				v, err := cfg.Get(args[0])
				if err != nil {
					return err
				}
				if o.jsonOutput {
					return NewJSONResponse("config get", map[string]any{args[0]: v}).Write(cmd.OutOrStdout())
				}
				fmt.Fprintln(cmd.OutOrStdout(), formatValue(v))
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one setting in the config file",
			Long: `Change one setting and save the config file. List settings take a
comma-separated value. Environment overrides are not written back.`,
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := o.editPath()
				if err != nil {
					return err
				}
				cfg, err := readFile(path)
				if err != nil {
					return err
				}
				if err := cfg.Set(args[0], args[1]); err != nil {
					return &UsageError{Message: fmt.Sprintf("config set %s: %v", args[0], err)}
				}
				if err := cfg.Validate(); err != nil {
					return &ConfigError{Err: err}
				}
				if err := config.SaveToPath(cfg, path); err != nil {
					return &ConfigError{Err: err}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
				return nil
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List every setting",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(config.Keys(), "\n"))
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := o.editPath()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
	)
	return cmd
}

// editPath is the file config set writes: --config, the existing config
// file, or the default TOML path.
func (o *options) editPath() (string, error) {
	path, err := o.configFile()
	if err != nil {
		return "", &ConfigError{Err: err}
	}
	if path != "" {
		return path, nil
	}
	path, err = config.ConfigPath()
	if err != nil {
		return "", &ConfigError{Err: err}
	}
	return path, nil
}

// readFile decodes path without environment overrides, or returns the
// defaults when it does not exist yet.
func readFile(path string) (*config.Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	cfg, err := config.Decode(data, config.FormatOf(path))
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	return cfg, nil
}

func formatValue(v any) string {
	switch v := v.(type) {
	case []string:
		return strings.Join(v, ",")
	case fmt.Stringer:
		return v.String()
	case string:
		return v
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
