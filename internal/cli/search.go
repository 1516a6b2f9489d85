// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-launcher/internal/ui/panel"
)

// =============================================================================
// SEARCH
// =============================================================================

func newSearchCmd(o *options) *cobra.Command {
	var engines []string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the web through SearXNG",
		Example: `  launcher search golang generics
  launcher search rust async !duckduckgo !bing
  launcher search -e wikipedia "alan turing" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, bang := panel.ParseSearch(strings.Join(args, " "))
			if query == "" {
				return &UsageError{Message: "search: empty query"}
			}
			engines = append(engines, bang...)

			a, err := o.newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			res, err := a.Bridge.Search(cmd.Context(), query, engines...)
			if err != nil {
				return err
			}
			resp, err := res.Unwrap()
			if err != nil {
				return envelopeError("search", err.Error())
			}

			if o.jsonOutput {
				return NewJSONResponse("search", resp).Write(cmd.OutOrStdout())
			}
			printResults(cmd.OutOrStdout(), resp, TerminalWidth())
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&engines, "engine", "e", nil, "engines to query (default search.default_engines)")
	return cmd
}

// =============================================================================
// ENGINES
// =============================================================================

func newEnginesCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List the engines SearXNG offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			res, err := a.Bridge.GetEngines(cmd.Context())
			if err != nil {
				return err
			}
			list, err := res.Unwrap()
			if err != nil {
				return envelopeError("engines", err.Error())
			}

			if o.jsonOutput {
				return NewJSONResponse("engines", list).Write(cmd.OutOrStdout())
			}
			printList(cmd.OutOrStdout(), list.Engines, "")
			return nil
		},
	}
}

// =============================================================================
// MODELS
// =============================================================================

func newModelsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models installed in the runtime",
		Long:  "List the installed models. The configured default model is marked with *.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a)

			if err := a.Start(cmd.Context()); err != nil {
				return fmt.Errorf("model runtime unavailable: %w", err)
			}

			res, err := a.Bridge.GetOllamaModels(cmd.Context())
			if err != nil {
				return err
			}
			list, err := res.Unwrap()
			if err != nil {
				return envelopeError("models", err.Error())
			}

			if o.jsonOutput {
				return NewJSONResponse("models", list).Write(cmd.OutOrStdout())
			}
			if len(list.Models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), render(dimStyle, "No models installed"))
				return nil
			}
			printList(cmd.OutOrStdout(), list.Models, a.Assistant.CurrentModel())
			return nil
		},
	}
}
