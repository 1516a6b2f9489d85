// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the launcher command line.
//
// Commands:
//
//	launcher [run]              Open the hotkey panel in the terminal
//	launcher serve              Expose the bridge over HTTP for a web renderer
//	launcher search <query>     Search through SearXNG (!engine selects engines)
//	launcher engines            List the SearXNG engines
//	launcher models             List the installed models
//	launcher chat [message]     Chat with the model, interactively without a message
//	launcher config <sub>       show, get, set, keys, path
//	launcher version            Print version information
//
// Global flags:
//
//	--config PATH       Use a specific config file
//	--log-level LEVEL   debug, info, warn or error
//	--json              Machine-readable output for one-shot commands
//
// Every command goes through the same app.App as the panel, so a search from
// the command line takes the same path as one typed into the launcher.
package cli
