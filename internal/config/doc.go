// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// launcher.
//
// TOML, YAML and JSON files are supported, with defaults for every key,
// environment variable overrides, validation, and hot reload.
//
// # Sections
//
//   - search: SearXNG base URL, default engines, request timeouts
//   - runtime: model runtime provider, URL, default model, timeouts
//   - window: panel size, placement, chrome flags, global hotkey
//   - server: HTTP bridge port, allowed origins, rate limit
//   - ui: terminal theme and markdown rendering
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (LAUNCHER_*), including values from .env
//   - ~/.rigrun-launcher/config.toml (or config.yaml, config.yml, config.json)
//   - Built-in defaults
//
// # Usage
//
//	config.LoadDotEnv()
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	w, _ := config.Watch(path, func(c *config.Config) { apply(c) }, logger)
//	defer w.Close()
package config
