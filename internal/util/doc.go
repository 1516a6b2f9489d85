// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the launcher packages:
// column-aware truncation for the panel (backed by go-runewidth) and
// crash-safe file writes for config saves.
package util
