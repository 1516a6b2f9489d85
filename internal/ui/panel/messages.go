// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package panel

import (
	"github.com/jeranaias/rigrun-launcher/internal/envelope"
	"github.com/jeranaias/rigrun-launcher/internal/relay"
	"github.com/jeranaias/rigrun-launcher/internal/searxng"
	"github.com/jeranaias/rigrun-launcher/internal/surface"
)

// =============================================================================
// MESSAGES FROM OUTSIDE THE PROGRAM
// =============================================================================

// StreamEventMsg carries an ollama-stream event into the program.
type StreamEventMsg relay.Event

// HotkeyMsg rebinds the toggle key after a config reload.
type HotkeyMsg surface.Hotkey

// WindowChangedMsg asks for a redraw after the window changed state.
type WindowChangedMsg struct{}

// =============================================================================
// COMMAND RESULTS
// =============================================================================

type chatStartedMsg struct {
	res envelope.Result[envelope.StreamStart]
	err error
}

type searchDoneMsg struct {
	query string
	res   envelope.Result[searxng.SearchResponse]
	err   error
}

type enginesMsg struct {
	res envelope.Result[searxng.EngineList]
	err error
}

type modelsMsg struct {
	res envelope.Result[envelope.ModelList]
	err error
}

type modelSwitchMsg struct {
	res envelope.ModelSwitch
	err error
}

type copiedMsg struct {
	what string
	err  error
}
