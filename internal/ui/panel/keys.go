// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package panel

import (
	"github.com/charmbracelet/bubbles/key"

	"github.com/jeranaias/rigrun-launcher/internal/surface"
)

// KeyMap defines the panel's key bindings.
type KeyMap struct {
	Toggle   key.Binding
	Hide     key.Binding
	Quit     key.Binding
	Submit   key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Copy     key.Binding
	Clear    key.Binding
}

// DefaultKeyMap returns the bindings with hk as the toggle key.
func DefaultKeyMap(hk surface.Hotkey) KeyMap {
	return KeyMap{
		Toggle: toggleBinding(hk),
		Hide: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "hide"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("C-c", "quit"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+u"),
			key.WithHelp("PgUp", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+d"),
			key.WithHelp("PgDn", "scroll down"),
		),
		Copy: key.NewBinding(
			key.WithKeys("ctrl+y"),
			key.WithHelp("C-y", "copy answer"),
		),
		Clear: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("C-l", "new chat"),
		),
	}
}

func toggleBinding(hk surface.Hotkey) key.Binding {
	return key.NewBinding(
		key.WithKeys(hk.String()),
		key.WithHelp(hk.String(), "toggle"),
	)
}

// SetHotkey rebinds the toggle key.
func (k *KeyMap) SetHotkey(hk surface.Hotkey) {
	k.Toggle = toggleBinding(hk)
}

// ShortHelp returns the bindings shown in the status bar.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Hide, k.Copy, k.Quit}
}
