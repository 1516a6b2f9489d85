// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package surface

import (
	"fmt"
	"strings"
)

// DefaultHotkey toggles the window. It is the terminal rendition of the
// desktop accelerator CommandOrControl+Shift+A, since terminals do not report
// shift on control combinations.
const DefaultHotkey = "ctrl+a"

// Hotkey is a parsed key combination. String returns the form Bubble Tea
// reports for the same key press (e.g. "ctrl+a", "alt+space", "f2").
type Hotkey struct {
	Ctrl  bool
	Alt   bool
	Shift bool
	Key   string
}

var namedKeys = map[string]bool{
	"space": true, "enter": true, "tab": true, "esc": true, "backspace": true,
	"up": true, "down": true, "left": true, "right": true,
	"home": true, "end": true, "pgup": true, "pgdown": true, "insert": true, "delete": true,
	"f1": true, "f2": true, "f3": true, "f4": true, "f5": true, "f6": true,
	"f7": true, "f8": true, "f9": true, "f10": true, "f11": true, "f12": true,
}

var keyAliases = map[string]string{
	"escape":   "esc",
	"return":   "enter",
	"pageup":   "pgup",
	"pagedown": "pgdown",
	"del":      "delete",
	"ins":      "insert",
}

// ParseHotkey accepts "ctrl+a" style strings and desktop accelerators such as
// "CommandOrControl+Shift+A". Modifiers are case-insensitive.
func ParseHotkey(s string) (Hotkey, error) {
	var hk Hotkey
	s = strings.TrimSpace(s)
	if s == "" {
		return hk, fmt.Errorf("hotkey is empty")
	}

	parts := strings.Split(s, "+")
	for i, raw := range parts {
		part := strings.ToLower(strings.TrimSpace(raw))
		if part == "" {
			return hk, fmt.Errorf("hotkey %q: empty key segment", s)
		}
		last := i == len(parts)-1

		switch part {
		case "ctrl", "control", "cmd", "command", "commandorcontrol", "cmdorctrl", "super", "meta":
			if last {
				return hk, fmt.Errorf("hotkey %q: missing key after modifier", s)
			}
			hk.Ctrl = true
			continue
		case "alt", "option":
			if last {
				return hk, fmt.Errorf("hotkey %q: missing key after modifier", s)
			}
			hk.Alt = true
			continue
		case "shift":
			if last {
				return hk, fmt.Errorf("hotkey %q: missing key after modifier", s)
			}
			hk.Shift = true
			continue
		}

		if !last {
			return hk, fmt.Errorf("hotkey %q: unknown modifier %q", s, part)
		}
		if alias, ok := keyAliases[part]; ok {
			part = alias
		}
		if len([]rune(part)) != 1 && !namedKeys[part] {
			return hk, fmt.Errorf("hotkey %q: unknown key %q", s, part)
		}
		hk.Key = part
	}

	if !hk.Ctrl && !hk.Alt && !namedKeys[hk.Key] {
		return hk, fmt.Errorf("hotkey %q: a printable key needs ctrl or alt", s)
	}
	return hk, nil
}

// MustParseHotkey is ParseHotkey for constants; it panics on error.
func MustParseHotkey(s string) Hotkey {
	hk, err := ParseHotkey(s)
	if err != nil {
		panic(err)
	}
	return hk
}

// String returns the terminal key string. Shift is dropped on control
// combinations because terminals cannot report it.
func (h Hotkey) String() string {
	var b strings.Builder
	if h.Ctrl {
		b.WriteString("ctrl+")
	}
	if h.Alt {
		b.WriteString("alt+")
	}
	if h.Shift && !h.Ctrl {
		b.WriteString("shift+")
	}
	switch {
	case h.Key == "space" && h.Ctrl:
		b.WriteString("@")
	case h.Key == "space":
		b.WriteString(" ")
	default:
		b.WriteString(h.Key)
	}
	return b.String()
}
