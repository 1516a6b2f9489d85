// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme modes accepted by NewTheme.
const (
	ModeDark  = "dark"
	ModeLight = "light"
	ModeAuto  = "auto"
)

// Theme holds the styled components of the launcher panel.
type Theme struct {
	// Terminal capabilities
	Mode         string
	IsDark       bool
	ColorProfile termenv.Profile

	renderer *lipgloss.Renderer

	// ==========================================================================
	// FRAME
	// ==========================================================================

	Frame        lipgloss.Style
	FrameBlurred lipgloss.Style
	Header       lipgloss.Style
	HeaderBrand  lipgloss.Style
	ModelBadge   lipgloss.Style

	// ==========================================================================
	// TRANSCRIPT
	// ==========================================================================

	UserLine      lipgloss.Style
	AssistantLine lipgloss.Style
	SystemLine    lipgloss.Style
	ErrorLine     lipgloss.Style

	SearchIndex lipgloss.Style
	SearchTitle lipgloss.Style
	SearchURL   lipgloss.Style

	// ==========================================================================
	// INPUT AND STATUS
	// ==========================================================================

	InputPrompt      lipgloss.Style
	InputPlaceholder lipgloss.Style
	Spinner          lipgloss.Style
	StatusBar        lipgloss.Style
	StatusOnline     lipgloss.Style
	StatusOffline    lipgloss.Style
	ShortcutKey      lipgloss.Style
	ShortcutDesc     lipgloss.Style
}

// NewTheme creates a theme for mode, rendering to stdout. Unknown modes
// behave like auto.
func NewTheme(mode string) *Theme {
	return NewThemeFor(os.Stdout, mode)
}

// NewThemeFor creates a theme whose color profile is detected from w.
func NewThemeFor(w io.Writer, mode string) *Theme {
	r := lipgloss.NewRenderer(w)

	mode = strings.ToLower(strings.TrimSpace(mode))
	switch mode {
	case ModeDark:
		r.SetHasDarkBackground(true)
	case ModeLight:
		r.SetHasDarkBackground(false)
	default:
		mode = ModeAuto
		r.SetHasDarkBackground(termenv.HasDarkBackground())
	}

	t := &Theme{
		Mode:         mode,
		IsDark:       r.HasDarkBackground(),
		ColorProfile: r.ColorProfile(),
		renderer:     r,
	}
	t.initStyles()
	return t
}

// Renderer returns the Lip Gloss renderer the theme's styles are bound to.
func (t *Theme) Renderer() *lipgloss.Renderer {
	return t.renderer
}

// GlamourStyle names the glamour standard style matching the background.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}

func (t *Theme) initStyles() {
	s := t.renderer.NewStyle

	t.Frame = s().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(0, 1)
	t.FrameBlurred = t.Frame.BorderForeground(Overlay)

	t.Header = s().
		Foreground(TextSecondary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).
		BorderForeground(Overlay)
	t.HeaderBrand = s().Bold(true).Foreground(Cyan)
	t.ModelBadge = s().Foreground(Purple).Italic(true)

	t.UserLine = s().Foreground(Cyan).Bold(true)
	t.AssistantLine = s().Foreground(TextPrimary)
	t.SystemLine = s().Foreground(TextMuted).Italic(true)
	t.ErrorLine = s().Foreground(Rose).Bold(true)

	t.SearchIndex = s().Foreground(TextMuted)
	t.SearchTitle = s().Foreground(TextPrimary).Bold(true)
	t.SearchURL = s().Foreground(LinkColor).Underline(true)

	t.InputPrompt = s().Foreground(Cyan).Bold(true)
	t.InputPlaceholder = s().Foreground(TextMuted)
	t.Spinner = s().Foreground(Purple)
	t.StatusBar = s().Foreground(TextSecondary)
	t.StatusOnline = s().Foreground(Emerald)
	t.StatusOffline = s().Foreground(Amber)
	t.ShortcutKey = s().Foreground(Cyan).Bold(true)
	t.ShortcutDesc = s().Foreground(TextMuted)
}

// Status renders label with the indicator and color for ok.
func (t *Theme) Status(ok bool, label string) string {
	if ok {
		return t.StatusOnline.Render(StatusIndicators.Success + " " + label)
	}
	return t.StatusOffline.Render(StatusIndicators.Warning + " " + label)
}

// Shortcut renders a "key desc" pair for the status bar.
func (t *Theme) Shortcut(key, desc string) string {
	return t.ShortcutKey.Render(key) + " " + t.ShortcutDesc.Render(desc)
}
