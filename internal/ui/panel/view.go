// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package panel

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigrun-launcher/internal/surface"
	"github.com/jeranaias/rigrun-launcher/internal/ui/styles"
	"github.com/jeranaias/rigrun-launcher/internal/util"
)

// Rows taken by everything but the transcript: frame border (2), header
// with its rule (2), input (1) and status bar (1).
const chromeRows = 6

// =============================================================================
// LAYOUT
// =============================================================================

// panelSize is the window size in cells, clamped to the terminal.
func (m Model) panelSize() (w, h int) {
	size := surface.DefaultOptions()
	bw, bh := size.Width, size.Height
	if win := m.window(); win != nil {
		b := win.Bounds()
		bw, bh = b.Width, b.Height
	}
	w = max(bw/CellWidthPx, 24)
	h = max(bh/CellHeightPx, chromeRows+2)
	if m.width > 0 {
		w = min(w, m.width)
	}
	if m.height > 0 {
		h = min(h, m.height)
	}
	return w, h
}

// contentWidth is the usable width inside the frame border and padding.
func (m Model) contentWidth() int {
	w, _ := m.panelSize()
	return max(w-4, 10)
}

// layout sizes the viewport, input and Markdown renderer to the panel.
func (m *Model) layout() {
	_, h := m.panelSize()
	cw := m.contentWidth()

	m.viewport.Width = cw
	m.viewport.Height = max(h-chromeRows, 1)
	m.input.Width = max(cw-len(m.input.Prompt)-3, 1)

	if m.opts.Markdown && (m.markdown == nil || m.markdownWidth != cw) {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(m.theme.GlamourStyle()),
			glamour.WithWordWrap(cw),
		)
		if err == nil {
			m.markdown, m.markdownWidth = r, cw
		}
	}
	m.refresh()
}

// refresh rebuilds the transcript content, following the tail when the
// view was already at the bottom.
func (m *Model) refresh() {
	follow := m.viewport.AtBottom() || m.viewport.TotalLineCount() == 0
	cw := m.contentWidth()

	blocks := make([]string, 0, len(m.transcript))
	for i := range m.transcript {
		blocks = append(blocks, m.renderEntry(&m.transcript[i], cw))
	}
	m.viewport.SetContent(strings.Join(blocks, "\n\n"))
	if follow {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// ENTRIES
// =============================================================================

func (m *Model) renderEntry(e *entry, width int) string {
	t := m.theme
	wrap := func(s lipgloss.Style, text string) string {
		return s.Width(width).Render(text)
	}

	switch e.kind {
	case entryUser:
		return wrap(t.UserLine, "> "+e.text)

	case entryAssistant:
		body := m.renderAnswer(e, width)
		if !e.done {
			body += " " + m.spinner.View()
		}
		if e.failed != "" {
			body += "\n" + wrap(t.ErrorLine, styles.StatusIndicators.Error+" "+e.failed)
		}
		return body

	case entrySystem:
		return wrap(t.SystemLine, e.text)

	case entryError:
		return wrap(t.ErrorLine, styles.StatusIndicators.Error+" "+e.text)

	case entryResults:
		return m.renderResults(e, width)
	}
	return e.text
}

// renderAnswer renders finished answers as Markdown and streaming ones as
// wrapped text.
func (m *Model) renderAnswer(e *entry, width int) string {
	if e.text == "" {
		return ""
	}
	if !e.done || m.markdown == nil {
		return m.theme.AssistantLine.Width(width).Render(e.text)
	}
	if e.rendered != "" && e.renderedWidth == width {
		return e.rendered
	}
	out, err := m.markdown.Render(e.text)
	if err != nil {
		return m.theme.AssistantLine.Width(width).Render(e.text)
	}
	e.rendered = strings.Trim(out, "\n")
	e.renderedWidth = width
	return e.rendered
}

func (m *Model) renderResults(e *entry, width int) string {
	t := m.theme
	resp := e.results
	var b strings.Builder
	b.WriteString(t.SystemLine.Render(fmt.Sprintf("Results for %q", e.text)))

	for _, a := range resp.AnswerTexts() {
		b.WriteString("\n")
		b.WriteString(t.AssistantLine.Width(width).Render(a))
	}

	if len(resp.Results) == 0 {
		b.WriteString("\n")
		b.WriteString(t.SystemLine.Render("No results"))
	}
	for i, r := range resp.Results {
		index := fmt.Sprintf("%2d. ", i+1)
		inner := max(width-len(index), 4)
		title := r.Title
		if title == "" {
			title = r.URL
		}
		b.WriteString("\n")
		b.WriteString(t.SearchIndex.Render(index))
		b.WriteString(t.SearchTitle.Render(util.TruncateWidth(util.FirstLine(title), inner)))
		b.WriteString("\n")
		b.WriteString(strings.Repeat(" ", len(index)))
		b.WriteString(t.SearchURL.Render(util.TruncateWidth(r.URL, inner)))
	}

	if suggestions := resp.SuggestionTexts(); len(suggestions) > 0 {
		b.WriteString("\n")
		b.WriteString(t.SystemLine.Width(width).Render("Try: " + strings.Join(suggestions, ", ")))
	}
	return b.String()
}

// =============================================================================
// VIEW
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	t := m.theme
	w := m.window()
	if w == nil || !w.IsVisible() {
		return t.StatusBar.Render(fmt.Sprintf("launcher hidden: %s to show, ctrl+c to quit", m.opts.Hotkey))
	}

	pw, ph := m.panelSize()
	cw := m.contentWidth()

	status := t.Status(m.opts.Ready(), "ollama")
	left := t.HeaderBrand.Render("launcher") + " " + t.ModelBadge.Render(m.model)
	gap := max(cw-lipgloss.Width(left)-lipgloss.Width(status), 1)
	header := t.Header.Width(cw).Render(left + strings.Repeat(" ", gap) + status)

	input := m.input.View()
	if m.Busy() {
		input = m.spinner.View() + " " + input
	}

	var help []string
	used := 0
	for _, k := range m.keys.ShortHelp() {
		s := t.Shortcut(k.Help().Key, k.Help().Desc)
		if used+lipgloss.Width(s) > cw && len(help) > 0 {
			break
		}
		help = append(help, s)
		used += lipgloss.Width(s) + 2
	}
	bar := t.StatusBar.Render(strings.Join(help, "  "))

	frame := t.Frame
	if !w.IsFocused() {
		frame = t.FrameBlurred
	}
	body := frame.
		Width(pw - 2).
		Height(ph - 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), input, bar))

	b := w.Bounds()
	x := clamp(b.X/CellWidthPx, 0, max(m.width-pw, 0))
	y := clamp(b.Y/CellHeightPx, 0, max(m.height-ph, 0))
	return t.Renderer().NewStyle().MarginLeft(x).MarginTop(y).Render(body)
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
