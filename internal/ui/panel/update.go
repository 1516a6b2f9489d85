// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package panel

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rigrun-launcher/internal/llm"
	"github.com/jeranaias/rigrun-launcher/internal/relay"
	"github.com/jeranaias/rigrun-launcher/internal/surface"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.MouseMsg:
		m.pointer = surface.Point{X: msg.X, Y: msg.Y}
		m.pointerSeen = true
		if w := m.window(); w != nil && w.IsVisible() {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.FocusMsg:
		return m, nil

	case tea.BlurMsg:
		// Losing terminal focus is losing window focus; an auto-hide window
		// hides itself.
		if w := m.window(); w != nil {
			w.Blur()
		}
		m.syncFocus()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.Busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case StreamEventMsg:
		m.handleStreamEvent(relay.Event(msg))
		return m, nil

	case HotkeyMsg:
		m.opts.Hotkey = surface.Hotkey(msg)
		m.keys.SetHotkey(m.opts.Hotkey)
		return m, nil

	case WindowChangedMsg:
		m.syncFocus()
		return m, nil

	case chatStartedMsg:
		m.handleChatStarted(msg)
		return m, nil

	case searchDoneMsg:
		m.busy--
		m.handleSearchDone(msg)
		return m, nil

	case enginesMsg:
		m.busy--
		list, errMsg := resultMessage(msg.res, msg.err)
		if errMsg != "" {
			m.appendError(errMsg)
		} else {
			m.appendSystem("Engines: " + strings.Join(list.Engines, ", "))
		}
		return m, nil

	case modelsMsg:
		m.busy--
		list, errMsg := resultMessage(msg.res, msg.err)
		switch {
		case errMsg != "":
			m.appendError(errMsg)
		case len(list.Models) == 0:
			m.appendSystem("No models installed")
		default:
			m.appendSystem("Models: " + strings.Join(list.Models, ", "))
		}
		return m, nil

	case modelSwitchMsg:
		m.busy--
		if msg.err != nil {
			m.appendError(msg.err.Error())
			return m, nil
		}
		m.model = msg.res.CurrentModel
		m.appendSystem("Model set to " + m.model)
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.appendError("Copy failed: " + msg.err.Error())
		} else {
			m.appendSystem("Copied " + msg.what)
		}
		return m, nil
	}

	return m, nil
}

// =============================================================================
// KEYS
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Toggle):
		m.host.Activate().Toggle(m.pointerPx())
		m.syncFocus()
		m.layout()
		return m, nil
	}

	w := m.window()
	if w == nil || !w.IsVisible() {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Hide):
		w.Hide()
		m.syncFocus()
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Copy):
		return m, m.copyAnswer()

	case key.Matches(msg, m.keys.Clear):
		m.clear()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		text := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if text == "" {
			return m, nil
		}
		return m, m.submit(text)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// syncFocus gives the input focus while the window is visible and focused.
func (m *Model) syncFocus() {
	if w := m.window(); w != nil && w.IsVisible() {
		m.input.Focus()
		return
	}
	m.input.Blur()
}

// =============================================================================
// CHAT
// =============================================================================

// submit dispatches a line of input.
func (m *Model) submit(text string) tea.Cmd {
	if strings.HasPrefix(text, "/") {
		return m.command(text)
	}
	return m.chat(text)
}

func (m *Model) chat(text string) tea.Cmd {
	if m.awaiting {
		m.appendSystem("Still waiting for the model to start answering")
		return nil
	}
	m.supersede()
	m.transcript = append(m.transcript, entry{kind: entryUser, text: text, done: true})
	m.history = append(m.history, llm.Message{Role: llm.RoleUser, Content: text})
	m.awaiting = true
	m.refresh()

	messages := append([]llm.Message(nil), m.history...)
	backend := m.backend
	return tea.Batch(m.spinner.Tick, m.call(func(ctx context.Context) tea.Msg {
		res, err := backend.ChatWithOllama(ctx, messages)
		return chatStartedMsg{res: res, err: err}
	}))
}

// supersede stops rendering the current stream; its remaining events are
// ignored.
func (m *Model) supersede() {
	if m.streamID == "" {
		return
	}
	if i := m.streamEntry(m.streamID); i >= 0 {
		e := &m.transcript[i]
		e.done = true
		e.failed = "interrupted"
		if e.text != "" {
			m.history = append(m.history, llm.Message{Role: llm.RoleAssistant, Content: e.text})
		} else {
			m.history = m.history[:max(len(m.history)-1, 0)]
		}
	}
	m.streamID = ""
}

func (m *Model) handleChatStarted(msg chatStartedMsg) {
	m.awaiting = false
	start, errMsg := resultMessage(msg.res, msg.err)
	if errMsg != "" {
		m.history = m.history[:max(len(m.history)-1, 0)]
		m.pending = make(map[string][]relay.Event)
		m.appendError(errMsg)
		return
	}

	m.streamID = start.ID
	m.transcript = append(m.transcript, entry{kind: entryAssistant, streamID: start.ID})
	queued := m.pending[start.ID]
	m.pending = make(map[string][]relay.Event)
	for _, ev := range queued {
		m.handleStreamEvent(ev)
	}
	m.refresh()
}

func (m *Model) handleStreamEvent(ev relay.Event) {
	if ev.ID != m.streamID || m.streamID == "" {
		// The relay can publish before the chat call returns.
		if m.awaiting {
			m.pending[ev.ID] = append(m.pending[ev.ID], ev)
		}
		return
	}

	i := m.streamEntry(ev.ID)
	if i < 0 {
		return
	}
	e := &m.transcript[i]
	switch ev.Type {
	case relay.EventChunk:
		e.text = ev.AccumulatedContent
	case relay.EventEnd:
		e.text = ev.Content
		e.done = true
		m.history = append(m.history, llm.Message{Role: llm.RoleAssistant, Content: ev.Content})
		m.streamID = ""
	case relay.EventError:
		e.done = true
		e.failed = ev.Error
		m.history = m.history[:max(len(m.history)-1, 0)]
		m.streamID = ""
	}
	m.refresh()
}

func (m Model) streamEntry(id string) int {
	for i := len(m.transcript) - 1; i >= 0; i-- {
		if m.transcript[i].kind == entryAssistant && m.transcript[i].streamID == id {
			return i
		}
	}
	return -1
}

// clear starts a new conversation.
func (m *Model) clear() {
	m.supersede()
	m.transcript = nil
	m.history = nil
	m.lastResults = nil
	m.refresh()
}

func (m *Model) appendSystem(text string) {
	m.transcript = append(m.transcript, entry{kind: entrySystem, text: text, done: true})
	m.refresh()
}

func (m *Model) appendError(text string) {
	m.transcript = append(m.transcript, entry{kind: entryError, text: text, done: true})
	m.refresh()
}
