// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package panel

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rigrun-launcher/internal/llm"
)

// helpText lists the slash commands.
const helpText = `/search <query> [!engine ...]  search the web
/engines                       list search engines
/models                        list installed models
/model <name>                  switch model
/copy [n]                      copy last answer, or URL of result n
/clear                         new conversation`

// ParseSearch splits "/search" arguments into the query and the engines
// named with a leading "!".
func ParseSearch(args string) (query string, engines []string) {
	var words []string
	for _, f := range strings.Fields(args) {
		if name, ok := strings.CutPrefix(f, "!"); ok && name != "" {
			engines = append(engines, name)
			continue
		}
		words = append(words, f)
	}
	return strings.Join(words, " "), engines
}

// command runs a slash command.
func (m *Model) command(text string) tea.Cmd {
	name, args, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	args = strings.TrimSpace(args)
	backend := m.backend

	switch strings.ToLower(name) {
	case "search", "s":
		query, engines := ParseSearch(args)
		if query == "" {
			m.appendError("Usage: /search <query> [!engine ...]")
			return nil
		}
		m.busy++
		m.refresh()
		return tea.Batch(m.spinner.Tick, m.call(func(ctx context.Context) tea.Msg {
			res, err := backend.Search(ctx, query, engines...)
			return searchDoneMsg{query: query, res: res, err: err}
		}))

	case "engines":
		m.busy++
		return tea.Batch(m.spinner.Tick, m.call(func(ctx context.Context) tea.Msg {
			res, err := backend.GetEngines(ctx)
			return enginesMsg{res: res, err: err}
		}))

	case "models":
		m.busy++
		return tea.Batch(m.spinner.Tick, m.call(func(ctx context.Context) tea.Msg {
			res, err := backend.GetOllamaModels(ctx)
			return modelsMsg{res: res, err: err}
		}))

	case "model":
		if args == "" {
			m.appendSystem("Current model: " + m.model)
			return nil
		}
		m.busy++
		return m.call(func(ctx context.Context) tea.Msg {
			res, err := backend.SetCurrentModel(ctx, args)
			return modelSwitchMsg{res: res, err: err}
		})

	case "copy":
		if args == "" {
			return m.copyAnswer()
		}
		n, err := strconv.Atoi(args)
		if err != nil || n < 1 || n > len(m.lastResults) {
			m.appendError(fmt.Sprintf("No search result %q", args))
			return nil
		}
		return m.copyText(m.lastResults[n-1].URL, "result "+args+" URL")

	case "clear", "new":
		m.clear()
		return nil

	case "help", "?":
		m.appendSystem(helpText)
		return nil
	}

	m.appendError("Unknown command /" + name + " (try /help)")
	return nil
}

func (m *Model) handleSearchDone(msg searchDoneMsg) {
	resp, errMsg := resultMessage(msg.res, msg.err)
	if errMsg != "" {
		m.appendError(errMsg)
		return
	}
	m.lastResults = resp.Results
	m.transcript = append(m.transcript, entry{kind: entryResults, text: msg.query, results: &resp, done: true})
	m.refresh()
}

// copyAnswer copies the latest completed assistant answer.
func (m *Model) copyAnswer() tea.Cmd {
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].Role == llm.RoleAssistant {
			return m.copyText(m.history[i].Content, "answer")
		}
	}
	m.appendSystem("Nothing to copy yet")
	return nil
}

func (m *Model) copyText(text, what string) tea.Cmd {
	write := m.opts.Clipboard
	return func() tea.Msg {
		return copiedMsg{what: what, err: write(text)}
	}
}
