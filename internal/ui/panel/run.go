// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package panel

import (
	"context"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/rigrun-launcher/internal/app"
	"github.com/jeranaias/rigrun-launcher/internal/config"
	"github.com/jeranaias/rigrun-launcher/internal/relay"
	"github.com/jeranaias/rigrun-launcher/internal/surface"
	"github.com/jeranaias/rigrun-launcher/internal/ui/styles"
)

// Run draws the launcher panel for a until the user quits or ctx ends.
// The app must already be started.
func Run(ctx context.Context, a *app.App, opts ...tea.ProgramOption) error {
	cfg := a.Config()
	m := New(a.Bridge, a, Options{
		Theme:    styles.NewTheme(cfg.UI.Theme),
		Hotkey:   a.Hotkey(),
		Markdown: cfg.UI.Markdown,
		Model:    a.Assistant.CurrentModel(),
		Ready:    a.Assistant.Initialized,
	})

	opts = append([]tea.ProgramOption{
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseAllMotion(),
		tea.WithReportFocus(),
	}, opts...)
	p := tea.NewProgram(m, opts...)

	unsubscribe := a.Bridge.OnOllamaStream(func(ev relay.Event) {
		p.Send(StreamEventMsg(ev))
	})
	defer unsubscribe()

	stopWatching := watchWindows(a, p)
	defer stopWatching()

	stopConfig := a.OnConfigChange(func(*config.Config) {
		p.Send(HotkeyMsg(a.Hotkey()))
	})
	defer stopConfig()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("panel: %w", err)
	}
	return nil
}

// watchWindows redraws on every state change of the live window, following
// it across recreation.
func watchWindows(a *app.App, p *tea.Program) (stop func()) {
	var (
		mu      sync.Mutex
		current *surface.Window
		unsub   = func() {}
	)
	follow := func(w *surface.Window) {
		mu.Lock()
		defer mu.Unlock()
		if w == current || w == nil {
			return
		}
		unsub()
		current = w
		// State changes mostly come from Update itself, where a blocking
		// Send would deadlock the event loop.
		unsub = w.OnStateChange(func(surface.State, surface.Bounds) {
			go p.Send(WindowChangedMsg{})
		})
	}
	follow(a.CurrentWindow())

	stopCreated := a.OnWindowCreated(follow)
	return func() {
		stopCreated()
		mu.Lock()
		defer mu.Unlock()
		unsub()
	}
}
